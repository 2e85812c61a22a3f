package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codegraph/internal/config"
	"codegraph/internal/lang"
	"codegraph/internal/scanner"
	"codegraph/internal/store"
	"codegraph/util"
)

// app carries the state shared by all subcommands once setup has run.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	root    string
	cfg     config.Config
	logger  *slog.Logger
	scanner *scanner.Scanner
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "codegraph",
		Short: "Build and query a repository-wide call graph",
		Long: `codegraph parses the source files of a repository with tree-sitter and
extracts its components (functions, methods, classes, structs, interfaces,
type aliases) together with the calls between them.

Supported languages: Go, Python, JavaScript, TypeScript (and TSX), Lua, Zig.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default <root>/"+config.FileName+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(analyzeCmd(a))
	cmd.AddCommand(indexCmd(a))
	cmd.AddCommand(serveCmd(a))
	cmd.AddCommand(watchCmd(a))
	return cmd
}

// setup resolves the repository root from args, loads its configuration and
// builds the logger and scanner.
func (a *app) setup(args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	root, err := util.ResolveRoot(path)
	if err != nil {
		return fmt.Errorf("resolve repository root: %w", err)
	}
	a.root = root

	cfg, err := config.Load(a.configPath, root)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, a.logFormat, level)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	registry := lang.NewRegistry(lang.WithLogger(logger))
	if err := cfg.Validate(registry.Names()...); err != nil {
		return err
	}
	if err := registry.Enable(cfg.Languages...); err != nil {
		return err
	}

	a.scanner = scanner.New(
		scanner.WithRegistry(registry),
		scanner.WithLogger(logger),
		scanner.WithWorkers(cfg.Workers),
		scanner.WithInclude(cfg.Include...),
		scanner.WithExclude(cfg.Exclude...),
		scanner.WithMaxFileSize(cfg.MaxFileSize),
		scanner.WithGitignore(cfg.UseGitignore()),
		scanner.WithStrictParse(cfg.StrictParse),
		scanner.WithStrictMembers(cfg.StrictMembers),
	)
	logger.Debug("codegraph.setup", "root", root, "languages", registry.Names(), "workers", cfg.Workers)
	return nil
}

// openStore opens override, or the configured database when it is empty.
func (a *app) openStore(override string) (*store.Store, error) {
	path := a.cfg.DBPath
	if override != "" {
		path = override
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return st, nil
}

func newLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
