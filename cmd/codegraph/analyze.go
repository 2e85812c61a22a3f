package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/analyzer"
	"codegraph/internal/graph"
)

func analyzeCmd(a *app) *cobra.Command {
	var (
		outputPath string
		check      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a repository and print its call graph as JSON",
		Long: `Analyze scans the repository (default: the git root of the working
directory) and writes {"nodes": [...], "call_relationships": [...]} to stdout
or --output. Per-file failures are logged and do not abort the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(args); err != nil {
				return err
			}
			ctx := cmd.Context()
			started := time.Now()

			files, unreadable, err := a.scanner.Discover(ctx, a.root)
			if err != nil {
				return err
			}
			g, report, err := a.scanner.AnalyzeRepository(ctx, files, a.root)
			if err != nil {
				return err
			}
			report.Files += len(unreadable)
			report.Failures = append(unreadable, report.Failures...)
			for _, f := range report.Failures {
				a.logger.Warn("analyze.file_failed", "path", f.Path, "language", f.Language, "error", f.Err)
			}
			a.logger.Info("analyze.done", "report", report, "elapsed", time.Since(started))

			if check {
				lineCounts := make(map[string]int, len(files))
				for _, f := range files {
					lineCounts[f.RelPath] = analyzer.LineCount(f.Content)
				}
				if violations := graph.ValidateGraph(g, lineCounts); len(violations) > 0 {
					for _, v := range violations {
						a.logger.Error("analyze.invariant_violated", "component", v.ID, "reason", v.Reason)
					}
					return fmt.Errorf("%d invariant violations", len(violations))
				}
			}

			var out io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return writeGraph(out, g)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&check, "check", false, "verify line bounds, ordering and id uniqueness of the result")
	return cmd
}

func writeGraph(w io.Writer, g graph.Graph) error {
	if g.Nodes == nil {
		g.Nodes = []graph.Node{}
	}
	if g.Edges == nil {
		g.Edges = []graph.CallRelationship{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
