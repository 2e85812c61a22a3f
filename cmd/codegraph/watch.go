package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/watcher"
)

func watchCmd(a *app) *cobra.Command {
	var (
		dbPath   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Index a repository and re-index it whenever source files change",
		Long: `Watch performs an initial index, then follows file system events under the
repository root. After a quiet period (--debounce) the whole repository is
analyzed again from scratch and the stored graph replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(args); err != nil {
				return err
			}
			st, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			report, run, err := st.Index(ctx, a.scanner, a.root)
			if err != nil {
				return err
			}
			a.logger.Info("watch.indexed", "report", report, "pruned", run.Pruned)

			w, err := a.newWatcher(func(ctx context.Context, changed []string) error {
				report, run, err := st.Index(ctx, a.scanner, a.root)
				if err != nil {
					return err
				}
				a.logger.Info("watch.indexed", "changed", len(changed), "report", report, "pruned", run.Pruned)
				return nil
			}, watcher.WithDebounce(debounce))
			if err != nil {
				return err
			}

			a.logger.Info("watch.start", "root", a.root, "db", st.Path())
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default: db_path from config)")
	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before re-indexing")
	return cmd
}

// newWatcher watches the repository with the scanner's path policy.
func (a *app) newWatcher(trigger watcher.Trigger, opts ...watcher.Option) (*watcher.Watcher, error) {
	filter, err := a.scanner.NewFilter(a.root)
	if err != nil {
		return nil, err
	}
	opts = append([]watcher.Option{watcher.WithLogger(a.logger)}, opts...)
	return watcher.New(a.root, filter, trigger, opts...)
}
