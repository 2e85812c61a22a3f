package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"codegraph/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	var (
		dbPath  string
		noIndex bool
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve the call graph to agents over MCP stdio",
		Long: `Serve starts an MCP server on stdin/stdout. Unless --no-index is given the
repository is indexed in the background on startup; query tools wait for it.
With --watch the graph is rebuilt whenever source files change.`,
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
			srv := server.New(a.scanner, st, a.root, server.WithLogger(a.logger))

			if noIndex {
				srv.MarkReady()
			} else {
				go func() {
					if _, err := srv.Index(ctx); err != nil {
						a.logger.Error("serve.initial_index_failed", "error", err)
					}
				}()
			}

			if watch {
				w, err := a.newWatcher(func(ctx context.Context, changed []string) error {
					_, err := srv.Index(ctx)
					if errors.Is(err, server.ErrIndexInProgress) {
						return nil
					}
					return err
				})
				if err != nil {
					return err
				}
				go func() {
					if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Error("serve.watch_failed", "error", err)
					}
				}()
			}

			a.logger.Info("serve.start", "root", a.root, "db", st.Path())
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default: db_path from config)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "serve the existing database without indexing on startup")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-index when source files change")
	return cmd
}
