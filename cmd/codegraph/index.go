package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func indexCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Analyze a repository and store its call graph in SQLite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(args); err != nil {
				return err
			}
			st, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			report, run, err := st.Index(cmd.Context(), a.scanner, a.root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d nodes and %d edges from %d files into %s (%d failed, %d pruned, %.2fs)\n",
				run.Nodes, run.Edges, report.Analyzed, st.Path(), len(report.Failures), run.Pruned, report.Duration.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default: db_path from config)")
	return cmd
}
