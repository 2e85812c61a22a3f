package store

import (
	"context"
	"fmt"

	"codegraph/internal/scanner"
)

// Index runs a cold scan of root and replaces the stored graph with its
// result. The returned run is the record written for this scan.
func (s *Store) Index(ctx context.Context, sc *scanner.Scanner, root string) (scanner.Report, Run, error) {
	g, report, err := sc.Scan(ctx, root)
	if err != nil {
		return report, Run{}, fmt.Errorf("scan failed: %w", err)
	}
	run, err := s.ReplaceGraph(ctx, RunFromReport(report), g)
	if err != nil {
		return report, run, fmt.Errorf("store graph: %w", err)
	}
	return report, run, nil
}
