package scanner

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Report summarizes one analysis run.
type Report struct {
	RunID     string
	Root      string
	Started   time.Time
	Files     int
	Analyzed  int
	Skipped   int
	Failures  []FileError
	Languages map[string]int
	Nodes     int
	Edges     int
	Duration  time.Duration
}

func newReport(root string) Report {
	return Report{
		RunID:     uuid.NewString(),
		Root:      root,
		Started:   time.Now(),
		Languages: make(map[string]int),
	}
}

// LogValue renders the report as a compact log group.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", r.RunID),
		slog.Int("files", r.Files),
		slog.Int("analyzed", r.Analyzed),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", len(r.Failures)),
		slog.Int("nodes", r.Nodes),
		slog.Int("edges", r.Edges),
		slog.Duration("duration", r.Duration),
	)
}
