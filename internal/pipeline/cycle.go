package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// SnapshotWriter writes the day's digest from a finished run's report.
type SnapshotWriter interface {
	Generate(ctx context.Context, stats model.RunReport) (*model.Snapshot, error)
}

// CycleResult is a run followed by snapshot generation.
type CycleResult struct {
	Result
	SnapshotDate  string `json:"snapshot_date,omitempty"`
	SnapshotError string `json:"snapshot_error,omitempty"`
}

// Cycle runs extraction and then writes the day's snapshot. It is what the
// CLI, the HTTP trigger and the schedulers invoke.
type Cycle struct {
	runner *Runner
	writer SnapshotWriter
	logger *slog.Logger

	// running spans the run and the snapshot write, so two cycles never
	// write the same day's snapshot concurrently.
	running sync.Mutex

	mu   sync.Mutex
	last *CycleResult
}

// NewCycle pairs r with w. A nil w runs extraction only.
func NewCycle(r *Runner, w SnapshotWriter, logger *slog.Logger) *Cycle {
	return &Cycle{runner: r, writer: w, logger: logger}
}

// Run performs one cycle. The snapshot is written even when the run exceeded
// its budget; a snapshot failure is returned alongside the run result. It
// returns ErrRunInProgress while another cycle is still running.
func (c *Cycle) Run(ctx context.Context) (CycleResult, error) {
	if !c.running.TryLock() {
		return CycleResult{}, ErrRunInProgress
	}
	defer c.running.Unlock()

	res, err := c.runner.Run(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	out := CycleResult{Result: res}
	defer c.remember(&out)

	if c.writer == nil {
		return out, nil
	}
	snap, err := c.writer.Generate(ctx, res.Report)
	if err != nil {
		c.logger.Error("snapshot generation failed", "run_id", res.RunID, "err", err)
		out.SnapshotError = err.Error()
		return out, fmt.Errorf("generate snapshot: %w", err)
	}
	out.SnapshotDate = snap.Date
	return out, nil
}

// Last returns the most recent completed cycle, if any.
func (c *Cycle) Last() (CycleResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return CycleResult{}, false
	}
	return *c.last, true
}

func (c *Cycle) remember(res *CycleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := *res
	c.last = &last
}
