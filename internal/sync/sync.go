package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// Destination is a backup target.
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write replaces the destination's copy with the JSONL payload.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic exports to one or more destinations.
type Scheduler struct {
	store        store.EventStore
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	synced  bool
	lastSum [sha256.Size]byte // records of the last sync every destination accepted
}

// NewScheduler creates a scheduler that exports the event records in s to
// destinations every interval.
func NewScheduler(s store.EventStore, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic export. The first export runs immediately.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports once and writes to every destination. It returns the
// number of destinations that failed; an export failure counts as all.
// Writes are skipped when the records match the last fully successful sync.
func (s *Scheduler) SyncOnce(ctx context.Context) int {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("sync export failed", "err", err)
		return len(s.destinations)
	}
	data := buf.Bytes()
	sum := sha256.Sum256(recordLines(data))

	s.mu.Lock()
	unchanged := s.synced && sum == s.lastSum
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug("sync skipped, records unchanged")
		return 0
	}

	failed := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed++
			s.logger.Error("sync destination write failed", "destination", dest.Name(), "err", err)
		}
	}
	if failed == 0 {
		s.mu.Lock()
		s.synced, s.lastSum = true, sum
		s.mu.Unlock()
	}

	s.logger.Info("sync completed", "destinations", len(s.destinations), "failed", failed, "bytes", len(data))
	return failed
}

// recordLines strips the header line, whose timestamp changes every export.
func recordLines(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}
