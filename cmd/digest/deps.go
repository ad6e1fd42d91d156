package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/newsdigest/internal/config"
	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/newsletter"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
	"github.com/alfredjeanlab/newsdigest/internal/store"
	"github.com/alfredjeanlab/newsdigest/internal/store/postgres"
	"github.com/alfredjeanlab/newsdigest/internal/store/s3store"
)

// newOracle selects the text-generation provider named by the config.
func newOracle(c *config.Config) (*oracle.LLM, error) {
	var p oracle.Provider
	switch c.OracleProvider {
	case config.ProviderAnthropic:
		p = oracle.NewAnthropicProvider(c.OracleAPIKey, c.OracleModel)
	case config.ProviderOpenAI:
		p = oracle.NewOpenAIProvider(c.OracleAPIKey, c.OracleModel)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", c.OracleProvider)
	}
	return oracle.NewLLM(p, c.OracleRPS), nil
}

// newSnapshotStore returns the configured snapshot backend. The postgres
// backend reuses the event store's connection.
func newSnapshotStore(ctx context.Context, c *config.Config, pg store.SnapshotStore) (store.SnapshotStore, error) {
	switch c.SnapshotBackend {
	case config.BackendPostgres:
		return pg, nil
	case config.BackendS3:
		client, err := s3store.NewClient(ctx, c.S3Region, c.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return s3store.New(client, c.S3Bucket, c.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend)
	}
}

// newPublisher connects to NATS when configured.
func newPublisher(c *config.Config) (events.Publisher, error) {
	if c.NATSURL == "" {
		logger.Info("events disabled (NEWSDIGEST_NATS_URL not set)")
		return &events.NoopPublisher{}, nil
	}
	pub, err := events.NewNATSPublisher(c.NATSURL)
	if err != nil {
		return nil, err
	}
	logger.Info("events enabled", "nats_url", c.NATSURL)
	return pub, nil
}

// stack holds everything a generation cycle needs.
type stack struct {
	store     *postgres.PostgresStore
	snapshots store.SnapshotStore
	publisher events.Publisher
	cycle     *pipeline.Cycle
}

// buildStack opens the stores and wires the runner and generator. wrap, when
// non-nil, decorates the publisher before it is handed to the components.
func buildStack(ctx context.Context, wrap func(events.Publisher) events.Publisher) (*stack, error) {
	pg, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	snapshots, err := newSnapshotStore(ctx, cfg, pg)
	if err != nil {
		pg.Close()
		return nil, err
	}
	o, err := newOracle(cfg)
	if err != nil {
		pg.Close()
		return nil, err
	}
	pub, err := newPublisher(cfg)
	if err != nil {
		pg.Close()
		return nil, err
	}
	if wrap != nil {
		pub = wrap(pub)
	}

	runner := pipeline.NewRunner(pg, o, pub, logger, pipeline.Options{
		WindowDays:    cfg.WindowDays,
		Budget:        cfg.RunBudget,
		EventTTL:      policy.EventTTL(),
		ExtractionTTL: policy.ExtractionTTL(),
	})
	gen := newsletter.NewGenerator(pg, pg, snapshots, o, pub, logger, newsletter.Options{
		Location:    cfg.Location,
		Incremental: cfg.Incremental,
		WindowDays:  cfg.WindowDays,
		SnapshotTTL: policy.SnapshotTTL(),
		Policy:      policy.Digest(),
	})

	return &stack{
		store:     pg,
		snapshots: snapshots,
		publisher: pub,
		cycle:     pipeline.NewCycle(runner, gen, logger),
	}, nil
}

func (s *stack) Close() {
	if err := s.publisher.Close(); err != nil {
		logger.Error("error closing publisher", "err", err)
	}
	if err := s.store.Close(); err != nil {
		logger.Error("error closing store", "err", err)
	}
}

// openStore opens only the postgres store, for data commands.
func openStore() (*postgres.PostgresStore, error) {
	return postgres.New(cfg.DatabaseURL)
}
