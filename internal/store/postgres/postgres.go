// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// classify maps sql.ErrNoRows to store.ErrNotFound and wraps every other
// failure in store.ErrStoreAccess.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, store.ErrStoreAccess, err)
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.EventRecord, error) {
	recs, err := queryListEvents(ctx, s.db, filter, s.now())
	return recs, classify("list events", err)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.EventRecord, error) {
	rec, err := queryGetEvent(ctx, s.db, id)
	return rec, classify("get event "+id, err)
}

func (s *PostgresStore) CreateEvent(ctx context.Context, coll model.Collection, rec *model.EventRecord) error {
	return classify("create event "+rec.ID, queryCreateEvent(ctx, s.db, coll, rec))
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, coll model.Collection, id string, patch model.EventPatch) (*model.EventRecord, error) {
	rec, err := queryUpdateEvent(ctx, s.db, coll, id, patch)
	return rec, classify("update event "+id, err)
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	return classify("delete event "+id, queryDeleteEvent(ctx, s.db, id))
}

func (s *PostgresStore) ExistsForSource(ctx context.Context, sourceID string) (bool, error) {
	ok, err := queryExistsForSource(ctx, s.db, sourceID, s.now())
	return ok, classify("check source "+sourceID, err)
}

func (s *PostgresStore) MarkSourceProcessed(ctx context.Context, ext *model.SourceExtraction) error {
	return classify("mark source "+ext.SourceID, queryMarkSourceProcessed(ctx, s.db, ext))
}

// DeleteExpired evicts expired rows from every table in one transaction.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin transaction", err)
	}
	n, err := queryDeleteExpired(ctx, tx, now)
	if err != nil {
		_ = tx.Rollback()
		return 0, classify("delete expired", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("commit transaction", err)
	}
	return n, nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, date string) (*model.Snapshot, error) {
	snap, err := queryGetSnapshot(ctx, s.db, date)
	return snap, classify("get snapshot "+date, err)
}

func (s *PostgresStore) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	return classify("put snapshot "+snap.Date, queryPutSnapshot(ctx, s.db, snap))
}

func (s *PostgresStore) ListTranslatedSources(ctx context.Context, since time.Time) ([]*model.Source, error) {
	srcs, err := queryListTranslatedSources(ctx, s.db, since)
	return srcs, classify("list sources", err)
}
