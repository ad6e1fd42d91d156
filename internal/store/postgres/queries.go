package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// eventColumns is the column list used for SELECT statements on the event tables.
const eventColumns = `id, title, description, event_date, event_time, location, type,
	source_post_ids, source_message_ids, source_thread_ids,
	first_mentioned_at, last_updated_at, last_updated_by_source, update_count,
	merge_notes, confidence, extracted_at, extraction_model_id, expires_at`

// allEvents selects eventColumns across both collections.
const allEvents = `(SELECT ` + eventColumns + ` FROM post_events
	UNION ALL
	SELECT ` + eventColumns + ` FROM message_events) e`

const snapshotColumns = `date, generated_at, digest, processed_items, processing_stats, expires_at`

const sourceColumns = `id, type, thread_id, author, text, translated_text, translated_at, published_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tableFor maps a collection to its table name. Table names are interpolated
// into SQL, so only known collections are accepted.
func tableFor(coll model.Collection) (string, error) {
	switch coll {
	case model.CollectionPosts:
		return "post_events", nil
	case model.CollectionMessages:
		return "message_events", nil
	}
	return "", fmt.Errorf("unknown collection %q", coll)
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter, now time.Time) ([]*model.EventRecord, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	whereClauses = append(whereClauses, "expires_at > "+nextArg())
	args = append(args, now)

	if filter.UpdatedSince != nil {
		whereClauses = append(whereClauses, "last_updated_at >= "+nextArg())
		args = append(args, *filter.UpdatedSince)
	}
	if filter.Date != "" {
		whereClauses = append(whereClauses, "event_date = "+nextArg())
		args = append(args, filter.Date)
	}

	query := `SELECT ` + eventColumns + ` FROM ` + allEvents +
		` WHERE ` + strings.Join(whereClauses, " AND ") +
		` ORDER BY first_mentioned_at ASC, id ASC`
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryGetEvent(ctx context.Context, db executor, id string) (*model.EventRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM `+allEvents+` WHERE id = $1 LIMIT 1`, id)
	return scanEvent(row)
}

func queryCreateEvent(ctx context.Context, db executor, coll model.Collection, r *model.EventRecord) error {
	table, err := tableFor(coll)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (
			id, title, description, event_date, event_time, location, type,
			source_post_ids, source_message_ids, source_thread_ids,
			first_mentioned_at, last_updated_at, last_updated_by_source, update_count,
			merge_notes, confidence, extracted_at, extraction_model_id, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19
		)`,
		r.ID,
		r.Title,
		r.Description,
		r.Date,
		nullString(r.Time),
		nullString(r.Location),
		nullString(r.Type),
		textArray(r.SourcePostIDs),
		textArray(r.SourceMessageIDs),
		textArray(r.SourceThreadIDs),
		r.FirstMentionedAt,
		r.LastUpdatedAt,
		nullString(r.LastUpdatedBySource),
		r.UpdateCount,
		textArray(r.MergeNotes),
		string(r.Confidence),
		r.ExtractedAt,
		r.ExtractionModelID,
		r.ExpiresAt,
	)
	return err
}

// queryUpdateEvent applies p in one statement. Source sets are unioned and the
// update counter incremented in SQL, so the write is atomic per record.
func queryUpdateEvent(ctx context.Context, db executor, coll model.Collection, id string, p model.EventPatch) (*model.EventRecord, error) {
	table, err := tableFor(coll)
	if err != nil {
		return nil, err
	}
	increment := 0
	if p.IncrementUpdateCount {
		increment = 1
	}
	row := db.QueryRowContext(ctx, `
		UPDATE `+table+` SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			event_date = COALESCE($4, event_date),
			event_time = COALESCE($5, event_time),
			location = COALESCE($6, location),
			type = COALESCE($7, type),
			source_post_ids = CASE
				WHEN $8::text <> '' AND $9::text <> 'message' AND NOT ($8::text = ANY(source_post_ids))
				THEN array_append(source_post_ids, $8::text) ELSE source_post_ids END,
			source_message_ids = CASE
				WHEN $8::text <> '' AND $9::text = 'message' AND NOT ($8::text = ANY(source_message_ids))
				THEN array_append(source_message_ids, $8::text) ELSE source_message_ids END,
			source_thread_ids = CASE
				WHEN $10::text <> '' AND NOT ($10::text = ANY(source_thread_ids))
				THEN array_append(source_thread_ids, $10::text) ELSE source_thread_ids END,
			update_count = update_count + $11,
			merge_notes = CASE
				WHEN $12::text <> '' THEN array_append(merge_notes, $12::text) ELSE merge_notes END,
			last_updated_at = COALESCE($13, last_updated_at),
			last_updated_by_source = COALESCE($14, last_updated_by_source)
		WHERE id = $1
		RETURNING `+eventColumns,
		id,
		nullStringPtr(p.Title),
		nullStringPtr(p.Description),
		nullStringPtr(p.Date),
		nullStringPtr(p.Time),
		nullStringPtr(p.Location),
		nullStringPtr(p.Type),
		p.AddSourceID,
		string(p.SourceType),
		p.AddThreadID,
		increment,
		p.AppendMergeNote,
		nullTime(p.LastUpdatedAt),
		nullString(p.LastUpdatedBySource),
	)
	return scanEvent(row)
}

func queryDeleteEvent(ctx context.Context, db executor, id string) error {
	var n int
	err := db.QueryRowContext(ctx, `
		WITH p AS (DELETE FROM post_events WHERE id = $1 RETURNING id),
		     m AS (DELETE FROM message_events WHERE id = $1 RETURNING id)
		SELECT (SELECT count(*) FROM p) + (SELECT count(*) FROM m)`, id).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// queryExistsForSource checks for a live marker only; it never fetches rows.
// Records listing the source do not count, since a partially applied source
// has those without a marker.
func queryExistsForSource(ctx context.Context, db executor, sourceID string, now time.Time) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM source_extractions WHERE source_id = $1 AND expires_at > $2
		)`, sourceID, now).Scan(&exists)
	return exists, err
}

func queryMarkSourceProcessed(ctx context.Context, db executor, e *model.SourceExtraction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO source_extractions (source_id, source_type, extracted_at, event_count, model_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			extracted_at = EXCLUDED.extracted_at,
			event_count = EXCLUDED.event_count,
			model_id = EXCLUDED.model_id,
			expires_at = EXCLUDED.expires_at`,
		e.SourceID, string(e.SourceType), e.ExtractedAt, e.EventCount, e.ModelID, e.ExpiresAt,
	)
	return err
}

// queryDeleteExpired evicts expired rows and returns the number of event
// records removed.
func queryDeleteExpired(ctx context.Context, db executor, now time.Time) (int, error) {
	var evicted int64
	for _, table := range []string{"post_events", "message_events"} {
		res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= $1`, now)
		if err != nil {
			return 0, fmt.Errorf("delete expired %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		evicted += n
	}
	for _, table := range []string{"source_extractions", "snapshots"} {
		if _, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= $1`, now); err != nil {
			return 0, fmt.Errorf("delete expired %s: %w", table, err)
		}
	}
	return int(evicted), nil
}

func queryGetSnapshot(ctx context.Context, db executor, date string) (*model.Snapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE date = $1`, date)
	return scanSnapshot(row)
}

func queryPutSnapshot(ctx context.Context, db executor, s *model.Snapshot) error {
	digest, err := json.Marshal(s.Digest)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	processed, err := json.Marshal(s.ProcessedItems)
	if err != nil {
		return fmt.Errorf("encode processed items: %w", err)
	}
	stats, err := json.Marshal(s.ProcessingStats)
	if err != nil {
		return fmt.Errorf("encode processing stats: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			digest = EXCLUDED.digest,
			processed_items = EXCLUDED.processed_items,
			processing_stats = EXCLUDED.processing_stats,
			expires_at = EXCLUDED.expires_at`,
		s.Date, s.GeneratedAt, digest, processed, stats, s.ExpiresAt,
	)
	return err
}

func queryListTranslatedSources(ctx context.Context, db executor, since time.Time) ([]*model.Source, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE translated_at IS NOT NULL AND translated_at >= $1
		ORDER BY translated_at ASC, id ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSources(rows)
}
