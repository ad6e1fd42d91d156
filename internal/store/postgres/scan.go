package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.EventRecord.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.EventRecord, error) {
	var r model.EventRecord
	var (
		eventTime     sql.NullString
		location      sql.NullString
		typ           sql.NullString
		lastUpdatedBy sql.NullString
		confidence    string
	)

	err := row.Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&r.Date,
		&eventTime,
		&location,
		&typ,
		pq.Array(&r.SourcePostIDs),
		pq.Array(&r.SourceMessageIDs),
		pq.Array(&r.SourceThreadIDs),
		&r.FirstMentionedAt,
		&r.LastUpdatedAt,
		&lastUpdatedBy,
		&r.UpdateCount,
		pq.Array(&r.MergeNotes),
		&confidence,
		&r.ExtractedAt,
		&r.ExtractionModelID,
		&r.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	r.Time = eventTime.String
	r.Location = location.String
	r.Type = typ.String
	r.LastUpdatedBySource = lastUpdatedBy.String
	r.Confidence = model.Confidence(confidence)
	return &r, nil
}

// scanEvents scans multiple rows into a slice of model.EventRecord pointers.
func scanEvents(rows *sql.Rows) ([]*model.EventRecord, error) {
	var recs []*model.EventRecord
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// scanSnapshot scans a single row into a model.Snapshot, decoding the JSONB
// sections.
func scanSnapshot(row scannable) (*model.Snapshot, error) {
	var s model.Snapshot
	var digest, processed, stats []byte

	if err := row.Scan(&s.Date, &s.GeneratedAt, &digest, &processed, &stats, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(digest, &s.Digest); err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	if len(processed) > 0 {
		if err := json.Unmarshal(processed, &s.ProcessedItems); err != nil {
			return nil, fmt.Errorf("decode processed items: %w", err)
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &s.ProcessingStats); err != nil {
			return nil, fmt.Errorf("decode processing stats: %w", err)
		}
	}
	return &s, nil
}

// scanSource scans a single row into a model.Source.
func scanSource(row scannable) (*model.Source, error) {
	var s model.Source
	var (
		typ            string
		threadID       sql.NullString
		author         sql.NullString
		translatedText sql.NullString
		translatedAt   sql.NullTime
	)
	err := row.Scan(&s.ID, &typ, &threadID, &author, &s.Text, &translatedText, &translatedAt, &s.PublishedAt)
	if err != nil {
		return nil, err
	}
	s.Type = model.SourceType(typ)
	s.ThreadID = threadID.String
	s.Author = author.String
	s.TranslatedText = translatedText.String
	if translatedAt.Valid {
		s.TranslatedAt = translatedAt.Time
	}
	return &s, nil
}

// scanSources scans multiple rows into a slice of model.Source pointers.
func scanSources(rows *sql.Rows) ([]*model.Source, error) {
	var out []*model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nullTime converts a zero time to a NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullString converts an empty string to a NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringPtr converts a nil pointer to a NULL, so COALESCE keeps the
// stored value.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// textArray returns a non-nil array so NOT NULL array columns never see NULL.
func textArray(v []string) any {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}
