package model

import (
	"slices"
	"time"
)

// Confidence is the oracle-assigned certainty of an extraction or comparison.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// String returns the string representation of the confidence.
func (c Confidence) String() string {
	return string(c)
}

// IsValid checks whether the confidence is a known value.
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// SourceType identifies where a mention came from.
type SourceType string

const (
	SourcePost    SourceType = "post"
	SourceMessage SourceType = "message"
)

// String returns the string representation of the source type.
func (t SourceType) String() string {
	return string(t)
}

// IsValid checks whether the source type is a known value.
func (t SourceType) IsValid() bool {
	switch t {
	case SourcePost, SourceMessage:
		return true
	}
	return false
}

// Collection names the table a canonical record lives in. Records created from
// a post live in the post collection, records created from a message in the
// message collection.
type Collection string

const (
	CollectionPosts    Collection = "post_events"
	CollectionMessages Collection = "message_events"
)

// CollectionForSource returns the collection a new record from the given
// source type is created in.
func CollectionForSource(t SourceType) Collection {
	if t == SourceMessage {
		return CollectionMessages
	}
	return CollectionPosts
}

// CollectionFor returns the collection an update to r is written to. The
// decision looks only at which source-id set is already populated on r: a
// record with any post id is treated as post-origin, everything else as
// message-origin.
func CollectionFor(r *EventRecord) Collection {
	if len(r.SourcePostIDs) > 0 {
		return CollectionPosts
	}
	return CollectionMessages
}

// CandidateEvent is an unconfirmed event extracted from a single source.
type CandidateEvent struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Date            string     `json:"date"`
	Time            string     `json:"time,omitempty"`
	Location        string     `json:"location,omitempty"`
	Type            string     `json:"type,omitempty"`
	Confidence      Confidence `json:"confidence"`
	SourceType      SourceType `json:"source_type"`
	SourceID        string     `json:"source_id"`
	ThreadID        string     `json:"thread_id,omitempty"`
	SourceTimestamp time.Time  `json:"source_timestamp"`
}

// EventRecord is the persisted, deduplicated representation of one real-world event.
type EventRecord struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Date                string     `json:"date"`
	Time                string     `json:"time,omitempty"`
	Location            string     `json:"location,omitempty"`
	Type                string     `json:"type,omitempty"`
	SourcePostIDs       []string   `json:"source_post_ids"`
	SourceMessageIDs    []string   `json:"source_message_ids"`
	SourceThreadIDs     []string   `json:"source_thread_ids"`
	FirstMentionedAt    time.Time  `json:"first_mentioned_at"`
	LastUpdatedAt       time.Time  `json:"last_updated_at"`
	LastUpdatedBySource string     `json:"last_updated_by_source,omitempty"`
	UpdateCount         int        `json:"update_count"`
	MergeNotes          []string   `json:"merge_notes,omitempty"`
	Confidence          Confidence `json:"confidence"`
	ExtractedAt         time.Time  `json:"extracted_at"`
	ExtractionModelID   string     `json:"extraction_model_id"`
	ExpiresAt           time.Time  `json:"expires_at"`
}

// HasSource reports whether id appears in any of the record's source sets.
func (r *EventRecord) HasSource(id string) bool {
	return slices.Contains(r.SourcePostIDs, id) || slices.Contains(r.SourceMessageIDs, id)
}

// Clone returns a deep copy of r.
func (r *EventRecord) Clone() *EventRecord {
	c := *r
	c.SourcePostIDs = slices.Clone(r.SourcePostIDs)
	c.SourceMessageIDs = slices.Clone(r.SourceMessageIDs)
	c.SourceThreadIDs = slices.Clone(r.SourceThreadIDs)
	c.MergeNotes = slices.Clone(r.MergeNotes)
	return &c
}

// EventPatch is a partial update to a canonical record. Nil field pointers
// leave the stored value unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	Date        *string
	Time        *string
	Location    *string
	Type        *string

	// AddSourceID is unioned into the source set selected by SourceType.
	AddSourceID string
	SourceType  SourceType
	// AddThreadID is unioned into SourceThreadIDs.
	AddThreadID string

	IncrementUpdateCount bool
	AppendMergeNote      string
	LastUpdatedAt        time.Time
	LastUpdatedBySource  string
}

// ApplyPatch applies p to r in place. It mirrors the SQL update so the
// in-memory working set and the store agree after a write.
func ApplyPatch(r *EventRecord, p EventPatch) {
	setIf(&r.Title, p.Title)
	setIf(&r.Description, p.Description)
	setIf(&r.Date, p.Date)
	setIf(&r.Time, p.Time)
	setIf(&r.Location, p.Location)
	setIf(&r.Type, p.Type)

	if p.AddSourceID != "" {
		switch p.SourceType {
		case SourceMessage:
			r.SourceMessageIDs = appendUnique(r.SourceMessageIDs, p.AddSourceID)
		default:
			r.SourcePostIDs = appendUnique(r.SourcePostIDs, p.AddSourceID)
		}
	}
	if p.AddThreadID != "" {
		r.SourceThreadIDs = appendUnique(r.SourceThreadIDs, p.AddThreadID)
	}
	if p.IncrementUpdateCount {
		r.UpdateCount++
	}
	if p.AppendMergeNote != "" {
		r.MergeNotes = append(r.MergeNotes, p.AppendMergeNote)
	}
	if !p.LastUpdatedAt.IsZero() {
		r.LastUpdatedAt = p.LastUpdatedAt
	}
	if p.LastUpdatedBySource != "" {
		r.LastUpdatedBySource = p.LastUpdatedBySource
	}
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func appendUnique(set []string, v string) []string {
	if slices.Contains(set, v) {
		return set
	}
	return append(set, v)
}

// EventFilter holds criteria for scanning canonical records.
type EventFilter struct {
	// UpdatedSince limits the scan to records touched at or after this time.
	UpdatedSince *time.Time `json:"updated_since,omitempty"`
	// Date limits the scan to records whose raw date equals this value.
	Date  string `json:"date,omitempty"`
	Limit int    `json:"limit,omitempty"`
}
