package model

import "time"

// Source is a translated post or message supplied by upstream ingestion.
type Source struct {
	ID             string     `json:"id"`
	Type           SourceType `json:"type"`
	ThreadID       string     `json:"thread_id,omitempty"`
	Author         string     `json:"author,omitempty"`
	Text           string     `json:"text"`
	TranslatedText string     `json:"translated_text"`
	TranslatedAt   time.Time  `json:"translated_at"`
	PublishedAt    time.Time  `json:"published_at"`
}

// Body returns the text handed to the oracle, preferring the translation.
func (s *Source) Body() string {
	if s.TranslatedText != "" {
		return s.TranslatedText
	}
	return s.Text
}

// SourceExtraction marks a source whose extraction completed and validated,
// including sources that yielded zero events.
type SourceExtraction struct {
	SourceID    string     `json:"source_id"`
	SourceType  SourceType `json:"source_type"`
	ExtractedAt time.Time  `json:"extracted_at"`
	EventCount  int        `json:"event_count"`
	ModelID     string     `json:"model_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
}
