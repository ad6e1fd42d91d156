package model

import "time"

// InfoType categorizes an important-info item. Unknown values are accepted and
// retained under the default window.
type InfoType string

const (
	InfoHealthAlert   InfoType = "health_alert"
	InfoPolicyChange  InfoType = "policy_change"
	InfoDeadline      InfoType = "deadline"
	InfoFamilyMention InfoType = "family_mention"
	InfoUrgentRequest InfoType = "urgent_request"
)

// String returns the string representation of the info type.
func (t InfoType) String() string {
	return string(t)
}

// ImportantInfo is a single entry in the important-info section.
type ImportantInfo struct {
	Type        InfoType   `json:"type"`
	Description string     `json:"description"`
	Source      string     `json:"source,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	IsNew       bool       `json:"is_new"`
}

// NewsletterEvent is the digest-facing view of an upcoming event.
type NewsletterEvent struct {
	Title           string   `json:"title"`
	Date            string   `json:"date"`
	Time            string   `json:"time,omitempty"`
	Location        string   `json:"location,omitempty"`
	Description     string   `json:"description"`
	WhoShouldAttend string   `json:"who_should_attend,omitempty"`
	Requirements    []string `json:"requirements,omitempty"`
	IsNew           bool     `json:"is_new"`
	IsUpdated       bool     `json:"is_updated"`
	Changes         []string `json:"changes,omitempty"`
}

// Reminder is a general reminder line.
type Reminder struct {
	Text    string    `json:"text"`
	AddedAt time.Time `json:"added_at"`
}

// Highlight is a weekly highlight entry.
type Highlight struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ThreadSummary condenses one conversation thread.
type ThreadSummary struct {
	ThreadID     string `json:"thread_id"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	MessageCount int    `json:"message_count"`
}

// Digest is the five-section newsletter content.
type Digest struct {
	ImportantInfo    []ImportantInfo   `json:"important_info"`
	Reminders        []Reminder        `json:"reminders"`
	UpcomingEvents   []NewsletterEvent `json:"upcoming_events"`
	WeeklyHighlights []Highlight       `json:"weekly_highlights"`
	ThreadSummaries  []ThreadSummary   `json:"thread_summaries"`
}

// ProcessedItems records which source ids a snapshot has already consumed.
type ProcessedItems struct {
	PostIDs    []string `json:"post_ids"`
	MessageIDs []string `json:"message_ids"`
}

// Contains reports whether the source id has been consumed.
func (p ProcessedItems) Contains(t SourceType, id string) bool {
	set := p.PostIDs
	if t == SourceMessage {
		set = p.MessageIDs
	}
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

// Add unions id into the set for t.
func (p *ProcessedItems) Add(t SourceType, id string) {
	if p.Contains(t, id) {
		return
	}
	if t == SourceMessage {
		p.MessageIDs = append(p.MessageIDs, id)
		return
	}
	p.PostIDs = append(p.PostIDs, id)
}

// Snapshot is the persisted digest for one calendar day.
type Snapshot struct {
	Date            string         `json:"date"` // YYYY-MM-DD
	GeneratedAt     time.Time      `json:"generated_at"`
	Digest          Digest         `json:"digest"`
	ProcessedItems  ProcessedItems `json:"processed_item_ids"`
	ProcessingStats RunReport      `json:"processing_stats"`
	ExpiresAt       time.Time      `json:"expires_at"`
}
