// Package digest merges yesterday's newsletter snapshot with today's freshly
// composed sections. Each section has its own retention, dedup and
// change-detection rule; the merged digest is both the render input and the
// next day's previous snapshot.
package digest

import "github.com/alfredjeanlab/newsdigest/internal/model"

// Policy holds the per-section limits used by MergeSnapshots.
type Policy struct {
	// Retention maps an important-info type to its window in calendar days.
	Retention map[model.InfoType]int
	// DeadlineFallback applies to deadline items that carry no deadline.
	DeadlineFallback int
	// DefaultRetention applies to types missing from Retention.
	DefaultRetention int

	MaxReminders  int
	MaxHighlights int
}

// DefaultPolicy returns the built-in retention windows and section caps.
func DefaultPolicy() Policy {
	return Policy{
		Retention: map[model.InfoType]int{
			model.InfoHealthAlert:   7,
			model.InfoFamilyMention: 14,
			model.InfoPolicyChange:  30,
			model.InfoUrgentRequest: 3,
		},
		DeadlineFallback: 7,
		DefaultRetention: 7,
		MaxReminders:     20,
		MaxHighlights:    10,
	}
}

// window returns the retention in days for an item type.
func (p Policy) window(t model.InfoType) int {
	if t == model.InfoDeadline {
		return p.DeadlineFallback
	}
	if d, ok := p.Retention[t]; ok {
		return d
	}
	return p.DefaultRetention
}
