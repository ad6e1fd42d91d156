package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/newsdigest/internal/digest"
	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// Policy is the on-disk digest and retention policy. Zero values fall back
// to the built-in defaults.
type Policy struct {
	Retention RetentionPolicy `toml:"retention"`
	Limits    LimitsPolicy    `toml:"limits"`
	Expiry    ExpiryPolicy    `toml:"expiry"`
}

// RetentionPolicy holds per-type Important-Info windows in calendar days.
type RetentionPolicy struct {
	HealthAlert   int `toml:"health_alert"`
	PolicyChange  int `toml:"policy_change"`
	Deadline      int `toml:"deadline"` // used only when an item carries no deadline
	FamilyMention int `toml:"family_mention"`
	UrgentRequest int `toml:"urgent_request"`
	Other         int `toml:"other"`
}

type LimitsPolicy struct {
	MaxReminders  int `toml:"max_reminders"`
	MaxHighlights int `toml:"max_highlights"`
}

// ExpiryPolicy holds storage horizons in days.
type ExpiryPolicy struct {
	EventDays      int `toml:"event_days"`
	ExtractionDays int `toml:"extraction_days"`
	SnapshotDays   int `toml:"snapshot_days"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	d := digest.DefaultPolicy()
	return Policy{
		Retention: RetentionPolicy{
			HealthAlert:   d.Retention[model.InfoHealthAlert],
			PolicyChange:  d.Retention[model.InfoPolicyChange],
			Deadline:      d.DeadlineFallback,
			FamilyMention: d.Retention[model.InfoFamilyMention],
			UrgentRequest: d.Retention[model.InfoUrgentRequest],
			Other:         d.DefaultRetention,
		},
		Limits: LimitsPolicy{
			MaxReminders:  d.MaxReminders,
			MaxHighlights: d.MaxHighlights,
		},
		Expiry: ExpiryPolicy{
			EventDays:      60,
			ExtractionDays: 60,
			SnapshotDays:   30,
		},
	}
}

// LoadPolicy reads a TOML policy from path over the defaults. An empty path
// or a missing file yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	var f Policy
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return Policy{}, fmt.Errorf("load policy %s: %w", path, err)
	}
	p.merge(f)
	if err := p.validate(); err != nil {
		return Policy{}, fmt.Errorf("load policy %s: %w", path, err)
	}
	return p, nil
}

func (p *Policy) merge(f Policy) {
	override(&p.Retention.HealthAlert, f.Retention.HealthAlert)
	override(&p.Retention.PolicyChange, f.Retention.PolicyChange)
	override(&p.Retention.Deadline, f.Retention.Deadline)
	override(&p.Retention.FamilyMention, f.Retention.FamilyMention)
	override(&p.Retention.UrgentRequest, f.Retention.UrgentRequest)
	override(&p.Retention.Other, f.Retention.Other)
	override(&p.Limits.MaxReminders, f.Limits.MaxReminders)
	override(&p.Limits.MaxHighlights, f.Limits.MaxHighlights)
	override(&p.Expiry.EventDays, f.Expiry.EventDays)
	override(&p.Expiry.ExtractionDays, f.Expiry.ExtractionDays)
	override(&p.Expiry.SnapshotDays, f.Expiry.SnapshotDays)
}

func override(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func (p Policy) validate() error {
	for name, v := range map[string]int{
		"retention.health_alert":   p.Retention.HealthAlert,
		"retention.policy_change":  p.Retention.PolicyChange,
		"retention.deadline":       p.Retention.Deadline,
		"retention.family_mention": p.Retention.FamilyMention,
		"retention.urgent_request": p.Retention.UrgentRequest,
		"retention.other":          p.Retention.Other,
		"limits.max_reminders":     p.Limits.MaxReminders,
		"limits.max_highlights":    p.Limits.MaxHighlights,
		"expiry.event_days":        p.Expiry.EventDays,
		"expiry.extraction_days":   p.Expiry.ExtractionDays,
		"expiry.snapshot_days":     p.Expiry.SnapshotDays,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Digest converts the policy into the snapshot merge engine's form.
func (p Policy) Digest() digest.Policy {
	return digest.Policy{
		Retention: map[model.InfoType]int{
			model.InfoHealthAlert:   p.Retention.HealthAlert,
			model.InfoPolicyChange:  p.Retention.PolicyChange,
			model.InfoFamilyMention: p.Retention.FamilyMention,
			model.InfoUrgentRequest: p.Retention.UrgentRequest,
		},
		DeadlineFallback: p.Retention.Deadline,
		DefaultRetention: p.Retention.Other,
		MaxReminders:     p.Limits.MaxReminders,
		MaxHighlights:    p.Limits.MaxHighlights,
	}
}

// EventTTL is how long a canonical record lives after creation.
func (p Policy) EventTTL() time.Duration {
	return days(p.Expiry.EventDays)
}

// ExtractionTTL is how long a processed-source marker lives.
func (p Policy) ExtractionTTL() time.Duration {
	return days(p.Expiry.ExtractionDays)
}

// SnapshotTTL is how long a daily snapshot lives.
func (p Policy) SnapshotTTL() time.Duration {
	return days(p.Expiry.SnapshotDays)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
