package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPolicy_Defaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.toml")} {
		p, err := LoadPolicy(path)
		if err != nil {
			t.Fatalf("LoadPolicy(%q): %v", path, err)
		}
		if p != DefaultPolicy() {
			t.Errorf("LoadPolicy(%q) = %+v, want defaults", path, p)
		}
	}
}

func TestLoadPolicy_Overrides(t *testing.T) {
	path := writePolicy(t, `
[retention]
health_alert = 10
urgent_request = 1

[limits]
max_reminders = 5

[expiry]
snapshot_days = 7
`)
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	d := p.Digest()
	if d.Retention[model.InfoHealthAlert] != 10 || d.Retention[model.InfoUrgentRequest] != 1 {
		t.Errorf("retention = %v", d.Retention)
	}
	// Unset keys keep their defaults.
	if d.Retention[model.InfoPolicyChange] != 30 || d.Retention[model.InfoFamilyMention] != 14 {
		t.Errorf("retention defaults lost: %v", d.Retention)
	}
	if d.MaxReminders != 5 || d.MaxHighlights != 10 {
		t.Errorf("limits = %d/%d", d.MaxReminders, d.MaxHighlights)
	}
	if p.SnapshotTTL() != 7*24*time.Hour || p.EventTTL() != 60*24*time.Hour {
		t.Errorf("TTLs = %v / %v", p.SnapshotTTL(), p.EventTTL())
	}
}

func TestLoadPolicy_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"negative": "[retention]\nother = -1\n",
		"syntax":   "[retention\n",
		"type":     "[limits]\nmax_reminders = \"lots\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadPolicy(writePolicy(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
