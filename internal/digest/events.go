package digest

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// eventKey groups events by normalized title and raw date string.
type eventKey struct {
	title string
	date  string
}

func keyOf(ev model.NewsletterEvent) eventKey {
	return eventKey{title: model.NormalizeTitle(ev.Title), date: strings.TrimSpace(ev.Date)}
}

func mergeUpcomingEvents(previous, fresh []model.NewsletterEvent, today, now time.Time) []model.NewsletterEvent {
	prev := filterPast(previous, today, now)
	cur := filterPast(fresh, today, now)

	byKey := make(map[eventKey]model.NewsletterEvent, len(prev))
	combined := make([]model.NewsletterEvent, 0, len(prev)+len(cur))
	for _, ev := range prev {
		ev.IsNew = false
		ev.IsUpdated = false
		ev.Changes = nil
		byKey[keyOf(ev)] = ev
		combined = append(combined, ev)
	}
	for _, ev := range cur {
		old, ok := byKey[keyOf(ev)]
		if !ok {
			ev.IsNew = true
			ev.IsUpdated = false
			ev.Changes = nil
			combined = append(combined, ev)
			continue
		}
		ev.IsNew = false
		ev.Changes = diffEvent(old, ev)
		ev.IsUpdated = len(ev.Changes) > 0
		combined = append(combined, ev)
	}

	out := pickMostDetailed(combined)
	sortByDate(out, today)
	return out
}

// filterPast drops events that have already happened. An event with a
// parseable time is past once that instant is before now. An event without
// a time is past when it falls on today or earlier, since there is no way to
// tell whether it already took place. Unparseable dates are kept.
func filterPast(events []model.NewsletterEvent, today, now time.Time) []model.NewsletterEvent {
	out := make([]model.NewsletterEvent, 0, len(events))
	for _, ev := range events {
		if !isPast(ev, today, now) {
			out = append(out, ev)
		}
	}
	return out
}

func isPast(ev model.NewsletterEvent, today, now time.Time) bool {
	day, err := model.ParseDate(ev.Date, today)
	if err != nil {
		return false
	}
	if clock, err := model.ParseClock(ev.Time); err == nil {
		return day.Add(clock).Before(now)
	}
	return !day.After(model.StartOfDay(today))
}

// diffEvent lists human-readable differences between a previously shown
// event and its fresh mention.
func diffEvent(old, cur model.NewsletterEvent) []string {
	var changes []string
	if a, b := strings.TrimSpace(old.Time), strings.TrimSpace(cur.Time); !strings.EqualFold(a, b) {
		changes = append(changes, describeChange("Time", a, b))
	}
	if a, b := strings.TrimSpace(old.Location), strings.TrimSpace(cur.Location); model.NormalizeText(a) != model.NormalizeText(b) {
		changes = append(changes, describeChange("Location", a, b))
	}
	if !similarText(old.Description, cur.Description) {
		changes = append(changes, "Description updated")
	}
	if !sameRequirements(old.Requirements, cur.Requirements) {
		changes = append(changes, "Requirements updated")
	}
	return changes
}

func describeChange(field, from, to string) string {
	switch {
	case from == "":
		return fmt.Sprintf("%s added: %s", field, to)
	case to == "":
		return fmt.Sprintf("%s removed (was %s)", field, from)
	}
	return fmt.Sprintf("%s changed from %s to %s", field, from, to)
}

// similarText treats two descriptions as the same when either contains the other.
func similarText(a, b string) bool {
	a, b = model.NormalizeText(a), model.NormalizeText(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func sameRequirements(a, b []string) bool {
	norm := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if n := model.NormalizeText(s); n != "" {
				out = append(out, n)
			}
		}
		slices.Sort(out)
		return slices.Compact(out)
	}
	return slices.Equal(norm(a), norm(b))
}

// detailScore ranks duplicate entries; the more complete one is kept.
func detailScore(ev model.NewsletterEvent) int {
	score := len(ev.Description)
	if strings.TrimSpace(ev.Location) != "" {
		score += 20
	}
	if strings.TrimSpace(ev.Time) != "" {
		score += 20
	}
	if strings.TrimSpace(ev.WhoShouldAttend) != "" {
		score += 10
	}
	if len(ev.Requirements) > 0 {
		score += 10
	}
	return score
}

// pickMostDetailed collapses events sharing a key to the highest-scoring
// entry. Later entries win ties so a fresh mention replaces an equally
// detailed older one. First-seen order is preserved.
func pickMostDetailed(events []model.NewsletterEvent) []model.NewsletterEvent {
	index := make(map[eventKey]int, len(events))
	out := make([]model.NewsletterEvent, 0, len(events))
	for _, ev := range events {
		k := keyOf(ev)
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, ev)
			continue
		}
		if detailScore(ev) >= detailScore(out[i]) {
			out[i] = ev
		}
	}
	return out
}

// sortByDate orders events by parsed date, then start time. Events whose
// date does not parse sort last in their original order.
func sortByDate(events []model.NewsletterEvent, ref time.Time) {
	type keyed struct {
		ev    model.NewsletterEvent
		day   time.Time
		clock time.Duration
		ok    bool
	}
	ks := make([]keyed, len(events))
	for i, ev := range events {
		k := keyed{ev: ev}
		if d, err := model.ParseDate(ev.Date, ref); err == nil {
			k.day, k.ok = d, true
		}
		if c, err := model.ParseClock(ev.Time); err == nil {
			k.clock = c
		}
		ks[i] = k
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case !a.ok && !b.ok:
			return 0
		}
		if c := a.day.Compare(b.day); c != 0 {
			return c
		}
		return cmp.Compare(a.clock, b.clock)
	})
	for i, k := range ks {
		events[i] = k.ev
	}
}
