package digest

import (
	"slices"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// MergeSnapshots combines the previous day's digest with freshly composed
// sections. today is the calendar day being generated (midnight, in the
// digest's timezone) and now is the wall-clock instant used for time-of-day
// comparisons.
//
// With no previous digest, or when incremental is false, every fresh item is
// timestamped, flagged new and returned as-is. previous is never mutated.
func MergeSnapshots(previous *model.Digest, fresh model.Digest, today, now time.Time, incremental bool, p Policy) model.Digest {
	if previous == nil || !incremental {
		return bootstrap(fresh, now)
	}

	return model.Digest{
		ImportantInfo:    mergeImportantInfo(previous.ImportantInfo, fresh.ImportantInfo, today, now, p),
		Reminders:        mergeReminders(previous.Reminders, fresh.Reminders, now, p.MaxReminders),
		UpcomingEvents:   mergeUpcomingEvents(previous.UpcomingEvents, fresh.UpcomingEvents, today, now),
		WeeklyHighlights: capHighlights(fresh.WeeklyHighlights, p.MaxHighlights),
		ThreadSummaries:  slices.Clone(fresh.ThreadSummaries),
	}
}

func bootstrap(fresh model.Digest, now time.Time) model.Digest {
	out := model.Digest{
		ImportantInfo:    make([]model.ImportantInfo, len(fresh.ImportantInfo)),
		Reminders:        make([]model.Reminder, len(fresh.Reminders)),
		UpcomingEvents:   make([]model.NewsletterEvent, len(fresh.UpcomingEvents)),
		WeeklyHighlights: slices.Clone(fresh.WeeklyHighlights),
		ThreadSummaries:  slices.Clone(fresh.ThreadSummaries),
	}
	for i, item := range fresh.ImportantInfo {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.IsNew = true
		out.ImportantInfo[i] = item
	}
	for i, r := range fresh.Reminders {
		if r.AddedAt.IsZero() {
			r.AddedAt = now
		}
		out.Reminders[i] = r
	}
	for i, ev := range fresh.UpcomingEvents {
		ev.IsNew = true
		ev.IsUpdated = false
		ev.Changes = nil
		out.UpcomingEvents[i] = ev
	}
	return out
}

func mergeImportantInfo(previous, fresh []model.ImportantInfo, today, now time.Time, p Policy) []model.ImportantInfo {
	seen := make(map[string]bool, len(previous))
	for _, item := range previous {
		seen[model.NormalizeText(item.Description)] = true
	}

	combined := make([]model.ImportantInfo, 0, len(previous)+len(fresh))
	for _, item := range previous {
		item.IsNew = false
		combined = append(combined, item)
	}
	for _, item := range fresh {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.IsNew = !seen[model.NormalizeText(item.Description)]
		combined = append(combined, item)
	}

	out := make([]model.ImportantInfo, 0, len(combined))
	kept := make(map[string]bool, len(combined))
	for _, item := range combined {
		if !p.retained(item, today) {
			continue
		}
		key := model.NormalizeText(item.Description)
		if kept[key] {
			continue
		}
		kept[key] = true
		out = append(out, item)
	}
	return out
}

// retained reports whether item is still inside its retention window on
// today. Deadline items with an explicit deadline stay until that day passes.
func (p Policy) retained(item model.ImportantInfo, today time.Time) bool {
	if item.Type == model.InfoDeadline && item.Deadline != nil {
		return model.DaysBetween(today, *item.Deadline) >= 0
	}
	age := -model.DaysBetween(today, item.CreatedAt)
	return age <= p.window(item.Type)
}

func mergeReminders(previous, fresh []model.Reminder, now time.Time, limit int) []model.Reminder {
	combined := make([]model.Reminder, 0, len(previous)+len(fresh))
	seen := make(map[string]bool, len(previous)+len(fresh))
	add := func(r model.Reminder) {
		key := model.NormalizeText(r.Text)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		combined = append(combined, r)
	}
	for _, r := range previous {
		add(r)
	}
	for _, r := range fresh {
		if r.AddedAt.IsZero() {
			r.AddedAt = now
		}
		add(r)
	}

	if limit > 0 && len(combined) > limit {
		slices.SortStableFunc(combined, func(a, b model.Reminder) int {
			return a.AddedAt.Compare(b.AddedAt)
		})
		combined = combined[len(combined)-limit:]
	}
	return combined
}

func capHighlights(fresh []model.Highlight, limit int) []model.Highlight {
	out := slices.Clone(fresh)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
