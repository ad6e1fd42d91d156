package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
	"github.com/alfredjeanlab/newsdigest/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printCycleResult(w io.Writer, res pipeline.CycleResult) {
	r := res.Report
	fmt.Fprintf(w, "Run:         %s\n", res.RunID)
	fmt.Fprintf(w, "Duration:    %s\n", r.Duration().Round(time.Millisecond))
	if r.BudgetExceeded {
		fmt.Fprintf(w, "Budget:      %s\n", ui.RenderWarn("exceeded"))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSOURCES\tSCANNED\tSKIPPED\tPROCESSED\tFAILED")
	fmt.Fprintf(tw, "\t%d\t%d\t%d\t%s\n", r.SourcesScanned, r.SourcesSkipped, r.SourcesProcessed,
		ui.RenderCount(r.SourcesFailed, ui.RenderFail))
	fmt.Fprintln(tw, "RECORDS\tCREATED\tUPDATED\tMERGED\tEVICTED")
	fmt.Fprintf(tw, "\t%s\t%s\t%d\t%d\n",
		ui.RenderCount(r.RecordsCreated, ui.RenderOK),
		ui.RenderCount(r.RecordsUpdated, ui.RenderOK),
		r.RecordsMerged, r.RecordsEvicted)
	tw.Flush()

	fmt.Fprintf(w, "\nCandidates:  %d extracted, %d rejected, %d comparisons\n",
		r.CandidatesExtracted, r.CandidatesRejected, r.Comparisons)
	if r.MergeFailures > 0 || r.Errors > 0 {
		fmt.Fprintf(w, "Errors:      %s (%d merge failures)\n", ui.RenderFail(fmt.Sprint(r.Errors)), r.MergeFailures)
	}
	switch {
	case res.SnapshotError != "":
		fmt.Fprintf(w, "Snapshot:    %s\n", ui.RenderFail(res.SnapshotError))
	case res.SnapshotDate != "":
		fmt.Fprintf(w, "Snapshot:    %s\n", ui.RenderOK(res.SnapshotDate))
	}
}

func printEventTable(w io.Writer, recs []*model.EventRecord, titleWidth int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tCONFIDENCE\tUPDATES\tTITLE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Date, r.Time, r.Confidence, r.UpdateCount, ui.Truncate(r.Title, titleWidth))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d events\n", len(recs))
}

func printEvent(w io.Writer, r *model.EventRecord) {
	fmt.Fprintf(w, "ID:          %s\n", r.ID)
	fmt.Fprintf(w, "Title:       %s\n", r.Title)
	fmt.Fprintf(w, "Date:        %s %s\n", r.Date, r.Time)
	if r.Location != "" {
		fmt.Fprintf(w, "Location:    %s\n", r.Location)
	}
	if r.Type != "" {
		fmt.Fprintf(w, "Type:        %s\n", r.Type)
	}
	fmt.Fprintf(w, "Confidence:  %s\n", r.Confidence)
	if r.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", r.Description)
	}
	if len(r.SourcePostIDs) > 0 {
		fmt.Fprintf(w, "Posts:       %s\n", strings.Join(r.SourcePostIDs, ", "))
	}
	if len(r.SourceMessageIDs) > 0 {
		fmt.Fprintf(w, "Messages:    %s\n", strings.Join(r.SourceMessageIDs, ", "))
	}
	fmt.Fprintf(w, "Updates:     %d\n", r.UpdateCount)
	for _, n := range r.MergeNotes {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderMuted("-"), n)
	}
	fmt.Fprintf(w, "First Seen:  %s\n", r.FirstMentionedAt.Format(timeLayout))
	fmt.Fprintf(w, "Updated At:  %s\n", r.LastUpdatedAt.Format(timeLayout))
	fmt.Fprintf(w, "Model:       %s\n", r.ExtractionModelID)
}

// printSnapshot renders a snapshot as a plain-text newsletter.
func printSnapshot(w io.Writer, s *model.Snapshot) {
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Newsletter"), s.Date)
	fmt.Fprintf(w, "%s\n", ui.RenderMuted("generated "+s.GeneratedAt.Format(timeLayout)))

	d := s.Digest
	section(w, "Important Information", len(d.ImportantInfo))
	for _, i := range d.ImportantInfo {
		line := fmt.Sprintf("[%s] %s", i.Type, i.Description)
		if i.Deadline != nil {
			line += " (by " + i.Deadline.Format(model.DayLayout) + ")"
		}
		bullet(w, line, i.IsNew, false)
	}

	section(w, "Reminders", len(d.Reminders))
	for _, r := range d.Reminders {
		bullet(w, r.Text, false, false)
	}

	section(w, "Upcoming Events", len(d.UpcomingEvents))
	for _, e := range d.UpcomingEvents {
		when := strings.TrimSpace(e.Date + " " + e.Time)
		line := when + "  " + e.Title
		if e.Location != "" {
			line += " @ " + e.Location
		}
		bullet(w, line, e.IsNew, e.IsUpdated)
		for _, c := range e.Changes {
			fmt.Fprintf(w, "      %s\n", ui.RenderMuted(c))
		}
	}

	section(w, "Weekly Highlights", len(d.WeeklyHighlights))
	for _, h := range d.WeeklyHighlights {
		bullet(w, h.Title+": "+h.Summary, false, false)
	}

	section(w, "Conversations", len(d.ThreadSummaries))
	for _, t := range d.ThreadSummaries {
		bullet(w, fmt.Sprintf("%s (%d messages): %s", t.Title, t.MessageCount, t.Summary), false, false)
	}
}

func section(w io.Writer, title string, n int) {
	if n == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent(title))
}

func bullet(w io.Writer, text string, isNew, isUpdated bool) {
	tag := ""
	switch {
	case isNew:
		tag = " " + ui.RenderOK("NEW")
	case isUpdated:
		tag = " " + ui.RenderWarn("UPDATED")
	}
	fmt.Fprintf(w, "  - %s%s\n", text, tag)
}
