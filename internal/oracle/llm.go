package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// LLM implements Oracle on top of a text-generation Provider. Replies are
// expected to be a single JSON object; anything else is a
// MalformedResponseError.
type LLM struct {
	provider Provider
	limiter  *rate.Limiter
}

// Compile-time check that LLM implements Oracle.
var _ Oracle = (*LLM)(nil)

// NewLLM wraps provider. rps bounds provider calls per second; zero or
// negative means unlimited.
func NewLLM(provider Provider, rps float64) *LLM {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &LLM{provider: provider, limiter: rate.NewLimiter(limit, 1)}
}

// ModelID returns "<provider>/<model>".
func (o *LLM) ModelID() string {
	return o.provider.Name() + "/" + o.provider.Model()
}

type extractedEvent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Type        string `json:"type"`
	Confidence  string `json:"confidence"`
}

// Extract asks the provider for the events mentioned in text and stamps
// them with the source metadata.
func (o *LLM) Extract(ctx context.Context, text string, meta SourceMeta) ([]model.CandidateEvent, error) {
	prompt := fmt.Sprintf("Source timestamp: %s\nSource type: %s\n\nText:\n%s",
		meta.Timestamp.UTC().Format(time.RFC3339), meta.SourceType, text)

	var resp struct {
		Events *[]extractedEvent `json:"events"`
	}
	if err := o.call(ctx, "extract", extractSystemPrompt, prompt, &resp); err != nil {
		return nil, err
	}
	if resp.Events == nil {
		return nil, &MalformedResponseError{Op: "extract", Reason: `missing "events"`}
	}

	out := make([]model.CandidateEvent, 0, len(*resp.Events))
	for _, e := range *resp.Events {
		out = append(out, model.CandidateEvent{
			Title:           strings.TrimSpace(e.Title),
			Description:     strings.TrimSpace(e.Description),
			Date:            strings.TrimSpace(e.Date),
			Time:            strings.TrimSpace(e.Time),
			Location:        strings.TrimSpace(e.Location),
			Type:            strings.TrimSpace(e.Type),
			Confidence:      model.Confidence(strings.ToLower(strings.TrimSpace(e.Confidence))),
			SourceType:      meta.SourceType,
			SourceID:        meta.SourceID,
			ThreadID:        meta.ThreadID,
			SourceTimestamp: meta.Timestamp,
		})
	}
	return out, nil
}

// Compare asks the provider whether candidate and existing are the same event.
func (o *LLM) Compare(ctx context.Context, candidate *model.CandidateEvent, existing *model.EventRecord) (Comparison, error) {
	prompt := fmt.Sprintf("Event A:\n%s\n\nEvent B:\n%s", describeCandidate(candidate), describeRecord(existing))

	var resp struct {
		IsSameEvent *bool  `json:"is_same_event"`
		Confidence  string `json:"confidence"`
		Reason      string `json:"reason"`
	}
	if err := o.call(ctx, "compare", compareSystemPrompt, prompt, &resp); err != nil {
		return Comparison{}, err
	}
	if resp.IsSameEvent == nil {
		return Comparison{}, &MalformedResponseError{Op: "compare", Reason: `missing "is_same_event"`}
	}
	c := model.Confidence(strings.ToLower(strings.TrimSpace(resp.Confidence)))
	if !c.IsValid() {
		return Comparison{}, &MalformedResponseError{Op: "compare", Reason: fmt.Sprintf("invalid confidence %q", resp.Confidence)}
	}
	return Comparison{IsSameEvent: *resp.IsSameEvent, Confidence: c, Reason: resp.Reason}, nil
}

// Merge asks the provider to fold candidate into existing.
func (o *LLM) Merge(ctx context.Context, existing *model.EventRecord, candidate *model.CandidateEvent) (MergedFields, error) {
	prompt := fmt.Sprintf("Existing record:\n%s\n\nNew mention:\n%s", describeRecord(existing), describeCandidate(candidate))

	var resp MergedFields
	if err := o.call(ctx, "merge", mergeSystemPrompt, prompt, &resp); err != nil {
		return MergedFields{}, err
	}
	if strings.TrimSpace(resp.Description) == "" {
		return MergedFields{}, &MalformedResponseError{Op: "merge", Reason: "empty description"}
	}
	if strings.TrimSpace(resp.MergeNotes) == "" {
		return MergedFields{}, &MalformedResponseError{Op: "merge", Reason: "empty merge_notes"}
	}
	return resp, nil
}

type composedInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Deadline    string `json:"deadline"`
}

type composedDigest struct {
	ImportantInfo    []composedInfo          `json:"important_info"`
	Reminders        []string                `json:"reminders"`
	UpcomingEvents   []model.NewsletterEvent `json:"upcoming_events"`
	WeeklyHighlights []model.Highlight       `json:"weekly_highlights"`
	ThreadSummaries  []model.ThreadSummary   `json:"thread_summaries"`
}

// Compose asks the provider for today's fresh digest sections. Timestamps
// and new/updated flags are left for the snapshot merge to fill in.
func (o *LLM) Compose(ctx context.Context, req ComposeRequest) (model.Digest, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Today: %s\n\nMessages:\n", req.Today.Format(model.DayLayout))
	for _, s := range req.Sources {
		fmt.Fprintf(&b, "- [%s %s", s.Type, s.ID)
		if s.ThreadID != "" {
			fmt.Fprintf(&b, " thread=%s", s.ThreadID)
		}
		fmt.Fprintf(&b, "] %s\n", oneLine(s.Body()))
	}
	b.WriteString("\nKnown upcoming events:\n")
	for _, e := range req.Events {
		fmt.Fprintf(&b, "- %s\n", oneLine(describeRecord(e)))
	}

	var resp composedDigest
	if err := o.call(ctx, "compose", composeSystemPrompt, b.String(), &resp); err != nil {
		return model.Digest{}, err
	}

	d := model.Digest{
		UpcomingEvents:   resp.UpcomingEvents,
		WeeklyHighlights: resp.WeeklyHighlights,
		ThreadSummaries:  resp.ThreadSummaries,
	}
	for _, info := range resp.ImportantInfo {
		if strings.TrimSpace(info.Description) == "" {
			continue
		}
		item := model.ImportantInfo{
			Type:        model.InfoType(strings.TrimSpace(info.Type)),
			Description: strings.TrimSpace(info.Description),
			Source:      info.Source,
		}
		if dl, err := model.ParseDate(info.Deadline, req.Today); err == nil {
			item.Deadline = &dl
		}
		d.ImportantInfo = append(d.ImportantInfo, item)
	}
	for _, r := range resp.Reminders {
		if strings.TrimSpace(r) != "" {
			d.Reminders = append(d.Reminders, model.Reminder{Text: strings.TrimSpace(r)})
		}
	}
	for i := range d.UpcomingEvents {
		d.UpcomingEvents[i].IsNew = false
		d.UpcomingEvents[i].IsUpdated = false
		d.UpcomingEvents[i].Changes = nil
	}
	return d, nil
}

// call sends one request and decodes the JSON object in the reply into out.
func (o *LLM) call(ctx context.Context, op, system, prompt string, out any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return &InvocationError{Op: op, Err: err}
	}
	text, err := o.provider.Generate(ctx, Request{SystemPrompt: system, UserPrompt: prompt})
	if err != nil {
		return &InvocationError{Op: op, Err: err}
	}
	raw, ok := extractJSON(text)
	if !ok {
		return &MalformedResponseError{Op: op, Reason: "no JSON object in reply", Raw: text}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &MalformedResponseError{Op: op, Reason: err.Error(), Raw: text}
	}
	return nil
}

// extractJSON returns the outermost JSON object in s, tolerating code fences
// and surrounding prose.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func describeCandidate(c *model.CandidateEvent) string {
	return describe(c.Title, c.Date, c.Time, c.Location, c.Type, c.Description)
}

func describeRecord(r *model.EventRecord) string {
	return describe(r.Title, r.Date, r.Time, r.Location, r.Type, r.Description)
}

func describe(title, date, tm, location, typ, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nDate: %s\n", title, date)
	if tm != "" {
		fmt.Fprintf(&b, "Time: %s\n", tm)
	}
	if location != "" {
		fmt.Fprintf(&b, "Location: %s\n", location)
	}
	if typ != "" {
		fmt.Fprintf(&b, "Type: %s\n", typ)
	}
	fmt.Fprintf(&b, "Description: %s", description)
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
