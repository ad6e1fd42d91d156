package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateCandidate checks an extracted candidate before it enters dedup.
// It returns a *ValidationError if any rules fail, or nil if the candidate is usable.
// A missing or unrecognized confidence is not a failure; it is set to low.
func ValidateCandidate(c *CandidateEvent) error {
	var ve ValidationError

	for _, f := range []struct {
		name  string
		value string
	}{
		{"title", c.Title},
		{"description", c.Description},
		{"date", c.Date},
	} {
		if strings.TrimSpace(f.value) == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: f.name, Message: "is required"})
		}
	}

	if len([]rune(strings.TrimSpace(c.Title))) > 500 {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "must be 500 characters or fewer"})
	}

	if !c.Confidence.IsValid() {
		c.Confidence = ConfidenceLow
	}

	if !c.SourceType.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "source_type",
			Message: fmt.Sprintf("invalid value %q", c.SourceType),
		})
	}

	if strings.TrimSpace(c.SourceID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "source_id", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateSnapshotDate checks that a snapshot key is a calendar date in
// YYYY-MM-DD form.
func ValidateSnapshotDate(date string) error {
	if _, err := ParseDay(date); err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "date", Message: "must be YYYY-MM-DD"}}}
	}
	return nil
}
