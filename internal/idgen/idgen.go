// Package idgen generates opaque, URL-safe identifiers for canonical event
// records and runs. IDs are never derived from content and never change once
// assigned.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// EventPrefix marks canonical event record IDs.
	EventPrefix = "ev-"
	// RunPrefix marks extraction run IDs.
	RunPrefix = "run-"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// NewEventID returns a fresh canonical record ID.
func NewEventID() (string, error) {
	return withPrefix(EventPrefix)
}

// NewRunID returns a fresh run ID.
func NewRunID() (string, error) {
	return withPrefix(RunPrefix)
}

func withPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
