package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText canonicalizes free text for equality and grouping. Case and
// Unicode compatibility forms are folded and runs of whitespace collapse to one space.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTitle is NormalizeText with surrounding punctuation removed, so
// "Sports Day!" and "sports day" group together.
func NormalizeTitle(s string) string {
	return strings.Trim(NormalizeText(s), " .,!?:;\"'()[]")
}
