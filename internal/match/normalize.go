// Package match implements approximate name matching against a user's
// classification history, plus the label normalization and amount-based
// ranking the cascade's first stage depends on.
package match

import (
	"regexp"
	"strings"
)

// Account labels and classification labels for the same thing often
// disagree only in conjunction style ("Dues & Subscriptions" vs "Dues
// and Subscriptions"), so comparisons always run on normalized forms.
var conjunctionRe = regexp.MustCompile(`\s+(&|and)\s+`)

// Normalize canonicalizes a classification label for comparison:
// lower-cases, collapses " and " / " & " to a single space, and trims.
// Normalize is idempotent.
func Normalize(label string) string {
	s := strings.ToLower(label)
	s = conjunctionRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
