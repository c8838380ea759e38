// Package matcher resolves inbound message content to at most one trigger.
package matcher

import (
	"strings"

	"github.com/agentic-hq/core/pkg/models"
)

// Find returns the first trigger whose keyword matches the content, or nil.
//
// Content is normalized by trimming whitespace and lower-casing. EXACT
// triggers are checked first and beat any CONTAINS trigger; within a tier
// the first trigger in slice order wins. REGEX triggers are reserved in the
// data model and never match.
func Find(content string, triggers []models.Trigger) *models.Trigger {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if normalized == "" {
		return nil
	}

	for i := range triggers {
		t := &triggers[i]
		if t.MatchType == models.MatchTypeExact && strings.ToLower(t.Keyword) == normalized {
			return t
		}
	}

	for i := range triggers {
		t := &triggers[i]
		if t.MatchType == models.MatchTypeContains && strings.Contains(normalized, strings.ToLower(t.Keyword)) {
			return t
		}
	}

	return nil
}
