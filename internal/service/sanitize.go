package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips markup from user supplied text. Output is plain text,
// so entities escaped by the policy are decoded again.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer builds a sanitizer on the strict policy.
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean returns s without tags, trimmed.
func (t *TextSanitizer) Clean(s string) string {
	if t == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(t.policy.Sanitize(s)))
}

// CleanPtr cleans an optional value. Empty results become nil.
func (t *TextSanitizer) CleanPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := t.Clean(*s)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
