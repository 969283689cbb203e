// Package sanitize cleans user-facing text on both sides of the pipeline:
// inbound customer messages before classification, and model output before
// it is sent back to the customer.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// ErrEmptyMessage indicates the text was empty after stripping. It is a
// validation failure: the turn is rejected with no state change.
var ErrEmptyMessage = errors.New("message empty after sanitization")

// Sanitizer strips markup, script content, and control characters and
// enforces a maximum length. Safe for concurrent use.
type Sanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// New creates a Sanitizer that truncates to maxLength runes.
func New(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = 4096 // WhatsApp message cap
	}
	return &Sanitizer{
		// StrictPolicy drops every tag and its script/style content.
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// Clean sanitizes raw text. Truncation happens before stripping so a
// tag split by the cut cannot survive as text. Returns ErrEmptyMessage
// if nothing remains.
func (s *Sanitizer) Clean(raw string) (string, error) {
	text := truncateRunes(raw, s.maxLength)
	text = s.policy.Sanitize(text)
	text = stripControl(text)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("sanitizing %d byte input: %w", len(raw), ErrEmptyMessage)
	}
	return text, nil
}

// MaxLength returns the configured truncation limit.
func (s *Sanitizer) MaxLength() int { return s.maxLength }

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// stripControl removes control, zero-width, and format characters while
// keeping ordinary whitespace (space, tab, newline).
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == ' ':
			b.WriteRune(r)
		case unicode.IsControl(r):
			continue
		case unicode.Is(unicode.Cf, r):
			// Zero-width and directional-format characters.
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
