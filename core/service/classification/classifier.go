// Package classification decides whether an email is a business inquiry.
//
// Two interchangeable strategies implement the same Classifier interface:
// an LLM-backed analyzer and a local keyword heuristic. Both normalize their
// native score scale into a 0..1 Verdict so persistence applies a single
// admission rule (IsQualified).
package classification

import (
	"context"
	"strings"

	"voiceout_server/core/domain"

	"github.com/jaytaylor/html2text"
)

// Input is one normalized email prepared for classification. Body is the
// plain-text rendering (HTML already converted).
type Input struct {
	Email *domain.RawEmail
	Body  string
}

// Verdict is the normalized classification result.
type Verdict struct {
	Score          float64 // 0..1
	IsQualified    bool
	InquiryType    domain.InquiryType
	Extracted      domain.ExtractedData
	Summary        string
	Keywords       []string
	SentimentScore *float64
	Signals        []string // detected signals (for debugging)
	Source         string
}

// Classifier is the single interface both strategies implement.
type Classifier interface {
	// Name returns the classifier name (for logging)
	Name() string

	// Classify computes a verdict for the input. Implementations do not
	// fail the sync: the LLM strategy falls back to the heuristic on error.
	Classify(ctx context.Context, input *Input) (*Verdict, error)
}

// NewInput builds an Input from a RawEmail, rendering HTML-only bodies to
// text so the keyword heuristic sees prose rather than markup.
func NewInput(email *domain.RawEmail) *Input {
	body := email.BodyText
	if body == "" && email.BodyHTML != "" {
		if text, err := html2text.FromString(email.BodyHTML, html2text.Options{TextOnly: true}); err == nil {
			body = text
		} else {
			body = email.BodyHTML
		}
	}
	return &Input{
		Email: email,
		Body:  body,
	}
}

// truncate limits prompt/body size without splitting a word mid-rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut
}
