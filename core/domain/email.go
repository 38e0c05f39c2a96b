package domain

import "time"

// EmailAddress is a parsed From header.
type EmailAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RawEmail is the provider-normalized message shape. It is transient: a
// provider adapter produces it, the classifier consumes it, and it is never
// stored directly.
type RawEmail struct {
	ID         string       `json:"id"`
	ThreadID   string       `json:"thread_id,omitempty"`
	From       EmailAddress `json:"from"`
	Subject    string       `json:"subject"`
	BodyText   string       `json:"body_text,omitempty"`
	BodyHTML   string       `json:"body_html,omitempty"`
	ReceivedAt time.Time    `json:"received_at"`
}

// Body returns the text body, falling back to the HTML body when no plain
// part was present.
func (e *RawEmail) Body() string {
	if e.BodyText != "" {
		return e.BodyText
	}
	return e.BodyHTML
}
