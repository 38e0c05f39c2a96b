package domain

import (
	"time"

	"github.com/google/uuid"
)

type InquiryType string

const (
	InquiryTypeGeneral       InquiryType = "general"
	InquiryTypeSponsorship   InquiryType = "sponsorship"
	InquiryTypeCollaboration InquiryType = "collaboration"
	InquiryTypeBooking       InquiryType = "booking"
	InquiryTypeSpam          InquiryType = "spam"
)

type InquiryStatus string

const (
	InquiryStatusPending       InquiryStatus = "pending"
	InquiryStatusPendingReview InquiryStatus = "pending_review"
	InquiryStatusArchived      InquiryStatus = "archived"
)

// ExtractedData holds optional structured fields pulled out of an inquiry.
type ExtractedData struct {
	CompanyName        string `json:"company_name,omitempty"`
	ContactPerson      string `json:"contact_person,omitempty"`
	Phone              string `json:"phone,omitempty"`
	BudgetRange        string `json:"budget_range,omitempty"`
	Timeline           string `json:"timeline,omitempty"`
	ProjectDescription string `json:"project_description,omitempty"`
}

// Inquiry is a persisted, classified business lead derived from a RawEmail.
// Unique per (connection_id, email_id); re-sync upserts, never duplicates.
type Inquiry struct {
	ID                int64         `json:"id"`
	TentID            uuid.UUID     `json:"tent_id"`
	ConnectionID      int64         `json:"connection_id"`
	EmailID           string        `json:"email_id"`
	ThreadID          string        `json:"thread_id,omitempty"`
	SenderName        string        `json:"sender_name"`
	SenderEmail       string        `json:"sender_email"`
	Subject           string        `json:"subject"`
	BodyText          string        `json:"body_text,omitempty"`
	BodyHTML          string        `json:"body_html,omitempty"`
	ReceivedAt        time.Time     `json:"received_at"`
	InquiryType       InquiryType   `json:"inquiry_type"`
	Extracted         ExtractedData `json:"extracted"`
	Score             float64       `json:"score"` // normalized 0..1
	SentimentScore    *float64      `json:"sentiment_score,omitempty"`
	IsBusinessInquiry bool          `json:"is_business_inquiry"`
	AISummary         string        `json:"ai_summary,omitempty"`
	Keywords          []string      `json:"keywords,omitempty"`
	Status            InquiryStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
