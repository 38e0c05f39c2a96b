package persistence

import (
	"context"
	"database/sql"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// inquiryEntity mirrors the email_inquiries table. Extracted data and
// keywords are stored as jsonb.
type inquiryEntity struct {
	ID                int64           `db:"id"`
	TentID            uuid.UUID       `db:"tent_id"`
	ConnectionID      int64           `db:"connection_id"`
	EmailID           string          `db:"email_id"`
	ThreadID          sql.NullString  `db:"thread_id"`
	SenderName        string          `db:"sender_name"`
	SenderEmail       string          `db:"sender_email"`
	Subject           string          `db:"subject"`
	BodyText          sql.NullString  `db:"body_text"`
	BodyHTML          sql.NullString  `db:"body_html"`
	ReceivedAt        time.Time       `db:"received_at"`
	InquiryType       string          `db:"inquiry_type"`
	ExtractedData     []byte          `db:"extracted_data"`
	Score             float64         `db:"score"`
	SentimentScore    sql.NullFloat64 `db:"sentiment_score"`
	IsBusinessInquiry bool            `db:"is_business_inquiry"`
	AISummary         sql.NullString  `db:"ai_summary"`
	Keywords          []byte          `db:"keywords"`
	Status            string          `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (e *inquiryEntity) toDomain() *domain.Inquiry {
	inquiry := &domain.Inquiry{
		ID:                e.ID,
		TentID:            e.TentID,
		ConnectionID:      e.ConnectionID,
		EmailID:           e.EmailID,
		SenderName:        e.SenderName,
		SenderEmail:       e.SenderEmail,
		Subject:           e.Subject,
		ReceivedAt:        e.ReceivedAt,
		InquiryType:       domain.InquiryType(e.InquiryType),
		Score:             e.Score,
		IsBusinessInquiry: e.IsBusinessInquiry,
		Status:            domain.InquiryStatus(e.Status),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.ThreadID.Valid {
		inquiry.ThreadID = e.ThreadID.String
	}
	if e.BodyText.Valid {
		inquiry.BodyText = e.BodyText.String
	}
	if e.BodyHTML.Valid {
		inquiry.BodyHTML = e.BodyHTML.String
	}
	if e.SentimentScore.Valid {
		v := e.SentimentScore.Float64
		inquiry.SentimentScore = &v
	}
	if e.AISummary.Valid {
		inquiry.AISummary = e.AISummary.String
	}
	if len(e.ExtractedData) > 0 {
		_ = json.Unmarshal(e.ExtractedData, &inquiry.Extracted)
	}
	if len(e.Keywords) > 0 {
		_ = json.Unmarshal(e.Keywords, &inquiry.Keywords)
	}
	return inquiry
}

const inquiryColumns = `id, tent_id, connection_id, email_id, thread_id, sender_name, sender_email,
	       subject, body_text, body_html, received_at, inquiry_type, extracted_data,
	       score, sentiment_score, is_business_inquiry, ai_summary, keywords, status,
	       created_at, updated_at`

// InquiryAdapter implements out.InquiryRepository using PostgreSQL.
type InquiryAdapter struct {
	db *sqlx.DB
}

func NewInquiryAdapter(db *sqlx.DB) *InquiryAdapter {
	return &InquiryAdapter{db: db}
}

// Upsert inserts or updates by (connection_id, email_id) and reports whether
// a new row was created. Re-syncing an overlapping window refreshes the
// classification of known messages without duplicating them.
func (a *InquiryAdapter) Upsert(ctx context.Context, inquiry *domain.Inquiry) (bool, error) {
	extracted, err := json.Marshal(inquiry.Extracted)
	if err != nil {
		return false, err
	}
	keywords, err := json.Marshal(inquiry.Keywords)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO email_inquiries (
			tent_id, connection_id, email_id, thread_id, sender_name, sender_email,
			subject, body_text, body_html, received_at, inquiry_type, extracted_data,
			score, sentiment_score, is_business_inquiry, ai_summary, keywords, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5, $6,
			$7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12,
			$13, $14, $15, NULLIF($16, ''), $17, $18,
			NOW(), NOW()
		)
		ON CONFLICT (connection_id, email_id) DO UPDATE SET
			inquiry_type = EXCLUDED.inquiry_type,
			extracted_data = EXCLUDED.extracted_data,
			score = EXCLUDED.score,
			sentiment_score = EXCLUDED.sentiment_score,
			is_business_inquiry = EXCLUDED.is_business_inquiry,
			ai_summary = EXCLUDED.ai_summary,
			keywords = EXCLUDED.keywords,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	status := inquiry.Status
	if status == "" {
		status = domain.InquiryStatusPending
	}

	var id int64
	var inserted bool
	err = a.db.QueryRowContext(ctx, query,
		inquiry.TentID,
		inquiry.ConnectionID,
		inquiry.EmailID,
		inquiry.ThreadID,
		inquiry.SenderName,
		inquiry.SenderEmail,
		inquiry.Subject,
		inquiry.BodyText,
		inquiry.BodyHTML,
		inquiry.ReceivedAt,
		string(inquiry.InquiryType),
		extracted,
		inquiry.Score,
		inquiry.SentimentScore,
		inquiry.IsBusinessInquiry,
		inquiry.AISummary,
		keywords,
		string(status),
	).Scan(&id, &inserted)
	if err != nil {
		return false, err
	}

	inquiry.ID = id
	return inserted, nil
}

// ListByConnection returns the most recent inquiries for a connection.
func (a *InquiryAdapter) ListByConnection(ctx context.Context, connectionID int64, limit int) ([]*domain.Inquiry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entities []*inquiryEntity
	query := `
		SELECT ` + inquiryColumns + `
		FROM email_inquiries
		WHERE connection_id = $1
		ORDER BY received_at DESC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &entities, query, connectionID, limit); err != nil {
		return nil, err
	}

	inquiries := make([]*domain.Inquiry, 0, len(entities))
	for _, entity := range entities {
		inquiries = append(inquiries, entity.toDomain())
	}
	return inquiries, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.InquiryRepository = (*InquiryAdapter)(nil)
