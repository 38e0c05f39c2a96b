package classification

import (
	"context"
	"fmt"

	"voiceout_server/core/domain"
	"voiceout_server/pkg/logger"

	"github.com/goccy/go-json"
)

// JSONCompleter is the slice of the LLM client this classifier needs.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

const maxPromptBody = 4000

// admissionFloor: the model's importance score must strictly exceed this for
// an email to qualify. A score of exactly 30 does not qualify.
const admissionFloor = 30

// llmAnalysis is the structured verdict requested from the model.
type llmAnalysis struct {
	IsLegitimate    bool     `json:"is_legitimate"`
	ImportanceScore int      `json:"importance_score"`
	InquiryType     string   `json:"inquiry_type"`
	Summary         string   `json:"summary"`
	Keywords        []string `json:"keywords"`
	SentimentScore  *float64 `json:"sentiment_score"`
	Extracted       struct {
		CompanyName        string `json:"company_name"`
		ContactPerson      string `json:"contact_person"`
		Phone              string `json:"phone"`
		BudgetRange        string `json:"budget_range"`
		Timeline           string `json:"timeline"`
		ProjectDescription string `json:"project_description"`
	} `json:"extracted"`
}

// LLMClassifier analyzes emails with an LLM. On any model or decode failure
// it delegates to the heuristic classifier instead of failing the sync.
type LLMClassifier struct {
	llm      JSONCompleter
	fallback *HeuristicClassifier
}

func NewLLMClassifier(llm JSONCompleter) *LLMClassifier {
	return &LLMClassifier{
		llm:      llm,
		fallback: NewHeuristicClassifier(),
	}
}

func (c *LLMClassifier) Name() string {
	return "llm"
}

func (c *LLMClassifier) Classify(ctx context.Context, input *Input) (*Verdict, error) {
	raw, err := c.llm.CompleteJSON(ctx, c.buildPrompt(input))
	if err != nil {
		logger.WithError(err).Warn("LLM classification failed, using heuristic fallback")
		return c.fallbackVerdict(ctx, input)
	}

	var analysis llmAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		logger.WithError(err).Warn("LLM returned unparseable verdict, using heuristic fallback")
		return c.fallbackVerdict(ctx, input)
	}

	score := analysis.ImportanceScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	verdict := &Verdict{
		Score:          float64(score) / 100.0,
		IsQualified:    analysis.IsLegitimate && score > admissionFloor,
		InquiryType:    parseInquiryType(analysis.InquiryType),
		Summary:        analysis.Summary,
		Keywords:       analysis.Keywords,
		SentimentScore: analysis.SentimentScore,
		Signals:        []string{"llm-classified"},
		Source:         "llm",
	}
	verdict.Extracted = domain.ExtractedData{
		CompanyName:        analysis.Extracted.CompanyName,
		ContactPerson:      analysis.Extracted.ContactPerson,
		Phone:              analysis.Extracted.Phone,
		BudgetRange:        analysis.Extracted.BudgetRange,
		Timeline:           analysis.Extracted.Timeline,
		ProjectDescription: analysis.Extracted.ProjectDescription,
	}
	if !analysis.IsLegitimate {
		verdict.InquiryType = domain.InquiryTypeSpam
	}
	return verdict, nil
}

func (c *LLMClassifier) fallbackVerdict(ctx context.Context, input *Input) (*Verdict, error) {
	verdict, err := c.fallback.Classify(ctx, input)
	if err != nil {
		return nil, err
	}
	verdict.Source = "heuristic:llm-fallback"
	verdict.Signals = append(verdict.Signals, "llm-error")
	return verdict, nil
}

func (c *LLMClassifier) buildPrompt(input *Input) string {
	return fmt.Sprintf(`You screen a content creator's inbox for legitimate business inquiries (sponsorships, collaborations, bookings).

Analyze this email and respond with a JSON object:
{
  "is_legitimate": boolean, true only for a genuine business inquiry from a real counterparty,
  "importance_score": integer 0-100,
  "inquiry_type": one of "general", "sponsorship", "collaboration", "booking", "spam",
  "summary": one-sentence summary,
  "keywords": array of notable keywords,
  "sentiment_score": float -1.0 to 1.0 or null,
  "extracted": {
    "company_name": string or "",
    "contact_person": string or "",
    "phone": string or "",
    "budget_range": string or "",
    "timeline": string or "",
    "project_description": string or ""
  }
}

From: %s <%s>
Subject: %s

Body:
%s`,
		input.Email.From.Name,
		input.Email.From.Email,
		input.Email.Subject,
		truncate(input.Body, maxPromptBody),
	)
}

func parseInquiryType(s string) domain.InquiryType {
	switch domain.InquiryType(s) {
	case domain.InquiryTypeSponsorship, domain.InquiryTypeCollaboration,
		domain.InquiryTypeBooking, domain.InquiryTypeSpam, domain.InquiryTypeGeneral:
		return domain.InquiryType(s)
	default:
		return domain.InquiryTypeGeneral
	}
}

var _ Classifier = (*LLMClassifier)(nil)
