package classification

import (
	"context"
	"regexp"
	"strings"

	"voiceout_server/core/domain"
)

// ===== Keyword Sets =====
//
// These sets and the scoring arithmetic below are the observable contract of
// the heuristic: changing them changes which emails become inquiries.

// strongSubjectKeywords add +5 when any appears in the subject.
var strongSubjectKeywords = []string{
	"collaboration",
	"rate inquiry",
	"partnership",
	"sponsorship",
	"business proposal",
	"brand deal",
	"paid promotion",
}

// businessKeywords are counted across subject+body and scored in tiers.
var businessKeywords = []string{
	"budget",
	"campaign",
	"brand",
	"product",
	"promote",
	"sponsor",
	"partnership",
	"collaborate",
	"rate",
	"fee",
	"payment",
	"deal",
	"offer",
	"interested",
	"proposal",
}

// spamIndicators subtract 5 when any appears.
var spamIndicators = []string{
	"unsubscribe",
	"noreply",
	"no-reply",
	"newsletter",
	"click here",
	"limited time",
}

var sponsorshipTerms = []string{"sponsor", "paid promotion", "brand deal", "ad campaign"}
var collaborationTerms = []string{"collab", "partnership", "work together"}
var bookingTerms = []string{"booking", "book you", "event", "appearance"}

var (
	greetingPattern = regexp.MustCompile(`(?i)\b(hi|hello|dear|hey)\s+[a-z][a-z'-]*`)
	signOffPattern  = regexp.MustCompile(`(?i)\b(best regards|kind regards|warm regards|regards|sincerely|best wishes|best|thank you|thanks|cheers)\b`)
)

// ===== Heuristic Classifier =====

// HeuristicClassifier is the local rule-based scorer. It is a pure function
// of (subject, body): no I/O, no randomness, so repeated calls on the same
// input yield identical verdicts.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

func (c *HeuristicClassifier) Name() string {
	return "heuristic"
}

func (c *HeuristicClassifier) Classify(_ context.Context, input *Input) (*Verdict, error) {
	score := scoreEmail(input.Email.Subject, input.Body)

	verdict := &Verdict{
		Score:       float64(score.Seriousness) / 10.0,
		IsQualified: score.IsBusinessInquiry,
		InquiryType: score.InquiryType,
		Keywords:    score.MatchedKeywords,
		Signals:     score.Signals,
		Source:      "heuristic",
	}
	return verdict, nil
}

// heuristicScore carries the raw scoring components.
type heuristicScore struct {
	BusinessScore     int
	Seriousness       int
	IsBusinessInquiry bool
	InquiryType       domain.InquiryType
	MatchedKeywords   []string
	Signals           []string
}

func scoreEmail(subject, body string) heuristicScore {
	subjectLower := strings.ToLower(subject)
	bodyLower := strings.ToLower(body)
	combined := subjectLower + " " + bodyLower

	var score int
	var signals []string

	// Strong subject signal: +5
	for _, kw := range strongSubjectKeywords {
		if strings.Contains(subjectLower, kw) {
			score += 5
			signals = append(signals, "subject:"+kw)
			break
		}
	}

	// Tiered business keyword hits: >=5 -> +3, >=3 -> +2, >=1 -> +1
	var matched []string
	for _, kw := range businessKeywords {
		if strings.Contains(combined, kw) {
			matched = append(matched, kw)
		}
	}
	switch {
	case len(matched) >= 5:
		score += 3
	case len(matched) >= 3:
		score += 2
	case len(matched) >= 1:
		score += 1
	}
	if len(matched) > 0 {
		signals = append(signals, "business-keywords")
	}

	// Personalized greeting: +2
	if greetingPattern.MatchString(body) {
		score += 2
		signals = append(signals, "greeting")
	}

	// Professional sign-off: +1
	if signOffPattern.MatchString(body) {
		score++
		signals = append(signals, "sign-off")
	}

	// Spam indicator: -5 (applied once)
	for _, indicator := range spamIndicators {
		if strings.Contains(combined, indicator) {
			score -= 5
			signals = append(signals, "spam:"+indicator)
			break
		}
	}

	isBusiness := score >= 3

	return heuristicScore{
		BusinessScore:     score,
		Seriousness:       clamp(score, 1, 10),
		IsBusinessInquiry: isBusiness,
		InquiryType:       inquiryType(combined, isBusiness),
		MatchedKeywords:   matched,
		Signals:           signals,
	}
}

// inquiryType assigns a type by keyword precedence:
// sponsorship, then collaboration, then booking, then general.
// Non-business emails are spam.
func inquiryType(text string, isBusiness bool) domain.InquiryType {
	if !isBusiness {
		return domain.InquiryTypeSpam
	}
	if containsAny(text, sponsorshipTerms) {
		return domain.InquiryTypeSponsorship
	}
	if containsAny(text, collaborationTerms) {
		return domain.InquiryTypeCollaboration
	}
	if containsAny(text, bookingTerms) {
		return domain.InquiryTypeBooking
	}
	return domain.InquiryTypeGeneral
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Classifier = (*HeuristicClassifier)(nil)
