package domain

import "time"

const FallbackAnswer = "No information available. I couldn't find relevant documents for this query."

type Recommendation string

const (
	RecommendationAccept  Recommendation = "accept"
	RecommendationReject  Recommendation = "reject"
	RecommendationClarify Recommendation = "clarify"
)

type VerificationVerdict struct {
	IsValid         bool           `json:"is_valid"`
	ConfidenceScore float64        `json:"confidence_score"`
	Reasoning       string         `json:"reasoning"`
	Concerns        string         `json:"concerns"`
	Recommendation  Recommendation `json:"recommendation"`
}

// AnswerOutcome names the terminal state of one request.
type AnswerOutcome string

const (
	OutcomeAccepted  AnswerOutcome = "accepted"
	OutcomeVerified  AnswerOutcome = "verified"
	OutcomeVetoed    AnswerOutcome = "vetoed"
	OutcomeNoContext AnswerOutcome = "no_context"
)

type SourceScore struct {
	File  string  `json:"file"`
	Chunk int     `json:"chunk"`
	Score float64 `json:"score"`
}

type AnswerResult struct {
	Question     string               `json:"question"`
	QueryUsed    string               `json:"query_used"`
	Answer       string               `json:"answer"`
	Context      string               `json:"context"`
	Sources      []SourceScore        `json:"sources"`
	Scores       []float64            `json:"scores"`
	BestScore    float64              `json:"best_score"`
	Fallback     bool                 `json:"fallback"`
	Outcome      AnswerOutcome        `json:"outcome"`
	VariantIndex int                  `json:"variant_index"`
	Variants     []string             `json:"variants,omitempty"`
	Verification *VerificationVerdict `json:"verification,omitempty"`
}

// AnswerLogEntry is the audit record of one answered question.
type AnswerLogEntry struct {
	ID          string
	RequestID   string
	Question    string
	QueryUsed   string
	Outcome     AnswerOutcome
	Fallback    bool
	BestScore   float64
	SourceCount int
	Verdict     *VerificationVerdict
	Duration    time.Duration
	CreatedAt   time.Time
}
