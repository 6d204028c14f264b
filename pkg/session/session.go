// Package session provides the in-process conversation store: message
// history plus the derived flags the pipeline runs on. The store is the
// single shared mutable resource in the service; it is constructed once at
// startup and injected into every handler.
package session

import (
	"strings"
	"time"
)

// Phase is the conversation lifecycle stage.
type Phase string

const (
	// PhaseExploration is the initial questioning stage.
	PhaseExploration Phase = "exploration"
	// PhaseDeepAnalysis is entered after the exploration rounds complete.
	PhaseDeepAnalysis Phase = "deep_analysis"
	// PhaseFinalResponse marks a concluded conversation. Terminal.
	PhaseFinalResponse Phase = "final_response"
)

// QuestionType is one of the mandatory question categories.
type QuestionType string

const (
	QuestionTypePattern    QuestionType = "pattern"
	QuestionTypeContext    QuestionType = "context"
	QuestionTypeMotivation QuestionType = "motivation"
)

// Speaker identifiers for transcript messages. Expert messages use the
// persona id as speaker.
const (
	SpeakerUser        = "user"
	SpeakerSynthesizer = "synthesizer"
	SpeakerChair       = "chair"
	SpeakerSystem      = "system"
)

// Message is one transcript entry. Role maps onto downstream model calls;
// Speaker is the product-level identity.
type Message struct {
	Speaker   string    `json:"speaker"`
	Role      string    `json:"role"` // system, user, or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Coverage tracks which mandatory question categories have been asked.
// Flags flip true at most once and stay set until an explicit reset.
type Coverage struct {
	Pattern    bool `json:"pattern"`
	Context    bool `json:"context"`
	Motivation bool `json:"motivation"`
}

// ExternalDomain records a detected out-of-mandate topic and the user's
// decision about it. UserApproved stays nil until the user explicitly
// answers; SpecialistAdded is true only after approval.
type ExternalDomain struct {
	Detected        bool   `json:"detected"`
	Domain          string `json:"domain"`
	DomainDisplay   string `json:"domainDisplayName"`
	UserApproved    *bool  `json:"userApproved,omitempty"`
	SpecialistAdded bool   `json:"specialistAdded"`
}

// ExpertAnalysis is one cached deep content analysis, computed at most
// once per session before the final response.
type ExpertAnalysis struct {
	AgentID    string `json:"agentId"`
	AgentName  string `json:"agentName"`
	SchoolName string `json:"schoolName"`
	Analysis   string `json:"analysis"`
}

// Session is the central aggregate, keyed by a caller-supplied opaque id.
type Session struct {
	ID                 string           `json:"sessionId"`
	Messages           []Message        `json:"messages"`
	CreatedAt          time.Time        `json:"createdAt"`
	LastUpdated        time.Time        `json:"lastUpdated"`
	RoundNumber        int              `json:"roundNumber"`
	Phase              Phase            `json:"phase"`
	ContinueRefining   bool             `json:"continueRefining"`
	FutureGoalAnswered bool             `json:"futureGoalAnswered"`
	SourceQuestion     string           `json:"sourceQuestion"`
	Coverage           Coverage         `json:"questionTypeCoverage"`
	ExternalDomain     *ExternalDomain  `json:"externalDomain,omitempty"`
	ExpertAnalyses     []ExpertAnalysis `json:"expertContentAnalyses,omitempty"`
}

// dontKnowPhrases mark evasive answers. Two of the last three user
// replies matching means the user cannot articulate more and the chair
// should acknowledge that instead of synthesizing a verdict.
var dontKnowPhrases = []string{
	"i don't know",
	"i dont know",
	"don't know",
	"dont know",
	"not sure",
	"no idea",
	"i guess",
	"hard to say",
	"can't tell",
}

func isDontKnowAnswer(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	if lower == "" {
		return true
	}
	for _, phrase := range dontKnowPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// futureGoalTimePhrases and futureGoalIntentPhrases together identify the
// distinguished "what do you want in the next week or two" question.
var (
	futureGoalTimePhrases = []string{
		"next week",
		"next two weeks",
		"week or two",
		"coming week",
		"coming days",
		"in the short term",
	}
	futureGoalIntentPhrases = []string{
		"want",
		"wish",
		"hope",
		"goal",
		"achieve",
		"change",
		"different",
	}
)

// IsFutureGoalQuestion reports whether a question is the forward-looking
// goal question whose answer short-circuits the pipeline to the final
// response.
func IsFutureGoalQuestion(question string) bool {
	lower := strings.ToLower(question)

	hasTime := false
	for _, phrase := range futureGoalTimePhrases {
		if strings.Contains(lower, phrase) {
			hasTime = true
			break
		}
	}
	if !hasTime {
		return false
	}

	for _, phrase := range futureGoalIntentPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
