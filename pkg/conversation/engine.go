// Package conversation implements the operation layer: the phase and
// round state machine that turns user answers into panel rounds,
// detection prompts, and finally the chair's verdict.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"parliament/pkg/agent/llm"
	"parliament/pkg/config"
	"parliament/pkg/extdomain"
	"parliament/pkg/logx"
	"parliament/pkg/parliament"
	"parliament/pkg/persistence"
	"parliament/pkg/session"
	"parliament/pkg/utils"
)

// Mode identifies what kind of reply an operation produced.
type Mode string

const (
	ModeNextQuestion           Mode = "NEXT_QUESTION"
	ModeExternalDomainDetected Mode = "EXTERNAL_DOMAIN_DETECTED"
	ModeRequiresDeepAnalysis   Mode = "REQUIRES_DEEP_ANALYSIS"
	ModeRequiresFinalAnswer    Mode = "REQUIRES_FINAL_ANSWER"
	ModeShowChoice             Mode = "SHOW_CHOICE"
	ModeError                  Mode = "ERROR"

	// Chair reply modes.
	ModeUserUnsure          Mode = "USER_UNSURE"
	ModeInsufficientHistory Mode = "INSUFFICIENT_HISTORY"
	ModeFullSummary         Mode = "FULL_SUMMARY"
)

// CodeSessionCompleted marks an answer submitted to a finished session.
// It is not an error; the UI offers a fresh conversation instead.
const CodeSessionCompleted = "SESSION_COMPLETED"

// Action values a client may send with an answer.
const (
	ActionAddExternalSpecialist   = "ADD_EXTERNAL_SPECIALIST"
	ActionContinueWithoutExternal = "CONTINUE_WITHOUT_EXTERNAL"
)

// Choice values for the post-deep-analysis fork.
const (
	ChoiceContinue = "continue"
	ChoiceOpinion  = "opinion"
)

// ErrSessionFinalized is returned when a chair summary is requested
// after the final answer was already delivered.
var ErrSessionFinalized = errors.New("final answer already delivered")

// Question is one question presented to the user. SourceQuestion is
// always carried so the UI can show what the conversation is about.
type Question struct {
	Question       string               `json:"question"`
	SourceQuestion string               `json:"sourceQuestion"`
	QuestionType   session.QuestionType `json:"questionType"`
	AgentID        string               `json:"agentId"`
	Options        []string             `json:"options"`
	QuestionID     string               `json:"questionId"`
}

// ChoiceOption is one button in a yes/no or continue/opinion fork.
type ChoiceOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ExternalDomainQuestion is the clarification fork shown when an
// out-of-mandate domain is detected.
type ExternalDomainQuestion struct {
	Detected              bool                  `json:"detected"`
	Domain                extdomain.DomainType  `json:"domain"`
	DomainDisplayName     string                `json:"domainDisplayName"`
	ClarificationQuestion string                `json:"clarificationQuestion"`
	Options               []ChoiceOption        `json:"options"`
}

// Reply is the unified operation result. Fields beyond Mode and
// RoundNumber are populated per mode.
type Reply struct {
	Mode                   Mode                     `json:"mode"`
	RoundNumber            int                      `json:"roundNumber"`
	Question               *Question                `json:"nextQuestion,omitempty"`
	ExternalDomainQuestion *ExternalDomainQuestion  `json:"externalDomainQuestion,omitempty"`
	Proposals              []parliament.Proposal    `json:"expertProposals,omitempty"`
	Analyses               []session.ExpertAnalysis `json:"analyses,omitempty"`
	ChoiceOptions          []ChoiceOption           `json:"choiceOptions,omitempty"`
	ChairMessage           string                   `json:"chairMessage,omitempty"`
	Summary                *parliament.Summary      `json:"summary,omitempty"`
	Code                   string                   `json:"code,omitempty"`
	ContinueRefining       bool                     `json:"continueRefining,omitempty"`
}

// Recorder is the subset of the metrics recorder the engine touches.
type Recorder interface {
	IncProposals(status string, n int)
	IncRound(phase string)
	IncChairResponse(mode string)
}

// Engine wires the store, the panel components, and the archive into
// the operations the web layer exposes.
type Engine struct {
	store       *session.Store
	collector   *parliament.Collector
	synthesizer *parliament.Synthesizer
	chair       *parliament.Chair
	firstClient llm.LLMClient
	catalog     *parliament.Catalog
	archive     *persistence.Archive
	recorder    Recorder
	cfg         config.ParliamentConfig
	tokens      *utils.TokenCounter
	logger      *logx.Logger
}

// Deps carries the engine's collaborators. Archive and Recorder may be
// nil; archiving and metrics are then skipped.
type Deps struct {
	Store       *session.Store
	Collector   *parliament.Collector
	Synthesizer *parliament.Synthesizer
	Chair       *parliament.Chair
	FirstClient llm.LLMClient
	Catalog     *parliament.Catalog
	Archive     *persistence.Archive
	Recorder    Recorder
	Config      config.ParliamentConfig
}

func NewEngine(deps Deps) *Engine {
	// Token counting is best effort; a nil counter falls back to a
	// character heuristic inside chairTranscript.
	tokens, _ := utils.NewTokenCounter("gpt-4")
	return &Engine{
		store:       deps.Store,
		collector:   deps.Collector,
		synthesizer: deps.Synthesizer,
		chair:       deps.Chair,
		firstClient: deps.FirstClient,
		catalog:     deps.Catalog,
		archive:     deps.Archive,
		recorder:    deps.Recorder,
		cfg:         deps.Config,
		tokens:      tokens,
		logger:      logx.NewLogger("engine"),
	}
}

func newQuestionID() string {
	return "question-" + uuid.NewString()
}

// historySummary flattens recent messages into "speaker: content"
// lines, keeping only the trailing maxChars.
func historySummary(messages []session.Message, maxChars int) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = fmt.Sprintf("%s: %s", m.Speaker, m.Content)
	}
	joined := strings.Join(lines, "\n")
	if maxChars > 0 && len(joined) > maxChars {
		joined = joined[len(joined)-maxChars:]
	}
	return joined
}

// chairTranscriptTokens bounds the transcript handed to the chair and
// to analysis collection so it stays well inside the model window.
const chairTranscriptTokens = 1200

// chairTranscript flattens the full session history, then trims from
// the front so the tail fits the chair's token budget. Older turns are
// the least relevant to the final synthesis.
func (e *Engine) chairTranscript(messages []session.Message) string {
	joined := historySummary(messages, 0)
	if e.tokens == nil {
		return historySummary(messages, chairTranscriptTokens*4)
	}
	if e.tokens.ValidateTokenLimit(joined, chairTranscriptTokens) {
		return joined
	}
	ratio := float64(chairTranscriptTokens) / float64(e.tokens.CountTokens(joined))
	keep := int(float64(len(joined)) * ratio * 0.9)
	if keep < len(joined) {
		joined = joined[len(joined)-keep:]
	}
	return joined
}

// StartConversation opens or reopens a conversation. A finished
// session is recycled under the same id, and the first message becomes
// the immutable source question. The opening question comes from a
// single panel member and always covers the pattern type.
func (e *Engine) StartConversation(ctx context.Context, sessionID, userMessage string, startFresh bool) (Reply, error) {
	if sessionID == "" || strings.TrimSpace(userMessage) == "" {
		return Reply{}, fmt.Errorf("sessionID and userMessage are required")
	}
	unlock := e.store.LockSession(sessionID)
	defer unlock()

	userMessage = strings.TrimSpace(userMessage)

	if startFresh || e.store.Phase(sessionID) == session.PhaseFinalResponse {
		e.store.Recycle(sessionID)
	}

	e.store.Append(sessionID, session.Message{
		Speaker: session.SpeakerUser,
		Role:    "user",
		Content: userMessage,
	})
	e.store.SetSourceQuestion(sessionID, userMessage)

	persona := e.catalog.Experts()[0]
	question, options := e.generateFirstQuestion(ctx, persona, sessionID, userMessage)

	e.store.MarkQuestionTypeAsked(sessionID, session.QuestionTypePattern)
	e.store.Append(sessionID, session.Message{
		Speaker: persona.ID,
		Role:    "assistant",
		Content: question,
	})

	return Reply{
		Mode:        ModeNextQuestion,
		RoundNumber: e.store.RoundNumber(sessionID),
		Question: &Question{
			Question:       question,
			SourceQuestion: e.store.SourceQuestion(sessionID),
			QuestionType:   session.QuestionTypePattern,
			AgentID:        persona.ID,
			Options:        options,
			QuestionID:     newQuestionID(),
		},
	}, nil
}

// generateFirstQuestion asks one panel member for the opening question.
// A malformed model reply falls back to a generic pattern question so
// the conversation can always start.
func (e *Engine) generateFirstQuestion(ctx context.Context, persona parliament.Persona, sessionID, userMessage string) (string, []string) {
	history := historySummary(e.store.RecentMessages(sessionID, 15), 3000)

	prompt := fmt.Sprintf(`Recent conversation history:
%s

The user's new message: %s

Create ONE focused question with 4 answer options.

===== Very important: everyday language only =====
The user is not a professional.
- No school names or professional terms.
- Options describe everyday patterns (avoidance, people-pleasing, fear of rejection, disorganization).
- Options in first person: "I feel that...", "I tend to...", "Usually I...".
- The last option is always: %q

If the user used a broad word ("a good relationship", "success", "stability"), first ask:
"When you say '[the word]', what matters most about it for you?"
Otherwise ask about a typical behavior in the topic itself.

Return JSON: {"question": "...", "options": ["...", "...", "...", %q]}`,
		history, userMessage, parliament.EscapeHatchOption, parliament.EscapeHatchOption)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(persona.SystemPrompt),
		llm.NewUserMessage(prompt),
	})
	req.MaxTokens = 450
	req.ExpectJSON = true

	fallbackQuestion := "What best describes what happens for you in this situation?"
	fallbackOptions := []string{
		"I tend to put it off and hope it resolves itself",
		"I push through and regret how it came out",
		"I wait for the other side to make the first move",
		parliament.EscapeHatchOption,
	}

	resp, err := e.firstClient.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("first question call failed, using fallback: %v", err)
		return fallbackQuestion, fallbackOptions
	}

	question, options, err := questionPayload(resp.Content)
	if err != nil {
		e.logger.Warn("first question unparseable, using fallback")
		return fallbackQuestion, fallbackOptions
	}
	if question == "" {
		question = fallbackQuestion
	}
	if len(options) == 0 {
		return question, fallbackOptions
	}
	return question, append(options, parliament.EscapeHatchOption)
}

// questionPayload parses a {"question","options"} model reply, dropping
// blank and escape-hatch entries and capping at four options. The
// caller appends the single escape hatch.
func questionPayload(content string) (string, []string, error) {
	var payload struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal([]byte(parliament.RepairJSON(content)), &payload); err != nil {
		return "", nil, err
	}

	options := make([]string, 0, 5)
	for _, o := range payload.Options {
		if len(options) == 4 {
			break
		}
		if trimmed := strings.TrimSpace(o); trimmed != "" && !strings.EqualFold(trimmed, parliament.EscapeHatchOption) {
			options = append(options, trimmed)
		}
	}
	return strings.TrimSpace(payload.Question), options, nil
}

// SubmitInput is one answer submission.
type SubmitInput struct {
	SessionID       string               `json:"sessionId"`
	QuestionID      string               `json:"questionId"`
	Question        string               `json:"question"`
	Options         []string             `json:"options"`
	SelectedOptions []int                `json:"selectedOptions"`
	FreeText        string               `json:"freeText"`
	Action          string               `json:"action,omitempty"`
	ExternalDomain  extdomain.DomainType `json:"externalDomain,omitempty"`
}

func (in SubmitInput) selectedAnswers() []string {
	answers := make([]string, 0, len(in.SelectedOptions))
	for _, idx := range in.SelectedOptions {
		if idx >= 0 && idx < len(in.Options) {
			answers = append(answers, in.Options[idx])
		}
	}
	return answers
}

func (in SubmitInput) answerSummary() string {
	selected := in.selectedAnswers()
	if len(in.Options) > 0 {
		summary := "Selected answers: " + strings.Join(selected, ", ")
		if in.FreeText != "" {
			summary += " | Free text: " + in.FreeText
		}
		return summary
	}
	text := strings.TrimSpace(in.FreeText)
	if text == "" {
		text = "(no text)"
	}
	return "Answer: " + text
}

// SubmitAnswer advances the state machine by one user answer. The
// order of gates matters: specialist actions, future-goal detection,
// external-domain detection, finalized-session guard, then the
// round/phase machine, and only then a panel round.
func (e *Engine) SubmitAnswer(ctx context.Context, in SubmitInput) (Reply, error) {
	if in.SessionID == "" {
		return Reply{}, fmt.Errorf("sessionId is required")
	}
	unlock := e.store.LockSession(in.SessionID)
	defer unlock()

	switch in.Action {
	case ActionAddExternalSpecialist:
		if in.ExternalDomain == "" {
			return Reply{}, fmt.Errorf("externalDomain is required for %s", ActionAddExternalSpecialist)
		}
		e.store.SetExternalDomainApproval(in.SessionID, true)
		if sp, ok := e.catalog.Specialist(in.ExternalDomain); ok {
			e.store.Append(in.SessionID, session.Message{
				Speaker: session.SpeakerSystem,
				Role:    "system",
				Content: fmt.Sprintf("[Outside specialist added: %s] The user approved adding an outside specialist for this domain.", sp.Name),
			})
		}
		return e.runRoundFromHistory(ctx, in.SessionID)

	case ActionContinueWithoutExternal:
		e.store.SetExternalDomainApproval(in.SessionID, false)
		return e.runRoundFromHistory(ctx, in.SessionID)
	}

	if in.QuestionID == "" || in.Question == "" {
		return Reply{}, fmt.Errorf("questionId and question are required")
	}

	if session.IsFutureGoalQuestion(in.Question) {
		e.store.SetFutureGoalAnswered(in.SessionID, true)
	}

	answerSummary := in.answerSummary()
	e.store.Append(in.SessionID, session.Message{
		Speaker: session.SpeakerUser,
		Role:    "user",
		Content: fmt.Sprintf("Question: %s\n%s", in.Question, answerSummary),
	})

	// Detection runs until the user has made a decision about the
	// first detected domain; afterwards it stays quiet for good.
	ed := e.store.ExternalDomain(in.SessionID)
	if ed == nil || !ed.Detected || ed.UserApproved == nil {
		userFullText := strings.Join(in.selectedAnswers(), " ") + " " + in.FreeText
		if detection := extdomain.Detect(userFullText); detection.Detected {
			e.logger.Info("external domain detected: %s (triggers: %s)",
				detection.Domain, strings.Join(detection.TriggerWords, ", "))
			if ed == nil || !ed.Detected {
				e.store.SetExternalDomainDetected(in.SessionID, string(detection.Domain), detection.DisplayName)
			}
			return Reply{
				Mode:        ModeExternalDomainDetected,
				RoundNumber: e.store.RoundNumber(in.SessionID),
				ExternalDomainQuestion: &ExternalDomainQuestion{
					Detected:              true,
					Domain:                detection.Domain,
					DomainDisplayName:     detection.DisplayName,
					ClarificationQuestion: extdomain.ClarificationQuestion(detection),
					Options: []ChoiceOption{
						{ID: "add_external_specialist", Label: "Yes, add an outside specialist for this domain"},
						{ID: "continue_without", Label: "No, continue without an outside specialist"},
					},
				},
			}, nil
		}
	}

	if e.store.FutureGoalAnswered(in.SessionID) {
		return Reply{
			Mode:        ModeRequiresFinalAnswer,
			RoundNumber: e.store.RoundNumber(in.SessionID),
		}, nil
	}

	phase := e.store.Phase(in.SessionID)
	if phase == session.PhaseFinalResponse {
		return Reply{
			Mode:        ModeRequiresFinalAnswer,
			RoundNumber: e.store.RoundNumber(in.SessionID),
			Code:        CodeSessionCompleted,
		}, nil
	}

	roundNumber := e.store.RoundNumber(in.SessionID)
	if phase == session.PhaseExploration {
		roundNumber = e.store.IncrementRound(in.SessionID)
		if e.recorder != nil {
			e.recorder.IncRound(string(phase))
		}
	}

	maxRounds := e.cfg.MaxExplorationRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	if phase == session.PhaseExploration && roundNumber >= maxRounds {
		e.store.SetPhase(in.SessionID, session.PhaseDeepAnalysis)
		return Reply{Mode: ModeRequiresDeepAnalysis, RoundNumber: roundNumber}, nil
	}
	if phase == session.PhaseDeepAnalysis {
		return Reply{Mode: ModeRequiresDeepAnalysis, RoundNumber: roundNumber}, nil
	}

	return e.runRound(ctx, in.SessionID, in.Question, answerSummary, roundNumber)
}

// runRoundFromHistory continues a round after an external-domain
// decision, recovering the last answer from the transcript. The
// specialist state is read back from the store inside the round.
func (e *Engine) runRoundFromHistory(ctx context.Context, sessionID string) (Reply, error) {
	history := e.store.RecentMessages(sessionID, 10)
	var lastUserMessage string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == session.SpeakerUser {
			lastUserMessage = history[i].Content
			break
		}
	}
	if lastUserMessage == "" {
		return Reply{}, fmt.Errorf("conversation history not found")
	}
	return e.runRound(ctx, sessionID, "", lastUserMessage, e.store.RoundNumber(sessionID))
}

// runRound is one full exploration round: proposals, synthesis, the
// internal position trail, and coverage bookkeeping.
func (e *Engine) runRound(ctx context.Context, sessionID, lastQuestion, userAnswer string, roundNumber int) (Reply, error) {
	history := e.store.RecentMessages(sessionID, 8)
	summary := historySummary(history, 1500)

	var specialistDomain extdomain.DomainType
	if ed := e.store.ExternalDomain(sessionID); ed != nil && ed.SpecialistAdded {
		specialistDomain = extdomain.DomainType(ed.Domain)
	}

	proposals, err := e.collector.Collect(ctx, parliament.CollectInput{
		LastQuestion:     lastQuestion,
		UserAnswer:       userAnswer,
		Summary:          summary,
		SpecialistDomain: specialistDomain,
	})
	if err != nil {
		return Reply{}, err
	}
	if e.recorder != nil {
		e.recorder.IncProposals("valid", len(proposals))
	}

	missingTypes := e.store.MissingQuestionTypes(sessionID)
	synthesized, err := e.synthesizer.Synthesize(ctx, parliament.SynthesizeInput{
		Proposals:    proposals,
		History:      historySummary(history, 2000),
		UserAnswer:   userAnswer,
		MissingTypes: missingTypes,
	})
	if err != nil {
		return Reply{}, err
	}

	// The positions stay in the transcript for the chair's benefit;
	// the UI never renders internal messages.
	for _, p := range proposals {
		e.store.Append(sessionID, session.Message{
			Speaker: p.AgentName,
			Role:    "assistant",
			Content: "[Internal] Position: " + p.Position,
		})
	}

	e.store.MarkQuestionTypeAsked(sessionID, synthesized.QuestionType)
	e.store.Append(sessionID, session.Message{
		Speaker: session.SpeakerSynthesizer,
		Role:    "assistant",
		Content: synthesized.Question,
	})

	return Reply{
		Mode:        ModeNextQuestion,
		RoundNumber: roundNumber,
		Proposals:   proposals,
		Question: &Question{
			Question:       synthesized.Question,
			SourceQuestion: e.store.SourceQuestion(sessionID),
			QuestionType:   synthesized.QuestionType,
			AgentID:        session.SpeakerSynthesizer,
			Options:        synthesized.Options,
			QuestionID:     newQuestionID(),
		},
	}, nil
}

// RecordChoice stores the user's fork after deep analysis: keep
// refining or ask for the final opinion.
func (e *Engine) RecordChoice(sessionID, choice string) (Reply, error) {
	if sessionID == "" || choice == "" {
		return Reply{}, fmt.Errorf("sessionId and choice are required")
	}
	unlock := e.store.LockSession(sessionID)
	defer unlock()

	switch choice {
	case ChoiceContinue:
		e.store.SetContinueRefining(sessionID, true)
		return Reply{Mode: ModeShowChoice, ContinueRefining: true}, nil
	case ChoiceOpinion:
		return Reply{Mode: ModeShowChoice, ContinueRefining: false}, nil
	default:
		return Reply{}, fmt.Errorf("invalid choice %q", choice)
	}
}

// ContinueQuestion generates one more refining question after the user
// chooses to keep going past deep analysis. A single panel member asks
// it; no proposal round runs and coverage is untouched.
func (e *Engine) ContinueQuestion(ctx context.Context, sessionID string) (Reply, error) {
	if sessionID == "" {
		return Reply{}, fmt.Errorf("sessionId is required")
	}
	unlock := e.store.LockSession(sessionID)
	defer unlock()

	sess, ok := e.store.Get(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return Reply{}, fmt.Errorf("conversation history not found for this session")
	}
	if sess.Phase == session.PhaseFinalResponse {
		return Reply{
			Mode:        ModeRequiresFinalAnswer,
			RoundNumber: sess.RoundNumber,
			Code:        CodeSessionCompleted,
		}, nil
	}

	experts := e.catalog.Experts()
	if len(experts) == 0 {
		return Reply{}, fmt.Errorf("persona catalog is empty")
	}
	persona := experts[sess.RoundNumber%len(experts)]
	history := historySummary(e.store.RecentMessages(sessionID, 15), 3000)

	prompt := fmt.Sprintf(`Conversation history:
%s

The panel has already shared its deep analysis, and the user wants to
keep refining before asking for the final recommendation.

Ask ONE more clarifying question with 4 answer options that would
sharpen the final recommendation. Everyday language only: no school
names or professional terms, options in first person ("I feel that...",
"I tend to...", "Usually I..."). Do NOT repeat a question already
asked. The last option is always: %q

Return JSON: {"question": "...", "options": ["...", "...", "...", %q]}`,
		history, parliament.EscapeHatchOption, parliament.EscapeHatchOption)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(persona.SystemPrompt),
		llm.NewUserMessage(prompt),
	})
	req.MaxTokens = 450
	req.ExpectJSON = true

	resp, err := e.firstClient.Complete(ctx, req)
	if err != nil {
		return Reply{}, fmt.Errorf("refining question call failed: %w", err)
	}
	question, options, err := questionPayload(resp.Content)
	if err != nil || question == "" || len(options) == 0 {
		return Reply{}, fmt.Errorf("invalid response from refining question call")
	}

	e.store.SetContinueRefining(sessionID, false)
	e.store.Append(sessionID, session.Message{
		Speaker: persona.ID,
		Role:    "assistant",
		Content: question,
	})

	return Reply{
		Mode:        ModeNextQuestion,
		RoundNumber: sess.RoundNumber,
		Question: &Question{
			Question:       question,
			SourceQuestion: e.store.SourceQuestion(sessionID),
			AgentID:        persona.ID,
			Options:        append(options, parliament.EscapeHatchOption),
			QuestionID:     newQuestionID(),
		},
	}, nil
}

// ApproveExternalDomain records the user's decision without running a
// round; the dedicated endpoint uses it when the UI answers the
// clarification fork separately from an answer submission.
func (e *Engine) ApproveExternalDomain(sessionID string, approved bool) (Reply, error) {
	if sessionID == "" {
		return Reply{}, fmt.Errorf("sessionId is required")
	}
	unlock := e.store.LockSession(sessionID)
	defer unlock()

	ed := e.store.ExternalDomain(sessionID)
	if ed == nil || !ed.Detected {
		return Reply{}, fmt.Errorf("no external domain detected for this session")
	}
	e.store.SetExternalDomainApproval(sessionID, approved)
	if approved {
		if sp, ok := e.catalog.Specialist(extdomain.DomainType(ed.Domain)); ok {
			e.store.Append(sessionID, session.Message{
				Speaker: session.SpeakerSystem,
				Role:    "system",
				Content: fmt.Sprintf("[Outside specialist added: %s] The user approved adding an outside specialist for this domain.", sp.Name),
			})
		}
	}
	return Reply{Mode: ModeShowChoice, RoundNumber: e.store.RoundNumber(sessionID)}, nil
}

// DeepAnalysis runs the full-panel analysis pass and offers the user
// the continue-or-opinion fork. The phase is set leniently; clients may
// call this right after the third round before polling the phase.
func (e *Engine) DeepAnalysis(ctx context.Context, sessionID string) (Reply, error) {
	if sessionID == "" {
		return Reply{}, fmt.Errorf("sessionId is required")
	}
	unlock := e.store.LockSession(sessionID)
	defer unlock()

	sess, ok := e.store.Get(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return Reply{}, fmt.Errorf("conversation history not found for this session")
	}

	if e.store.Phase(sessionID) != session.PhaseDeepAnalysis {
		e.store.SetPhase(sessionID, session.PhaseDeepAnalysis)
	}

	transcript := e.chairTranscript(sess.Messages)
	analyses := e.chair.CollectAnalyses(ctx, transcript, nil)
	for _, a := range analyses {
		e.store.Append(sessionID, session.Message{
			Speaker: a.AgentID,
			Role:    "assistant",
			Content: "[Deep Analysis] " + a.Analysis,
		})
	}
	e.store.SetExpertAnalyses(sessionID, analyses)

	// The phase is NOT flipped to final_response here; only a
	// successful chair summary ends the conversation.
	return Reply{
		Mode:        ModeShowChoice,
		RoundNumber: e.store.RoundNumber(sessionID),
		Analyses:    analyses,
		ChoiceOptions: []ChoiceOption{
			{ID: ChoiceContinue, Label: "Keep refining with a few more questions"},
			{ID: ChoiceOpinion, Label: "I'd like the panel's opinion now"},
		},
	}, nil
}

// ChairSummary produces the chair's verdict. Guards run first: a
// finished session rejects re-calls, a don't-know pattern yields
// USER_UNSURE, and thin history yields INSUFFICIENT_HISTORY. The phase
// flips to final_response only after the summary is built, so a failed
// chair call leaves the user able to retry.
func (e *Engine) ChairSummary(ctx context.Context, sessionID string) (Reply, error) {
	if sessionID == "" {
		return Reply{}, fmt.Errorf("sessionId is required")
	}
	unlock := e.store.LockSession(sessionID)
	defer unlock()

	phase := e.store.Phase(sessionID)
	sess, hasSession := e.store.Get(sessionID)

	if phase == session.PhaseFinalResponse && hasSession {
		for _, m := range sess.Messages {
			if m.Speaker == session.SpeakerChair {
				return Reply{}, ErrSessionFinalized
			}
		}
	}

	futureGoalAnswered := e.store.FutureGoalAnswered(sessionID)
	if !futureGoalAnswered {
		if hasSession && len(sess.Messages) > 0 && e.store.HasDontKnowPattern(sessionID) {
			e.store.Append(sessionID, session.Message{
				Speaker: session.SpeakerChair,
				Role:    "assistant",
				Content: parliament.ChairDontKnowMessage,
			})
			if e.recorder != nil {
				e.recorder.IncChairResponse(string(ModeUserUnsure))
			}
			return Reply{Mode: ModeUserUnsure, ChairMessage: parliament.ChairDontKnowMessage}, nil
		}
		if !hasSession || len(sess.Messages) == 0 || e.store.CountUserMessages(sessionID) < 3 {
			e.store.Append(sessionID, session.Message{
				Speaker: session.SpeakerChair,
				Role:    "assistant",
				Content: parliament.ChairInsufficientDataMessage,
			})
			if e.recorder != nil {
				e.recorder.IncChairResponse(string(ModeInsufficientHistory))
			}
			return Reply{Mode: ModeInsufficientHistory, ChairMessage: parliament.ChairInsufficientDataMessage}, nil
		}
	}

	kind := parliament.PromptRegular
	isFinalAnswer := futureGoalAnswered || phase == session.PhaseFinalResponse
	switch {
	case isFinalAnswer:
		kind = parliament.PromptFinalAnswer
	case phase == session.PhaseDeepAnalysis:
		kind = parliament.PromptDeepAnalysis
	}

	transcript := e.chairTranscript(sess.Messages)

	var analyses []session.ExpertAnalysis
	if isFinalAnswer {
		analyses = e.store.ExpertAnalyses(sessionID)
		if len(analyses) == 0 {
			selected := e.chair.SelectRelevantExperts(ctx, transcript)
			analyses = e.chair.CollectAnalyses(ctx, transcript, selected)
			if len(analyses) > 0 {
				e.store.SetExpertAnalyses(sessionID, analyses)
			}
		}
	}

	var externalNote string
	if ed := e.store.ExternalDomain(sessionID); ed != nil && ed.SpecialistAdded {
		if sp, ok := e.catalog.Specialist(extdomain.DomainType(ed.Domain)); ok {
			externalNote = fmt.Sprintf("\n\n[Note: an outside domain (%s) came up in this conversation and an outside specialist was added: %s. Include their angle among the panel voices and recommend consulting a real specialist in that domain if relevant.]",
				ed.DomainDisplay, sp.Name)
		}
	}

	sum, err := e.chair.Summarize(ctx, parliament.SummarizeInput{
		Kind:               kind,
		Transcript:         transcript,
		ExpertAnalyses:     analyses,
		ExternalDomainNote: externalNote,
	})
	if err != nil {
		if e.recorder != nil {
			e.recorder.IncChairResponse(string(ModeError))
		}
		return Reply{}, err
	}

	// Everything past deep analysis counts as the final response.
	isFinalResponse := isFinalAnswer || phase == session.PhaseDeepAnalysis
	chairContent := parliament.RenderMessage(sum, isFinalResponse)
	e.store.Append(sessionID, session.Message{
		Speaker: session.SpeakerChair,
		Role:    "assistant",
		Content: chairContent,
	})

	if isFinalResponse {
		e.store.SetPhase(sessionID, session.PhaseFinalResponse)
		e.archiveFinalized(ctx, sessionID, sum)
	}
	if e.recorder != nil {
		e.recorder.IncChairResponse(string(ModeFullSummary))
	}

	return Reply{
		Mode:         ModeFullSummary,
		RoundNumber:  e.store.RoundNumber(sessionID),
		ChairMessage: chairContent,
		Summary:      &sum,
	}, nil
}

// archiveFinalized writes the finished conversation to the archive.
// Failures are logged, never surfaced; the user already has the answer.
func (e *Engine) archiveFinalized(ctx context.Context, sessionID string, sum parliament.Summary) {
	if e.archive == nil {
		return
	}
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return
	}
	if err := e.archive.SaveFinalized(ctx, &sess, sum, sum.PatternName, sum.Closing); err != nil {
		e.logger.Error("failed to archive session %s: %v", sessionID, err)
	}
}

// ClearSession discards a session entirely.
func (e *Engine) ClearSession(sessionID string) {
	unlock := e.store.LockSession(sessionID)
	defer unlock()
	e.store.Delete(sessionID)
}
