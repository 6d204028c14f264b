package parliament

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"parliament/pkg/agent/llm"
	"parliament/pkg/logx"
	"parliament/pkg/session"
)

// EscapeHatchOption is the literal free-text option that must close
// every option list shown to the user.
const EscapeHatchOption = "Something else: ____"

// SynthesizedQuestion is the single question a round produces.
type SynthesizedQuestion struct {
	Question     string               `json:"question"`
	Options      []string             `json:"options"`
	QuestionType session.QuestionType `json:"questionType"`
}

// Synthesizer merges the panel's proposals into one next question. It
// reads the positions, finds the tensions between them, and picks a
// question type, with missing mandatory types taking priority.
type Synthesizer struct {
	client llm.LLMClient
	logger *logx.Logger
}

func NewSynthesizer(client llm.LLMClient) *Synthesizer {
	return &Synthesizer{client: client, logger: logx.NewLogger("synthesizer")}
}

// SynthesizeInput carries one round's material.
type SynthesizeInput struct {
	Proposals    []Proposal
	History      string
	UserAnswer   string
	MissingTypes []session.QuestionType
}

type synthesizedPayload struct {
	QuestionType string   `json:"questionType"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
}

var questionTypeDescriptions = map[session.QuestionType]string{
	session.QuestionTypePattern:    "here-and-now pattern (when [X] happens, what goes on for you?)",
	session.QuestionTypeContext:    "wider context (where else in your life does this show up?)",
	session.QuestionTypeMotivation: "motivation (why is it important to you to deal with this now? what would be different?)",
}

// Synthesize produces the next question. Malformed synthesizer output
// is a hard error; the caller surfaces it rather than inventing a
// question. When mandatory question types are still missing, the first
// missing type is forced onto the result regardless of what the model
// chose.
func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesizeInput) (SynthesizedQuestion, error) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(s.systemPrompt(in.MissingTypes)),
		llm.NewUserMessage(s.userPrompt(in)),
	})
	req.Temperature = llm.TemperatureDefault
	req.MaxTokens = 400
	req.ExpectJSON = true

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return SynthesizedQuestion{}, fmt.Errorf("question synthesizer call failed: %w", err)
	}

	var payload synthesizedPayload
	if err := json.Unmarshal([]byte(RepairJSON(resp.Content)), &payload); err != nil {
		return SynthesizedQuestion{}, fmt.Errorf("invalid response from question synthesizer: %w", err)
	}

	question := strings.TrimSpace(payload.Question)
	// Escape-hatch entries are stripped before the count check so that
	// duplicated hatches cannot pass validation and then collapse below
	// the minimum; ensureEscapeHatch re-appends exactly one at the end.
	options := make([]string, 0, 5)
	for _, o := range payload.Options {
		if len(options) == 4 {
			break
		}
		trimmed := strings.TrimSpace(o)
		if trimmed == "" || strings.EqualFold(trimmed, EscapeHatchOption) {
			continue
		}
		options = append(options, trimmed)
	}

	if question == "" || len(options) < 3 {
		return SynthesizedQuestion{}, fmt.Errorf("invalid response from question synthesizer: need question and at least 3 answer options")
	}

	questionType := session.QuestionTypePattern
	switch session.QuestionType(payload.QuestionType) {
	case session.QuestionTypeContext:
		questionType = session.QuestionTypeContext
	case session.QuestionTypeMotivation:
		questionType = session.QuestionTypeMotivation
	}
	// Coverage outranks the model's choice.
	if len(in.MissingTypes) > 0 {
		questionType = in.MissingTypes[0]
	}

	s.logger.Debug("synthesized %s question: %.50q", questionType, question)

	return SynthesizedQuestion{
		Question:     question,
		Options:      ensureEscapeHatch(options),
		QuestionType: questionType,
	}, nil
}

// ensureEscapeHatch makes the literal free-text option the last entry,
// moving it there if present elsewhere and appending or replacing the
// last option otherwise.
func ensureEscapeHatch(options []string) []string {
	out := make([]string, 0, len(options)+1)
	for _, o := range options {
		if !strings.EqualFold(o, EscapeHatchOption) {
			out = append(out, o)
		}
	}
	if len(out) >= 5 {
		out = out[:4]
	}
	return append(out, EscapeHatchOption)
}

func (s *Synthesizer) systemPrompt(missing []session.QuestionType) string {
	var priority string
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = questionTypeDescriptions[m]
		}
		priority = fmt.Sprintf(`
===== PRIORITY: MISSING QUESTION TYPES =====
The following question types have NOT been asked yet and MUST be prioritized:
%s

Choose ONE of these missing types for the next question!
`, strings.Join(names, ", "))
	}

	return fmt.Sprintf(`You are a Question Synthesizer in a panel of experts.

===== HARD CONSTRAINTS =====
- Do NOT generate generic questions that could fit anyone.
- Do NOT invent details about the user's life that weren't mentioned.
- Every question must reference something the user said.
- NO professional terms visible to the user, ever.
%s
===== Your role =====
1. Read and compare ALL experts' positions (internally).
2. Identify 2-3 key tensions between the positions.
3. Choose ONE of these question types (PRIORITIZE missing types!):
   a) pattern: "When [X] happens, what best describes what goes on inside you or in your behavior?"
   b) context: "Where else does this pattern show up: work, relationship, money, family?"
   c) motivation: "What makes you want to deal with this now? If it improved in six months, what would be different?"
4. Generate 4-5 answer options:
   - First person ("I feel...", "I tend to...", "Usually I...").
   - Everyday patterns (avoidance, people-pleasing, fear of rejection, disorganization).
   - Short, 1-2 sentences max.
   - Last option MUST be: %q

Return JSON:
{
  "questionType": "pattern" | "context" | "motivation",
  "question": "the question...",
  "options": ["I feel that...", "I tend to...", "Usually I...", %q]
}`, priority, EscapeHatchOption, EscapeHatchOption)
}

func (s *Synthesizer) userPrompt(in SynthesizeInput) string {
	var b strings.Builder
	for i, p := range in.Proposals {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**%s**:\nPosition: %s\nProposed question: %q\nAnswer options: %s",
			p.SchoolName, p.Position, p.ProposedQuestion, strings.Join(p.AnswerOptions, " | "))
	}

	missing := "none"
	if len(in.MissingTypes) > 0 {
		names := make([]string, len(in.MissingTypes))
		for i, m := range in.MissingTypes {
			names[i] = string(m)
		}
		missing = strings.Join(names, ", ")
	}

	return fmt.Sprintf(`Conversation history:
%s

User's answer:
%s

Panel member proposals (position + question + options):
%s

Missing question types: %s

Create ONE final question with 3-4 answer options. PRIORITIZE missing question types! DO NOT repeat any questions already asked.`,
		in.History, in.UserAnswer, b.String(), missing)
}
