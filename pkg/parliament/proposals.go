package parliament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"parliament/pkg/agent/llm"
	"parliament/pkg/extdomain"
	"parliament/pkg/logx"
)

// ErrNoProposals is returned when every panel member failed to produce
// a usable proposal. A partial panel is not an error.
var ErrNoProposals = errors.New("failed to collect expert opinions")

// Proposal is one panel member's contribution for a round: an internal
// position plus a candidate follow-up question with answer options.
type Proposal struct {
	AgentID          string   `json:"agentId"`
	AgentName        string   `json:"agentName"`
	SchoolName       string   `json:"schoolName"`
	Position         string   `json:"position"`
	ProposedQuestion string   `json:"proposedQuestion"`
	AnswerOptions    []string `json:"answerOptions"`
}

// Collector fans one round out to every core panel member in parallel,
// plus the approved outside specialist when one is active.
type Collector struct {
	client  llm.LLMClient
	catalog *Catalog
	logger  *logx.Logger
}

func NewCollector(client llm.LLMClient, catalog *Catalog) *Collector {
	return &Collector{
		client:  client,
		catalog: catalog,
		logger:  logx.NewLogger("proposals"),
	}
}

// CollectInput carries the round context shown to every member.
type CollectInput struct {
	LastQuestion string
	UserAnswer   string
	Summary      string
	// SpecialistDomain is non-empty only after the user approved adding
	// the outside specialist for that domain.
	SpecialistDomain extdomain.DomainType
}

type proposalPayload struct {
	Position         string   `json:"position"`
	ProposedQuestion string   `json:"proposedQuestion"`
	AnswerOptions    []string `json:"answerOptions"`
}

// Collect gathers proposals from all members concurrently. Members that
// error or return malformed output are dropped; the round fails only
// when nobody produced a valid proposal.
func (c *Collector) Collect(ctx context.Context, in CollectInput) ([]Proposal, error) {
	experts := c.catalog.Experts()
	c.logger.Debug("collecting proposals from %d panel members", len(experts))

	results := make([]*Proposal, len(experts))
	var wg sync.WaitGroup
	for i, persona := range experts {
		wg.Add(1)
		go func(i int, persona Persona) {
			defer wg.Done()
			p, err := c.collectOne(ctx, persona.ID, persona.Name, persona.SchoolName,
				persona.SystemPrompt, c.memberPrompt(in))
			if err != nil {
				c.logger.Warn("dropping proposal from %s: %v", persona.ID, err)
				return
			}
			results[i] = p
		}(i, persona)
	}
	wg.Wait()

	proposals := make([]Proposal, 0, len(experts)+1)
	for _, p := range results {
		if p != nil {
			proposals = append(proposals, *p)
		}
	}

	if in.SpecialistDomain != "" {
		if sp, ok := c.catalog.Specialist(in.SpecialistDomain); ok {
			p, err := c.collectOne(ctx, "external-"+string(in.SpecialistDomain), sp.Name,
				fmt.Sprintf("Outside specialist (%s)", in.SpecialistDomain),
				sp.SystemPrompt, c.specialistPrompt(in, sp))
			if err != nil {
				c.logger.Warn("outside specialist %s gave no usable proposal: %v", in.SpecialistDomain, err)
			} else {
				proposals = append(proposals, *p)
			}
		}
	}

	if len(proposals) == 0 {
		return nil, ErrNoProposals
	}
	c.logger.Info("collected %d valid proposals", len(proposals))
	return proposals, nil
}

func (c *Collector) collectOne(ctx context.Context, agentID, agentName, schoolName, systemPrompt, userPrompt string) (*Proposal, error) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(userPrompt),
	})
	req.Temperature = llm.TemperatureExpert
	req.MaxTokens = 400
	req.ExpectJSON = true

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload proposalPayload
	if err := json.Unmarshal([]byte(RepairJSON(resp.Content)), &payload); err != nil {
		return nil, fmt.Errorf("unparseable proposal: %w", err)
	}

	position := strings.TrimSpace(payload.Position)
	question := strings.TrimSpace(payload.ProposedQuestion)
	options := make([]string, 0, 4)
	for _, o := range payload.AnswerOptions {
		if len(options) == 4 {
			break
		}
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			options = append(options, trimmed)
		}
	}

	if position == "" || question == "" || len(options) < 3 {
		return nil, fmt.Errorf("incomplete proposal: need position, question, and 3+ options")
	}

	return &Proposal{
		AgentID:          agentID,
		AgentName:        agentName,
		SchoolName:       schoolName,
		Position:         position,
		ProposedQuestion: question,
		AnswerOptions:    options,
	}, nil
}

func (c *Collector) memberPrompt(in CollectInput) string {
	return fmt.Sprintf(`The last question the user was asked:
%q

The user's answer:
%s

A short summary of the conversation so far:
%s

Your task:
1. From your school's point of view, write a "position": 2-4 sentences on what is really going on here. This part stays internal, so professional terms are allowed.
2. Propose ONE follow-up question ("proposedQuestion") that starts from something the user actually said.
3. Propose 4-5 answer options ("answerOptions"):
   - First person: "I feel that...", "I tend to...", "Usually I..."
   - Everyday patterns, not theory.
   - The last option must be: %q

Return JSON:
{
  "position": "2-4 sentences, your internal position.",
  "proposedQuestion": "When [what the user described] happens, what best describes what goes on for you?",
  "answerOptions": ["I feel that...", "I tend to...", "Usually I...", %q]
}`, in.LastQuestion, in.UserAnswer, in.Summary, EscapeHatchOption, EscapeHatchOption)
}

func (c *Collector) specialistPrompt(in CollectInput, sp SpecialistPersona) string {
	return fmt.Sprintf(`The last question the user was asked:
%q

The user's answer:
%s

A short summary of the conversation so far:
%s

You are %s, an outside specialist invited to offer a general angle.

Your task:
1. Write a "position": 2-4 sentences on how your domain (%s) may be relevant to what the user describes. You do not diagnose and you do not give specific advice. This part stays internal, so professional terms are allowed.
2. If information is missing that a real specialist should gather, say so.
3. Propose ONE follow-up question ("proposedQuestion") that helps judge whether your domain is more or less relevant.
4. Propose 3-4 answer options ("answerOptions") for that question.

The user is not a professional. The question and options must be in
plain everyday language, first person, and short.

Return JSON:
{
  "position": "2-4 sentences, your internal angle.",
  "proposedQuestion": "your question in plain language",
  "answerOptions": ["I feel that...", "It seems to me...", "Usually I..."]
}`, in.LastQuestion, in.UserAnswer, in.Summary, sp.Name, in.SpecialistDomain)
}
