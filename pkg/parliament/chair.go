package parliament

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"parliament/pkg/agent/llm"
	"parliament/pkg/logx"
	"parliament/pkg/session"
)

// ChairInsufficientDataMessage is returned when the user asks for a
// verdict before enough substantive history exists.
const ChairInsufficientDataMessage = `I want to be fair with you: based on what you've shared so far, I'm still missing a bit of information to give you a serious opinion and a direction you can really rely on.
So that I can truly help, please also answer this: what is the one thing you would most want to happen as a result of this conversation, within the next week or two?`

// ChairDontKnowMessage is returned when the recent answers show a
// repeated "don't know" pattern.
const ChairDontKnowMessage = `I hear your "I don't know", and it's very understandable. Sometimes "I don't know" is exactly where we really are, not an evasion.
The problem is that to help you I need at least a few markers of direction, otherwise I'm talking at you rather than with you. Without a little information from the inside, any advice I give would be a guess about your life, and that doesn't respect you.
So instead of trying to give a clever or precise answer, take a moment and consider: if you had to guess, what is the thing that troubles you most right now? Write me one short sentence and we can move forward together from there.`

// PromptKind selects which chair prompt a summary call uses.
type PromptKind int

const (
	PromptRegular PromptKind = iota
	PromptDeepAnalysis
	PromptFinalAnswer
)

// SelectedExpert is one expert voice the chair chose to feature.
type SelectedExpert struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Insight string `json:"insight"`
}

// ActionPlanStep is one concrete step in the chair's plan.
type ActionPlanStep struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	SuccessCriteria string `json:"success_criteria"`
}

// Summary is the chair's normalized output. Models answer in one of
// two schemas; both are mapped here, with Steps always populated.
type Summary struct {
	Mechanism          string           `json:"mechanism,omitempty"`
	ExpertVoices       []string         `json:"expertVoices,omitempty"`
	ChairLeaningToward string           `json:"chairLeaningToward,omitempty"`
	Understanding      string           `json:"understanding,omitempty"`
	Steps              []string         `json:"steps"`
	Resistance         string           `json:"resistance,omitempty"`
	Closing            string           `json:"closing"`
	ExternalDomainNote string           `json:"externalDomainNote,omitempty"`
	OriginalQuestion   string           `json:"originalQuestion,omitempty"`
	PatternName        string           `json:"patternName,omitempty"`
	Reflection         string           `json:"reflection,omitempty"`
	SelectedExperts    []SelectedExpert `json:"selectedExperts,omitempty"`
	ActionPlan         []ActionPlanStep `json:"actionPlan,omitempty"`
	MedicalNote        string           `json:"medicalNote,omitempty"`
	OfferExpertView    string           `json:"offerExpertView,omitempty"`
	OfferTraining      string           `json:"offerTrainingQuestion,omitempty"`
}

// Chair runs the closing stage: expert selection, per-expert deep
// analyses, and the single structured summary call.
type Chair struct {
	chairClient llm.LLMClient
	fastClient  llm.LLMClient
	catalog     *Catalog
	logger      *logx.Logger
}

// NewChair takes the client used for the summary call and a faster
// client used for expert selection and the per-expert analyses.
func NewChair(chairClient, fastClient llm.LLMClient, catalog *Catalog) *Chair {
	return &Chair{
		chairClient: chairClient,
		fastClient:  fastClient,
		catalog:     catalog,
		logger:      logx.NewLogger("chair"),
	}
}

// SelectRelevantExperts asks the fast model to pick the 4 most relevant
// panel members for this conversation. Any failure returns nil and the
// caller falls back to the full panel.
func (c *Chair) SelectRelevantExperts(ctx context.Context, conversationSummary string) []string {
	if len(conversationSummary) > 2500 {
		conversationSummary = conversationSummary[len(conversationSummary)-2500:]
	}

	ids := make([]string, 0, len(c.catalog.Experts()))
	for _, p := range c.catalog.Experts() {
		ids = append(ids, p.ID)
	}

	prompt := fmt.Sprintf(`Based on the conversation below, choose EXACTLY 4 experts whose angle is most relevant to the context (relationship, career, money, health, decisions, and so on).
Expert identifiers: %s.
Return JSON only, in the form {"ids": ["id1", "id2", "id3", "id4"]}. Identifiers only, no extra text.

Conversation summary:
---
%s
---`, strings.Join(ids, ", "), conversationSummary)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage(prompt)})
	req.MaxTokens = 120
	req.ExpectJSON = true

	resp, err := c.fastClient.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("expert selection failed, using full panel: %v", err)
		return nil
	}

	var parsed struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal([]byte(RepairJSON(resp.Content)), &parsed); err != nil {
		c.logger.Warn("expert selection returned unparseable output, using full panel: %v", err)
		return nil
	}

	valid := make([]string, 0, 4)
	for _, id := range parsed.IDs {
		if _, ok := c.catalog.Expert(id); ok {
			valid = append(valid, id)
		}
	}
	if len(valid) < 3 || len(valid) > 6 {
		return nil
	}
	if len(valid) > 4 {
		valid = valid[:4]
	}
	return valid
}

// CollectAnalyses gathers one genuine free-text analysis per selected
// expert, in parallel. Failed or empty analyses are dropped. When
// agentIDs has fewer than 3 entries the full panel is used.
func (c *Chair) CollectAnalyses(ctx context.Context, transcript string, agentIDs []string) []session.ExpertAnalysis {
	if len(transcript) > 5000 {
		transcript = transcript[len(transcript)-5000:]
	}

	requested := agentIDs
	if len(requested) < 3 {
		requested = nil
		for _, p := range c.catalog.Experts() {
			requested = append(requested, p.ID)
		}
	}

	prompt := fmt.Sprintf(`Summary of the conversation with the person (source question plus all their answers):
---
%s
---

These instructions apply to ANY topic the person brings: relationships and intimacy, time management, household budget, betrayal, a partner's lack of support, work, health, anxiety, procrastination, relations with children or parents. Fit the analysis (motives, visible and hidden gains) to the specific topic.

===== Unique angle (mandatory) =====
Your analysis must come from YOUR school only, not from a generic assistant.

Your task: a deep analysis with a unique angle, not one general sentence.
- Be concrete: refer to details from the conversation, not generalities.
- Look for motives and for visible and hidden gains, in everyday language, without professional terms.
- Connect everything the person wrote and show how motives and gains link up specifically through your angle.
- Length: 4-7 concrete sentences.
- If part of your critique is unpleasant, you MUST open it with "I'm sorry I have to add that:" and then continue.
- Do not propose an action plan; analysis only.

Return FREE TEXT (not JSON): one paragraph with your analysis.`, transcript)

	results := make([]*session.ExpertAnalysis, len(requested))
	var wg sync.WaitGroup
	for i, id := range requested {
		persona, ok := c.catalog.Expert(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, persona Persona) {
			defer wg.Done()
			req := llm.NewCompletionRequest([]llm.CompletionMessage{
				llm.NewSystemMessage(persona.SystemPrompt),
				llm.NewUserMessage(prompt),
			})
			req.MaxTokens = 650

			resp, err := c.fastClient.Complete(ctx, req)
			if err != nil {
				c.logger.Warn("analysis from %s failed: %v", persona.ID, err)
				return
			}
			analysis := strings.TrimSpace(resp.Content)
			if analysis == "" {
				return
			}
			results[i] = &session.ExpertAnalysis{
				AgentID:    persona.ID,
				AgentName:  persona.Name,
				SchoolName: persona.SchoolName,
				Analysis:   analysis,
			}
		}(i, persona)
	}
	wg.Wait()

	analyses := make([]session.ExpertAnalysis, 0, len(requested))
	for _, r := range results {
		if r != nil {
			analyses = append(analyses, *r)
		}
	}
	return analyses
}

// SummarizeInput carries the material for one chair summary call.
type SummarizeInput struct {
	Kind               PromptKind
	Transcript         string
	ExpertAnalyses     []session.ExpertAnalysis
	ExternalDomainNote string
}

// Summarize runs the single structured chair call and normalizes the
// result. Unusable model output is a hard error; the caller keeps the
// session open so the user can retry.
func (c *Chair) Summarize(ctx context.Context, in SummarizeInput) (Summary, error) {
	transcript := in.Transcript
	if len(transcript) > 4000 {
		transcript = transcript[len(transcript)-4000:]
	}

	var analysesText string
	if len(in.ExpertAnalyses) > 0 {
		var b strings.Builder
		b.WriteString("\n\n===== Expert answers (genuine analysis from each school) =====\n")
		for i, a := range in.ExpertAnalyses {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "%s (%s):\n%s", a.SchoolName, a.AgentName, a.Analysis)
		}
		analysesText = b.String()
	}

	systemMessage := chairSystemInterim
	prompt := chairPromptRegular
	switch in.Kind {
	case PromptDeepAnalysis:
		systemMessage = chairSystemFinal
		prompt = chairPromptDeepAnalysis
	case PromptFinalAnswer:
		systemMessage = chairSystemFinal
		prompt = chairPromptFinalAnswer
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(systemMessage),
		llm.NewUserMessage(fmt.Sprintf("%s\n\nThe full conversation:\n%s%s%s",
			prompt, transcript, analysesText, in.ExternalDomainNote)),
	})
	req.Temperature = 0.8
	req.MaxTokens = 1500
	req.ExpectJSON = true

	resp, err := c.chairClient.Complete(ctx, req)
	if err != nil {
		return Summary{}, fmt.Errorf("chair call failed: %w", err)
	}
	content := RepairJSON(resp.Content)
	if content == "" {
		return Summary{}, fmt.Errorf("empty response from chair")
	}

	var raw rawChairSummary
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		c.logger.Error("chair JSON parse failed, content length %d, head %.200q", len(content), content)
		return Summary{}, fmt.Errorf("invalid response from chair: %w", err)
	}

	return normalizeChairSummary(raw), nil
}

// rawChairSummary accepts both chair schemas: the older flat one
// (understanding, steps, closing) and the newer structured one
// (pattern_name, selected_experts, action_plan).
type rawChairSummary struct {
	Mechanism          string            `json:"mechanism"`
	ExpertVoices       []string          `json:"expertVoices"`
	ChairLeaningToward string            `json:"chairLeaningToward"`
	Understanding      string            `json:"understanding"`
	Steps              []string          `json:"steps"`
	Resistance         string            `json:"resistance"`
	Closing            string            `json:"closing"`
	ExternalDomainNote string            `json:"externalDomainNote"`
	OriginalQuestion   string            `json:"original_question"`
	PatternName        string            `json:"pattern_name"`
	Reflection         string            `json:"reflection"`
	SelectedExperts    []json.RawMessage `json:"selected_experts"`
	UserFriendlyExpl   string            `json:"user_friendly_explanation"`
	ActionPlan         []json.RawMessage `json:"action_plan"`
	ResistanceNote     string            `json:"resistance_note"`
	MedicalNote        string            `json:"medical_note"`
	ExternalNoteNew    string            `json:"external_domain_note"`
	OfferExpertView    string            `json:"offer_expert_view"`
	OfferTraining      string            `json:"offer_training_question"`
	ExpertVoicesNew    []string          `json:"expert_voices"`
}

func normalizeChairSummary(raw rawChairSummary) Summary {
	isNewFormat := raw.PatternName != "" || len(raw.ActionPlan) > 0

	var sum Summary
	if isNewFormat {
		var plan []ActionPlanStep
		var stepsAsStrings []string
		for _, rawStep := range raw.ActionPlan {
			var step ActionPlanStep
			if err := json.Unmarshal(rawStep, &step); err != nil {
				continue
			}
			if step.Title == "" && step.Description == "" {
				continue
			}
			plan = append(plan, step)
			stepsAsStrings = append(stepsAsStrings,
				strings.TrimSpace(fmt.Sprintf("%s: %s (criterion: %s)", step.Title, step.Description, step.SuccessCriteria)))
		}

		var experts []SelectedExpert
		for _, rawExpert := range raw.SelectedExperts {
			var e SelectedExpert
			if err := json.Unmarshal(rawExpert, &e); err != nil {
				continue
			}
			if e.Name == "" || e.Insight == "" {
				continue
			}
			e.ID = NormalizeChairExpertID(e.ID)
			experts = append(experts, e)
		}

		voices := raw.ExpertVoicesNew
		if len(experts) > 0 {
			voices = make([]string, len(experts))
			for i, e := range experts {
				voices[i] = fmt.Sprintf("**%s:** %s", e.Name, e.Insight)
			}
		}

		externalNote := raw.ExternalNoteNew
		if externalNote == "" {
			externalNote = raw.MedicalNote
		}

		sum = Summary{
			Mechanism:          raw.UserFriendlyExpl,
			ExpertVoices:       voices,
			Steps:              stepsAsStrings,
			Resistance:         raw.ResistanceNote,
			Closing:            raw.Closing,
			ExternalDomainNote: externalNote,
			OriginalQuestion:   raw.OriginalQuestion,
			PatternName:        raw.PatternName,
			Reflection:         raw.Reflection,
			SelectedExperts:    experts,
			ActionPlan:         plan,
			MedicalNote:        raw.MedicalNote,
			OfferExpertView:    raw.OfferExpertView,
			OfferTraining:      raw.OfferTraining,
		}
	} else {
		sum = Summary{
			Mechanism:          raw.Mechanism,
			ExpertVoices:       raw.ExpertVoices,
			ChairLeaningToward: raw.ChairLeaningToward,
			Understanding:      raw.Understanding,
			Steps:              raw.Steps,
			Resistance:         raw.Resistance,
			Closing:            raw.Closing,
			ExternalDomainNote: raw.ExternalDomainNote,
		}
	}

	if sum.Steps == nil {
		sum.Steps = []string{}
	}
	if len(sum.Steps) > 3 {
		sum.Steps = sum.Steps[:3]
	}
	for _, field := range []*string{&sum.ExternalDomainNote, &sum.ChairLeaningToward, &sum.Resistance, &sum.MedicalNote} {
		if strings.TrimSpace(*field) == "" || *field == "null" {
			*field = ""
		}
	}
	return sum
}

// RenderMessage flattens a summary into the transcript message shown
// to the user. The closing block is included only for final responses.
func RenderMessage(sum Summary, final bool) string {
	var b strings.Builder
	writeBlock := func(s string) {
		if s != "" {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
	}

	writeBlock(sum.Mechanism)
	if len(sum.ExpertVoices) > 0 {
		b.WriteString("Voices of the panel:\n")
		for _, v := range sum.ExpertVoices {
			fmt.Fprintf(&b, "• %s\n", v)
		}
		b.WriteString("\n")
	}
	writeBlock(sum.ChairLeaningToward)
	if sum.Understanding != "" {
		writeBlock("Integrated understanding:\n" + sum.Understanding)
	}
	if len(sum.Steps) > 0 {
		b.WriteString("Training plan:\n")
		for i, step := range sum.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}
	if sum.Resistance != "" {
		writeBlock("Expected resistance:\n" + sum.Resistance)
	}
	if sum.ExternalDomainNote != "" {
		writeBlock("Note on an outside domain:\n" + sum.ExternalDomainNote)
	}
	if final {
		writeBlock(sum.Closing)
	}
	return strings.TrimSpace(b.String())
}
