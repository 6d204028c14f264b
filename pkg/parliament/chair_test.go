package parliament

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parliament/pkg/agent"
	"parliament/pkg/agent/llm"
)

const newFormatChairJSON = `{
	"original_question": "I keep avoiding hard conversations with my partner",
	"pattern_name": "The quiet retreat",
	"reflection": "You told me that when things get tense you go quiet and wait for it to pass.",
	"selected_experts": [
		{"id": "psychodynamic", "name": "The psychodynamic angle", "insight": "The silence echoes an older room."},
		{"id": "cbt", "name": "The cognitive angle", "insight": "You predict an explosion that rarely comes."},
		{"id": "unknown-id", "name": "The mystery angle", "insight": "Still has a usable insight."}
	],
	"action_plan": [
		{"title": "Name it once", "description": "Say one sentence about what you need.", "success_criteria": "Said it once this week."},
		{"title": "Stay 2 minutes", "description": "Stay in the room two minutes past the urge to leave.", "success_criteria": "Twice this week."},
		{"title": "Debrief", "description": "Write three lines after.", "success_criteria": "Three entries."},
		{"title": "Extra step", "description": "Should be trimmed.", "success_criteria": "n/a"}
	],
	"resistance_note": "The first sentence will feel dangerous.",
	"closing": "Change costs the comfort of silence.",
	"medical_note": "",
	"external_domain_note": null
}`

const oldFormatChairJSON = `{
	"understanding": "The avoidance protects you from a fight you expect to lose.",
	"steps": ["Name one need out loud", "Stay in the room", "Review the week"],
	"resistance": "It will feel exposed.",
	"closing": "The price of change is discomfort.",
	"chairLeaningToward": "null"
}`

func newTestChair(chairMock, fastMock *agent.MockLLMClient, t *testing.T) *Chair {
	t.Helper()
	return NewChair(chairMock, fastMock, mustCatalog(t))
}

func TestSummarizeNewFormat(t *testing.T) {
	chairMock := agent.NewMockLLMClient([]llm.CompletionResponse{{Content: newFormatChairJSON}}, nil)
	chair := newTestChair(chairMock, agent.NewMockLLMClient(nil, nil), t)

	sum, err := chair.Summarize(context.Background(), SummarizeInput{
		Kind:       PromptFinalAnswer,
		Transcript: "user: I keep avoiding hard conversations",
	})
	require.NoError(t, err)

	assert.Equal(t, "The quiet retreat", sum.PatternName)
	require.Len(t, sum.SelectedExperts, 3)
	assert.Equal(t, "psychodynamic", sum.SelectedExperts[0].ID)
	// Unknown expert ids are coerced onto the known set.
	assert.Equal(t, "cbt", sum.SelectedExperts[2].ID)

	require.Len(t, sum.Steps, 3)
	assert.Contains(t, sum.Steps[0], "Name it once")
	assert.Contains(t, sum.Steps[0], "criterion:")
	assert.Len(t, sum.ActionPlan, 4)

	require.Len(t, sum.ExpertVoices, 3)
	assert.Contains(t, sum.ExpertVoices[1], "The cognitive angle")
	assert.Equal(t, "Change costs the comfort of silence.", sum.Closing)
	assert.Empty(t, sum.ExternalDomainNote)
}

func TestSummarizeOldFormat(t *testing.T) {
	chairMock := agent.NewMockLLMClient([]llm.CompletionResponse{{Content: oldFormatChairJSON}}, nil)
	chair := newTestChair(chairMock, agent.NewMockLLMClient(nil, nil), t)

	sum, err := chair.Summarize(context.Background(), SummarizeInput{
		Kind:       PromptRegular,
		Transcript: "user: short history",
	})
	require.NoError(t, err)

	assert.Equal(t, "The avoidance protects you from a fight you expect to lose.", sum.Understanding)
	assert.Len(t, sum.Steps, 3)
	assert.Empty(t, sum.PatternName)
	// Literal "null" strings are cleaned up.
	assert.Empty(t, sum.ChairLeaningToward)
}

func TestSummarizeRepairsWrappedJSON(t *testing.T) {
	wrapped := "Here is my summary:\n```json\n" + oldFormatChairJSON + "\n```\nHope this helps."
	chairMock := agent.NewMockLLMClient([]llm.CompletionResponse{{Content: wrapped}}, nil)
	chair := newTestChair(chairMock, agent.NewMockLLMClient(nil, nil), t)

	sum, err := chair.Summarize(context.Background(), SummarizeInput{Kind: PromptRegular, Transcript: "t"})
	require.NoError(t, err)
	assert.Len(t, sum.Steps, 3)
}

func TestSummarizeHardErrorOnGarbage(t *testing.T) {
	chairMock := agent.NewMockLLMClient([]llm.CompletionResponse{{Content: "{ truncated and broken"}}, nil)
	chair := newTestChair(chairMock, agent.NewMockLLMClient(nil, nil), t)

	_, err := chair.Summarize(context.Background(), SummarizeInput{Kind: PromptFinalAnswer, Transcript: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chair")
}

func TestSelectRelevantExperts(t *testing.T) {
	fastMock := agent.NewMockLLMClient([]llm.CompletionResponse{{
		Content: `{"ids": ["cbt", "modern-stoic", "dbt", "social-sociological"]}`,
	}}, nil)
	chair := newTestChair(agent.NewMockLLMClient(nil, nil), fastMock, t)

	ids := chair.SelectRelevantExperts(context.Background(), "career and money pressure")
	assert.Equal(t, []string{"cbt", "modern-stoic", "dbt", "social-sociological"}, ids)
}

func TestSelectRelevantExpertsFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		mock *agent.MockLLMClient
	}{
		{"call error", agent.NewMockLLMClient(nil, []error{fmt.Errorf("down")})},
		{"unparseable", agent.NewMockLLMClient([]llm.CompletionResponse{{Content: "no json"}}, nil)},
		{"too few valid ids", agent.NewMockLLMClient([]llm.CompletionResponse{{Content: `{"ids": ["cbt", "bogus"]}`}}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chair := newTestChair(agent.NewMockLLMClient(nil, nil), tt.mock, t)
			assert.Nil(t, chair.SelectRelevantExperts(context.Background(), "summary"))
		})
	}
}

func TestCollectAnalysesDropsFailures(t *testing.T) {
	// Four selected experts, one call fails, one returns blank.
	fastMock := agent.NewMockLLMClient(
		[]llm.CompletionResponse{
			{Content: "A real analysis from one school."},
			{Content: "Another real analysis."},
			{Content: "   "},
		},
		[]error{nil, fmt.Errorf("down"), nil, nil},
	)
	chair := newTestChair(agent.NewMockLLMClient(nil, nil), fastMock, t)

	analyses := chair.CollectAnalyses(context.Background(), "transcript",
		[]string{"cbt", "dbt", "modern-stoic", "psychodynamic-freudian"})
	assert.Len(t, analyses, 2)
	for _, a := range analyses {
		assert.NotEmpty(t, a.AgentID)
		assert.NotEmpty(t, a.SchoolName)
		assert.NotEmpty(t, a.Analysis)
	}
}

func TestCollectAnalysesUsesFullPanelWhenSelectionTooSmall(t *testing.T) {
	responses := make([]llm.CompletionResponse, 6)
	for i := range responses {
		responses[i] = llm.CompletionResponse{Content: fmt.Sprintf("analysis %d", i)}
	}
	fastMock := agent.NewMockLLMClient(responses, nil)
	chair := newTestChair(agent.NewMockLLMClient(nil, nil), fastMock, t)

	analyses := chair.CollectAnalyses(context.Background(), "transcript", []string{"cbt"})
	assert.Len(t, analyses, 6)
	assert.Equal(t, 6, fastMock.Calls())
}

func TestRenderMessageClosingOnlyWhenFinal(t *testing.T) {
	sum := Summary{
		Mechanism:    "The silence protects you.",
		ExpertVoices: []string{"**The cognitive angle:** You predict an explosion."},
		Steps:        []string{"Name one need out loud"},
		Closing:      "Change costs the comfort of silence.",
	}

	final := RenderMessage(sum, true)
	assert.Contains(t, final, "Voices of the panel:")
	assert.Contains(t, final, "Training plan:")
	assert.Contains(t, final, sum.Closing)

	interim := RenderMessage(sum, false)
	assert.NotContains(t, interim, sum.Closing)
}
