package extdomain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLegalDomain(t *testing.T) {
	d := Detect("My manager threatened me and I'm thinking about talking to a lawyer about it")
	require.True(t, d.Detected)
	assert.Equal(t, DomainLegal, d.Domain)
	assert.Equal(t, "legal", d.DisplayName)
	assert.Contains(t, d.TriggerWords, "lawyer")
	assert.NotEmpty(t, d.SpecialistType)
}

func TestDetectIsCaseInsensitive(t *testing.T) {
	d := Detect("I was diagnosed with ADHD last year")
	require.True(t, d.Detected)
	assert.Equal(t, DomainNeurologicalAttention, d.Domain)
	assert.Equal(t, []string{"adhd"}, d.TriggerWords)
}

func TestDetectReportsAllMatchedTriggersInOneDomain(t *testing.T) {
	d := Detect("After the divorce I might need a lawyer for the custody fight")
	require.True(t, d.Detected)
	assert.Equal(t, DomainLegal, d.Domain)
	assert.ElementsMatch(t, []string{"lawyer", "divorce", "custody"}, d.TriggerWords)
}

func TestDetectFirstDomainWinsOnCrossDomainMatch(t *testing.T) {
	// Psychiatric precedes addiction in the scan order.
	d := Detect("My psychiatrist says the excessive drinking has to stop")
	require.True(t, d.Detected)
	assert.Equal(t, DomainPsychiatric, d.Domain)
}

func TestDetectNothing(t *testing.T) {
	d := Detect("I keep avoiding hard conversations with my partner")
	assert.False(t, d.Detected)
	assert.Empty(t, d.Domain)
	assert.Empty(t, d.TriggerWords)
}

func TestClarificationQuestionMentionsDomainAndSpecialist(t *testing.T) {
	d := Detect("I'm drowning and bankruptcy feels like the only way out")
	require.True(t, d.Detected)

	q := ClarificationQuestion(d)
	assert.Contains(t, q, d.DisplayName)
	assert.Contains(t, q, d.SpecialistType)
	assert.Contains(t, q, "Would you like")
}

func TestAllDomainTypesStable(t *testing.T) {
	types := AllDomainTypes()
	assert.Len(t, types, 8)
	assert.Equal(t, DomainNeurologicalAttention, types[0])
	assert.Equal(t, DomainAddiction, types[len(types)-1])

	// Every domain has a display name, a specialist, and at least one trigger.
	for _, dt := range types {
		cfg := domainTriggers[dt]
		assert.NotEmpty(t, cfg.displayName, dt)
		assert.NotEmpty(t, cfg.specialistType, dt)
		assert.NotEmpty(t, cfg.triggers, dt)
		for _, trigger := range cfg.triggers {
			assert.Equal(t, strings.ToLower(trigger), trigger, "triggers are stored lowercase")
		}
	}
}
