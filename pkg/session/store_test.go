package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateDefaults(t *testing.T) {
	store := NewStore()

	sess := store.GetOrCreate("s1")
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, PhaseExploration, sess.Phase)
	assert.Equal(t, 0, sess.RoundNumber)
	assert.Empty(t, sess.Messages)

	_, ok := store.Get("s1")
	assert.True(t, ok)
	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestUnknownIDReadsReturnDefaults(t *testing.T) {
	store := NewStore()

	assert.Equal(t, PhaseExploration, store.Phase("ghost"))
	assert.Equal(t, 0, store.RoundNumber("ghost"))
	assert.Equal(t, "", store.SourceQuestion("ghost"))
	assert.Nil(t, store.ExternalDomain("ghost"))
	assert.Nil(t, store.RecentMessages("ghost", 5))
	assert.False(t, store.AllQuestionTypesAsked("ghost"))
}

func TestAppendImplicitlyCreates(t *testing.T) {
	store := NewStore()
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "hello there, committee"})

	sess, ok := store.Get("s1")
	require.True(t, ok)
	require.Len(t, sess.Messages, 1)
	assert.False(t, sess.Messages[0].Timestamp.IsZero())
	assert.False(t, sess.LastUpdated.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "original"})

	sess, _ := store.Get("s1")
	sess.Messages[0].Content = "mutated"
	sess.Phase = PhaseFinalResponse

	fresh, _ := store.Get("s1")
	assert.Equal(t, "original", fresh.Messages[0].Content)
	assert.Equal(t, PhaseExploration, fresh.Phase)
}

func TestRecentMessagesWindow(t *testing.T) {
	store := NewStore()
	for i := 0; i < 25; i++ {
		store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: string(rune('a' + i%26))})
	}

	assert.Len(t, store.RecentMessages("s1", 5), 5)
	// limit <= 0 falls back to the default window of 20
	assert.Len(t, store.RecentMessages("s1", 0), 20)
	assert.Len(t, store.RecentMessages("s1", 100), 25)
}

func TestRoundOnlyAdvancesInExploration(t *testing.T) {
	store := NewStore()

	assert.Equal(t, 1, store.IncrementRound("s1"))
	assert.Equal(t, 2, store.IncrementRound("s1"))

	store.SetPhase("s1", PhaseDeepAnalysis)
	assert.Equal(t, 2, store.IncrementRound("s1"))

	store.SetPhase("s1", PhaseFinalResponse)
	assert.Equal(t, 2, store.IncrementRound("s1"))
}

func TestSourceQuestionImmutable(t *testing.T) {
	store := NewStore()
	store.SetSourceQuestion("s1", "I keep avoiding hard conversations with my partner")
	store.SetSourceQuestion("s1", "something else entirely")

	assert.Equal(t, "I keep avoiding hard conversations with my partner", store.SourceQuestion("s1"))
}

func TestCoveragePriorityOrder(t *testing.T) {
	store := NewStore()

	assert.Equal(t,
		[]QuestionType{QuestionTypeContext, QuestionTypeMotivation, QuestionTypePattern},
		store.MissingQuestionTypes("s1"))

	store.MarkQuestionTypeAsked("s1", QuestionTypePattern)
	assert.Equal(t,
		[]QuestionType{QuestionTypeContext, QuestionTypeMotivation},
		store.MissingQuestionTypes("s1"))

	store.MarkQuestionTypeAsked("s1", QuestionTypeContext)
	assert.Equal(t,
		[]QuestionType{QuestionTypeMotivation},
		store.MissingQuestionTypes("s1"))

	store.MarkQuestionTypeAsked("s1", QuestionTypeMotivation)
	assert.Empty(t, store.MissingQuestionTypes("s1"))
	assert.True(t, store.AllQuestionTypesAsked("s1"))
}

func TestCoverageMonotonicUntilReset(t *testing.T) {
	store := NewStore()
	store.MarkQuestionTypeAsked("s1", QuestionTypeContext)
	store.MarkQuestionTypeAsked("s1", QuestionTypeContext)

	sess, _ := store.Get("s1")
	assert.True(t, sess.Coverage.Context)

	store.ResetCoverage("s1")
	sess, _ = store.Get("s1")
	assert.Equal(t, Coverage{}, sess.Coverage)
}

func TestExternalDomainApprovalFlow(t *testing.T) {
	store := NewStore()

	// Approval before any detection is a no-op.
	store.SetExternalDomainApproval("s1", true)
	ed := store.ExternalDomain("s1")
	assert.Nil(t, ed)

	store.SetExternalDomainDetected("s1", "legal", "Legal counsel")
	ed = store.ExternalDomain("s1")
	require.NotNil(t, ed)
	assert.True(t, ed.Detected)
	assert.Nil(t, ed.UserApproved)
	assert.False(t, ed.SpecialistAdded)

	store.SetExternalDomainApproval("s1", true)
	ed = store.ExternalDomain("s1")
	require.NotNil(t, ed.UserApproved)
	assert.True(t, *ed.UserApproved)
	assert.True(t, ed.SpecialistAdded)
}

func TestExternalDomainDecline(t *testing.T) {
	store := NewStore()
	store.SetExternalDomainDetected("s1", "legal", "Legal counsel")
	store.SetExternalDomainApproval("s1", false)

	ed := store.ExternalDomain("s1")
	require.NotNil(t, ed.UserApproved)
	assert.False(t, *ed.UserApproved)
	assert.False(t, ed.SpecialistAdded)
}

func TestExpertAnalysesCache(t *testing.T) {
	store := NewStore()
	assert.Nil(t, store.ExpertAnalyses("s1"))

	analyses := []ExpertAnalysis{
		{AgentID: "cbt", AgentName: "Dr. Reyes", SchoolName: "Cognitive Behavioral", Analysis: "avoidance loop"},
	}
	store.SetExpertAnalyses("s1", analyses)

	got := store.ExpertAnalyses("s1")
	require.Len(t, got, 1)
	got[0].Analysis = "mutated"
	assert.Equal(t, "avoidance loop", store.ExpertAnalyses("s1")[0].Analysis)
}

func TestCountUserMessagesSkipsShortOnes(t *testing.T) {
	store := NewStore()
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "yes"})
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "I always stall when conflict comes up"})
	store.Append("s1", Message{Speaker: SpeakerSynthesizer, Role: "assistant", Content: "noted, tell me more about that please"})

	assert.Equal(t, 1, store.CountUserMessages("s1"))
}

func TestHasDontKnowPattern(t *testing.T) {
	store := NewStore()
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "I avoid conflict at work"})
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "I don't know"})
	store.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "not sure really"})
	assert.True(t, store.HasDontKnowPattern("s1"))

	store2 := NewStore()
	store2.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "I avoid conflict at work"})
	store2.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "mostly with my manager"})
	store2.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "no idea"})
	assert.False(t, store2.HasDontKnowPattern("s1"))

	// Fewer than two user messages can never match.
	store3 := NewStore()
	store3.Append("s1", Message{Speaker: SpeakerUser, Role: "user", Content: "I don't know"})
	assert.False(t, store3.HasDontKnowPattern("s1"))
}

func TestRecycleReplacesSession(t *testing.T) {
	store := NewStore()
	store.SetSourceQuestion("s1", "first topic")
	store.SetPhase("s1", PhaseFinalResponse)

	fresh := store.Recycle("s1")
	assert.Equal(t, PhaseExploration, fresh.Phase)
	assert.Empty(t, fresh.SourceQuestion)
	assert.Equal(t, 0, fresh.RoundNumber)
}

func TestDeleteAndList(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("b")
	store.GetOrCreate("a")

	assert.Equal(t, []string{"a", "b"}, store.List())

	store.Delete("a")
	assert.Equal(t, []string{"b"}, store.List())

	store.Delete("never-existed")
	assert.Equal(t, []string{"b"}, store.List())
}

func TestIsFutureGoalQuestion(t *testing.T) {
	assert.True(t, IsFutureGoalQuestion("What do you want to be different in the next week or two?"))
	assert.True(t, IsFutureGoalQuestion("What would you like to achieve in the coming week?"))
	assert.False(t, IsFutureGoalQuestion("When did this pattern start?"))
	assert.False(t, IsFutureGoalQuestion("What happened next week at the office?"))
}

func TestLockSessionSerializes(t *testing.T) {
	store := NewStore()

	unlock := store.LockSession("s1")
	done := make(chan struct{})
	go func() {
		innerUnlock := store.LockSession("s1")
		innerUnlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second LockSession acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-done
}
