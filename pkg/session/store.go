package session

import (
	"sort"
	"sync"
	"time"

	"parliament/pkg/logx"
)

// Store is the process-wide session registry. One instance is constructed
// at startup and injected into every handler; tests construct their own.
//
// All reads on unknown ids return zero-value defaults; all writes on
// unknown ids implicitly create the session. Getters return copies so
// callers cannot mutate shared state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	logger   *logx.Logger

	minSubstantiveLen  int
	recentMessageLimit int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		logger:   logx.NewLogger("session"),

		// User messages at or under this length are not counted as
		// substantive history for the chair.
		minSubstantiveLen:  10,
		recentMessageLimit: 20,
	}
}

// LockSession serializes whole operations on one session id so duplicate
// submissions cannot interleave. Returns the unlock function.
func (s *Store) LockSession(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// getOrCreateLocked returns the live session, creating it when absent.
// Caller must hold s.mu.
func (s *Store) getOrCreateLocked(id string) *Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	now := time.Now().UTC()
	sess := &Session{
		ID:          id,
		Messages:    make([]Message, 0),
		CreatedAt:   now,
		LastUpdated: now,
		Phase:       PhaseExploration,
	}
	s.sessions[id] = sess
	s.logger.Debug("created session %s", id)
	return sess
}

func copySession(sess *Session) Session {
	out := *sess
	out.Messages = append([]Message(nil), sess.Messages...)
	out.ExpertAnalyses = append([]ExpertAnalysis(nil), sess.ExpertAnalyses...)
	if sess.ExternalDomain != nil {
		ed := *sess.ExternalDomain
		if sess.ExternalDomain.UserApproved != nil {
			approved := *sess.ExternalDomain.UserApproved
			ed.UserApproved = &approved
		}
		out.ExternalDomain = &ed
	}
	return out
}

// GetOrCreate returns a copy of the session, creating it when absent.
func (s *Store) GetOrCreate(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.getOrCreateLocked(id))
}

// Get returns a copy of the session if it exists.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return copySession(sess), true
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Recycle replaces a session with a fresh one under the same id. Used
// when a new conversation starts against a finalized session.
func (s *Store) Recycle(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return copySession(s.getOrCreateLocked(id))
}

// List returns all session ids, sorted for deterministic output.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Append adds a message to the transcript.
func (s *Store) Append(id string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastUpdated = time.Now().UTC()
}

// RecentMessages returns up to limit of the newest messages in transcript
// order. limit <= 0 uses the store default.
func (s *Store) RecentMessages(id string, limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if limit <= 0 {
		limit = s.recentMessageLimit
	}
	start := len(sess.Messages) - limit
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), sess.Messages[start:]...)
}

// Phase returns the session phase, defaulting to exploration.
func (s *Store) Phase(id string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return PhaseExploration
	}
	return sess.Phase
}

// SetPhase moves the session to a new phase.
func (s *Store) SetPhase(id string, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	if sess.Phase != phase {
		s.logger.Info("session %s phase %s -> %s", id, sess.Phase, phase)
	}
	sess.Phase = phase
	sess.LastUpdated = time.Now().UTC()
}

// IncrementRound bumps the round counter and returns the new value.
// Rounds only advance during exploration; calls in any other phase
// return the counter unchanged.
func (s *Store) IncrementRound(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	if sess.Phase != PhaseExploration {
		return sess.RoundNumber
	}
	sess.RoundNumber++
	sess.LastUpdated = time.Now().UTC()
	return sess.RoundNumber
}

// RoundNumber returns the current round counter.
func (s *Store) RoundNumber(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0
	}
	return sess.RoundNumber
}

// SetContinueRefining records the user's choice to keep refining.
func (s *Store) SetContinueRefining(id string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.ContinueRefining = v
	sess.LastUpdated = time.Now().UTC()
}

// SetFutureGoalAnswered marks that the forward-looking goal question has
// been answered.
func (s *Store) SetFutureGoalAnswered(id string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.FutureGoalAnswered = v
	sess.LastUpdated = time.Now().UTC()
}

// FutureGoalAnswered reports whether the goal question has been answered.
func (s *Store) FutureGoalAnswered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return ok && sess.FutureGoalAnswered
}

// SetSourceQuestion captures the user's first message. Once set it is
// immutable for the life of the session.
func (s *Store) SetSourceQuestion(id, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	if sess.SourceQuestion != "" {
		return
	}
	sess.SourceQuestion = question
	sess.LastUpdated = time.Now().UTC()
}

// SourceQuestion returns the captured first message.
func (s *Store) SourceQuestion(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ""
	}
	return sess.SourceQuestion
}

// MarkQuestionTypeAsked flips a coverage flag. Flags never flip back
// except through ResetCoverage.
func (s *Store) MarkQuestionTypeAsked(id string, t QuestionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	switch t {
	case QuestionTypePattern:
		sess.Coverage.Pattern = true
	case QuestionTypeContext:
		sess.Coverage.Context = true
	case QuestionTypeMotivation:
		sess.Coverage.Motivation = true
	}
	sess.LastUpdated = time.Now().UTC()
}

// MissingQuestionTypes returns the unasked categories in priority order:
// context first, then motivation, then pattern. The order widens scope
// before probing motivation and treats pattern as the fallback category.
func (s *Store) MissingQuestionTypes(id string) []QuestionType {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cov Coverage
	if sess, ok := s.sessions[id]; ok {
		cov = sess.Coverage
	}

	missing := make([]QuestionType, 0, 3)
	if !cov.Context {
		missing = append(missing, QuestionTypeContext)
	}
	if !cov.Motivation {
		missing = append(missing, QuestionTypeMotivation)
	}
	if !cov.Pattern {
		missing = append(missing, QuestionTypePattern)
	}
	return missing
}

// AllQuestionTypesAsked reports whether every category has been covered.
func (s *Store) AllQuestionTypesAsked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	return sess.Coverage.Pattern && sess.Coverage.Context && sess.Coverage.Motivation
}

// ResetCoverage clears all coverage flags. Only used on an explicit
// new-topic action.
func (s *Store) ResetCoverage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.Coverage = Coverage{}
	sess.LastUpdated = time.Now().UTC()
}

// SetExternalDomainDetected records a detection. The user decision stays
// undecided until SetExternalDomainApproval.
func (s *Store) SetExternalDomainDetected(id, domain, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.ExternalDomain = &ExternalDomain{
		Detected:      true,
		Domain:        domain,
		DomainDisplay: displayName,
	}
	sess.LastUpdated = time.Now().UTC()
}

// SetExternalDomainApproval records the user's decision. Approval also
// marks the specialist as added for the rest of the session.
func (s *Store) SetExternalDomainApproval(id string, approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	if sess.ExternalDomain == nil {
		return
	}
	sess.ExternalDomain.UserApproved = &approved
	if approved {
		sess.ExternalDomain.SpecialistAdded = true
	}
	sess.LastUpdated = time.Now().UTC()
}

// ExternalDomain returns a copy of the external-domain state, or nil.
func (s *Store) ExternalDomain(id string) *ExternalDomain {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.ExternalDomain == nil {
		return nil
	}
	ed := *sess.ExternalDomain
	if sess.ExternalDomain.UserApproved != nil {
		approved := *sess.ExternalDomain.UserApproved
		ed.UserApproved = &approved
	}
	return &ed
}

// SetExpertAnalyses caches the deep content analyses. Computed at most
// once per session; callers must check ExpertAnalyses first.
func (s *Store) SetExpertAnalyses(id string, analyses []ExpertAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.ExpertAnalyses = append([]ExpertAnalysis(nil), analyses...)
	sess.LastUpdated = time.Now().UTC()
}

// ExpertAnalyses returns the cached analyses, or nil when not computed.
func (s *Store) ExpertAnalyses(id string) []ExpertAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.ExpertAnalyses == nil {
		return nil
	}
	return append([]ExpertAnalysis(nil), sess.ExpertAnalyses...)
}

// CountUserMessages returns the number of substantive user messages.
func (s *Store) CountUserMessages(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0
	}
	count := 0
	for i := range sess.Messages {
		msg := &sess.Messages[i]
		if msg.Speaker == SpeakerUser && len(msg.Content) > s.minSubstantiveLen {
			count++
		}
	}
	return count
}

// HasDontKnowPattern reports whether at least two of the last three user
// messages are evasive.
func (s *Store) HasDontKnowPattern(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	var lastUser []string
	for i := len(sess.Messages) - 1; i >= 0 && len(lastUser) < 3; i-- {
		if sess.Messages[i].Speaker == SpeakerUser {
			lastUser = append(lastUser, sess.Messages[i].Content)
		}
	}
	if len(lastUser) < 2 {
		return false
	}

	evasive := 0
	for _, content := range lastUser {
		if isDontKnowAnswer(content) {
			evasive++
		}
	}
	return evasive >= 2
}
