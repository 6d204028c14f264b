package webui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parliament/pkg/agent"
	"parliament/pkg/agent/llm"
	"parliament/pkg/config"
	"parliament/pkg/conversation"
	"parliament/pkg/parliament"
	"parliament/pkg/session"
)

const firstQuestionJSON = `{
	"question": "When you say a calmer week, what matters most about it for you?",
	"options": ["Fewer arguments at home", "More quiet time for myself", "Feeling on top of my tasks", "Something else: ____"]
}`

func newTestServer(t *testing.T, firstClient *agent.MockLLMClient) (*Server, *session.Store) {
	t.Helper()
	catalog, err := parliament.LoadCatalog()
	require.NoError(t, err)

	store := session.NewStore()
	nullClient := agent.NewMockLLMClient(nil, nil)
	engine := conversation.NewEngine(conversation.Deps{
		Store:       store,
		Collector:   parliament.NewCollector(nullClient, catalog),
		Synthesizer: parliament.NewSynthesizer(nullClient),
		Chair:       parliament.NewChair(nullClient, nullClient, catalog),
		FirstClient: firstClient,
		Catalog:     catalog,
		Config:      config.ParliamentConfig{MaxExplorationRounds: 3},
	})
	return NewServer(engine, store, nil), store
}

func serveJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestChatStartsConversation(t *testing.T) {
	firstClient := agent.NewMockLLMClient([]llm.CompletionResponse{{Content: firstQuestionJSON}}, nil)
	srv, store := newTestServer(t, firstClient)

	rec := serveJSON(t, srv, http.MethodPost, "/api/chat", map[string]any{
		"sessionId": "web-1",
		"message":   "I want a calmer week",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply conversation.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, conversation.ModeNextQuestion, reply.Mode)
	require.NotNil(t, reply.Question)
	assert.NotEmpty(t, reply.Question.Options)
	assert.Equal(t, "I want a calmer week", store.SourceQuestion("web-1"))
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodPost, "/api/chat", map[string]any{
		"sessionId": "web-1",
		"message":   "",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(conversation.ModeError), payload["mode"])
	assert.NotEmpty(t, payload["error"])
}

func TestAnswerRejectsWrongMethod(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodGet, "/api/answer", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChoiceEndpoint(t *testing.T) {
	srv, store := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodPost, "/api/choice", map[string]any{
		"sessionId": "web-1",
		"choice":    "continue",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sess, ok := store.Get("web-1")
	require.True(t, ok)
	assert.True(t, sess.ContinueRefining)
}

func TestContinueQuestionEndpoint(t *testing.T) {
	firstClient := agent.NewMockLLMClient([]llm.CompletionResponse{{Content: firstQuestionJSON}}, nil)
	srv, store := newTestServer(t, firstClient)
	store.Append("web-1", session.Message{Speaker: session.SpeakerUser, Role: "user", Content: "I keep putting things off"})
	store.SetPhase("web-1", session.PhaseDeepAnalysis)

	rec := serveJSON(t, srv, http.MethodPost, "/api/continue-question", map[string]any{"sessionId": "web-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply conversation.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, conversation.ModeNextQuestion, reply.Mode)
	require.NotNil(t, reply.Question)
	assert.NotEmpty(t, reply.Question.Options)
}

func TestClearSessionRequiresID(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodPost, "/api/clear-session", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearSessionDeletes(t *testing.T) {
	srv, store := newTestServer(t, agent.NewMockLLMClient(nil, nil))
	store.Append("web-1", session.Message{Speaker: session.SpeakerUser, Role: "user", Content: "hello panel"})

	rec := serveJSON(t, srv, http.MethodPost, "/api/clear-session", map[string]any{"sessionId": "web-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := store.Get("web-1")
	assert.False(t, ok)
}

func TestSessionsEndpoint(t *testing.T) {
	srv, store := newTestServer(t, agent.NewMockLLMClient(nil, nil))
	store.GetOrCreate("b")
	store.GetOrCreate("a")

	rec := serveJSON(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestArchiveUnavailableWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodGet, "/api/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	config.SetServicePassword("open-sesame")
	t.Cleanup(func() { config.SetServicePassword("") })

	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.SetBasicAuth("parliament", "wrong")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.SetBasicAuth("parliament", "open-sesame")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for load balancer probes.
	req = httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexPageServed(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Parliament")

	rec = serveJSON(t, srv, http.MethodGet, "/no-such-page", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogsRejectsBadSince(t *testing.T) {
	srv, _ := newTestServer(t, agent.NewMockLLMClient(nil, nil))

	rec := serveJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/logs?since=%s", "not-a-time"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
