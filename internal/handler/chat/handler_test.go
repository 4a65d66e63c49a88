package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatmodel "github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
	chatservice "github.com/mindease/companion/backend/internal/service/chat"
)

type generatorFunc func(ctx context.Context, query string, history []chatmodel.HistoryMessage, knowledge string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, query string, history []chatmodel.HistoryMessage, knowledge string) (string, error) {
	return f(ctx, query, history, knowledge)
}

func echoGenerator() generatorFunc {
	return func(_ context.Context, query string, _ []chatmodel.HistoryMessage, _ string) (string, error) {
		return "echo: " + query, nil
	}
}

func setupRouter(t *testing.T, gen generatorFunc, owner identity.Identity) (*chi.Mux, *chatservice.Orchestrator) {
	t.Helper()
	orch := chatservice.NewOrchestrator(chatservice.Options{
		Stores:    chatservice.StoreRouter{Memory: chatservice.NewMemoryStore()},
		Generator: gen,
	})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithIdentity(req.Context(), owner)))
		})
	})
	New(orch, nil).RegisterRoutes(r)
	return r, orch
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestStartConversationHasGreeting(t *testing.T) {
	r, _ := setupRouter(t, echoGenerator(), identity.Anon("a"))

	resp := do(r, http.MethodPost, "/conversations", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	snap := decode[chatservice.Snapshot](t, resp)
	assert.True(t, snap.Provisional)
	require.Len(t, snap.Turns, 1)
	assert.Equal(t, chatmodel.GreetingID, snap.Turns[0].ID)
}

func TestSubmitMessage(t *testing.T) {
	r, _ := setupRouter(t, echoGenerator(), identity.Anon("a"))
	snap := decode[chatservice.Snapshot](t, do(r, http.MethodPost, "/conversations", nil))

	resp := do(r, http.MethodPost, "/conversations/"+snap.Key+"/messages", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusOK, resp.Code)

	result := decode[chatservice.Result](t, resp)
	assert.True(t, result.Opening)
	assert.False(t, result.Degraded)
	assert.Equal(t, "hello", result.UserTurn.Content)
	assert.Equal(t, "echo: hello", result.AssistantTurn.Content)
	assert.False(t, chatmodel.IsProvisional(result.Session.ID))

	got := decode[chatservice.Snapshot](t, do(r, http.MethodGet, "/conversations/"+snap.Key, nil))
	assert.Len(t, got.Turns, 3)
	assert.Equal(t, result.Session.ID, got.SessionID)
}

func TestSubmitRejectsEmptyContent(t *testing.T) {
	r, _ := setupRouter(t, echoGenerator(), identity.Anon("a"))
	snap := decode[chatservice.Snapshot](t, do(r, http.MethodPost, "/conversations", nil))

	for _, content := range []string{"", "   \n"} {
		resp := do(r, http.MethodPost, "/conversations/"+snap.Key+"/messages", map[string]string{"content": content})
		assert.Equal(t, http.StatusBadRequest, resp.Code, "content %q", content)
	}

	resp := do(r, http.MethodPost, "/conversations/"+snap.Key+"/messages", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitInFlightReturnsConflict(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, _ string, _ []chatmodel.HistoryMessage, _ string) (string, error) {
		close(started)
		<-release
		return "done", nil
	})
	r, _ := setupRouter(t, gen, identity.Anon("a"))
	snap := decode[chatservice.Snapshot](t, do(r, http.MethodPost, "/conversations", nil))
	path := "/conversations/" + snap.Key + "/messages"

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(r, http.MethodPost, path, map[string]string{"content": "one"})
	}()
	<-started

	second := do(r, http.MethodPost, path, map[string]string{"content": "two"})
	assert.Equal(t, http.StatusConflict, second.Code)

	close(release)
	assert.Equal(t, http.StatusOK, (<-first).Code)
}

func TestConversationOwnership(t *testing.T) {
	r, orch := setupRouter(t, echoGenerator(), identity.Anon("a"))
	other := orch.Registry().Start(identity.Anon("b"))

	resp := do(r, http.MethodGet, "/conversations/"+other.Key(), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(r, http.MethodGet, "/conversations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSessionsAndResume(t *testing.T) {
	r, _ := setupRouter(t, echoGenerator(), identity.Anon("a"))
	snap := decode[chatservice.Snapshot](t, do(r, http.MethodPost, "/conversations", nil))
	result := decode[chatservice.Result](t, do(r, http.MethodPost, "/conversations/"+snap.Key+"/messages", map[string]string{"content": "feeling tense today"}))

	list := decode[struct {
		Sessions []chatmodel.Session `json:"sessions"`
	}](t, do(r, http.MethodGet, "/sessions", nil))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, result.Session.ID, list.Sessions[0].ID)
	assert.Equal(t, "feeling tense today", list.Sessions[0].Title)

	resp := do(r, http.MethodPost, "/sessions/"+result.Session.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	resumed := decode[chatservice.Snapshot](t, resp)
	assert.Equal(t, result.Session.ID, resumed.SessionID)
	assert.False(t, resumed.Provisional)

	resp = do(r, http.MethodPost, "/sessions/missing/resume", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
