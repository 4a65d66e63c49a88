package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	middlewarePkg "github.com/mindease/companion/backend/internal/middleware"
	chatService "github.com/mindease/companion/backend/internal/service/chat"
	moodService "github.com/mindease/companion/backend/internal/service/mood"
	"github.com/mindease/companion/backend/internal/service/notify"
)

func newTestRouter() http.Handler {
	return NewRouter(Deps{
		Orchestrator: chatService.NewOrchestrator(chatService.Options{}),
		Ledger:       moodService.NewLedger(nil, nil),
		Notices:      notify.NewHub(1, zap.NewNop()),
		Verifier:     middlewarePkg.NewVerifier("secret"),
		Logger:       zap.NewNop(),
	})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestAPIRejectsInvalidBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAPIAnonymousAccess(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/conversations", nil)
	req.Header.Set(middlewarePkg.GuestKeyHeader, "device")
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestKeylessClientsDoNotShareMoodEntries(t *testing.T) {
	router := newTestRouter()
	send := func(method, target, body, guestKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if guestKey != "" {
			req.Header.Set(middlewarePkg.GuestKeyHeader, guestKey)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}
	count := func(resp *httptest.ResponseRecorder) int {
		var body struct {
			Entries []json.RawMessage `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		return len(body.Entries)
	}

	created := send(http.MethodPost, "/api/mood", `{"mood":1,"notes":"private: feeling hopeless"}`, "")
	require.Equal(t, http.StatusCreated, created.Code)
	keyA := created.Header().Get(middlewarePkg.GuestKeyHeader)
	require.NotEmpty(t, keyA)

	listB := send(http.MethodGet, "/api/mood?days=7", "", "")
	require.Equal(t, http.StatusOK, listB.Code)
	assert.Equal(t, 0, count(listB))
	assert.NotContains(t, listB.Body.String(), "hopeless")
	assert.NotEqual(t, keyA, listB.Header().Get(middlewarePkg.GuestKeyHeader))

	require.Equal(t, http.StatusNoContent, send(http.MethodDelete, "/api/mood", "", "").Code)

	listA := send(http.MethodGet, "/api/mood?days=7", "", keyA)
	require.Equal(t, http.StatusOK, listA.Code)
	assert.Equal(t, 1, count(listA))
}

func TestKeylessClientsDoNotShareSessions(t *testing.T) {
	router := newTestRouter()

	startReq := httptest.NewRequest(http.MethodPost, "/api/conversations", nil)
	started := httptest.NewRecorder()
	router.ServeHTTP(started, startReq)
	require.Equal(t, http.StatusCreated, started.Code)

	var conv struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(started.Body.Bytes(), &conv))
	require.NotEmpty(t, conv.Key)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/conversations/"+conv.Key, nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
