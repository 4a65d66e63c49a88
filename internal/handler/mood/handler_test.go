package mood

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/companion/backend/internal/model/identity"
	moodmodel "github.com/mindease/companion/backend/internal/model/mood"
	moodservice "github.com/mindease/companion/backend/internal/service/mood"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	ledger := moodservice.NewLedger(nil, nil,
		moodservice.WithLocation(time.UTC),
		moodservice.WithClock(func() time.Time { return now }),
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithIdentity(req.Context(), identity.Anon("mood"))))
		})
	})
	New(ledger).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRecordAndList(t *testing.T) {
	r := setupRouter(t)

	resp := do(r, http.MethodPost, "/mood", `{"mood": 4, "notes": "slept well"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var entry moodmodel.Entry
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entry))
	assert.Equal(t, 4, entry.Mood)
	assert.Contains(t, entry.ID, moodmodel.LocalIDPrefix)

	resp = do(r, http.MethodGet, "/mood?days=7", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Entries []moodmodel.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Len(t, list.Entries, 1)
}

func TestRecordRejectsInvalidPayloads(t *testing.T) {
	r := setupRouter(t)

	for _, body := range []string{`{"mood": 0}`, `{"mood": 6}`, `{"notes": "missing"}`, `not json`} {
		resp := do(r, http.MethodPost, "/mood", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
}

func TestAverageStreakAndClear(t *testing.T) {
	r := setupRouter(t)

	resp := do(r, http.MethodGet, "/mood/average", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"days": 7, "average": null}`, resp.Body.String())

	do(r, http.MethodPost, "/mood", `{"mood": 2}`)
	do(r, http.MethodPost, "/mood", `{"mood": 4}`)

	resp = do(r, http.MethodGet, "/mood/average?days=7", "")
	assert.JSONEq(t, `{"days": 7, "average": 3}`, resp.Body.String())

	resp = do(r, http.MethodGet, "/mood/streak", "")
	assert.JSONEq(t, `{"streak": 1}`, resp.Body.String())

	resp = do(r, http.MethodGet, "/mood/average?days=-3", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodDelete, "/mood", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(r, http.MethodGet, "/mood", "")
	assert.JSONEq(t, `{"entries": []}`, resp.Body.String())
}

func TestProgress(t *testing.T) {
	r := setupRouter(t)
	do(r, http.MethodPost, "/mood", `{"mood": 5, "notes": "good day"}`)

	resp := do(r, http.MethodGet, "/progress", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var progress moodservice.Progress
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &progress))
	assert.Equal(t, 1, progress.Streak)
	assert.Equal(t, 1, progress.TotalEntries)
	assert.Equal(t, 1, progress.WeeklyGoal.Count)
	require.NotEmpty(t, progress.Achievements)
	assert.True(t, progress.Achievements[0].Unlocked)
}
