package mood

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mindease/companion/backend/internal/model/identity"
	moodmodel "github.com/mindease/companion/backend/internal/model/mood"
	"github.com/mindease/companion/backend/internal/model/validation"
	moodservice "github.com/mindease/companion/backend/internal/service/mood"
	"github.com/mindease/companion/backend/pkg/utils"
)

const defaultAverageDays = 7

// Handler 情绪日志的HTTP处理器
type Handler struct {
	ledger *moodservice.Ledger
}

// New 创建情绪日志处理器
func New(ledger *moodservice.Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes 注册情绪日志与进度路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/mood", func(r chi.Router) {
		r.Post("/", h.handleRecord)
		r.Get("/", h.handleList)
		r.Delete("/", h.handleClear)
		r.Get("/average", h.handleAverage)
		r.Get("/streak", h.handleStreak)
	})
	r.Get("/progress", h.handleProgress)
}

type recordRequest struct {
	Mood  *int   `json:"mood" validate:"required"`
	Notes string `json:"notes" validate:"max=2000"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var payload recordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Validate.Struct(payload); err != nil {
		utils.RespondErr(w, fmt.Errorf("%w: %w", validation.ErrValidation, err))
		return
	}

	entry, err := h.ledger.Record(r.Context(), identity.FromContext(r.Context()), *payload.Mood, payload.Notes)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())

	var (
		entries []moodmodel.Entry
		err     error
	)
	if r.URL.Query().Has("days") {
		days, parseErr := parseDays(r, 0)
		if parseErr != nil {
			utils.RespondErr(w, parseErr)
			return
		}
		entries, err = h.ledger.Recent(r.Context(), owner, days)
	} else {
		entries, err = h.ledger.History(r.Context(), owner)
	}
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleAverage(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, defaultAverageDays)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	avg, ok, err := h.ledger.Average(r.Context(), identity.FromContext(r.Context()), days)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	resp := map[string]any{"days": days, "average": nil}
	if ok {
		resp["average"] = avg
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := h.ledger.Streak(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int{"streak": streak})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Clear(r.Context(), identity.FromContext(r.Context())); err != nil {
		utils.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.ledger.Progress(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, progress)
}

func parseDays(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" && fallback > 0 {
		return fallback, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, moodservice.ErrInvalidWindow
	}
	return days, nil
}
