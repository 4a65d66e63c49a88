package chat

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/model/validation"
	chatservice "github.com/mindease/companion/backend/internal/service/chat"
	"github.com/mindease/companion/backend/pkg/utils"
)

// Handler 对话相关的HTTP处理器
type Handler struct {
	orchestrator *chatservice.Orchestrator
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// New 创建对话处理器
func New(orchestrator *chatservice.Orchestrator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: orchestrator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("chat-handler"),
	}
}

// RegisterRoutes 注册对话与会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Get("/{key}", h.handleGet)
		r.Post("/{key}/messages", h.handleSubmit)
	})
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions/{sessionID}/resume", h.handleResume)
	r.Get("/chat/ws", h.handleWebSocket)
}

type submitRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())
	conv := h.orchestrator.Registry().Start(owner)
	utils.RespondJSON(w, http.StatusCreated, conv.Snapshot())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())
	conv, err := h.orchestrator.Registry().Get(owner, chi.URLParam(r, "key"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())
	conv, err := h.orchestrator.Registry().Get(owner, chi.URLParam(r, "key"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	var payload submitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Validate.Struct(payload); err != nil {
		utils.RespondErr(w, fmt.Errorf("%w: %w", chatservice.ErrEmptyMessage, err))
		return
	}

	result, err := h.orchestrator.Submit(r.Context(), conv, payload.Content)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())
	sessions, err := h.orchestrator.Sessions(r.Context(), owner)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())
	conv, err := h.orchestrator.Resume(r.Context(), owner, chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv.Snapshot())
}
