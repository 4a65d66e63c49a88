// Package stream 通过 Server-Sent Events 推送运行期提示。
package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/service/notify"
	"github.com/mindease/companion/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Subscriber 是提示来源。
type Subscriber interface {
	Subscribe(ownerID string) (<-chan notify.Notice, func())
}

// Handler 把提示 hub 暴露为 SSE 流
type Handler struct {
	hub       Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a new stream handler
func New(hub Subscriber, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, heartbeat: defaultHeartbeat, logger: logger.Named("sse")}
}

// RegisterRoutes 注册提示流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications/stream", h.handleNotifications)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	owner := identity.FromContext(r.Context())
	notices, unsubscribe := h.hub.Subscribe(owner.ID)
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "ready", map[string]string{"owner": owner.ID}); err != nil {
		return
	}

	h.logger.Debug("opening notification stream", zap.String("owner", owner.ID))
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("closing notification stream", zap.String("owner", owner.ID))
			return
		case notice, ok := <-notices:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "notice", notice); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
