package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/handler/chat"
	"github.com/mindease/companion/backend/internal/handler/mood"
	"github.com/mindease/companion/backend/internal/handler/stream"
	middlewarePkg "github.com/mindease/companion/backend/internal/middleware"
	chatService "github.com/mindease/companion/backend/internal/service/chat"
	moodService "github.com/mindease/companion/backend/internal/service/mood"
	"github.com/mindease/companion/backend/pkg/utils"
)

// Deps 是路由依赖的服务。
type Deps struct {
	Orchestrator *chatService.Orchestrator
	Ledger       *moodService.Ledger
	Notices      stream.Subscriber
	Verifier     *middlewarePkg.Verifier
	Logger       *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Identity(deps.Verifier, logger))

		chat.New(deps.Orchestrator, logger).RegisterRoutes(api)
		mood.New(deps.Ledger).RegisterRoutes(api)
		if deps.Notices != nil {
			stream.New(deps.Notices, logger).RegisterRoutes(api)
		}
	})

	return r
}

// requestLogger 用 zap 记录每个请求的结果。
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				logger.Debug("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(started)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
