package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/config"
	"github.com/mindease/companion/backend/internal/handler"
	"github.com/mindease/companion/backend/internal/knowledge"
	"github.com/mindease/companion/backend/internal/logging"
	"github.com/mindease/companion/backend/internal/middleware"
	"github.com/mindease/companion/backend/internal/policy"
	"github.com/mindease/companion/backend/internal/service/ai"
	"github.com/mindease/companion/backend/internal/service/chat"
	"github.com/mindease/companion/backend/internal/service/mood"
	"github.com/mindease/companion/backend/internal/service/notify"
	"github.com/mindease/companion/backend/internal/service/retention"
	"github.com/mindease/companion/backend/internal/store"
	"github.com/mindease/companion/backend/internal/store/db"
)

// guardSlack 让跨进程锁比单次生成的超时多保留一段时间，覆盖检索与持久化。
const guardSlack = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	variant, err := policy.ParseVariant(cfg.Policy.Variant)
	if err != nil {
		return err
	}
	systemPolicy, err := policy.New(variant)
	if err != nil {
		return err
	}

	generator, err := ai.New(ctx, cfg.AI, systemPolicy, logger.Named("ai"))
	if err != nil {
		logger.Warn("failed to initialize generator, every reply will fall back", zap.Error(err))
		generator = ai.Unavailable{}
	}

	retriever, closeRetriever, err := knowledge.NewRetriever(ctx, cfg.Retrieval, logger.Named("knowledge"))
	if err != nil {
		logger.Warn("failed to initialize vector retrieval, using bundled knowledge", zap.Error(err))
		retriever = knowledge.NewStaticRetriever()
	}
	defer closeRetriever()

	guestTurns := chat.NewMemoryStore()
	guestMoods := mood.NewMemoryRepository()
	stores := chat.StoreRouter{Memory: guestTurns}
	var moodRepo mood.Repository
	durable, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("durable store unavailable, signed-in data will only be kept in memory", zap.Error(err))
	} else {
		defer durable.Close()
		stores.Durable = durable
		moodRepo = durable
		logger.Info("durable store ready", zap.String("driver", cfg.Store.Driver))
	}

	var guard chat.Guard = chat.NewMemoryGuard()
	if cfg.Redis.URL != "" {
		redisGuard, err := chat.NewRedisGuard(ctx, cfg.Redis.URL, cfg.AI.Timeout+guardSlack)
		if err != nil {
			logger.Warn("redis guard unavailable, using in-process guard", zap.Error(err))
		} else {
			defer redisGuard.Close()
			guard = redisGuard
		}
	}

	registry := chat.NewRegistry(chat.WithIdleTTL(cfg.Retention.ConversationIdleTTL))
	hub := notify.NewHub(0, logger)
	orchestrator := chat.NewOrchestrator(chat.Options{
		Registry:  registry,
		Stores:    stores,
		Retriever: retriever,
		Generator: generator,
		Guard:     guard,
		Notifier:  hub,
		Timeout:   cfg.AI.Timeout,
		Logger:    logger,
	})
	ledger := mood.NewLedger(moodRepo, guestMoods,
		mood.WithLocation(cfg.Mood.Location),
		mood.WithLogger(logger),
	)

	guestTTL := cfg.Retention.GuestTTL
	janitor, err := retention.New(cfg.Retention.Schedule, logger, []retention.Task{
		{Name: "conversations", Run: func(time.Time) int { return registry.Sweep() }},
		{Name: "guest_turns", Run: func(now time.Time) int { return guestTurns.Prune(now.Add(-guestTTL)) }},
		{Name: "guest_moods", Run: func(now time.Time) int { return guestMoods.Prune(now.Add(-guestTTL)) }},
	})
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	router := handler.NewRouter(handler.Deps{
		Orchestrator: orchestrator,
		Ledger:       ledger,
		Notices:      hub,
		Verifier:     middleware.NewVerifier(cfg.Auth.JWTSecret),
		Logger:       logger,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, only anonymous access is available")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("MindEase backend listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("policy", string(systemPolicy.Variant())),
		zap.String("retrieval", cfg.Retrieval.Mode))
	return runServer(ctx, srv)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	driver, err := db.NewDriver(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	s := store.New(driver)
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
