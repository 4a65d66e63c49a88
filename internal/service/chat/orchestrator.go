package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/knowledge"
	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/model/validation"
	"github.com/mindease/companion/backend/internal/service/ai"
	"github.com/mindease/companion/backend/internal/service/notify"
)

var (
	// ErrEmptyMessage 表示提交内容为空或只有空白。
	ErrEmptyMessage = fmt.Errorf("%w: message content is empty", validation.ErrValidation)
	// ErrSubmissionInFlight 表示同一对话已有提交正在处理。
	ErrSubmissionInFlight = errors.New("a submission is already in flight for this conversation")
)

// FallbackReply 在生成失败时作为助手回复，并明确标记为降级内容。
const FallbackReply = "I'm sorry, my AI service is temporarily unavailable. I'm still here for you, so please continue telling me how you feel."

// Defaults.
const (
	DefaultHistoryWindow = 10
	DefaultTimeout       = 30 * time.Second
)

// Notifier 接收面向用户的降级提示。
type Notifier interface {
	Publish(ownerID string, notice notify.Notice)
}

// Result 描述一次提交的结果。
type Result struct {
	Session       chat.Session    `json:"session"`
	UserTurn      chat.Turn       `json:"userTurn"`
	AssistantTurn chat.Turn       `json:"assistantTurn"`
	Opening       bool            `json:"opening"`
	Degraded      bool            `json:"degraded"`
	Notices       []notify.Notice `json:"notices,omitempty"`
}

// SubmitOption 调整单次提交。
type SubmitOption func(*submitOptions)

type submitOptions struct {
	observer func(chat.Turn)
}

// WithTurnObserver 在消息写入内存对话后立即回调，用户消息会在任何网络调用之前送达。
func WithTurnObserver(fn func(chat.Turn)) SubmitOption {
	return func(o *submitOptions) {
		o.observer = fn
	}
}

// Options 配置 Orchestrator。
type Options struct {
	Registry      *Registry
	Stores        StoreRouter
	Retriever     knowledge.Retriever
	Generator     ai.Generator
	Guard         Guard
	Notifier      Notifier
	Timeout       time.Duration
	HistoryWindow int
	Logger        *zap.Logger
	Now           func() time.Time
}

// Orchestrator 驱动一次用户提交：检索、生成、降级与持久化。
type Orchestrator struct {
	registry  *Registry
	stores    StoreRouter
	retriever knowledge.Retriever
	generator ai.Generator
	guard     Guard
	notifier  Notifier
	timeout   time.Duration
	window    int
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator 创建 Orchestrator，未提供的依赖使用默认实现。
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:  opts.Registry,
		stores:    opts.Stores,
		retriever: opts.Retriever,
		generator: opts.Generator,
		guard:     opts.Guard,
		notifier:  opts.Notifier,
		timeout:   opts.Timeout,
		window:    opts.HistoryWindow,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.stores.Memory == nil {
		o.stores.Memory = NewMemoryStore()
	}
	if o.retriever == nil {
		o.retriever = knowledge.NewStaticRetriever()
	}
	if o.generator == nil {
		o.generator = ai.Unavailable{}
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.window <= 0 {
		o.window = DefaultHistoryWindow
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("chat")
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Registry 返回对话注册表。
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Submit 处理一条用户消息。
func (o *Orchestrator) Submit(ctx context.Context, conv *Conversation, content string, opts ...SubmitOption) (Result, error) {
	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	if strings.TrimSpace(content) == "" {
		return Result{}, ErrEmptyMessage
	}

	sessionID, history, ok := conv.begin(o.window)
	if !ok {
		return Result{}, ErrSubmissionInFlight
	}
	defer o.registry.release(conv)

	if o.guard != nil {
		key := guardKey(conv, sessionID)
		release, acquired, err := o.guard.Acquire(ctx, key)
		switch {
		case err != nil:
			o.logger.Warn("single-flight guard unavailable, continuing with local guard only",
				zap.String("guard_key", key), zap.Error(err))
		case !acquired:
			return Result{}, ErrSubmissionInFlight
		default:
			defer release()
		}
	}

	owner := conv.Owner()
	opening := chat.IsProvisional(sessionID)
	result := Result{Opening: opening}

	userTurn := chat.NewTurn(chat.SenderUser, content, o.now())
	conv.append(userTurn)
	o.observe(so, userTurn)
	result.UserTurn = userTurn

	knowledgeContext, err := o.retriever.Retrieve(ctx, content)
	if err != nil {
		o.logger.Info("knowledge retrieval failed, continuing without context",
			zap.String("conversation", conv.Key()), zap.Error(err))
		knowledgeContext = knowledge.Placeholder
		result.Notices = append(result.Notices, o.notice(owner, notify.Notice{
			Kind:      notify.KindRetrievalDegraded,
			Level:     notify.LevelInfo,
			Title:     "Limited context",
			Message:   "Reference material could not be loaded for this reply.",
			SessionID: sessionID,
		}))
	}

	assistantTurn := o.generate(ctx, conv, content, history, knowledgeContext)
	if assistantTurn.Fallback {
		result.Degraded = true
		result.Notices = append(result.Notices, o.notice(owner, notify.Notice{
			Kind:      notify.KindGeneratorUnavailable,
			Level:     notify.LevelWarning,
			Title:     "AI service unavailable",
			Message:   "A fallback reply was shown. Your message was still received.",
			SessionID: sessionID,
		}))
	}
	conv.append(assistantTurn)
	o.observe(so, assistantTurn)
	result.AssistantTurn = assistantTurn

	// 客户端断开不应中断持久化。
	persistCtx := context.WithoutCancel(ctx)
	result.Notices = append(result.Notices, o.persist(persistCtx, conv, sessionID, userTurn, assistantTurn)...)

	snapshot := conv.Snapshot()
	result.Session = chat.Session{
		ID:        snapshot.SessionID,
		Title:     snapshot.Title,
		CreatedAt: snapshot.CreatedAt,
	}
	return result, nil
}

func (o *Orchestrator) generate(ctx context.Context, conv *Conversation, content string, history []chat.HistoryMessage, knowledgeContext string) chat.Turn {
	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := o.now()
	reply, err := o.generator.Generate(genCtx, content, history, knowledgeContext)
	if err != nil {
		o.logger.Warn("generation failed, using fallback reply",
			zap.String("conversation", conv.Key()),
			zap.Duration("elapsed", o.now().Sub(started)),
			zap.Error(err))

		turn := chat.NewTurn(chat.SenderAssistant, FallbackReply, o.now())
		turn.Fallback = true
		return turn
	}

	return chat.NewTurn(chat.SenderAssistant, reply, o.now())
}

// persist 依次写入用户消息和助手消息，失败只产生提示，不回滚内存状态。
func (o *Orchestrator) persist(ctx context.Context, conv *Conversation, sessionID string, userTurn, assistantTurn chat.Turn) []notify.Notice {
	owner := conv.Owner()
	store := o.stores.For(owner)
	var notices []notify.Notice

	stored, err := store.AppendTurn(ctx, owner, sessionID, userTurn)
	if err != nil {
		o.logger.Error("failed to persist user turn",
			zap.String("conversation", conv.Key()), zap.String("session", sessionID), zap.Error(err))
		notices = append(notices, o.persistenceNotice(owner, sessionID, "Your message could not be saved."))
		if chat.IsProvisional(sessionID) {
			return notices
		}
	} else if chat.IsProvisional(sessionID) {
		durableID := stored.SessionID
		title := chat.DeriveTitle(userTurn.Content)
		if conv.establish(durableID, title) {
			o.registry.alias(conv, chat.Session{ID: durableID, Title: title, CreatedAt: userTurn.CreatedAt})
			o.logger.Debug("session established", zap.String("conversation", conv.Key()), zap.String("session", durableID))
		}
		sessionID = durableID
	}

	if _, err := store.AppendTurn(ctx, owner, sessionID, assistantTurn); err != nil {
		o.logger.Error("failed to persist assistant turn",
			zap.String("conversation", conv.Key()), zap.String("session", sessionID), zap.Error(err))
		notices = append(notices, o.persistenceNotice(owner, sessionID, "The reply could not be saved."))
	}
	return notices
}

func (o *Orchestrator) persistenceNotice(owner identity.Identity, sessionID, message string) notify.Notice {
	return o.notice(owner, notify.Notice{
		Kind:      notify.KindPersistenceFailure,
		Level:     notify.LevelError,
		Title:     "Save failed",
		Message:   message,
		SessionID: sessionID,
	})
}

func (o *Orchestrator) notice(owner identity.Identity, n notify.Notice) notify.Notice {
	n.CreatedAt = o.now().UTC()
	if o.notifier != nil {
		o.notifier.Publish(owner.ID, n)
	}
	return n
}

func (o *Orchestrator) observe(so submitOptions, turn chat.Turn) {
	if so.observer != nil {
		so.observer(turn)
	}
}

// guardKey 在会话持久化后使用持久会话 ID，使不同进程恢复的同一会话共享一把锁。
func guardKey(conv *Conversation, sessionID string) string {
	if chat.IsProvisional(sessionID) {
		return conv.Key()
	}
	return sessionID
}

// Resume 从存储加载一个已保存的会话。
func (o *Orchestrator) Resume(ctx context.Context, owner identity.Identity, sessionID string) (*Conversation, error) {
	if chat.IsProvisional(sessionID) {
		return nil, ErrSessionNotFound
	}

	turns, err := o.stores.For(owner).ListTurns(ctx, owner, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotFound
	}

	return o.registry.adopt(owner, sessionID, turns), nil
}

// Sessions 返回身份的会话列表，最新的在前；存储不可用时退回本进程登记的会话。
func (o *Orchestrator) Sessions(ctx context.Context, owner identity.Identity) ([]chat.Session, error) {
	local := o.registry.Sessions(owner)

	stored, err := o.stores.For(owner).ListSessions(ctx, owner)
	if err != nil {
		o.logger.Warn("failed to list stored sessions", zap.String("owner", owner.ID), zap.Error(err))
		return mergeSessions(local, nil), nil
	}
	return mergeSessions(stored, local), nil
}
