// Package store 是持久化层的门面，具体 SQL 由 db 子包中的驱动实现。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mindease/companion/backend/internal/model/identity"
)

var (
	// ErrPersistence 包装所有驱动层错误。
	ErrPersistence = errors.New("persistence failure")
	// ErrAuthenticationRequired 表示持久化存储拒绝匿名身份。
	ErrAuthenticationRequired = errors.New("authentication required")
)

// Sender values as stored in chat_messages.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// ChatMessage 对应 chat_messages 中的一行。
type ChatMessage struct {
	ID        string
	UserID    string
	SessionID string
	Content   string
	Sender    string
	Timestamp time.Time
}

// CreateChatMessage 描述一次插入；SessionID 为空时由存储分配新会话。
type CreateChatMessage struct {
	UserID    string
	SessionID string
	Content   string
	Sender    string
	Timestamp time.Time
}

// FindChatMessage 过滤单个会话的消息。
type FindChatMessage struct {
	UserID    string
	SessionID string
}

// ChatSessionHead 是一个会话的首条消息。
type ChatSessionHead struct {
	SessionID    string
	FirstContent string
	StartedAt    time.Time
}

// MoodEntry 对应 mood_entries 中的一行。
type MoodEntry struct {
	ID        string
	UserID    string
	Mood      int
	Notes     string
	Timestamp time.Time
}

// CreateMoodEntry 描述一次情绪记录插入。
type CreateMoodEntry struct {
	UserID    string
	Mood      int
	Notes     string
	Timestamp time.Time
}

// FindMoodEntry 过滤情绪记录；Since 为零值时返回全部。
type FindMoodEntry struct {
	UserID string
	Since  time.Time
}

// Driver 由具体数据库实现。
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateChatMessage(ctx context.Context, create *CreateChatMessage) (*ChatMessage, error)
	// ListChatMessages 按时间升序返回。
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	// ListChatSessions 按会话开始时间降序返回。
	ListChatSessions(ctx context.Context, userID string) ([]*ChatSessionHead, error)

	CreateMoodEntry(ctx context.Context, create *CreateMoodEntry) (*MoodEntry, error)
	// ListMoodEntries 按时间降序返回。
	ListMoodEntries(ctx context.Context, find *FindMoodEntry) ([]*MoodEntry, error)
	DeleteMoodEntries(ctx context.Context, userID string) error
}

// Store 是面向服务层的持久化门面，只接受已认证身份。
type Store struct {
	driver Driver
}

// New 创建门面。
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate 创建或升级表结构。
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrPersistence, err)
	}
	return nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	return s.driver.Close()
}

func requireAuthenticated(owner identity.Identity) error {
	if owner.Anonymous || owner.ID == "" {
		return ErrAuthenticationRequired
	}
	return nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
