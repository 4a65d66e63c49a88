package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
)

// ErrSessionNotFound 表示会话不存在或不属于调用方。
var ErrSessionNotFound = errors.New("session not found")

// TurnStore 持久化对话消息。
type TurnStore interface {
	// AppendTurn 写入一条消息；sessionID 为临时 ID 时由存储分配并通过返回值带回。
	AppendTurn(ctx context.Context, owner identity.Identity, sessionID string, turn chat.Turn) (chat.Turn, error)
	ListTurns(ctx context.Context, owner identity.Identity, sessionID string) ([]chat.Turn, error)
	ListSessions(ctx context.Context, owner identity.Identity) ([]chat.Session, error)
}

// 匿名消息的保留上限，超出时丢弃最早的会话或消息。
const (
	MaxMemorySessionsPerOwner = 20
	MaxMemoryTurnsPerSession  = 200
)

// MemoryStore 是匿名身份使用的进程内消息存储。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]chat.Turn
}

// NewMemoryStore 创建空存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string][]chat.Turn),
	}
}

// AppendTurn 实现 TurnStore。
func (s *MemoryStore) AppendTurn(_ context.Context, owner identity.Identity, sessionID string, turn chat.Turn) (chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.sessions[owner.ID]
	if owned == nil {
		owned = make(map[string][]chat.Turn)
		s.sessions[owner.ID] = owned
	}

	if chat.IsProvisional(sessionID) {
		if len(owned) >= MaxMemorySessionsPerOwner {
			delete(owned, oldestSession(owned))
		}
		sessionID = uuid.NewString()
		owned[sessionID] = make([]chat.Turn, 0, 16)
	} else if _, ok := owned[sessionID]; !ok {
		return chat.Turn{}, ErrSessionNotFound
	}

	turn.SessionID = sessionID
	turns := append(owned[sessionID], turn)
	if over := len(turns) - MaxMemoryTurnsPerSession; over > 0 {
		turns = append(turns[:0:0], turns[over:]...)
	}
	owned[sessionID] = turns
	return turn, nil
}

// Prune 删除最后一条消息早于 cutoff 的身份的全部会话，返回删除的身份数。
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for owner, owned := range s.sessions {
		if latestTurn(owned).Before(cutoff) {
			delete(s.sessions, owner)
			removed++
		}
	}
	return removed
}

// Owners 返回持有会话的身份数。
func (s *MemoryStore) Owners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func oldestSession(owned map[string][]chat.Turn) string {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, turns := range owned {
		var at time.Time
		if len(turns) > 0 {
			at = turns[0].CreatedAt
		}
		if oldestID == "" || at.Before(oldestAt) {
			oldestID, oldestAt = id, at
		}
	}
	return oldestID
}

func latestTurn(owned map[string][]chat.Turn) time.Time {
	var latest time.Time
	for _, turns := range owned {
		if n := len(turns); n > 0 && turns[n-1].CreatedAt.After(latest) {
			latest = turns[n-1].CreatedAt
		}
	}
	return latest
}

// ListTurns 实现 TurnStore。
func (s *MemoryStore) ListTurns(_ context.Context, owner identity.Identity, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.sessions[owner.ID][sessionID]
	if !ok {
		return nil, nil
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// ListSessions 实现 TurnStore。
func (s *MemoryStore) ListSessions(_ context.Context, owner identity.Identity) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]chat.Session, 0, len(s.sessions[owner.ID]))
	for id, turns := range s.sessions[owner.ID] {
		if len(turns) == 0 {
			continue
		}
		sessions = append(sessions, chat.Session{
			ID:        id,
			Title:     chat.DeriveTitle(turns[0].Content),
			CreatedAt: turns[0].CreatedAt,
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// StoreRouter 按身份选择存储：匿名身份永远只落在内存中。
type StoreRouter struct {
	Durable TurnStore
	Memory  *MemoryStore
}

// For 返回 owner 应使用的存储。
func (r StoreRouter) For(owner identity.Identity) TurnStore {
	if owner.Anonymous || r.Durable == nil {
		return r.Memory
	}
	return r.Durable
}
