package chat

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
)

// ErrConversationNotFound 表示键不存在或不属于调用方。
var ErrConversationNotFound = errors.New("conversation not found")

// 注册表默认容量。
const (
	DefaultIdleTTL          = 30 * time.Minute
	DefaultOwnerLimit       = 16
	DefaultCapacity         = 10000
	maxSessionsPerOwnerList = 100
)

// RegistryOption 配置 Registry。
type RegistryOption func(*Registry)

// WithIdleTTL 设置 Sweep 淘汰空闲对话的阈值。
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithOwnerLimit 限制单个身份同时持有的对话数。
func WithOwnerLimit(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.ownerLimit = n
		}
	}
}

// WithCapacity 限制整个注册表的对话数。
func WithCapacity(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithRegistryClock 替换时钟，用于测试。
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry 维护进程内的活跃对话和每个身份的会话列表。
// 超出身份上限或总容量时淘汰最久未活跃且不在提交中的对话。
type Registry struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	live          map[*Conversation]struct{}
	sessions      map[string][]chat.Session
	now           func() time.Time
	idleTTL       time.Duration
	ownerLimit    int
	capacity      int
}

// NewRegistry 创建空注册表。
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		conversations: make(map[string]*Conversation),
		live:          make(map[*Conversation]struct{}),
		sessions:      make(map[string][]chat.Session),
		now:           time.Now,
		idleTTL:       DefaultIdleTTL,
		ownerLimit:    DefaultOwnerLimit,
		capacity:      DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 创建一个带欢迎语的新临时对话。
func (r *Registry) Start(owner identity.Identity) *Conversation {
	conv := newConversation(owner, r.now())

	r.mu.Lock()
	r.makeRoomLocked(owner)
	r.conversations[conv.key] = conv
	r.live[conv] = struct{}{}
	r.mu.Unlock()
	return conv
}

// Get 按临时键或持久会话 ID 查找对话。
func (r *Registry) Get(owner identity.Identity, key string) (*Conversation, error) {
	r.mu.RLock()
	conv, ok := r.conversations[key]
	r.mu.RUnlock()

	if !ok || conv.owner.ID != owner.ID {
		return nil, ErrConversationNotFound
	}
	conv.touch(r.now())
	return conv, nil
}

// Forget 移除对话的全部索引。
func (r *Registry) Forget(conv *Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(conv)
}

// Len 返回注册表中的对话数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// Sweep 淘汰空闲超过 idleTTL 的对话，并清理不再持有对话的身份的会话列表。
// 返回淘汰的对话数。
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for conv := range r.live {
		lastActive, busy := conv.activity()
		if busy || !lastActive.Before(cutoff) {
			continue
		}
		r.forgetLocked(conv)
		removed++
	}

	holders := make(map[string]struct{}, len(r.live))
	for conv := range r.live {
		holders[conv.owner.ID] = struct{}{}
	}
	for owner := range r.sessions {
		if _, ok := holders[owner]; !ok {
			delete(r.sessions, owner)
		}
	}
	return removed
}

// release 结束一次提交并刷新活跃时间。
func (r *Registry) release(conv *Conversation) {
	conv.finish(r.now())
}

func (r *Registry) forgetLocked(conv *Conversation) {
	delete(r.live, conv)
	if current, ok := r.conversations[conv.key]; ok && current == conv {
		delete(r.conversations, conv.key)
	}
	if id := conv.SessionID(); id != conv.key {
		if current, ok := r.conversations[id]; ok && current == conv {
			delete(r.conversations, id)
		}
	}
}

// makeRoomLocked 在登记 owner 的新对话前按身份上限和总容量腾出位置。
// 全部候选都在提交中时允许暂时超出。
func (r *Registry) makeRoomLocked(owner identity.Identity) {
	owned := 0
	for conv := range r.live {
		if conv.owner.ID == owner.ID {
			owned++
		}
	}
	for ; owned >= r.ownerLimit; owned-- {
		victim := r.oldestIdleLocked(func(c *Conversation) bool { return c.owner.ID == owner.ID })
		if victim == nil {
			break
		}
		r.forgetLocked(victim)
	}

	for len(r.live) >= r.capacity {
		victim := r.oldestIdleLocked(nil)
		if victim == nil {
			break
		}
		r.forgetLocked(victim)
	}
}

func (r *Registry) oldestIdleLocked(match func(*Conversation) bool) *Conversation {
	var (
		victim *Conversation
		oldest time.Time
	)
	for conv := range r.live {
		if match != nil && !match(conv) {
			continue
		}
		lastActive, busy := conv.activity()
		if busy {
			continue
		}
		if victim == nil || lastActive.Before(oldest) {
			victim, oldest = conv, lastActive
		}
	}
	return victim
}

// adopt 注册一个从存储恢复的对话；已有同 ID 的对话时直接返回它。
func (r *Registry) adopt(owner identity.Identity, sessionID string, turns []chat.Turn) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.conversations[sessionID]; ok && existing.owner.ID == owner.ID {
		existing.touch(now)
		return existing
	}

	r.makeRoomLocked(owner)
	conv := &Conversation{
		key:        chat.NewProvisionalID(),
		owner:      owner,
		sessionID:  sessionID,
		turns:      append([]chat.Turn(nil), turns...),
		createdAt:  now.UTC(),
		lastActive: now,
	}
	if len(turns) > 0 {
		conv.title = chat.DeriveTitle(turns[0].Content)
		conv.createdAt = turns[0].CreatedAt
	}
	r.conversations[conv.key] = conv
	r.conversations[sessionID] = conv
	r.live[conv] = struct{}{}
	return conv
}

// alias 让对话也能通过持久会话 ID 找到，并把会话登记到身份列表头部。
func (r *Registry) alias(conv *Conversation, session chat.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[conv]; ok {
		r.conversations[session.ID] = conv
	}

	owner := conv.owner.ID
	list := r.sessions[owner]
	filtered := make([]chat.Session, 0, len(list)+1)
	filtered = append(filtered, session)
	for _, s := range list {
		if s.ID != session.ID {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) > maxSessionsPerOwnerList {
		filtered = filtered[:maxSessionsPerOwnerList]
	}
	r.sessions[owner] = filtered
}

// Sessions 返回本进程内登记的会话，最新的在前。
func (r *Registry) Sessions(owner identity.Identity) []chat.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.sessions[owner.ID]
	out := make([]chat.Session, len(list))
	copy(out, list)
	return out
}

// mergeSessions 合并两组会话，按 ID 去重并按创建时间降序排列。
func mergeSessions(primary, extra []chat.Session) []chat.Session {
	seen := make(map[string]struct{}, len(primary)+len(extra))
	out := make([]chat.Session, 0, len(primary)+len(extra))
	for _, group := range [][]chat.Session{primary, extra} {
		for _, s := range group {
			if chat.IsProvisional(s.ID) {
				continue
			}
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
