// Package notify 把运行期的降级提示推送给同一身份的订阅者。
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind 标识提示类别。
type Kind string

const (
	KindRetrievalDegraded    Kind = "retrieval_degraded"
	KindGeneratorUnavailable Kind = "generator_unavailable"
	KindPersistenceFailure   Kind = "persistence_failure"
)

// Level 是提示的严重程度。
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice 是一条面向用户的提示。
type Notice struct {
	Kind      Kind      `json:"kind"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

const defaultBuffer = 16

// Hub 按身份分发提示，慢订阅者会丢弃提示而不是阻塞发布方。
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Notice]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub 创建 Hub，buffer 为每个订阅者的缓冲大小。
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[chan Notice]struct{}),
		buffer: buffer,
		logger: logger.Named("notify"),
	}
}

// Subscribe 注册订阅者，返回的取消函数可重复调用。
func (h *Hub) Subscribe(ownerID string) (<-chan Notice, func()) {
	ch := make(chan Notice, h.buffer)

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[chan Notice]struct{})
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[ownerID], ch)
			if len(h.subs[ownerID]) == 0 {
				delete(h.subs, ownerID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish 向 ownerID 的全部订阅者投递提示。
func (h *Hub) Publish(ownerID string, notice Notice) {
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[ownerID] {
		select {
		case ch <- notice:
		default:
			h.logger.Debug("dropping notice for slow subscriber",
				zap.String("owner", ownerID), zap.String("kind", string(notice.Kind)))
		}
	}
}

// Subscribers 返回 ownerID 当前的订阅数。
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}
