package chat

import (
	"sync"
	"time"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
)

// Conversation 保存一次对话的内存状态。
type Conversation struct {
	mu         sync.Mutex
	key        string
	owner      identity.Identity
	sessionID  string
	title      string
	turns      []chat.Turn
	inFlight   bool
	createdAt  time.Time
	lastActive time.Time
}

// Snapshot 是对话在某一时刻的只读副本。
type Snapshot struct {
	Key         string      `json:"key"`
	SessionID   string      `json:"sessionId"`
	Provisional bool        `json:"provisional"`
	Title       string      `json:"title,omitempty"`
	InFlight    bool        `json:"inFlight"`
	Turns       []chat.Turn `json:"turns"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func newConversation(owner identity.Identity, at time.Time) *Conversation {
	key := chat.NewProvisionalID()
	return &Conversation{
		key:        key,
		owner:      owner,
		sessionID:  key,
		turns:      []chat.Turn{chat.Greeting(at)},
		createdAt:  at.UTC(),
		lastActive: at,
	}
}

// Key 返回对话创建时分配的临时键，整个生命周期内不变。
func (c *Conversation) Key() string {
	return c.key
}

// Owner 返回对话所属身份。
func (c *Conversation) Owner() identity.Identity {
	return c.owner
}

// SessionID 返回当前会话 ID，可能仍是临时 ID。
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Turns 返回消息副本。
func (c *Conversation) Turns() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Snapshot 返回对话当前状态。
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]chat.Turn, len(c.turns))
	copy(turns, c.turns)
	return Snapshot{
		Key:         c.key,
		SessionID:   c.sessionID,
		Provisional: chat.IsProvisional(c.sessionID),
		Title:       c.title,
		InFlight:    c.inFlight,
		Turns:       turns,
		CreatedAt:   c.createdAt,
	}
}

// begin 标记一次提交开始，返回提交前的会话 ID 与历史窗口。
func (c *Conversation) begin(window int) (sessionID string, history []chat.HistoryMessage, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return "", nil, false
	}
	c.inFlight = true
	return c.sessionID, historyWindow(c.turns, window), true
}

func (c *Conversation) finish(at time.Time) {
	c.mu.Lock()
	c.inFlight = false
	c.lastActive = at
	c.mu.Unlock()
}

func (c *Conversation) touch(at time.Time) {
	c.mu.Lock()
	if at.After(c.lastActive) {
		c.lastActive = at
	}
	c.mu.Unlock()
}

// activity 返回最近活跃时间以及是否有提交在进行中。
func (c *Conversation) activity() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive, c.inFlight
}

func (c *Conversation) append(turn chat.Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
}

// establish 把临时会话 ID 替换为存储分配的 ID，只生效一次。
func (c *Conversation) establish(durableID, title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !chat.IsProvisional(c.sessionID) || chat.IsProvisional(durableID) {
		return false
	}
	c.sessionID = durableID
	c.title = title
	return true
}

// historyWindow 取最近 limit 条消息，按时间正序映射为生成器角色。
func historyWindow(turns []chat.Turn, limit int) []chat.HistoryMessage {
	start := 0
	if len(turns) > limit {
		start = len(turns) - limit
	}

	history := make([]chat.HistoryMessage, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		if !turn.Sender.Valid() {
			continue
		}
		history = append(history, chat.HistoryMessage{Role: turn.Sender, Content: turn.Content})
	}
	return history
}
