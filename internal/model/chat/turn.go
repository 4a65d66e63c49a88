package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Turn is one immutable message within a conversation.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Fallback  bool      `json:"fallback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTurn stamps a turn with a fresh identifier and the given creation time.
func NewTurn(sender Sender, content string, at time.Time) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		CreatedAt: at.UTC(),
	}
}

// HistoryMessage is a turn mapped onto the neutral role vocabulary sent to generators.
type HistoryMessage struct {
	Role    Sender `json:"role"`
	Content string `json:"content"`
}

// GreetingID marks the opening assistant turn that is never persisted.
const GreetingID = "welcome"

// GreetingText is shown at the top of every new conversation.
const GreetingText = "Hello! I'm your MindEase companion. How are you feeling today?"

// Greeting returns the welcome turn for a new conversation.
func Greeting(at time.Time) Turn {
	return Turn{
		ID:        GreetingID,
		Sender:    SenderAssistant,
		Content:   GreetingText,
		CreatedAt: at.UTC(),
	}
}
