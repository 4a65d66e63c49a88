package chat

import (
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// ProvisionalPrefix marks session identifiers that have not been assigned by a store yet.
const ProvisionalPrefix = "temp_session_"

// titleLimit caps derived session titles, counted in runes.
const titleLimit = 30

// Session describes one conversation as listed to its owner.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewProvisionalID returns an identifier used until the store assigns a durable one.
func NewProvisionalID() string {
	return ProvisionalPrefix + shortuuid.New()
}

// IsProvisional reports whether id is a provisional session identifier.
func IsProvisional(id string) bool {
	return id == "" || strings.HasPrefix(id, ProvisionalPrefix)
}

// DeriveTitle builds a session title from the opening user message.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit]) + "..."
}
