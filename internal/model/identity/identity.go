package identity

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the actor owning sessions and mood entries.
type Identity struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
}

// Anon returns an anonymous identity keyed by guestKey.
// An empty guestKey gets a freshly minted key, so no two callers ever share one.
func Anon(guestKey string) Identity {
	if guestKey == "" {
		guestKey = NewGuestKey()
	}
	return Identity{ID: "guest:" + guestKey, Anonymous: true}
}

// NewGuestKey mints a random per-client guest key.
func NewGuestKey() string {
	return uuid.NewString()
}

// Authenticated returns a durable identity for the subject of a verified token.
func Authenticated(subject string) Identity {
	return Identity{ID: subject}
}

type ctxKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored on ctx. Without one it returns a
// one-off anonymous identity that no other request can reach.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Anon("")
}
