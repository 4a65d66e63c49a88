package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonWithoutKeyNeverRepeats(t *testing.T) {
	a, b := Anon(""), Anon("")
	assert.True(t, a.Anonymous)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, Anon("tab-1"), Anon("tab-1"))
}

func TestFromContextRoundTrip(t *testing.T) {
	id := Authenticated("user-9")
	assert.Equal(t, id, FromContext(WithIdentity(context.Background(), id)))
	assert.NotEqual(t, FromContext(context.Background()).ID, FromContext(context.Background()).ID)
}
