package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short", DeriveTitle("short"))

	exact := strings.Repeat("a", 30)
	assert.Equal(t, exact, DeriveTitle(exact))

	long := strings.Repeat("b", 31)
	assert.Equal(t, strings.Repeat("b", 30)+"...", DeriveTitle(long))
}

func TestDeriveTitleCountsRunes(t *testing.T) {
	msg := strings.Repeat("é", 35)
	got := DeriveTitle(msg)
	assert.Equal(t, strings.Repeat("é", 30)+"...", got)
}

func TestProvisionalIDs(t *testing.T) {
	id := NewProvisionalID()
	assert.True(t, IsProvisional(id))
	assert.True(t, IsProvisional(""))
	assert.False(t, IsProvisional("3f2c9a1e-0000-4000-8000-000000000000"))
	assert.NotEqual(t, id, NewProvisionalID())
}
