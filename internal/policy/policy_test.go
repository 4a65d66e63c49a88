package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, Clinical, v)

	v, err = ParseVariant(" Graded ")
	require.NoError(t, err)
	assert.Equal(t, Graded, v)

	_, err = ParseVariant("playful")
	require.Error(t, err)
}

func TestEveryVariantLoads(t *testing.T) {
	for _, v := range Variants() {
		p, err := New(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, p.Variant())
	}
}

func TestComposeInsertsKnowledgeOnce(t *testing.T) {
	out, err := Compose(Clinical, "PHQ-9 screening notes")
	require.NoError(t, err)

	assert.Contains(t, out, "PHQ-9 screening notes")
	assert.NotContains(t, out, KnowledgeMarker)
	assert.Equal(t, 1, strings.Count(out, "PHQ-9 screening notes"))
	assert.Contains(t, out, "988")
}

func TestComposeGradedKeepsContextAtEnd(t *testing.T) {
	out, err := Compose(Graded, "No relevant context found.")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(out, "No relevant context found."))
	assert.Contains(t, out, "Acute Distress Code")
}

func TestNewUnknownVariant(t *testing.T) {
	_, err := New(Variant("missing"))
	require.Error(t, err)
}
