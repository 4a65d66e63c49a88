package mood

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryValidate(t *testing.T) {
	for _, v := range []int{1, 2, 3, 4, 5} {
		assert.NoError(t, Entry{Mood: v}.Validate(), "mood %d", v)
	}
	for _, v := range []int{-1, 0, 6, 10} {
		err := Entry{Mood: v}.Validate()
		assert.ErrorIs(t, err, ErrInvalidMood, "mood %d", v)
		assert.True(t, errors.Is(err, ErrValidation))
	}
}
