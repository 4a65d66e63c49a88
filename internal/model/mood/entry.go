package mood

import (
	"fmt"
	"time"

	"github.com/mindease/companion/backend/internal/model/validation"
)

// ErrValidation is the parent of every input validation failure.
var ErrValidation = validation.ErrValidation

// ErrInvalidMood is returned for mood values outside 1..5.
var ErrInvalidMood = fmt.Errorf("%w: mood must be an integer between 1 and 5", ErrValidation)

// LocalIDPrefix marks entries whose identifier was assigned in process.
const LocalIDPrefix = "mood_"

// Entry is one mood check-in.
type Entry struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"-"`
	Mood       int       `json:"mood" validate:"gte=1,lte=5"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Validate checks the entry's mood range.
func (e Entry) Validate() error {
	if err := validation.Validate.Struct(e); err != nil {
		return ErrInvalidMood
	}
	return nil
}
