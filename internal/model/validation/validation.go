// Package validation holds the shared input validation sentinel and validator instance.
package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is the parent of every input validation failure.
var ErrValidation = errors.New("validation error")

// Validate is the process-wide validator; it caches struct metadata and is safe for concurrent use.
var Validate = validator.New()
