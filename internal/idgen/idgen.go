package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new task identifier. Override in tests for determinism.
var NewFunc = func() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// New returns a new globally unique identifier.
func New() string { return NewFunc() }
