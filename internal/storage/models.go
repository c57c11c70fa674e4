package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation summarizes one archived conversation.
type Conversation struct {
	ID           string
	StartedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}
