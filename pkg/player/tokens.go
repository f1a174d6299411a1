package player

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// TokenSource mints play tokens. Tokens must be unique for the process
// lifetime.
type TokenSource interface {
	Next() string
}

// UUIDTokens mints time-ordered UUIDv7 tokens.
type UUIDTokens struct{}

// Next returns a new UUIDv7 string, falling back to a random UUID when the
// clock source fails.
func (UUIDTokens) Next() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var sequence atomic.Int64

// SequenceTokens mints "p1", "p2", ... from one process-wide counter.
type SequenceTokens struct{}

func (SequenceTokens) Next() string {
	return "p" + strconv.FormatInt(sequence.Add(1), 10)
}
