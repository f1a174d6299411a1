package player

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_BeginSupersedes(t *testing.T) {
	tr := NewTracker(SequenceTokens{})
	var calls []string
	t1 := tr.Begin(func(error) { calls = append(calls, "first") })
	t2 := tr.Begin(func(error) { calls = append(calls, "second") })
	require.NotEqual(t, t1, t2)
	assert.Equal(t, t2, tr.Token())

	_, ok := tr.Complete(t1)
	assert.False(t, ok)

	cb, ok := tr.Complete(t2)
	require.True(t, ok)
	cb(nil)
	assert.Equal(t, []string{"second"}, calls)

	_, ok = tr.Complete(t2)
	assert.False(t, ok, "a completion is delivered once")
}

func TestTracker_TakeAndClear(t *testing.T) {
	tr := NewTracker(nil)
	assert.Nil(t, tr.Take())

	tr.Begin(func(error) {})
	assert.NotNil(t, tr.Take())
	assert.Empty(t, tr.Token())

	tok := tr.Begin(nil)
	tr.Clear()
	_, ok := tr.Complete(tok)
	assert.False(t, ok)
	_, ok = tr.Complete("")
	assert.False(t, ok)
}

func TestSequenceTokens(t *testing.T) {
	var s SequenceTokens
	a, b := s.Next(), s.Next()
	assert.True(t, strings.HasPrefix(a, "p"))
	assert.NotEqual(t, a, b)
}

func TestUUIDTokens(t *testing.T) {
	var s UUIDTokens
	seen := make(map[string]bool)
	for range 100 {
		tok := s.Next()
		id, err := uuid.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "destroyed", Destroyed.String())
	assert.Equal(t, "unknown", State(42).String())
}
