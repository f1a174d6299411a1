package player

import "sync"

// PlayCallback receives the outcome of one play request: nil when the frame
// range finished, otherwise the reason it never will.
type PlayCallback func(err error)

// Tracker holds the single in-flight play request of an instance. Begin
// replaces whatever was tracked before; the replaced callback is abandoned,
// not cancelled, since the engine has no cancel primitive.
type Tracker struct {
	mu     sync.Mutex
	tokens TokenSource
	token  string
	cb     PlayCallback
}

// NewTracker returns a tracker minting tokens from ts. A nil ts uses
// UUIDTokens.
func NewTracker(ts TokenSource) *Tracker {
	if ts == nil {
		ts = UUIDTokens{}
	}
	return &Tracker{tokens: ts}
}

// Begin tracks cb under a fresh token and returns the token.
func (t *Tracker) Begin(cb PlayCallback) string {
	token := t.tokens.Next()
	t.mu.Lock()
	t.token = token
	t.cb = cb
	t.mu.Unlock()
	return token
}

// Complete returns the tracked callback when token is the current one and
// stops tracking it. A stale or unknown token reports false.
func (t *Tracker) Complete(token string) (PlayCallback, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token == "" || token != t.token {
		return nil, false
	}
	cb := t.cb
	t.token, t.cb = "", nil
	return cb, true
}

// Take returns the tracked callback, if any, and stops tracking it.
func (t *Tracker) Take() PlayCallback {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb := t.cb
	t.token, t.cb = "", nil
	return cb
}

// Token returns the current token, or "" when nothing is tracked.
func (t *Tracker) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// Clear forgets the tracked request.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.token, t.cb = "", nil
	t.mu.Unlock()
}
