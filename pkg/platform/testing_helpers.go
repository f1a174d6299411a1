package platform

import "sync"

// BridgeCall is one method invocation recorded by a TestBridge.
type BridgeCall struct {
	Channel string
	Method  string
	Args    any
}

// TestBridge is a NativeBridge that records calls and returns canned results.
type TestBridge struct {
	mu      sync.Mutex
	calls   []BridgeCall
	results map[string]any
	errs    map[string]error
	streams map[string]bool
}

// SetupTestBridge installs a recording native bridge and a synchronous
// dispatch function for testing. The cleanup function should be
// testing.T.Cleanup or equivalent; it registers a teardown that calls
// ResetForTest.
//
//	bridge := platform.SetupTestBridge(t.Cleanup)
func SetupTestBridge(cleanup func(func())) *TestBridge {
	b := &TestBridge{
		results: make(map[string]any),
		errs:    make(map[string]error),
		streams: make(map[string]bool),
	}
	SetNativeBridge(b)
	RegisterDispatch(func(cb func()) { cb() })
	cleanup(ResetForTest)
	return b
}

// SetResult makes calls to method return v.
func (b *TestBridge) SetResult(method string, v any) {
	b.mu.Lock()
	b.results[method] = v
	b.mu.Unlock()
}

// SetError makes calls to method fail with err.
func (b *TestBridge) SetError(method string, err error) {
	b.mu.Lock()
	b.errs[method] = err
	b.mu.Unlock()
}

// Calls returns the recorded invocations in order.
func (b *TestBridge) Calls() []BridgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BridgeCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// Streaming reports whether native was asked to stream events on channel.
func (b *TestBridge) Streaming(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[channel]
}

func (b *TestBridge) InvokeMethod(channel, method string, args []byte) ([]byte, error) {
	decoded, err := DefaultCodec.Decode(args)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.calls = append(b.calls, BridgeCall{Channel: channel, Method: method, Args: decoded})
	result, callErr := b.results[method], b.errs[method]
	b.mu.Unlock()
	if callErr != nil {
		return nil, callErr
	}
	return DefaultCodec.Encode(result)
}

func (b *TestBridge) StartEventStream(channel string) error {
	b.mu.Lock()
	b.streams[channel] = true
	b.mu.Unlock()
	return nil
}

func (b *TestBridge) StopEventStream(channel string) error {
	b.mu.Lock()
	b.streams[channel] = false
	b.mu.Unlock()
	return nil
}
