// Package testingutils holds test doubles shared by the mcp packages.
package testingutils

import (
	"context"
	"sync"

	"github.com/effective-security/mcphost/mcp/transport"
)

// MockTransport records every sent message and lets tests inject
// incoming messages and transport events.
type MockTransport struct {
	mu             sync.RWMutex
	messages       []*transport.BaseJsonRpcMessage
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	sendHook       func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	startErr       error
	started        bool
	closed         bool
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Start implements transport.Transport.
func (t *MockTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return t.startErr
	}
	t.started = true
	return nil
}

// SetStartError makes Start fail with the given error.
func (t *MockTransport) SetStartError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startErr = err
}

// Send records the outgoing message and invokes the send hook, if set.
func (t *MockTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.Lock()
	t.messages = append(t.messages, message)
	hook := t.sendHook
	t.mu.Unlock()
	if hook != nil {
		hook(ctx, message)
	}
	return nil
}

// Close marks the transport closed and fires the close handler.
func (t *MockTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements transport.Transport.
func (t *MockTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *MockTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements transport.Transport.
func (t *MockTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetSendHook installs a callback invoked synchronously for every Send,
// letting tests reply to requests in line.
func (t *MockTransport) SetSendHook(hook func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendHook = hook
}

// GetMessages returns a snapshot of every message sent so far.
func (t *MockTransport) GetMessages() []*transport.BaseJsonRpcMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*transport.BaseJsonRpcMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// LastMessage returns the most recently sent message, or nil.
func (t *MockTransport) LastMessage() *transport.BaseJsonRpcMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// Started reports whether Start was called.
func (t *MockTransport) Started() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

// Closed reports whether Close was called.
func (t *MockTransport) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// ReceiveMessage delivers an incoming message to the registered handler.
func (t *MockTransport) ReceiveMessage(ctx context.Context, message *transport.BaseJsonRpcMessage) {
	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, message)
	}
}

// ReportError delivers an error to the registered handler.
func (t *MockTransport) ReportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// SimulateClose fires the close handler without marking Close called,
// mirroring a transport that died underneath the protocol.
func (t *MockTransport) SimulateClose() {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
}
