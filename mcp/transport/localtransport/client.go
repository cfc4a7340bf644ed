package localtransport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp/transport"
)

// ProxyRequest carries one serialized JSON-RPC message to a Handler.
type ProxyRequest struct {
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// ProxyResponse carries the serialized reply, if any. Status follows
// HTTP conventions so Handler implementations can bridge to a real
// HTTP proxy without translation.
type ProxyResponse struct {
	Type    transport.BaseMessageType `json:"type"`
	Status  int                       `json:"status"`
	Body    []byte                    `json:"body"`
	Headers map[string]string         `json:"headers"`
}

// Handler serves MCP requests delivered in-process or through a proxy.
type Handler interface {
	HandleMCP(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error)
}

// ClientTransport is the client side of the in-process bridge: every
// Send is delivered synchronously to the Handler, and the reply body is
// fed back through the message handler.
type ClientTransport struct {
	mu             sync.RWMutex
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	handler        Handler
	headers        map[string]string
}

// NewClientTransport creates a client transport bound to the given handler.
func NewClientTransport(handler Handler) *ClientTransport {
	return &ClientTransport{
		handler: handler,
		headers: make(map[string]string),
	}
}

// WithHeader adds a header sent with every request.
func (t *ClientTransport) WithHeader(key, value string) *ClientTransport {
	t.headers[key] = value
	return t
}

// Start is a no-op; the client transport holds no connection.
func (t *ClientTransport) Start(ctx context.Context) error {
	return nil
}

// Send delivers the message to the handler and dispatches the reply, if
// any, to the message handler.
func (t *ClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	resp, err := t.handler.HandleMCP(ctx, &ProxyRequest{
		Body:    jsonData,
		Headers: t.headers,
	})
	if err != nil {
		return err
	}

	if resp.Status != http.StatusOK {
		return errors.Errorf("server returned error: %d", resp.Status)
	}

	if len(resp.Body) == 0 {
		return nil
	}

	reply, err := transport.UnmarshalMessage(resp.Body)
	if err != nil {
		return errors.WithMessage(err, "invalid response body")
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(ctx, reply)
	}
	return nil
}

// Close invokes the close handler, if any.
func (t *ClientTransport) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.
func (t *ClientTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.
func (t *ClientTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.
func (t *ClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}
