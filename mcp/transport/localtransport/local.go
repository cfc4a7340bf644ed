// Package localtransport provides in-process MCP transports: a
// server-side Transport that bridges raw JSON-RPC bodies to a server
// handler, and a ClientTransport that talks to a Handler without any
// network hop. Both are used to embed MCP servers in the same process
// as the host.
package localtransport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp/transport"
)

// Transport is the server side of the in-process bridge. HandleMessage
// accepts a raw JSON-RPC body, dispatches it to the message handler and
// blocks until the server responds via Send.
type Transport struct {
	mu             sync.RWMutex
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	responseMap    map[int64]chan *transport.BaseJsonRpcMessage
	counter        int64
}

// New creates a stateless in-process server transport.
func New() *Transport {
	return &Transport{
		responseMap: make(map[int64]chan *transport.BaseJsonRpcMessage),
	}
}

// Start is a no-op; the local transport has no connection to open.
func (s *Transport) Start(ctx context.Context) error {
	return nil
}

// Close invokes the close handler, if any.
func (s *Transport) Close() error {
	s.mu.RLock()
	handler := s.closeHandler
	s.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetErrorHandler sets the callback for out-of-band errors.
func (s *Transport) SetErrorHandler(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// SetCloseHandler sets the callback invoked when the transport closes.
func (s *Transport) SetCloseHandler(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// SetMessageHandler sets the callback for incoming messages.
func (s *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHandler = handler
}

// Send routes a response produced by the server back to the
// HandleMessage call that is blocked waiting for it. The response id
// must match the rewritten key assigned by HandleMessage.
func (s *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	var key int64
	switch message.Type {
	case transport.BaseMessageTypeJSONRPCResponseType:
		key = int64(message.JsonRpcResponse.Id)
	case transport.BaseMessageTypeJSONRPCErrorType:
		key = int64(message.JsonRpcError.Id)
	default:
		return errors.Errorf("local transport cannot send message of type %q", message.Type)
	}

	s.mu.RLock()
	responseChannel := s.responseMap[key]
	s.mu.RUnlock()

	if responseChannel == nil {
		return errors.Errorf("no response channel found for key: %d", key)
	}

	select {
	case responseChannel <- message:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "failed to deliver response")
	}
}

// HandleMessage processes one raw JSON-RPC body. Requests are assigned
// a process-unique id before dispatch so that concurrent callers never
// collide; the original id is restored on the returned response.
// Notifications are dispatched and acknowledged with an empty response.
// Responses and errors arriving here have no pending request to match
// and are acknowledged without dispatch.
func (s *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	msg, err := transport.UnmarshalMessage(body)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid message body")
	}

	s.mu.RLock()
	handler := s.messageHandler
	s.mu.RUnlock()

	if msg.Type != transport.BaseMessageTypeJSONRPCRequestType {
		if msg.Type == transport.BaseMessageTypeJSONRPCNotificationType && handler != nil {
			handler(ctx, msg)
		}
		return &transport.BaseJsonRpcMessage{
			Type: transport.BaseMessageTypeJSONRPCResponseType,
		}, nil
	}

	key := atomic.AddInt64(&s.counter, 1)
	ch := make(chan *transport.BaseJsonRpcMessage, 1)
	s.mu.Lock()
	s.responseMap[key] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.responseMap, key)
		s.mu.Unlock()
	}()

	prevID := msg.JsonRpcRequest.Id
	msg.JsonRpcRequest.Id = transport.RequestId(key)

	if handler != nil {
		handler(ctx, msg)
	}

	select {
	case response := <-ch:
		switch response.Type {
		case transport.BaseMessageTypeJSONRPCResponseType:
			response.JsonRpcResponse.Id = prevID
		case transport.BaseMessageTypeJSONRPCErrorType:
			response.JsonRpcError.Id = prevID
		}
		return response, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "request aborted")
	}
}
