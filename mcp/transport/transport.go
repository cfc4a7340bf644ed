// Package transport defines the JSON-RPC message envelopes and the
// Transport contract implemented by the stdio and local transports.
package transport

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Sentinel errors surfaced by transports and the protocol layer.
var (
	// ErrTimeout is returned when a request deadline elapses before a reply arrives.
	ErrTimeout = errors.New("request timed out")
	// ErrClosed is returned when the peer process or connection has gone away.
	ErrClosed = errors.New("transport closed")
	// ErrParse is returned when an incoming frame cannot be decoded as JSON-RPC.
	ErrParse = errors.New("malformed JSON-RPC message")
)

// RequestId is a unique identifier for a request in flight.
type RequestId uint64

// JsonRpcBody is the result payload of a request handler.
type JsonRpcBody any

type BaseJSONRPCRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Id      RequestId       `json:"id"`
}

type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Id      RequestId       `json:"id"`
}

type BaseJSONRPCErrorInner struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type BaseJSONRPCError struct {
	Jsonrpc string                `json:"jsonrpc"`
	Error   BaseJSONRPCErrorInner `json:"error"`
	Id      RequestId             `json:"id"`
}

type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is the union of the four JSON-RPC message kinds,
// exactly one member is set according to Type.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

func NewBaseMessageError(err *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: err,
	}
}

// MarshalJSON marshals the active member as the wire representation.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Newf("unknown message type: %q", m.Type)
}

// UnmarshalMessage decodes a frame into one of the four message kinds,
// discriminating on the presence of the id, method, result and error fields.
func UnmarshalMessage(data []byte) (*BaseJsonRpcMessage, error) {
	probe := struct {
		Jsonrpc string                 `json:"jsonrpc"`
		Method  *string                `json:"method"`
		Id      *RequestId             `json:"id"`
		Params  json.RawMessage        `json:"params"`
		Result  json.RawMessage        `json:"result"`
		Error   *BaseJSONRPCErrorInner `json:"error"`
	}{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.WithMessage(ErrParse, err.Error())
	}

	switch {
	case probe.Method != nil && probe.Id != nil:
		return NewBaseMessageRequest(&BaseJSONRPCRequest{
			Jsonrpc: probe.Jsonrpc,
			Method:  *probe.Method,
			Params:  probe.Params,
			Id:      *probe.Id,
		}), nil
	case probe.Method != nil:
		return NewBaseMessageNotification(&BaseJSONRPCNotification{
			Jsonrpc: probe.Jsonrpc,
			Method:  *probe.Method,
			Params:  probe.Params,
		}), nil
	case probe.Id != nil && probe.Error != nil:
		return NewBaseMessageError(&BaseJSONRPCError{
			Jsonrpc: probe.Jsonrpc,
			Error:   *probe.Error,
			Id:      *probe.Id,
		}), nil
	case probe.Id != nil:
		return NewBaseMessageResponse(&BaseJSONRPCResponse{
			Jsonrpc: probe.Jsonrpc,
			Result:  probe.Result,
			Id:      *probe.Id,
		}), nil
	}
	return nil, errors.WithMessage(ErrParse, "frame is not a JSON-RPC request, notification or response")
}

// Transport is the minimal contract for moving JSON-RPC messages between
// the host and a tool server.
type Transport interface {
	// Start begins processing messages. Starting an already
	// started transport is a no-op.
	Start(ctx context.Context) error

	// Send transmits one message.
	Send(ctx context.Context, message *BaseJsonRpcMessage) error

	// Close terminates the connection. It is safe to call more than once.
	Close() error

	// SetCloseHandler sets the callback for when the connection is closed for any reason.
	// This should be invoked when Close() is called as well.
	SetCloseHandler(handler func())

	// SetErrorHandler sets the callback for when an error occurs.
	// Note that errors are not necessarily fatal; they are used for reporting
	// any kind of exceptional condition out of band.
	SetErrorHandler(handler func(error))

	// SetMessageHandler sets the callback for when a message
	// (request, notification or response) is received over the connection.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}
