// Package protocol implements JSON-RPC framing for MCP on top of a
// pluggable transport: request/response correlation, notifications,
// progress updates and cancellation.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/mcphost/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost/mcp/internal", "protocol")

// DefaultRequestTimeout bounds a request when the caller does not
// provide its own timeout.
const DefaultRequestTimeout = 60 * time.Second

// Progress is a progress update for an in-flight request.
type Progress struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ProgressCallback is invoked for progress notifications that carry the
// request's progress token.
type ProgressCallback func(progress Progress)

// RequestOptions contains per-request options.
type RequestOptions struct {
	// OnProgress is called for progress notifications from the remote end.
	OnProgress ProgressCallback
	// Timeout bounds the request. Zero means DefaultRequestTimeout.
	Timeout time.Duration
}

// RequestHandlerExtra carries extra data to request handlers.
type RequestHandlerExtra struct {
	// Context is cancelled if the sender cancels the request.
	Context context.Context
}

// Protocol implements MCP framing on top of a transport. A single
// Protocol can serve both roles: issue requests as a client and answer
// requests as a server.
type Protocol struct {
	transport transport.Transport

	mu               sync.RWMutex
	requestMessageID transport.RequestId

	// Maps method name to request handler.
	requestHandlers map[string]func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error)
	// Maps inbound request ID to its cancellation function.
	requestCancellers map[transport.RequestId]context.CancelFunc
	// Maps method name to notification handler.
	notificationHandlers map[string]func(notification *transport.BaseJSONRPCNotification) error
	// Maps outbound request ID to the channel its reply is delivered on.
	responseHandlers map[transport.RequestId]chan *responseEnvelope
	// Maps progress token to the callback of the request that issued it.
	progressHandlers map[string]ProgressCallback

	// OnClose is invoked when the connection closes for any reason.
	OnClose func()
	// OnError is invoked for out-of-band errors.
	OnError func(error)
	// FallbackRequestHandler serves requests with no registered handler.
	FallbackRequestHandler func(ctx context.Context, request *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error)
	// FallbackNotificationHandler serves notifications with no registered handler.
	FallbackNotificationHandler func(notification *transport.BaseJSONRPCNotification) error
}

type responseEnvelope struct {
	result json.RawMessage
	err    error
}

// NewProtocol creates a Protocol that is not yet connected.
func NewProtocol() *Protocol {
	p := &Protocol{
		requestMessageID:     1,
		requestHandlers:      make(map[string]func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error)),
		requestCancellers:    make(map[transport.RequestId]context.CancelFunc),
		notificationHandlers: make(map[string]func(*transport.BaseJSONRPCNotification) error),
		responseHandlers:     make(map[transport.RequestId]chan *responseEnvelope),
		progressHandlers:     make(map[string]ProgressCallback),
	}

	p.SetNotificationHandler("notifications/cancelled", p.handleCancelledNotification)
	p.SetNotificationHandler("notifications/initialized", p.handleInitializedNotification)
	p.SetNotificationHandler("notifications/progress", p.handleProgressNotification)
	// Older servers emit the LSP-style progress method.
	p.SetNotificationHandler("$/progress", p.handleProgressNotification)

	return p
}

// Connect attaches to the transport, starts it and begins dispatching
// incoming messages.
func (p *Protocol) Connect(ctx context.Context, tr transport.Transport) error {
	p.transport = tr

	tr.SetCloseHandler(func() {
		p.handleClose()
	})

	tr.SetErrorHandler(func(err error) {
		p.handleError(err)
	})

	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.handleRequest(ctx, message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			p.handleResponse(message.JsonRpcResponse, nil)
		case transport.BaseMessageTypeJSONRPCErrorType:
			p.handleResponse(nil, message.JsonRpcError)
		}
	})

	return tr.Start(ctx)
}

// handleClose fails every pending request with ErrClosed and resets the
// handler maps. Safe to run more than once.
func (p *Protocol) handleClose() {
	p.mu.Lock()

	for _, cancel := range p.requestCancellers {
		cancel()
	}

	for id, ch := range p.responseHandlers {
		select {
		case ch <- &responseEnvelope{err: transport.ErrClosed}:
		default:
		}
		delete(p.responseHandlers, id)
	}

	onClose := p.OnClose

	p.requestHandlers = make(map[string]func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error))
	p.requestCancellers = make(map[transport.RequestId]context.CancelFunc)
	p.notificationHandlers = make(map[string]func(notification *transport.BaseJSONRPCNotification) error)
	p.progressHandlers = make(map[string]ProgressCallback)
	p.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	logger.KV(xlog.DEBUG, "notification", notification.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	if handler == nil {
		handler = p.FallbackNotificationHandler
	}
	p.mu.RUnlock()

	if handler == nil {
		return
	}

	go func() {
		if err := handler(notification); err != nil {
			p.handleError(errors.WithMessagef(err, "notification handler failed: %s", notification.Method))
		}
	}()
}

func (p *Protocol) handleRequest(ctx context.Context, request *transport.BaseJSONRPCRequest) {
	logger.KV(xlog.DEBUG, "request", request.Method, "id", request.Id)

	p.mu.RLock()
	handler := p.requestHandlers[request.Method]
	if handler == nil {
		handler = func(ctx context.Context, req *transport.BaseJSONRPCRequest, extra RequestHandlerExtra) (transport.JsonRpcBody, error) {
			if p.FallbackRequestHandler != nil {
				return p.FallbackRequestHandler(ctx, req)
			}
			return nil, errors.Errorf("method not found: %s", req.Method)
		}
	}
	p.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.requestCancellers[request.Id] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, request.Id)
			p.mu.Unlock()
			cancel()
		}()

		result, err := handler(ctx, request, RequestHandlerExtra{Context: ctx})
		if err != nil {
			logger.KV(xlog.DEBUG, "request", request.Method, "id", request.Id, "err", err.Error())
			p.sendErrorResponse(request.Id, err)
			return
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			p.sendErrorResponse(request.Id, errors.Wrap(err, "failed to marshal result"))
			return
		}

		response := &transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      request.Id,
			Result:  jsonResult,
		}
		if err := p.transport.Send(ctx, transport.NewBaseMessageResponse(response)); err != nil {
			p.handleError(errors.WithMessage(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleProgressNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		ProgressToken json.RawMessage `json:"progressToken"`
		Progress      float64         `json:"progress"`
		Total         float64         `json:"total"`
		Message       string          `json:"message"`
	}
	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal progress params")
	}

	p.mu.RLock()
	handler := p.progressHandlers[progressTokenKey(params.ProgressToken)]
	p.mu.RUnlock()

	if handler != nil {
		handler(Progress{
			Progress: params.Progress,
			Total:    params.Total,
			Message:  params.Message,
		})
	}
	return nil
}

// progressTokenKey normalizes a token to a map key. Tokens issued here
// are UUID strings, but a server may echo a numeric token verbatim.
func progressTokenKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func (p *Protocol) handleInitializedNotification(notification *transport.BaseJSONRPCNotification) error {
	logger.KV(xlog.DEBUG, "notification", notification.Method)
	return nil
}

func (p *Protocol) handleCancelledNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		RequestId transport.RequestId `json:"requestId"`
		Reason    string              `json:"reason"`
	}
	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.requestCancellers[params.RequestId]
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// handleResponse routes a reply to the pending request that owns its
// id. Replies whose request already timed out or was never issued are
// dropped.
func (p *Protocol) handleResponse(response *transport.BaseJSONRPCResponse, errResp *transport.BaseJSONRPCError) {
	envelope := &responseEnvelope{}
	var id transport.RequestId
	if errResp != nil {
		id = errResp.Id
		envelope.err = errors.Errorf("RPC error %d: %s", errResp.Error.Code, errResp.Error.Message)
	} else {
		id = response.Id
		envelope.result = response.Result
	}

	p.mu.RLock()
	ch := p.responseHandlers[id]
	p.mu.RUnlock()

	if ch == nil {
		logger.KV(xlog.DEBUG, "reason", "no pending request", "id", id)
		return
	}

	select {
	case ch <- envelope:
	default:
		logger.KV(xlog.DEBUG, "reason", "duplicate reply", "id", id)
	}
}

// Close closes the underlying transport.
func (p *Protocol) Close() error {
	if p.transport != nil {
		return p.transport.Close()
	}
	return nil
}

// Request sends a request and waits for its reply. The returned bytes
// are the raw JSON-RPC result. On timeout the pending entry is removed
// so a late reply is discarded, and the error matches
// transport.ErrTimeout.
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	if p.transport == nil {
		return nil, errors.New("not connected")
	}

	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	started := time.Now()
	defer metricskey.PerfRPCRequest.MeasureSince(started, method)

	var progressToken string
	p.mu.Lock()
	id := p.requestMessageID
	p.requestMessageID++
	ch := make(chan *responseEnvelope, 1)
	p.responseHandlers[id] = ch
	if opts.OnProgress != nil {
		progressToken = uuid.NewString()
		p.progressHandlers[progressToken] = opts.OnProgress
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.responseHandlers, id)
		if progressToken != "" {
			delete(p.progressHandlers, progressToken)
		}
		p.mu.Unlock()
	}()

	marshalledParams, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal params")
	}
	if opts.OnProgress != nil {
		// Advertise the token the server must echo in its progress
		// notifications for this request.
		marshalledParams, err = sjson.SetBytes(marshalledParams, "_meta.progressToken", progressToken)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set progress token")
		}
	}

	request := &transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalledParams,
		Id:      id,
	}

	metricskey.StatsRPCRequestsSent.IncrCounter(1, method)
	if err := p.transport.Send(ctx, transport.NewBaseMessageRequest(request)); err != nil {
		metricskey.StatsRPCRequestsFailed.IncrCounter(1, method)
		return nil, errors.WithMessagef(err, "failed to send request: %s", method)
	}

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			metricskey.StatsRPCRequestsFailed.IncrCounter(1, method)
			return nil, envelope.err
		}
		return envelope.result, nil
	case <-ctx.Done():
		_ = p.sendCancelNotification(id, ctx.Err().Error())
		return nil, ctx.Err()
	case <-time.After(timeout):
		metricskey.StatsRPCTimeouts.IncrCounter(1, method)
		_ = p.sendCancelNotification(id, "request timeout")
		return nil, errors.WithMessagef(transport.ErrTimeout, "method %s, timeout %s", method, timeout)
	}
}

func (p *Protocol) sendCancelNotification(requestID transport.RequestId, reason string) error {
	return p.Notification("notifications/cancelled", map[string]any{
		"requestId": requestID,
		"reason":    reason,
	})
}

func (p *Protocol) sendErrorResponse(requestID transport.RequestId, err error) {
	response := &transport.BaseJSONRPCError{
		Jsonrpc: "2.0",
		Id:      requestID,
		Error: transport.BaseJSONRPCErrorInner{
			Code:    -32000,
			Message: err.Error(),
		},
	}
	if err := p.transport.Send(context.Background(), transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.WithMessage(err, "failed to send error response"))
	}
}

// Notification emits a one-way message that expects no reply.
func (p *Protocol) Notification(method string, params any) error {
	if p.transport == nil {
		return errors.New("not connected")
	}

	marshalled, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification params")
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalled,
	}
	return p.transport.Send(context.Background(), transport.NewBaseMessageNotification(notification))
}

// SetRequestHandler registers the handler for an inbound request method.
func (p *Protocol) SetRequestHandler(method string, handler func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error)) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// RemoveRequestHandler removes the handler for the given method.
func (p *Protocol) RemoveRequestHandler(method string) {
	p.mu.Lock()
	delete(p.requestHandlers, method)
	p.mu.Unlock()
}

// SetNotificationHandler registers the handler for a notification
// method, replacing any previous handler for that method.
func (p *Protocol) SetNotificationHandler(method string, handler func(notification *transport.BaseJSONRPCNotification) error) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}

// RemoveNotificationHandler removes the handler for the given method.
func (p *Protocol) RemoveNotificationHandler(method string) {
	p.mu.Lock()
	delete(p.notificationHandlers, method)
	p.mu.Unlock()
}
