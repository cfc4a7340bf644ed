package protocol_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/effective-security/mcphost/mcp/internal/protocol"
	"github.com/effective-security/mcphost/mcp/internal/testingutils"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) (*protocol.Protocol, *testingutils.MockTransport) {
	t.Helper()
	mock := testingutils.NewMockTransport()
	p := protocol.NewProtocol()
	require.NoError(t, p.Connect(context.Background(), mock))
	require.True(t, mock.Started())
	return p, mock
}

func Test_RequestResponse(t *testing.T) {
	p, mock := connect(t)

	mock.SetSendHook(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		require.Equal(t, transport.BaseMessageTypeJSONRPCRequestType, message.Type)
		result, _ := json.Marshal(map[string]string{"status": "ok"})
		mock.ReceiveMessage(ctx, transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      message.JsonRpcRequest.Id,
			Result:  result,
		}))
	})

	raw, err := p.Request(context.Background(), "ping", map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	messages := mock.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ping", messages[0].JsonRpcRequest.Method)
	assert.Equal(t, transport.RequestId(1), messages[0].JsonRpcRequest.Id)
}

func Test_RequestIDsIncrement(t *testing.T) {
	p, mock := connect(t)

	mock.SetSendHook(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		mock.ReceiveMessage(ctx, transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      message.JsonRpcRequest.Id,
			Result:  json.RawMessage(`{}`),
		}))
	})

	for i := 0; i < 3; i++ {
		_, err := p.Request(context.Background(), "ping", nil, nil)
		require.NoError(t, err)
	}

	messages := mock.GetMessages()
	require.Len(t, messages, 3)
	for i, msg := range messages {
		assert.Equal(t, transport.RequestId(i+1), msg.JsonRpcRequest.Id)
	}
}

func Test_RequestErrorReply(t *testing.T) {
	p, mock := connect(t)

	mock.SetSendHook(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		mock.ReceiveMessage(ctx, transport.NewBaseMessageError(&transport.BaseJSONRPCError{
			Jsonrpc: "2.0",
			Id:      message.JsonRpcRequest.Id,
			Error: transport.BaseJSONRPCErrorInner{
				Code:    -32601,
				Message: "Method not found",
			},
		}))
	})

	_, err := p.Request(context.Background(), "no_such_method", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC error -32601: Method not found")
}

func Test_RequestTimeout(t *testing.T) {
	p, mock := connect(t)

	_, err := p.Request(context.Background(), "slow_method", nil, &protocol.RequestOptions{
		Timeout: 25 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTimeout)

	// The request and the cancellation notification were both sent.
	messages := mock.GetMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, "slow_method", messages[0].JsonRpcRequest.Method)
	assert.Equal(t, "notifications/cancelled", messages[1].JsonRpcNotification.Method)

	// A late reply finds no pending request and is dropped.
	assert.NotPanics(t, func() {
		mock.ReceiveMessage(context.Background(), transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      messages[0].JsonRpcRequest.Id,
			Result:  json.RawMessage(`{}`),
		}))
	})
}

func Test_RequestCancelled(t *testing.T) {
	p, mock := connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	mock.SetSendHook(func(_ context.Context, message *transport.BaseJsonRpcMessage) {
		if message.Type == transport.BaseMessageTypeJSONRPCRequestType {
			cancel()
		}
	})

	_, err := p.Request(ctx, "slow_method", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_CloseFailsPending(t *testing.T) {
	p, mock := connect(t)

	closed := make(chan struct{})
	p.OnClose = func() {
		close(closed)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Request(context.Background(), "slow_method", nil, nil)
		done <- err
	}()

	// Wait for the request to be in flight, then kill the connection.
	require.Eventually(t, func() bool {
		return len(mock.GetMessages()) == 1
	}, time.Second, time.Millisecond)
	mock.SimulateClose()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pending request to fail")
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close callback")
	}
}

func Test_Progress(t *testing.T) {
	p, mock := connect(t)

	type searchParams struct {
		Query string `json:"query"`
	}

	progressCh := make(chan protocol.Progress, 1)

	done := make(chan error, 1)
	go func() {
		_, err := p.Request(context.Background(), "tools/call", &searchParams{Query: "weather"}, &protocol.RequestOptions{
			OnProgress: func(progress protocol.Progress) {
				select {
				case progressCh <- progress:
				default:
				}
			},
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(mock.GetMessages()) == 1
	}, time.Second, time.Millisecond)

	request := mock.GetMessages()[0].JsonRpcRequest

	// The token is injected into the marshalled params even for struct
	// params, alongside the original fields.
	var params struct {
		Query string `json:"query"`
		Meta  struct {
			ProgressToken string `json:"progressToken"`
		} `json:"_meta"`
	}
	require.NoError(t, json.Unmarshal(request.Params, &params))
	assert.Equal(t, "weather", params.Query)
	_, err := uuid.Parse(params.Meta.ProgressToken)
	require.NoError(t, err, "progress token must be a UUID")

	notifParams, _ := json.Marshal(map[string]any{
		"progressToken": params.Meta.ProgressToken,
		"progress":      0.5,
		"total":         1.0,
		"message":       "halfway",
	})
	mock.ReceiveMessage(context.Background(), transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/progress",
		Params:  notifParams,
	}))

	select {
	case progress := <-progressCh:
		assert.Equal(t, 0.5, progress.Progress)
		assert.Equal(t, 1.0, progress.Total)
		assert.Equal(t, "halfway", progress.Message)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for progress callback")
	}

	mock.ReceiveMessage(context.Background(), transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
		Jsonrpc: "2.0",
		Id:      request.Id,
		Result:  json.RawMessage(`{}`),
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for request to finish")
	}
}

func Test_NotificationHandlerReplaced(t *testing.T) {
	p, mock := connect(t)

	received := make(chan string, 2)
	p.SetNotificationHandler("custom/event", func(notification *transport.BaseJSONRPCNotification) error {
		received <- "first"
		return nil
	})
	p.SetNotificationHandler("custom/event", func(notification *transport.BaseJSONRPCNotification) error {
		received <- "second"
		return nil
	})

	mock.ReceiveMessage(context.Background(), transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "custom/event",
	}))

	select {
	case got := <-received:
		assert.Equal(t, "second", got)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification handler")
	}

	select {
	case got := <-received:
		t.Fatalf("unexpected second dispatch: %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_FallbackNotificationHandler(t *testing.T) {
	p, mock := connect(t)

	received := make(chan string, 1)
	p.FallbackNotificationHandler = func(notification *transport.BaseJSONRPCNotification) error {
		received <- notification.Method
		return nil
	}

	mock.ReceiveMessage(context.Background(), transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "unhandled/event",
	}))

	select {
	case got := <-received:
		assert.Equal(t, "unhandled/event", got)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for fallback handler")
	}
}

func Test_InboundRequest(t *testing.T) {
	p, mock := connect(t)

	p.SetRequestHandler("echo", func(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		var params map[string]string
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return nil, err
		}
		return map[string]string{"echo": params["say"]}, nil
	})

	params, _ := json.Marshal(map[string]string{"say": "hello"})
	mock.ReceiveMessage(context.Background(), transport.NewBaseMessageRequest(&transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  "echo",
		Params:  params,
		Id:      transport.RequestId(7),
	}))

	require.Eventually(t, func() bool {
		return len(mock.GetMessages()) == 1
	}, time.Second, time.Millisecond)

	response := mock.LastMessage()
	require.Equal(t, transport.BaseMessageTypeJSONRPCResponseType, response.Type)
	assert.Equal(t, transport.RequestId(7), response.JsonRpcResponse.Id)
	assert.JSONEq(t, `{"echo":"hello"}`, string(response.JsonRpcResponse.Result))
}

func Test_InboundRequestUnknownMethod(t *testing.T) {
	p, mock := connect(t)
	_ = p

	mock.ReceiveMessage(context.Background(), transport.NewBaseMessageRequest(&transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  "no_such_method",
		Id:      transport.RequestId(9),
	}))

	require.Eventually(t, func() bool {
		return len(mock.GetMessages()) == 1
	}, time.Second, time.Millisecond)

	response := mock.LastMessage()
	require.Equal(t, transport.BaseMessageTypeJSONRPCErrorType, response.Type)
	assert.Equal(t, transport.RequestId(9), response.JsonRpcError.Id)
	assert.Equal(t, -32000, response.JsonRpcError.Error.Code)
	assert.Contains(t, response.JsonRpcError.Error.Message, "method not found")
}

func Test_Notification(t *testing.T) {
	p, mock := connect(t)

	err := p.Notification("notifications/initialized", nil)
	require.NoError(t, err)

	messages := mock.GetMessages()
	require.Len(t, messages, 1)
	require.Equal(t, transport.BaseMessageTypeJSONRPCNotificationType, messages[0].Type)
	assert.Equal(t, "notifications/initialized", messages[0].JsonRpcNotification.Method)
}

func Test_NotConnected(t *testing.T) {
	p := protocol.NewProtocol()

	_, err := p.Request(context.Background(), "ping", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	err = p.Notification("ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	assert.NoError(t, p.Close())
}
