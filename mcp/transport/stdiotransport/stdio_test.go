package stdiotransport_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/mcphost/mcp/transport/stdiotransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cat echoes every line back, so a sent request comes back as the same
// request message. That is enough to exercise the write and read paths.
func TestStdioTransport_EchoRoundTrip(t *testing.T) {
	tr := stdiotransport.New("cat", nil, nil)

	received := make(chan *transport.BaseJsonRpcMessage, 1)
	closed := make(chan struct{})
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		select {
		case received <- msg:
		default:
		}
	})
	tr.SetCloseHandler(func() { close(closed) })

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	err := tr.Send(ctx, transport.NewBaseMessageRequest(&transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  "tools/list",
		Params:  json.RawMessage(`{}`),
		Id:      transport.RequestId(42),
	}))
	require.NoError(t, err)

	select {
	case msg := <-received:
		require.Equal(t, transport.BaseMessageTypeJSONRPCRequestType, msg.Type)
		assert.Equal(t, "tools/list", msg.JsonRpcRequest.Method)
		assert.Equal(t, transport.RequestId(42), msg.JsonRpcRequest.Id)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}

	require.NoError(t, tr.Close())
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close handler")
	}

	// closed transport refuses sends
	err = tr.Send(ctx, transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/initialized",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrClosed)

	// Close is idempotent
	require.NoError(t, tr.Close())
}

func TestStdioTransport_SkipsMalformedLines(t *testing.T) {
	script := `echo 'this is not json'; echo '{"jsonrpc":"2.0","method":"notifications/tick"}'`
	tr := stdiotransport.New("sh", []string{"-c", script}, nil)

	var mu sync.Mutex
	var errs []error
	received := make(chan *transport.BaseJsonRpcMessage, 4)
	closed := make(chan struct{})

	tr.SetErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		received <- msg
	})
	tr.SetCloseHandler(func() { close(closed) })

	require.NoError(t, tr.Start(context.Background()))

	select {
	case msg := <-received:
		require.Equal(t, transport.BaseMessageTypeJSONRPCNotificationType, msg.Type)
		assert.Equal(t, "notifications/tick", msg.JsonRpcNotification.Method)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification after malformed line")
	}

	// process exits after printing, EOF must fire the close handler
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close handler after EOF")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], transport.ErrParse)

	require.NoError(t, tr.Close())
}

func TestStdioTransport_ProcessExit(t *testing.T) {
	tr := stdiotransport.New("true", nil, nil)

	closed := make(chan struct{})
	tr.SetCloseHandler(func() { close(closed) })

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close handler")
	}

	err := tr.Send(ctx, transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/initialized",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrClosed)

	require.NoError(t, tr.Close())
}

func TestStdioTransport_SpawnFailure(t *testing.T) {
	tr := stdiotransport.New("/nonexistent/definitely-not-a-binary", nil, nil)
	err := tr.Start(context.Background())
	require.Error(t, err)
}

func TestStdioTransport_EnvPassedToProcess(t *testing.T) {
	// the subprocess renders its environment into a notification params
	script := `echo "{\"jsonrpc\":\"2.0\",\"method\":\"notifications/env\",\"params\":{\"value\":\"$TOOLHOST_TEST_VALUE\"}}"`
	tr := stdiotransport.New("sh", []string{"-c", script}, map[string]string{
		"TOOLHOST_TEST_VALUE": "abc123",
	})

	received := make(chan *transport.BaseJsonRpcMessage, 1)
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		select {
		case received <- msg:
		default:
		}
	})

	require.NoError(t, tr.Start(context.Background()))
	defer func() { _ = tr.Close() }()

	select {
	case msg := <-received:
		require.Equal(t, transport.BaseMessageTypeJSONRPCNotificationType, msg.Type)
		var params struct {
			Value string `json:"value"`
		}
		require.NoError(t, json.Unmarshal(msg.JsonRpcNotification.Params, &params))
		assert.Equal(t, "abc123", params.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for env notification")
	}
}
