package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/mcphost/mcp/transport/localtransport"
	"github.com/effective-security/mcphost/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localBridge connects a client transport to an in-process server
// transport so registry tests run without subprocesses.
type localBridge struct {
	server *localtransport.Transport
}

func (b *localBridge) HandleMCP(ctx context.Context, req *localtransport.ProxyRequest) (*localtransport.ProxyResponse, error) {
	msg, err := b.server.HandleMessage(ctx, req.Body)
	if err != nil {
		return nil, err
	}
	if msg.Type == transport.BaseMessageTypeJSONRPCResponseType && msg.JsonRpcResponse == nil {
		return &localtransport.ProxyResponse{Type: msg.Type, Status: http.StatusOK}, nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &localtransport.ProxyResponse{Type: msg.Type, Status: http.StatusOK, Body: body}, nil
}

// stubTransport fails at a chosen phase of the connection.
type stubTransport struct {
	startErr error
	sendErr  error
}

func (s *stubTransport) Start(ctx context.Context) error { return s.startErr }
func (s *stubTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	return s.sendErr
}
func (s *stubTransport) Close() error                { return nil }
func (s *stubTransport) SetCloseHandler(func())      {}
func (s *stubTransport) SetErrorHandler(func(error)) {}
func (s *stubTransport) SetMessageHandler(func(context.Context, *transport.BaseJsonRpcMessage)) {}

type timeArgs struct {
	Format string `json:"format,omitempty" jsonschema:"description=Go time layout"`
}

type weatherArgs struct {
	City string `json:"city" jsonschema:"required,description=City name"`
}

func newTimeServer(t *testing.T) transport.Transport {
	t.Helper()
	st := localtransport.New()
	srv := mcp.NewServer(st, mcp.WithName("time-server"))
	require.NoError(t, srv.RegisterTool("get_time", "Returns the current time", func(args timeArgs) (*mcp.ToolResponse, error) {
		return mcp.NewToolResponse(mcp.NewTextContent("2025-01-01T00:00:00Z")), nil
	}))
	require.NoError(t, srv.Serve())
	return localtransport.NewClientTransport(&localBridge{server: st})
}

func newWeatherServer(t *testing.T) transport.Transport {
	t.Helper()
	st := localtransport.New()
	srv := mcp.NewServer(st, mcp.WithName("weather-server"))
	require.NoError(t, srv.RegisterTool("get_weather", "Returns the weather for a city", func(args weatherArgs) (*mcp.ToolResponse, error) {
		out, _ := json.Marshal(map[string]any{"city": args.City, "temp_c": 21})
		return mcp.NewToolResponse(mcp.NewTextContent(string(out))), nil
	}))
	require.NoError(t, srv.RegisterTool("broken_sensor", "Always fails", func(args weatherArgs) (*mcp.ToolResponse, error) {
		return nil, errors.New("sensor offline")
	}))
	require.NoError(t, srv.Serve())
	return localtransport.NewClientTransport(&localBridge{server: st})
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := registry.Config{
		ClientName:       "test-host",
		ClientVersion:    "0.0.1",
		HandshakeTimeout: 5 * time.Second,
		RequestTimeout:   5 * time.Second,
		ToolTimeout:      5 * time.Second,
	}
	dialer := func(cfg registry.ServerConfig) transport.Transport {
		switch cfg.Command {
		case "time":
			return newTimeServer(t)
		case "weather":
			return newWeatherServer(t)
		case "nospawn":
			return &stubTransport{startErr: errors.New("no such executable")}
		case "nohandshake":
			return &stubTransport{sendErr: errors.New("broken pipe")}
		}
		t.Fatalf("unexpected command: %s", cfg.Command)
		return nil
	}
	return registry.New(cfg, registry.WithDialer(dialer))
}

func TestRegistry_StartStop(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, "time", registry.ServerConfig{Command: "time"}))
	assert.Equal(t, []string{"time"}, r.Servers())

	err := r.Start(ctx, "time", registry.ServerConfig{Command: "time"})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrAlreadyRunning)

	client, err := r.Client("time")
	require.NoError(t, err)
	require.NotNil(t, client)

	_, err = r.Client("other")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	require.NoError(t, r.Stop(ctx, "time"))
	assert.Empty(t, r.Servers())

	// Stopping a server that is not running succeeds.
	require.NoError(t, r.Stop(ctx, "time"))
}

func TestRegistry_StartSpawnFailed(t *testing.T) {
	r := newRegistry(t)

	err := r.Start(context.Background(), "bad", registry.ServerConfig{Command: "nospawn"})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrSpawnFailed)
	assert.Contains(t, err.Error(), "no such executable")
	assert.Empty(t, r.Servers())
}

func TestRegistry_StartHandshakeFailed(t *testing.T) {
	r := newRegistry(t)

	err := r.Start(context.Background(), "bad", registry.ServerConfig{Command: "nohandshake"})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrHandshakeFailed)
	assert.Empty(t, r.Servers())
}

func TestRegistry_Tools(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, "time", registry.ServerConfig{Command: "time"}))
	require.NoError(t, r.Start(ctx, "weather", registry.ServerConfig{Command: "weather"}))

	page, err := r.ListTools(ctx, "time", nil)
	require.NoError(t, err)
	require.Len(t, page.Tools, 1)
	assert.Equal(t, "get_time", page.Tools[0].Name)

	_, err = r.ListTools(ctx, "missing", nil)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	all, err := r.ListAllTools(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "time", all[0].Server)
	require.Len(t, all[0].Tools, 1)
	assert.Equal(t, "weather", all[1].Server)
	require.Len(t, all[1].Tools, 2)

	owner, err := r.FindToolServer(ctx, "get_weather")
	require.NoError(t, err)
	assert.Equal(t, "weather", owner)

	_, err = r.FindToolServer(ctx, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrToolNotFound)
	assert.Contains(t, err.Error(), "not found on any active server")
}

func TestRegistry_CallTool(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, "time", registry.ServerConfig{Command: "time"}))
	require.NoError(t, r.Start(ctx, "weather", registry.ServerConfig{Command: "weather"}))

	out, err := r.CallTool(ctx, "time", "get_time", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T00:00:00Z", out)

	// JSON output comes back pretty-printed in a fenced block.
	out, err = r.CallTool(ctx, "weather", "get_weather", map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Contains(t, out, "```json")
	assert.Contains(t, out, `"city": "Oslo"`)

	// A failing tool is data for the conversation, not a call error.
	out, err = r.CallTool(ctx, "weather", "broken_sensor", map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "TOOL ERROR:\n"), out)
	assert.Contains(t, out, "sensor offline")

	_, err = r.CallTool(ctx, "missing", "get_time", nil)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = r.CallTool(ctx, "time", "no_such_tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")

	raw, err := r.CallToolRaw(ctx, "time", "get_time", nil)
	require.NoError(t, err)
	require.Len(t, raw.Content, 1)
	assert.Equal(t, "2025-01-01T00:00:00Z", raw.Content[0].TextContent.Text)
}

func TestRegistry_StopAll(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, "time", registry.ServerConfig{Command: "time"}))
	require.NoError(t, r.Start(ctx, "weather", registry.ServerConfig{Command: "weather"}))
	require.Len(t, r.Servers(), 2)

	require.NoError(t, r.StopAll(ctx))
	assert.Empty(t, r.Servers())
}
