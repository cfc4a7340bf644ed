package mcp

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp/internal/protocol"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost", "mcp")

// Progress is a progress update received for an in-flight request.
type Progress = protocol.Progress

// NotificationHandler receives server notifications that have no
// dedicated handler.
type NotificationHandler func(method string, params json.RawMessage)

// Client drives one MCP server over a transport. It owns the handshake
// and exposes the typed tool operations the host needs.
type Client struct {
	protocol  *protocol.Protocol
	transport transport.Transport

	clientInfo      Implementation
	protocolVersion string
	requestTimeout  time.Duration

	mu                  sync.RWMutex
	initialized         bool
	serverInfo          *Implementation
	serverCapabilities  *ServerCapabilities
	notificationHandler NotificationHandler
	closeHandler        func()
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientInfo sets the name and version advertised to the server.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.clientInfo = Implementation{Name: name, Version: version}
	}
}

// WithProtocolVersion sets the protocol revision offered in the handshake.
func WithProtocolVersion(version string) ClientOption {
	return func(c *Client) {
		c.protocolVersion = version
	}
}

// WithRequestTimeout bounds every request issued by the client.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// NewClient creates a client over the given transport. The connection
// is not opened until Initialize.
func NewClient(tr transport.Transport, opts ...ClientOption) *Client {
	c := &Client{
		protocol:        protocol.NewProtocol(),
		transport:       tr,
		clientInfo:      Implementation{Name: "mcphost", Version: "dev"},
		protocolVersion: LatestProtocolVersion,
		requestTimeout:  protocol.DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.protocol.FallbackNotificationHandler = func(notification *transport.BaseJSONRPCNotification) error {
		c.mu.RLock()
		handler := c.notificationHandler
		c.mu.RUnlock()
		if handler != nil {
			handler(notification.Method, notification.Params)
		}
		return nil
	}
	c.protocol.OnClose = func() {
		c.mu.RLock()
		handler := c.closeHandler
		c.mu.RUnlock()
		if handler != nil {
			handler()
		}
	}
	c.protocol.OnError = func(err error) {
		logger.KV(xlog.DEBUG, "server", c.clientInfo.Name, "err", err.Error())
	}

	return c
}

// OnNotification installs the handler for server notifications without
// a dedicated handler. The latest handler wins; previous ones are
// replaced, never stacked.
func (c *Client) OnNotification(handler NotificationHandler) {
	c.mu.Lock()
	c.notificationHandler = handler
	c.mu.Unlock()
}

// OnClose installs a handler invoked when the connection closes for any
// reason. The latest handler wins.
func (c *Client) OnClose(handler func()) {
	c.mu.Lock()
	c.closeHandler = handler
	c.mu.Unlock()
}

// Initialize opens the transport and performs the MCP handshake:
// initialize request, protocol version check, then the initialized
// notification. The client is unusable until it succeeds.
func (c *Client) Initialize(ctx context.Context) (*InitializeResponse, error) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil, errors.New("client already initialized")
	}
	c.mu.Unlock()

	if err := c.protocol.Connect(ctx, c.transport); err != nil {
		return nil, errors.WithMessage(err, "failed to start transport")
	}

	params := InitializeParams{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      c.clientInfo,
	}
	raw, err := c.request(ctx, "initialize", params)
	if err != nil {
		return nil, errors.WithMessage(err, "initialize request failed")
	}

	var res InitializeResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal initialize response")
	}
	if !slices.Contains(supportedProtocolVersions, res.ProtocolVersion) {
		return nil, errors.Newf("unsupported protocol version: %q", res.ProtocolVersion)
	}

	if err := c.protocol.Notification("notifications/initialized", struct{}{}); err != nil {
		return nil, errors.WithMessage(err, "failed to send initialized notification")
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = &res.ServerInfo
	c.serverCapabilities = &res.Capabilities
	c.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", res.ServerInfo.Name,
		"version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)

	return &res, nil
}

// GetServerInfo returns the server identity learned in the handshake.
func (c *Client) GetServerInfo() *Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// GetServerCapabilities returns the capabilities learned in the handshake.
func (c *Client) GetServerCapabilities() *ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverCapabilities
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	_, err := c.request(ctx, "ping", struct{}{})
	return err
}

// ListTools fetches one page of the server's tool list. A nil cursor
// requests the first page.
func (c *Client) ListTools(ctx context.Context, cursor *string) (*ToolsResponse, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}

	params := map[string]any{}
	if cursor != nil {
		params["cursor"] = *cursor
	}
	raw, err := c.request(ctx, "tools/list", params)
	if err != nil {
		return nil, err
	}

	var res ToolsResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tools list")
	}
	return &res, nil
}

// ListAllTools follows pagination cursors until the server's tool list
// is exhausted.
func (c *Client) ListAllTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	var cursor *string
	for {
		page, err := c.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// CallOption configures a single tools/call request.
type CallOption func(*callOptions)

type callOptions struct {
	timeout    time.Duration
	onProgress func(Progress)
}

// WithCallTimeout overrides the client timeout for one call.
func WithCallTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}

// WithProgressHandler receives progress updates for one call.
func WithProgressHandler(handler func(Progress)) CallOption {
	return func(o *callOptions) {
		o.onProgress = handler
	}
}

// CallTool executes a tool on the server and returns its result. A
// tool-level failure arrives as IsError on the response, not as an
// error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, opts ...CallOption) (*ToolResponse, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}

	co := callOptions{timeout: c.requestTimeout}
	for _, opt := range opts {
		opt(&co)
	}

	ro := &protocol.RequestOptions{
		Timeout:    co.timeout,
		OnProgress: co.onProgress,
	}
	raw, err := c.protocol.Request(ctx, "tools/call", CallToolParams{
		Name:      name,
		Arguments: args,
	}, ro)
	if err != nil {
		return nil, err
	}

	var res ToolResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool response")
	}
	return &res, nil
}

// Close shuts down the transport. Pending requests fail with
// transport.ErrClosed. Safe to call more than once.
func (c *Client) Close() error {
	return c.protocol.Close()
}

func (c *Client) checkInitialized() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return errors.New("client not initialized")
	}
	return nil
}

func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.protocol.Request(ctx, method, params, &protocol.RequestOptions{
		Timeout: c.requestTimeout,
	})
}
