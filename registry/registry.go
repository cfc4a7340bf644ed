// Package registry manages the lifecycle of MCP tool servers and routes
// tool calls to them by server name.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/mcphost/mcp/transport/stdiotransport"
	"github.com/effective-security/mcphost/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost", "registry")

var (
	// ErrNotFound is returned for operations on a server name that is
	// not running.
	ErrNotFound = errors.New("server not found")
	// ErrAlreadyRunning is returned by Start when the name is taken.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrSpawnFailed is returned when the server process could not be
	// launched.
	ErrSpawnFailed = errors.New("failed to spawn server")
	// ErrHandshakeFailed is returned when the process launched but the
	// initialize exchange did not complete.
	ErrHandshakeFailed = errors.New("initialize handshake failed")
	// ErrToolNotFound is returned by FindToolServer when no running
	// server advertises the tool.
	ErrToolNotFound = errors.New("tool not found on any active server")
)

// Dialer produces the transport used to reach one server.
// The default spawns a subprocess; tests substitute in-process transports.
type Dialer func(cfg ServerConfig) transport.Transport

// StdioDialer launches the configured command as a subprocess.
func StdioDialer(cfg ServerConfig) transport.Transport {
	return stdiotransport.New(cfg.Command, cfg.Args, cfg.Env)
}

// server pairs a running client with the config it was launched from.
type server struct {
	config ServerConfig
	client *mcp.Client
}

// Registry tracks running tool servers by name. The registry lock guards
// only the name map; spawning, handshakes and tool calls happen outside
// it so a slow server never blocks operations on the others.
type Registry struct {
	cfg    Config
	dialer Dialer

	mu      sync.RWMutex
	servers map[string]*server
}

// Option configures a Registry.
type Option func(*Registry)

// WithDialer overrides how server transports are created.
func WithDialer(d Dialer) Option {
	return func(r *Registry) {
		r.dialer = d
	}
}

// New creates a registry with the given configuration.
// Zero timeouts fall back to the documented defaults.
func New(cfg Config, opts ...Option) *Registry {
	if cfg.ClientName == "" {
		cfg.ClientName = "mcphost"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 120 * time.Second
	}
	r := &Registry{
		cfg:     cfg,
		dialer:  StdioDialer,
		servers: make(map[string]*server),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the named server and performs the initialize handshake,
// bounded by the handshake timeout. The name must not be in use.
func (r *Registry) Start(ctx context.Context, name string, cfg ServerConfig) error {
	r.mu.RLock()
	_, exists := r.servers[name]
	r.mu.RUnlock()
	if exists {
		return errors.WithMessagef(ErrAlreadyRunning, "server %q", name)
	}

	hctx, cancel := context.WithTimeout(ctx, r.cfg.HandshakeTimeout)
	defer cancel()

	tr := r.dialer(cfg)
	if err := tr.Start(hctx); err != nil {
		metricskey.StatsServersStartFailed.IncrCounter(1, name)
		return errors.WithMessagef(ErrSpawnFailed, "server %q, command %q: %s", name, cfg.Command, err.Error())
	}

	client := mcp.NewClient(tr,
		mcp.WithClientInfo(r.cfg.ClientName, r.cfg.ClientVersion),
		mcp.WithRequestTimeout(r.cfg.RequestTimeout),
	)
	res, err := client.Initialize(hctx)
	if err != nil {
		_ = tr.Close()
		metricskey.StatsServersStartFailed.IncrCounter(1, name)
		return errors.WithMessagef(ErrHandshakeFailed, "server %q: %s", name, err.Error())
	}

	r.mu.Lock()
	if _, exists := r.servers[name]; exists {
		r.mu.Unlock()
		// Lost a start race for the same name; ours is the duplicate.
		_ = client.Close()
		return errors.WithMessagef(ErrAlreadyRunning, "server %q", name)
	}
	r.servers[name] = &server{config: cfg, client: client}
	r.mu.Unlock()

	metricskey.StatsServersStarted.IncrCounter(1, name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "server_started",
		"server", name,
		"server_name", res.ServerInfo.Name,
		"server_version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)
	return nil
}

// Stop shuts the named server down. Stopping a server that is not
// running is not an error.
func (r *Registry) Stop(ctx context.Context, name string) error {
	r.mu.Lock()
	srv, ok := r.servers[name]
	delete(r.servers, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	metricskey.StatsServersStopped.IncrCounter(1, name)
	logger.ContextKV(ctx, xlog.DEBUG, "status", "server_stopped", "server", name)
	if err := srv.client.Close(); err != nil {
		return errors.WithMessagef(err, "failed to stop server %q", name)
	}
	return nil
}

// StopAll stops every running server, continuing past failures.
// The first error encountered is returned.
func (r *Registry) StopAll(ctx context.Context) error {
	var first error
	for _, name := range r.Servers() {
		if err := r.Stop(ctx, name); err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "server", name, "err", err.Error())
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Servers returns the names of running servers in sorted order.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Client returns the live client for a running server.
func (r *Registry) Client(name string) (*mcp.Client, error) {
	srv, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return srv.client, nil
}

// ListTools fetches one page of tools from the named server.
func (r *Registry) ListTools(ctx context.Context, name string, cursor *string) (*mcp.ToolsResponse, error) {
	srv, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	res, err := srv.client.ListTools(ctx, cursor)
	if err != nil {
		return nil, errors.WithMessagef(err, "server %q", name)
	}
	return res, nil
}

// ServerTools groups the tools advertised by one running server.
type ServerTools struct {
	Server string
	Tools  []mcp.Tool
}

// ListAllTools fetches the complete tool list from every running server,
// ordered by server name. A server that fails to list is logged and
// skipped so one bad server does not hide the others.
func (r *Registry) ListAllTools(ctx context.Context) ([]ServerTools, error) {
	res := make([]ServerTools, 0)
	for _, name := range r.Servers() {
		srv, err := r.lookup(name)
		if err != nil {
			// Stopped between the snapshot and now.
			continue
		}
		tools, err := srv.client.ListAllTools(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "server", name, "err", err.Error())
			continue
		}
		res = append(res, ServerTools{Server: name, Tools: tools})
	}
	return res, nil
}

// FindToolServer returns the name of the first running server, in name
// order, that advertises the given tool.
func (r *Registry) FindToolServer(ctx context.Context, toolName string) (string, error) {
	for _, name := range r.Servers() {
		srv, err := r.lookup(name)
		if err != nil {
			continue
		}
		tools, err := srv.client.ListAllTools(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "server", name, "err", err.Error())
			continue
		}
		for _, tool := range tools {
			if tool.Name == toolName {
				return name, nil
			}
		}
	}
	metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
	return "", errors.WithMessagef(ErrToolNotFound, "tool %q", toolName)
}

// CallTool invokes a tool on the named server and returns its result
// flattened to text. A tool-level failure is reported in the text with a
// TOOL ERROR prefix, not as an error; errors mean the call itself could
// not be made.
func (r *Registry) CallTool(ctx context.Context, name, toolName string, args map[string]any) (string, error) {
	res, err := r.CallToolRaw(ctx, name, toolName, args)
	if err != nil {
		return "", err
	}
	return FormatResult(res), nil
}

// CallToolRaw invokes a tool on the named server and returns the
// response as delivered, including per-item content.
func (r *Registry) CallToolRaw(ctx context.Context, name, toolName string, args map[string]any) (*mcp.ToolResponse, error) {
	srv, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	res, err := srv.client.CallTool(ctx, toolName, args, mcp.WithCallTimeout(r.cfg.ToolTimeout))
	metricskey.PerfToolCall.MeasureSince(started, toolName)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		return nil, errors.WithMessagef(err, "server %q, tool %q", name, toolName)
	}
	if res.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
	} else {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)
	}
	return res, nil
}

func (r *Registry) lookup(name string) (*server, error) {
	r.mu.RLock()
	srv, ok := r.servers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "server %q", name)
	}
	return srv, nil
}
