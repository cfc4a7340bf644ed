package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"slices"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp/internal/protocol"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/mcphost/pkg/schema"
)

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	toolResponseType = reflect.TypeOf((*ToolResponse)(nil))
)

// Server exposes registered tools over a transport. Tool handlers are
// plain typed functions; their argument schema is reflected into the
// tool declaration.
type Server struct {
	protocol  *protocol.Protocol
	transport transport.Transport

	name            string
	version         string
	instructions    string
	paginationLimit *int

	mu      sync.RWMutex
	tools   map[string]*registeredTool
	started bool
}

type registeredTool struct {
	tool    Tool
	handler *toolHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithName sets the server name advertised in the handshake.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version advertised in the handshake.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithInstructions sets usage instructions returned in the handshake.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithPaginationLimit caps the page size of list responses.
func WithPaginationLimit(limit int) ServerOption {
	return func(s *Server) {
		s.paginationLimit = &limit
	}
}

// NewServer creates a server over the given transport. Call Serve to
// start answering requests.
func NewServer(tr transport.Transport, opts ...ServerOption) *Server {
	s := &Server{
		protocol:  protocol.NewProtocol(),
		transport: tr,
		name:      "mcphost-server",
		version:   "dev",
		tools:     make(map[string]*registeredTool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve registers the protocol handlers and starts the transport.
func (s *Server) Serve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("server already started")
	}

	s.protocol.SetRequestHandler("initialize", s.handleInitialize)
	s.protocol.SetRequestHandler("ping", s.handlePing)
	s.protocol.SetRequestHandler("tools/list", s.handleListTools)
	s.protocol.SetRequestHandler("tools/call", s.handleToolCalls)

	if err := s.protocol.Connect(context.Background(), s.transport); err != nil {
		return errors.WithMessage(err, "failed to start transport")
	}
	s.started = true
	return nil
}

// RegisterTool adds a tool. The handler must be
// func(args T) (*ToolResponse, error) or
// func(ctx context.Context, args T) (*ToolResponse, error); T's JSON
// schema becomes the tool's input schema. Registering while serving
// emits a tools/list_changed notification.
func (s *Server) RegisterTool(name string, description string, handler any) error {
	th, err := newToolHandler(handler)
	if err != nil {
		return errors.WithMessagef(err, "invalid handler for tool %q", name)
	}

	ws, err := schema.NewToolInput(th.argsType)
	if err != nil {
		return errors.WithMessagef(err, "failed to build schema for tool %q", name)
	}
	rawSchema, err := json.Marshal(ws)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal schema for tool %q", name)
	}

	s.mu.Lock()
	s.tools[name] = &registeredTool{
		tool: Tool{
			Name:        name,
			Description: description,
			InputSchema: rawSchema,
		},
		handler: th,
	}
	started := s.started
	s.mu.Unlock()

	if started {
		return s.notifyToolListChanged()
	}
	return nil
}

// DeregisterTool removes a tool. Removing while serving emits a
// tools/list_changed notification.
func (s *Server) DeregisterTool(name string) error {
	s.mu.Lock()
	if _, ok := s.tools[name]; !ok {
		s.mu.Unlock()
		return errors.Newf("unknown tool: %s", name)
	}
	delete(s.tools, name)
	started := s.started
	s.mu.Unlock()

	if started {
		return s.notifyToolListChanged()
	}
	return nil
}

func (s *Server) notifyToolListChanged() error {
	return s.protocol.Notification("notifications/tools/list_changed", struct{}{})
}

func (s *Server) handleInitialize(ctx context.Context, req *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal initialize params")
		}
	}

	// Accept the client's revision when we speak it, otherwise answer
	// with the latest we support.
	version := LatestProtocolVersion
	if slices.Contains(supportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	return InitializeResponse{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: true},
		},
		ServerInfo: Implementation{
			Name:    s.name,
			Version: s.version,
		},
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(ctx context.Context, req *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	return struct{}{}, nil
}

func (s *Server) handleListTools(ctx context.Context, req *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params struct {
		Cursor *string `json:"cursor"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal list params")
		}
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	byName := make(map[string]Tool, len(s.tools))
	for name, rt := range s.tools {
		byName[name] = rt.tool
	}
	limit := s.paginationLimit
	s.mu.RUnlock()

	start := 0
	if params.Cursor != nil {
		decoded, err := base64.StdEncoding.DecodeString(*params.Cursor)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode cursor")
		}
		cursorName := string(decoded)
		start = sort.SearchStrings(names, cursorName)
		if start < len(names) && names[start] == cursorName {
			start++
		}
	}

	end := len(names)
	var nextCursor *string
	if limit != nil && start+*limit < len(names) {
		end = start + *limit
		encoded := base64.StdEncoding.EncodeToString([]byte(names[end-1]))
		nextCursor = &encoded
	}

	tools := make([]Tool, 0, end-start)
	for _, name := range names[start:end] {
		tools = append(tools, byName[name])
	}
	return ToolsResponse{
		Tools:      tools,
		NextCursor: nextCursor,
	}, nil
}

// toolResponseSent defers rendering of the tool outcome: a tool-level
// error marshals as isError content rather than a protocol error.
type toolResponseSent struct {
	Response *ToolResponse
	Error    error
}

func (r toolResponseSent) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(NewToolErrorResponse(r.Error.Error()))
	}
	return json.Marshal(r.Response)
}

func (s *Server) handleToolCalls(ctx context.Context, req *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal arguments")
	}

	s.mu.RLock()
	rt := s.tools[params.Name]
	s.mu.RUnlock()

	if rt == nil {
		return nil, errors.Newf("unknown tool: %s", params.Name)
	}

	sent := &toolResponseSent{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				sent.Response = nil
				sent.Error = errors.Newf("internal error: %v", r)
			}
		}()
		sent.Response, sent.Error = rt.handler.invoke(ctx, params.Arguments)
	}()
	return sent, nil
}

// toolHandler invokes a typed tool function through reflection.
type toolHandler struct {
	fn       reflect.Value
	argsType reflect.Type
	hasCtx   bool
}

func newToolHandler(handler any) (*toolHandler, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	t := reflect.TypeOf(handler)
	if t.Kind() != reflect.Func {
		return nil, errors.New("handler must be a function")
	}

	th := &toolHandler{fn: reflect.ValueOf(handler)}
	switch t.NumIn() {
	case 1:
		th.argsType = t.In(0)
	case 2:
		if !t.In(0).Implements(contextType) {
			return nil, errors.New("first argument must be context.Context")
		}
		th.hasCtx = true
		th.argsType = t.In(1)
	default:
		return nil, errors.New("handler must take (args) or (ctx, args)")
	}

	if t.NumOut() != 2 || t.Out(0) != toolResponseType || t.Out(1) != errorType {
		return nil, errors.New("handler must return (*ToolResponse, error)")
	}
	return th, nil
}

func (h *toolHandler) invoke(ctx context.Context, rawArgs json.RawMessage) (*ToolResponse, error) {
	args := reflect.New(h.argsType)
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, args.Interface()); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal arguments")
		}
	}

	var in []reflect.Value
	if h.hasCtx {
		in = []reflect.Value{reflect.ValueOf(ctx), args.Elem()}
	} else {
		in = []reflect.Value{args.Elem()}
	}

	out := h.fn.Call(in)
	resp, _ := out[0].Interface().(*ToolResponse)
	err, _ := out[1].Interface().(error)
	return resp, err
}
