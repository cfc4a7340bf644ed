package conversation

import "context"

// Callback receives progress events from the conversation engine.
// Implementations must be safe for use across conversations.
type Callback interface {
	// OnResolveStart is called before the engine starts processing a response.
	OnResolveStart(ctx context.Context, state *State, response string)
	// OnResolveEnd is called when resolution finished without a fatal error.
	OnResolveEnd(ctx context.Context, state *State, outcome *Outcome)
	// OnResolveError is called when resolution failed.
	OnResolveError(ctx context.Context, state *State, err error)
	// OnGenerationStart is called before each generator call.
	OnGenerationStart(ctx context.Context, generator string)
	// OnGenerationEnd is called after a successful generator call.
	OnGenerationEnd(ctx context.Context, generator string, response string)
	// OnToolStart is called before a tool invocation is executed.
	OnToolStart(ctx context.Context, tool string, args map[string]any)
	// OnToolEnd is called after a successful tool invocation.
	OnToolEnd(ctx context.Context, tool string, output string)
	// OnToolError is called when a tool invocation failed.
	OnToolError(ctx context.Context, tool string, err error)
	// OnToolNotFound is called when no server provides the requested tool.
	OnToolNotFound(ctx context.Context, tool string)
	// OnVerification is called with the evaluator verdict for a final response.
	OnVerification(ctx context.Context, passed bool, feedback string)
}
