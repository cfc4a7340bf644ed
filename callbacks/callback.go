// Package callbacks provides ready-made handlers for conversation engine
// events: a no-op, a writer printer, a package logger and a fanout.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcphost/conversation"
	"github.com/effective-security/mcphost/pkg/llmutils"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ conversation.Callback = (*Noop)(nil)
	_ conversation.Callback = (*Printer)(nil)
	_ conversation.Callback = (*PackageLogger)(nil)
	_ conversation.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []conversation.Callback
}

func NewFanout(callbacks ...conversation.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback conversation.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnResolveStart(ctx context.Context, state *conversation.State, response string) {
	for _, callback := range l.callbacks {
		callback.OnResolveStart(ctx, state, response)
	}
}

func (l *Fanout) OnResolveEnd(ctx context.Context, state *conversation.State, outcome *conversation.Outcome) {
	for _, callback := range l.callbacks {
		callback.OnResolveEnd(ctx, state, outcome)
	}
}

func (l *Fanout) OnResolveError(ctx context.Context, state *conversation.State, err error) {
	for _, callback := range l.callbacks {
		callback.OnResolveError(ctx, state, err)
	}
}

func (l *Fanout) OnGenerationStart(ctx context.Context, generator string) {
	for _, callback := range l.callbacks {
		callback.OnGenerationStart(ctx, generator)
	}
}

func (l *Fanout) OnGenerationEnd(ctx context.Context, generator string, response string) {
	for _, callback := range l.callbacks {
		callback.OnGenerationEnd(ctx, generator, response)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, args)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

func (l *Fanout) OnVerification(ctx context.Context, passed bool, feedback string) {
	for _, callback := range l.callbacks {
		callback.OnVerification(ctx, passed, feedback)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnResolveStart(ctx context.Context, state *conversation.State, response string) {}
func (l *Noop) OnResolveEnd(ctx context.Context, state *conversation.State, outcome *conversation.Outcome) {
}
func (l *Noop) OnResolveError(ctx context.Context, state *conversation.State, err error)  {}
func (l *Noop) OnGenerationStart(ctx context.Context, generator string)                   {}
func (l *Noop) OnGenerationEnd(ctx context.Context, generator string, response string)    {}
func (l *Noop) OnToolStart(ctx context.Context, tool string, args map[string]any)         {}
func (l *Noop) OnToolEnd(ctx context.Context, tool string, output string)                 {}
func (l *Noop) OnToolError(ctx context.Context, tool string, err error)                   {}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string)                           {}
func (l *Noop) OnVerification(ctx context.Context, passed bool, feedback string)          {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnResolveStart(ctx context.Context, state *conversation.State, response string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Resolve Start: %s\n", state.ID)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Response: %s\n", response)
	}
}

func (l *Printer) OnResolveEnd(ctx context.Context, state *conversation.State, outcome *conversation.Outcome) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Resolve End: %s\n", state.ID)
	if l.Mode == ModeVerbose && outcome.FinalResponse != "" {
		fmt.Fprintln(l.Out, outcome.FinalResponse)
	}
}

func (l *Printer) OnResolveError(ctx context.Context, state *conversation.State, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Resolve Error: %s: %s\n", state.ID, err.Error())
}

func (l *Printer) OnGenerationStart(ctx context.Context, generator string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Generation Start: %s\n", generator)
}

func (l *Printer) OnGenerationEnd(ctx context.Context, generator string, response string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Generation End: %s\n", generator)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Response: %s\n", response)
	}
}

func (l *Printer) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool)
	fmt.Fprintf(l.Out, "Arguments: %s\n", llmutils.ToJSON(args))
}

func (l *Printer) OnToolEnd(ctx context.Context, tool string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool, err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnVerification(ctx context.Context, passed bool, feedback string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Verification: passed=%v\n", passed)
	if feedback != "" {
		fmt.Fprintf(l.Out, "Feedback: %s\n", feedback)
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnResolveStart(ctx context.Context, state *conversation.State, response string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "resolve_start",
		"chat_id", state.ID,
		"response_len", len(response),
	)
}

func (l *PackageLogger) OnResolveEnd(ctx context.Context, state *conversation.State, outcome *conversation.Outcome) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "resolve_end",
		"chat_id", state.ID,
		"rounds", state.Rounds,
		"cap_reached", outcome.CapReached,
	)
}

func (l *PackageLogger) OnResolveError(ctx context.Context, state *conversation.State, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "resolve_error",
		"chat_id", state.ID,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnGenerationStart(ctx context.Context, generator string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "generation_start",
		"generator", generator,
	)
}

func (l *PackageLogger) OnGenerationEnd(ctx context.Context, generator string, response string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "generation_end",
		"generator", generator,
		"response_len", len(response),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool,
		"args", llmutils.ToJSON(args),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool,
		"output_len", len(output),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}

func (l *PackageLogger) OnVerification(ctx context.Context, passed bool, feedback string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "verification",
		"passed", passed,
		"feedback", feedback,
	)
}
