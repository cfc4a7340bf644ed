package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/generator"
	"github.com/effective-security/mcphost/pkg/llmutils"
	"github.com/effective-security/mcphost/pkg/metricskey"
	"github.com/effective-security/mcphost/toolcall"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost", "conversation")

// ToolCaller executes tools on managed servers.
// *registry.Registry implements it.
type ToolCaller interface {
	// FindToolServer returns the name of a server that provides the tool.
	FindToolServer(ctx context.Context, toolName string) (string, error)
	// CallTool executes the tool on the named server and returns its text output.
	CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

// MessageStore persists transcript messages by conversation ID.
// store.MessageStore implements it.
type MessageStore interface {
	Add(ctx context.Context, chatID string, msg Message) error
}

// Outcome is the result of resolving one conversation turn.
type Outcome struct {
	// FinalResponse is the last model response without tool invocations,
	// or the response in flight when the round cap was reached.
	FinalResponse string
	// Criteria is the success criteria the response was verified against, if any.
	Criteria string
	// VerificationPassed is nil when no verification verdict was reached.
	VerificationPassed *bool
	// VerificationFeedback is the evaluator feedback, or a status note when
	// no verdict was reached.
	VerificationFeedback string
	// CapReached reports that the round cap ended the resolution.
	CapReached bool
}

// Engine resolves conversations over a generator and a set of tools.
// It extracts tool invocations from model responses, executes them, and
// feeds the results back until the model answers in plain text.
type Engine struct {
	gen generator.Generator
	reg ToolCaller
	cfg *Config
}

// NewEngine creates an engine over the generator and tool caller.
func NewEngine(gen generator.Generator, reg ToolCaller, opts ...Option) *Engine {
	return &Engine{
		gen: gen,
		reg: reg,
		cfg: NewConfig(opts...),
	}
}

// Chat runs one full turn: it appends the user input, generates the initial
// response, and resolves it. With verification enabled, success criteria are
// generated first and the final response is verified against them. Criteria
// generation failures are logged and the turn proceeds without verification.
func (e *Engine) Chat(ctx context.Context, state *State, userInput string, opts ...Option) (*Outcome, error) {
	cfg := e.cfg.Apply(opts...)

	input := userInput
	if cfg.Verify && cfg.Criteria == "" {
		criteria, err := e.generateCriteria(ctx, cfg, userInput)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"chat_id", state.ID,
				"reason", "criteria_generation",
				"err", err.Error(),
			)
		} else if criteria != "" {
			cfg.Criteria = criteria
			input = fmt.Sprintf("%s\n\n---\n**Note:** Your response will be evaluated against the following criteria:\n%s\n---",
				userInput, criteria)
		}
	}
	e.addMessage(ctx, cfg, state, RoleUser, input)

	initial, err := e.generate(ctx, cfg, state, "")
	if err != nil {
		return nil, errors.WithMessage(err, "failed to generate response")
	}
	return e.resolveTurn(ctx, cfg, state, initial)
}

// Resolve processes a model response that may contain tool invocations.
// The response and everything produced after it are appended to the
// transcript. A generator failure aborts resolution; tool failures are fed
// back to the model as results.
func (e *Engine) Resolve(ctx context.Context, state *State, response string, opts ...Option) (*Outcome, error) {
	return e.resolveTurn(ctx, e.cfg.Apply(opts...), state, response)
}

func (e *Engine) resolveTurn(ctx context.Context, cfg *Config, state *State, response string) (*Outcome, error) {
	started := time.Now()
	defer metricskey.PerfConversationResolve.MeasureSince(started, e.gen.Name())

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnResolveStart(ctx, state, response)
	}
	out, err := e.resolve(ctx, cfg, state, response)
	if err != nil {
		if callback != nil {
			callback.OnResolveError(ctx, state, err)
		}
		return nil, err
	}
	if callback != nil {
		callback.OnResolveEnd(ctx, state, out)
	}
	return out, nil
}

func (e *Engine) resolve(ctx context.Context, cfg *Config, state *State, response string) (*Outcome, error) {
	e.addMessage(ctx, cfg, state, RoleAssistant, response)

	current := response
	for {
		invocations := toolcall.Extract(current, state.ToolNames())
		logger.ContextKV(ctx, xlog.DEBUG,
			"chat_id", state.ID,
			"rounds", state.Rounds,
			"invocations", len(invocations),
			"response", slices.StringUpto(current, 64),
		)
		if len(invocations) == 0 {
			out, revised := e.conclude(ctx, cfg, state, current)
			if out != nil {
				return out, nil
			}
			current = revised
			continue
		}

		if state.Rounds >= cfg.MaxToolRounds {
			logger.ContextKV(ctx, xlog.WARNING,
				"chat_id", state.ID,
				"rounds", state.Rounds,
				"reason", "max_tool_rounds",
			)
			return &Outcome{
				FinalResponse:        current,
				Criteria:             cfg.Criteria,
				VerificationFeedback: "Max tool rounds reached",
				CapReached:           true,
			}, nil
		}
		state.Rounds++
		metricskey.StatsConversationRounds.IncrCounter(1, e.gen.Name())

		for _, inv := range invocations {
			e.executeTool(ctx, cfg, state, inv)
		}

		next, err := e.generate(ctx, cfg, state, toolResultsDirective())
		if err != nil {
			return nil, errors.WithMessage(err, "failed to generate response after tool execution")
		}
		e.addMessage(ctx, cfg, state, RoleAssistant, next)
		current = next
	}
}

// conclude handles a response without tool invocations: verify it against
// the criteria when set, and on a rejection with feedback give the model a
// chance to revise. A nil outcome means the revised response should be
// processed next. Revisions consume the same round budget as tool rounds.
func (e *Engine) conclude(ctx context.Context, cfg *Config, state *State, current string) (*Outcome, string) {
	if cfg.Criteria == "" {
		return &Outcome{FinalResponse: current}, ""
	}

	res, err := e.verify(ctx, cfg, state, cfg.Criteria, current)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"chat_id", state.ID,
			"reason", "verification",
			"err", err.Error(),
		)
		return &Outcome{
			FinalResponse:        current,
			Criteria:             cfg.Criteria,
			VerificationFeedback: "Verification Error: " + err.Error(),
		}, ""
	}
	if callback := cfg.CallbackHandler; callback != nil {
		callback.OnVerification(ctx, res.Passes, res.Feedback)
	}
	if res.Passes {
		passed := true
		return &Outcome{
			FinalResponse:        current,
			Criteria:             cfg.Criteria,
			VerificationPassed:   &passed,
			VerificationFeedback: res.Feedback,
		}, ""
	}

	failed := false
	if res.Feedback == "" {
		return &Outcome{
			FinalResponse:      current,
			Criteria:           cfg.Criteria,
			VerificationPassed: &failed,
		}, ""
	}
	if state.Rounds >= cfg.MaxToolRounds {
		logger.ContextKV(ctx, xlog.WARNING,
			"chat_id", state.ID,
			"rounds", state.Rounds,
			"reason", "max_tool_rounds",
		)
		return &Outcome{
			FinalResponse:        current,
			Criteria:             cfg.Criteria,
			VerificationPassed:   &failed,
			VerificationFeedback: res.Feedback,
			CapReached:           true,
		}, ""
	}
	state.Rounds++
	metricskey.StatsConversationRounds.IncrCounter(1, e.gen.Name())

	e.addMessage(ctx, cfg, state, RoleSystem, "Verification Feedback: "+res.Feedback)
	e.addMessage(ctx, cfg, state, RoleSystem, revisionDirective)

	revised, err := e.generate(ctx, cfg, state, "")
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"chat_id", state.ID,
			"reason", "revision",
			"err", err.Error(),
		)
		return &Outcome{
			FinalResponse:        current,
			Criteria:             cfg.Criteria,
			VerificationPassed:   &failed,
			VerificationFeedback: res.Feedback,
		}, ""
	}
	e.addMessage(ctx, cfg, state, RoleAssistant, revised)
	return nil, revised
}

// executeTool runs one invocation and appends the outcome to the transcript.
// Failures become results the model can react to, they never abort the turn.
func (e *Engine) executeTool(ctx context.Context, cfg *Config, state *State, inv toolcall.Invocation) {
	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnToolStart(ctx, inv.Name, inv.Arguments)
	}

	server, ok := state.ToolServer(inv.Name)
	if !ok {
		var err error
		server, err = e.reg.FindToolServer(ctx, inv.Name)
		if err != nil {
			if callback != nil {
				callback.OnToolNotFound(ctx, inv.Name)
			}
			e.appendToolError(ctx, cfg, state, inv.Name, err)
			return
		}
	}

	out, err := e.reg.CallTool(ctx, server, inv.Name, inv.Arguments)
	if err != nil {
		if callback != nil {
			callback.OnToolError(ctx, inv.Name, err)
		}
		e.appendToolError(ctx, cfg, state, inv.Name, err)
		return
	}
	out = llmutils.TruncateLines(out, cfg.MaxResultLines)
	if callback != nil {
		callback.OnToolEnd(ctx, inv.Name, out)
	}
	e.addMessage(ctx, cfg, state, RoleAssistant,
		fmt.Sprintf("Tool '%s' returned: %s", inv.Name, strings.TrimSpace(out)))
}

func (e *Engine) appendToolError(ctx context.Context, cfg *Config, state *State, tool string, err error) {
	e.addMessage(ctx, cfg, state, RoleAssistant,
		fmt.Sprintf("Tool '%s' error: %s", tool, err.Error()))
}

// generate calls the generator over the system prompt and full transcript.
// An optional directive is sent as a trailing system message without being
// stored in the transcript.
func (e *Engine) generate(ctx context.Context, cfg *Config, state *State, directive string) (string, error) {
	b := e.gen.Builder()
	if state.SystemPrompt != "" {
		b = b.System(state.SystemPrompt)
	}
	for _, msg := range state.Messages {
		switch msg.Role {
		case RoleSystem:
			b = b.System(msg.Content)
		case RoleUser:
			b = b.User(msg.Content)
		case RoleAssistant:
			b = b.Assistant(msg.Content)
		}
	}
	if directive != "" {
		b = b.System(directive)
	}
	return e.execute(ctx, cfg, b)
}

// execute runs a single generator call with metrics and callbacks.
func (e *Engine) execute(ctx context.Context, cfg *Config, b generator.Builder) (string, error) {
	name := e.gen.Name()
	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnGenerationStart(ctx, name)
	}
	started := time.Now()
	resp, err := b.Execute(ctx)
	metricskey.PerfGenerationCall.MeasureSince(started, name)
	if err != nil {
		metricskey.StatsGenerationsFailed.IncrCounter(1, name)
		return "", err
	}
	metricskey.StatsGenerationsSucceeded.IncrCounter(1, name)
	if callback != nil {
		callback.OnGenerationEnd(ctx, name, resp)
	}
	return resp, nil
}

// addMessage appends to the transcript and mirrors the message to the
// store when one is configured. Store failures are logged, not returned.
func (e *Engine) addMessage(ctx context.Context, cfg *Config, state *State, role Role, content string) {
	msg := Message{Role: role, Content: content}
	state.Append(msg)
	if cfg.Store != nil {
		if err := cfg.Store.Add(ctx, state.ID, msg); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"chat_id", state.ID,
				"reason", "store_add",
				"err", err.Error(),
			)
		}
	}
}
