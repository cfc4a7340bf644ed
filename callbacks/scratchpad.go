package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/mcphost/chatmodel"
	"github.com/effective-security/mcphost/conversation"
	"github.com/effective-security/mcphost/pkg/llmutils"
)

// ensure Scratchpad implements conversation.Callback
var _ conversation.Callback = (*Scratchpad)(nil)

var TimeNowFn = time.Now

// RunStats accumulates counters for one run of a conversation.
type RunStats struct {
	ChatID string

	Duration            time.Duration
	Resolves            uint32
	ResolvesFailed      uint32
	GenerationCalls     uint32
	GeneratedBytes      uint64
	ToolCalls           uint32
	ToolCallsSucceeded  uint32
	ToolCallsFailed     uint32
	ToolNotFound        uint32
	VerificationsPassed uint32
	VerificationsFailed uint32
}

// Scratchpad collects a timestamped event log and run statistics per chat.
// The chat is identified through the chatmodel context; events arriving
// without a started run are dropped.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun begins collecting events for the chat in the context.
func (l *Scratchpad) StartRun(ctx context.Context) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	r := &run{
		stats:   RunStats{ChatID: chatCtx.GetChatID()},
		chatID:  chatCtx.GetChatID(),
		started: time.Now(),
	}
	l.runs[chatCtx.GetChatID()] = r
	r.print("*** Run Started ***")
}

// EndRun finishes the chat's run and returns its stats and event log.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Resolves: %d, Failed: %d",
		stats.Resolves,
		stats.ResolvesFailed,
	))
	run.print(fmt.Sprintf("Generation calls: %d, Bytes: %d",
		stats.GenerationCalls,
		stats.GeneratedBytes,
	))
	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolCalls,
		stats.ToolCallsFailed,
		stats.ToolNotFound,
	))

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.chatID)
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[chatCtx.GetChatID()]
}

func (l *Scratchpad) OnResolveStart(ctx context.Context, state *conversation.State, response string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.Resolves, 1)
	run.print("*** Resolve Start ***")
	if l.mode == ModeVerbose {
		run.print("Response:", response)
	}
}

func (l *Scratchpad) OnResolveEnd(ctx context.Context, state *conversation.State, outcome *conversation.Outcome) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	if l.mode == ModeVerbose {
		run.print("Final:", outcome.FinalResponse)
	}
	run.print(fmt.Sprintf("*** Resolve End. Rounds: %d ***", state.Rounds))
}

func (l *Scratchpad) OnResolveError(ctx context.Context, state *conversation.State, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ResolvesFailed, 1)
	run.print("*** Resolve Error ***", err.Error())
}

func (l *Scratchpad) OnGenerationStart(ctx context.Context, generator string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.GenerationCalls, 1)
	run.print(generator, "*** Generation Start ***")
}

func (l *Scratchpad) OnGenerationEnd(ctx context.Context, generator string, response string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint64(&run.stats.GeneratedBytes, uint64(len(response)))
	run.print(generator, "*** Generation End ***", fmt.Sprintf("%d bytes", len(response)))
	if l.mode == ModeVerbose {
		run.print(response)
	}
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCalls, 1)
	run.print(tool, "*** Tool Start ***")
	run.print(tool, "Arguments:", llmutils.ToJSON(args))
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool string, output string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(tool, "Output:", output)
	}
	run.print(tool, "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCallsFailed, 1)
	run.print(tool, "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print(tool, "*** Tool Not Found ***")
}

func (l *Scratchpad) OnVerification(ctx context.Context, passed bool, feedback string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	if passed {
		atomic.AddUint32(&run.stats.VerificationsPassed, 1)
	} else {
		atomic.AddUint32(&run.stats.VerificationsFailed, 1)
	}
	run.print("*** Verification ***", fmt.Sprintf("passed=%v", passed), feedback)
}

type run struct {
	chatID  string
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp chatID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.chatID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
