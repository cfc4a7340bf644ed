package callbacks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/callbacks"
	"github.com/effective-security/mcphost/conversation"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)

	ctx := context.Background()
	state := &conversation.State{ID: "chat1"}

	cb.OnResolveStart(ctx, state, "initial response")
	cb.OnGenerationStart(ctx, "openai-gpt")
	cb.OnGenerationEnd(ctx, "openai-gpt", "generated text")
	cb.OnToolStart(ctx, "get_time", map[string]any{"format": "RFC3339"})
	cb.OnToolEnd(ctx, "get_time", "2025-01-01T00:00:00Z")
	cb.OnToolError(ctx, "get_weather", errors.New("sensor offline"))
	cb.OnToolNotFound(ctx, "missing_tool")
	cb.OnVerification(ctx, false, "criteria 2 not met")
	cb.OnResolveEnd(ctx, state, &conversation.Outcome{FinalResponse: "done"})
	cb.OnResolveError(ctx, state, errors.New("generator down"))

	res := buf.String()
	assert.Contains(t, res, "Resolve Start: chat1")
	assert.Contains(t, res, "Response: initial response")
	assert.Contains(t, res, "Generation Start: openai-gpt")
	assert.Contains(t, res, "Generation End: openai-gpt")
	assert.Contains(t, res, "Tool Start: get_time")
	assert.Contains(t, res, `"format":"RFC3339"`)
	assert.Contains(t, res, "Tool End: get_time")
	assert.Contains(t, res, "Output: 2025-01-01T00:00:00Z")
	assert.Contains(t, res, "Tool Error: get_weather: sensor offline")
	assert.Contains(t, res, "Tool Not Found: missing_tool")
	assert.Contains(t, res, "Verification: passed=false")
	assert.Contains(t, res, "Feedback: criteria 2 not met")
	assert.Contains(t, res, "Resolve End: chat1")
	assert.Contains(t, res, "Resolve Error: chat1: generator down")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	fan := callbacks.NewFanout(
		callbacks.NewNoop(),
		callbacks.NewPrinter(&buf1, callbacks.ModeDefault),
	)
	fan.Add(callbacks.NewPrinter(&buf2, callbacks.ModeVerbose))

	ctx := context.Background()
	state := &conversation.State{ID: "chat1"}

	fan.OnResolveStart(ctx, state, "resp")
	fan.OnToolStart(ctx, "get_time", nil)
	fan.OnToolEnd(ctx, "get_time", "out")
	fan.OnVerification(ctx, true, "")
	fan.OnResolveEnd(ctx, state, &conversation.Outcome{FinalResponse: "done"})

	for _, res := range []string{buf1.String(), buf2.String()} {
		assert.Contains(t, res, "Resolve Start: chat1")
		assert.Contains(t, res, "Tool Start: get_time")
		assert.Contains(t, res, "Tool End: get_time")
		assert.Contains(t, res, "Verification: passed=true")
		assert.Contains(t, res, "Resolve End: chat1")
	}
	// Verbose-only output
	assert.NotContains(t, buf1.String(), "Output: out")
	assert.Contains(t, buf2.String(), "Output: out")
}

func TestPackageLogger(t *testing.T) {
	ctx := context.Background()
	state := &conversation.State{ID: "chat1"}

	cb := callbacks.NewPackageLogger(xlog.NewPackageLogger("test", "callbacks"))
	cb.OnResolveStart(ctx, state, "resp")
	cb.OnGenerationStart(ctx, "gen")
	cb.OnGenerationEnd(ctx, "gen", "text")
	cb.OnToolStart(ctx, "tool", nil)
	cb.OnToolEnd(ctx, "tool", "out")
	cb.OnToolError(ctx, "tool", errors.New("boom"))
	cb.OnToolNotFound(ctx, "tool")
	cb.OnVerification(ctx, true, "")
	cb.OnResolveEnd(ctx, state, &conversation.Outcome{})
	cb.OnResolveError(ctx, state, errors.New("boom"))
}
