// Package stdiotransport runs a tool server as a subprocess and exchanges
// newline-delimited JSON-RPC messages over its stdin and stdout.
package stdiotransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost/mcp", "stdiotransport")

const (
	// readBufferSize bounds a single response line, large results are common.
	readBufferSize = 1 << 20
	// exitGracePeriod is how long Close waits for the process to exit
	// after stdin is closed before killing it.
	exitGracePeriod = 5 * time.Second
)

// Transport spawns a subprocess and speaks one JSON object per line.
// The reader goroutine runs for the lifetime of the process; writes are
// serialized by a mutex so concurrent requests never interleave frames.
type Transport struct {
	command string
	args    []string
	env     map[string]string

	handlerMu      sync.RWMutex
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	reader  *bufio.Reader
	writeMu sync.Mutex

	started   bool
	closed    atomic.Bool
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
}

// New creates a transport for the given command. The env entries are
// appended to the inherited environment. The subprocess is not started
// until Start is called.
func New(command string, args []string, env map[string]string) *Transport {
	return &Transport{
		command: command,
		args:    args,
		env:     env,
	}
}

// Start launches the subprocess and begins reading its stdout.
// Like Close, Start is idempotent: once the process is running,
// further calls are no-ops.
func (t *Transport) Start(ctx context.Context) error {
	if t.started {
		return nil
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = append(os.Environ(), sortedEnv(t.env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return errors.Wrap(err, "failed to create stdout pipe")
	}
	// stderr is diagnostics only, never part of the protocol
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		return errors.Wrap(err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return errors.Wrapf(err, "failed to start %q", t.command)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, readBufferSize)
	t.started = true

	go t.drainStderr(stderr)
	go t.readLoop()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "started",
		"command", t.command,
		"pid", cmd.Process.Pid,
	)
	return nil
}

// Send writes one message as a single line. It fails immediately with
// ErrClosed once the process has gone away.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if !t.started {
		return errors.New("transport not started")
	}
	if t.closed.Load() {
		return transport.ErrClosed
	}

	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return transport.ErrClosed
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write to subprocess stdin")
	}
	return nil
}

// Close shuts the subprocess down: pending requests are failed, stdin is
// closed to let it exit, and after a grace period it is killed.
// Close is idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.markClosed()

		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd == nil || t.cmd.Process == nil {
			return
		}

		done := make(chan error, 1)
		go func() { done <- t.wait() }()

		select {
		case <-done:
		case <-time.After(exitGracePeriod):
			logger.KV(xlog.WARNING,
				"reason", "kill_after_grace",
				"command", t.command,
				"pid", t.cmd.Process.Pid,
			)
			_ = t.cmd.Process.Kill()
			<-done
		}
	})
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *Transport) SetCloseHandler(handler func()) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.messageHandler = handler
}

// readLoop parses stdout line by line until the pipe closes.
// Unparseable lines are reported and skipped; the loop keeps going.
func (t *Transport) readLoop() {
	ctx := context.Background()
	for {
		line, err := t.reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			msg, perr := transport.UnmarshalMessage(trimmed)
			if perr != nil {
				t.reportError(perr)
			} else {
				t.handlerMu.RLock()
				handler := t.messageHandler
				t.handlerMu.RUnlock()
				if handler != nil {
					handler(ctx, msg)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.closed.Load() {
				t.reportError(errors.Wrap(err, "failed to read from subprocess stdout"))
			}
			t.markClosed()
			// reap so the exited process does not linger
			go func() { _ = t.wait() }()
			return
		}
	}
}

func (t *Transport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		logger.KV(xlog.DEBUG, "command", t.command, "stderr", scanner.Text())
	}
}

// markClosed flips the closed flag and fires the close handler exactly once.
func (t *Transport) markClosed() {
	if t.closed.Swap(true) {
		return
	}
	t.handlerMu.RLock()
	handler := t.closeHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		handler()
	}
}

func (t *Transport) reportError(err error) {
	t.handlerMu.RLock()
	handler := t.errorHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

func (t *Transport) wait() error {
	t.waitOnce.Do(func() { t.waitErr = t.cmd.Wait() })
	return t.waitErr
}

func sortedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := make([]string, 0, len(keys))
	for _, k := range keys {
		res = append(res, k+"="+env[k])
	}
	return res
}
