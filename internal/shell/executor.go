// Package shell implements the Shell Executor (C4): running external
// commands with streamed stdout/stderr, timeouts, cancellation, and env
// overrides. Every spawned process is made the leader of its own process
// group so cancellation reaches the whole subtree, grounded on the
// teacher's PTY-streaming handler generalized to also cover headless
// (non-interactive) subprocess execution and on the project's own
// process-group requirement (§4.4).
package shell

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	skifferrors "github.com/skiffhost/skiffd/internal/errors"
)

// Status is the closed outcome set for a CommandResult.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// StreamKind discriminates stdout from stderr lines.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
)

// Line is one item of the lazy, finite output sequence.
type Line struct {
	Stream StreamKind
	Text   string
}

// CommandResult is the outcome of run_sync/a completed run_async.
type CommandResult struct {
	Status         Status
	ExitCode       int
	Duration       time.Duration
	CapturedStdout string
	CapturedStderr string
	Error          error
}

// Spec describes one command to run.
type Spec struct {
	Cmd     []string
	Cwd     string
	Env     []string // merged onto the parent environment by the caller
	Timeout time.Duration
	GraceWindow time.Duration // wait after graceful signal before forceful kill; default 5s
}

// handle tracks one in-flight command for cancel()/output_stream().
type handle struct {
	cmd      *exec.Cmd
	lines    chan Line
	done     chan struct{}
	result   CommandResult
	mu       sync.Mutex
	finished bool
}

// Executor runs commands and tracks in-flight ones by command_id.
type Executor struct {
	mu       sync.Mutex
	handles  map[string]*handle
}

func NewExecutor() *Executor {
	return &Executor{handles: make(map[string]*handle)}
}

// RunAsync starts spec and returns a command_id immediately; output is
// available via OutputStream and the eventual result via Wait.
func (e *Executor) RunAsync(ctx context.Context, spec Spec) (string, error) {
	if len(spec.Cmd) == 0 {
		return "", skifferrors.New(skifferrors.KindConfiguration, "shell", "empty command", nil)
	}
	if spec.GraceWindow <= 0 {
		spec.GraceWindow = 5 * time.Second
	}

	cmd := exec.Command(spec.Cmd[0], spec.Cmd[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", skifferrors.New(skifferrors.KindSubprocessFailed, "shell", "stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", skifferrors.New(skifferrors.KindSubprocessFailed, "shell", "stderr pipe", err)
	}

	h := &handle{
		cmd:   cmd,
		lines: make(chan Line, 256),
		done:  make(chan struct{}),
	}

	id := uuid.NewString()
	e.mu.Lock()
	e.handles[id] = h
	e.mu.Unlock()

	if err := cmd.Start(); err != nil {
		close(h.done)
		return "", skifferrors.New(skifferrors.KindSubprocessFailed, "shell", "start", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go pump(stdoutPipe, StreamStdout, h.lines, &stdoutBuf, &wg)
	go pump(stderrPipe, StreamStderr, h.lines, &stderrBuf, &wg)

	start := time.Now()
	go func() {
		waitErr := e.waitWithDeadline(ctx, cmd, spec.Timeout, h, spec.GraceWindow, &wg)

		h.mu.Lock()
		defer h.mu.Unlock()
		h.result.Duration = time.Since(start)
		h.result.CapturedStdout = stdoutBuf.String()
		h.result.CapturedStderr = stderrBuf.String()
		if h.result.Status == "" {
			switch {
			case waitErr == nil:
				h.result.Status = StatusCompleted
				h.result.ExitCode = 0
			default:
				h.result.Status = StatusFailed
				h.result.Error = waitErr
				if exitErr, ok := waitErr.(*exec.ExitError); ok {
					h.result.ExitCode = exitErr.ExitCode()
				} else {
					h.result.ExitCode = -1
				}
			}
		}
		h.finished = true
		close(h.done)
	}()

	return id, nil
}

func pump(r io.Reader, kind StreamKind, out chan<- Line, buf *bytes.Buffer, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		buf.WriteString(text)
		buf.WriteByte('\n')
		select {
		case out <- Line{Stream: kind, Text: text}:
		default:
			// best-effort: a full channel drops the line rather than
			// blocking the subprocess's own pipe.
		}
	}
}

// waitWithDeadline waits for cmd to exit, honoring spec.Timeout and
// ctx cancellation: a graceful SIGTERM to the process group, then a
// forceful SIGKILL after the grace window if it hasn't exited.
func (e *Executor) waitWithDeadline(ctx context.Context, cmd *exec.Cmd, timeout time.Duration, h *handle, grace time.Duration, pumps *sync.WaitGroup) error {
	waitDone := make(chan error, 1)
	go func() {
		// stdout/stderr must be drained before Wait, which closes the pipes.
		pumps.Wait()
		close(h.lines)
		waitDone <- cmd.Wait()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-waitDone:
		return err
	case <-timeoutCh:
		h.mu.Lock()
		h.result.Status = StatusTimeout
		h.mu.Unlock()
		signalGroup(cmd, unix.SIGTERM)
		return e.escalate(waitDone, cmd, grace)
	case <-ctx.Done():
		h.mu.Lock()
		h.result.Status = StatusCancelled
		h.mu.Unlock()
		signalGroup(cmd, unix.SIGTERM)
		return e.escalate(waitDone, cmd, grace)
	}
}

func (e *Executor) escalate(waitDone chan error, cmd *exec.Cmd, grace time.Duration) error {
	select {
	case err := <-waitDone:
		return err
	case <-time.After(grace):
		signalGroup(cmd, unix.SIGKILL)
		return <-waitDone
	}
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Signal(sig)
		return
	}
	_ = unix.Kill(-pgid, sig)
}

// Cancel signals command_id's process group (graceful, escalating to
// forceful after the grace window handled inside waitWithDeadline via
// ctx cancellation at call sites). Returns false if the id is unknown.
func (e *Executor) Cancel(commandID string) bool {
	e.mu.Lock()
	h, ok := e.handles[commandID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	signalGroup(h.cmd, unix.SIGTERM)
	return true
}

// OutputStream returns the lazy, finite sequence of lines for command_id.
// The channel closes when the process's stdio has been fully drained.
func (e *Executor) OutputStream(commandID string) (<-chan Line, bool) {
	e.mu.Lock()
	h, ok := e.handles[commandID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	return h.lines, true
}

// Wait blocks until command_id finishes and returns its result.
func (e *Executor) Wait(commandID string) (CommandResult, bool) {
	e.mu.Lock()
	h, ok := e.handles[commandID]
	e.mu.Unlock()
	if !ok {
		return CommandResult{}, false
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, true
}

// RunSync runs spec to completion and returns its result directly.
func (e *Executor) RunSync(ctx context.Context, spec Spec) (CommandResult, error) {
	id, err := e.RunAsync(ctx, spec)
	if err != nil {
		return CommandResult{}, err
	}
	res, _ := e.Wait(id)
	e.mu.Lock()
	delete(e.handles, id)
	e.mu.Unlock()
	return res, nil
}
