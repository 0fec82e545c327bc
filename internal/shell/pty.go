package shell

import (
	"context"
	"os"
	"os/exec"

	"github.com/creack/pty"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
)

// InteractiveSession is a PTY-backed running process: reads/writes go
// straight through the pseudo-terminal, so the remote end gets a real
// terminal (line editing, job control, color, resize) rather than the
// line-buffered streaming RunAsync gives headless commands.
type InteractiveSession struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// StartInteractive launches spec attached to a pseudo-terminal, for app
// consoles and live log tailing sessions where the original line
// discipline and SIGWINCH resize must reach a remote client end to end.
// Grounded on the teacher's PTY-backed shell stream handler.
func StartInteractive(ctx context.Context, spec Spec) (*InteractiveSession, error) {
	if len(spec.Cmd) == 0 {
		return nil, skifferrors.New(skifferrors.KindConfiguration, "shell", "empty command", nil)
	}
	cmd := exec.CommandContext(ctx, spec.Cmd[0], spec.Cmd[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, skifferrors.New(skifferrors.KindSubprocessFailed, "shell", "pty start", err)
	}
	return &InteractiveSession{cmd: cmd, ptmx: ptmx}, nil
}

func (s *InteractiveSession) Read(p []byte) (int, error)  { return s.ptmx.Read(p) }
func (s *InteractiveSession) Write(p []byte) (int, error) { return s.ptmx.Write(p) }

// Resize applies a terminal size change, mirroring a client's SIGWINCH.
func (s *InteractiveSession) Resize(rows, cols int) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Close terminates the session and releases the pseudo-terminal.
func (s *InteractiveSession) Close() error {
	_ = s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return nil
}

// Wait blocks until the underlying process exits.
func (s *InteractiveSession) Wait() error {
	return s.cmd.Wait()
}
