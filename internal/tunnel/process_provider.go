package tunnel

import (
	"context"
	"regexp"
	"time"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/shell"
)

// urlLinePattern extracts the first https:// URL a tunnel binary prints
// to its own stdout once the tunnel is up, the common convention across
// ngrok/cloudflared/localtunnel-style binaries.
var urlLinePattern = regexp.MustCompile(`https://[^\s]+`)

// ProcessProvider opens a tunnel by spawning a long-lived binary via the
// Shell Executor and scraping its public URL from stdout. Closing kills
// the process group. Grounded on the Shell Executor's process-group
// discipline: the binary is its own group leader, so Close reaches any
// children it spawns too.
type ProcessProvider struct {
	name       string
	executor   *shell.Executor
	binaryPath string
	argsFor    func(localPort int, options map[string]string) []string

	commandIDs map[string]string // publicURL -> command_id, for Close
}

func NewProcessProvider(name, binaryPath string, executor *shell.Executor, argsFor func(int, map[string]string) []string) *ProcessProvider {
	return &ProcessProvider{
		name:       name,
		executor:   executor,
		binaryPath: binaryPath,
		argsFor:    argsFor,
		commandIDs: make(map[string]string),
	}
}

func (p *ProcessProvider) Name() string { return p.name }

// Open starts the tunnel binary and waits (up to 15s) for it to print a
// public URL on stdout.
func (p *ProcessProvider) Open(ctx context.Context, localPort int, options map[string]string) (string, error) {
	args := p.argsFor(localPort, options)
	cmdID, err := p.executor.RunAsync(ctx, shell.Spec{
		Cmd: append([]string{p.binaryPath}, args...),
	})
	if err != nil {
		return "", err
	}

	lines, ok := p.executor.OutputStream(cmdID)
	if !ok {
		return "", skifferrors.New(skifferrors.KindSubprocessFailed, "tunnel", "lost output stream for "+cmdID, nil)
	}

	deadline := time.After(15 * time.Second)
	for {
		select {
		case line, open := <-lines:
			if !open {
				return "", skifferrors.New(skifferrors.KindSubprocessFailed, "tunnel", p.name+" exited before printing a URL", nil)
			}
			if url := urlLinePattern.FindString(line.Text); url != "" {
				p.commandIDs[url] = cmdID
				return url, nil
			}
		case <-deadline:
			p.executor.Cancel(cmdID)
			return "", skifferrors.New(skifferrors.KindTimeout, "tunnel", p.name+" did not report a URL within 15s", nil)
		case <-ctx.Done():
			p.executor.Cancel(cmdID)
			return "", ctx.Err()
		}
	}
}

func (p *ProcessProvider) Close(ctx context.Context, publicURL string) error {
	cmdID, ok := p.commandIDs[publicURL]
	if !ok {
		return nil // nothing to do: idempotent close
	}
	delete(p.commandIDs, publicURL)
	p.executor.Cancel(cmdID)
	return nil
}
