package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultGitTimeout bounds a single git invocation.
const DefaultGitTimeout = 12 * time.Second

// GitShell runs git against a working tree. It implements core.Shell.
type GitShell struct {
	dir     string
	timeout time.Duration
}

// NewGitShell creates a GitShell for the working tree at dir. A non-positive
// timeout uses DefaultGitTimeout.
func NewGitShell(dir string, timeout time.Duration) *GitShell {
	if timeout <= 0 {
		timeout = DefaultGitTimeout
	}
	return &GitShell{dir: dir, timeout: timeout}
}

// Run executes `git -C <dir> args...` and returns trimmed stdout. Paths are
// printed unquoted so non-ASCII file names survive. A non-zero exit or a
// timeout returns an error carrying git's stderr.
func (g *GitShell) Run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	full := append([]string{"-C", g.dir, "-c", "core.quotepath=off"}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git %s: timed out after %s", subcommand(args), g.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", subcommand(args), msg)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// IsRepository reports whether dir is inside a git working tree.
func (g *GitShell) IsRepository(ctx context.Context) bool {
	out, err := g.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
