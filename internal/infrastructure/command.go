package infrastructure

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Command is a typed descriptor for one external-tool invocation: binary,
// argument vector, and timeout. Arguments are passed straight to the process
// with no shell involved, so there is no quoting to get wrong.
type Command struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// String renders the command shell-escaped for log display only.
func (c Command) String() string {
	escaped := ShellEscape(c.Binary)
	for _, arg := range c.Args {
		escaped += " " + ShellEscape(arg)
	}
	return escaped
}

// RunResult captures the output of one invocation.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	TimedOut bool
}

// Runner executes commands. Adapters take a Runner so tests can substitute
// a fake without spawning processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (RunResult, error)
}

// ExecRunner runs commands via os/exec. Cancelling the context kills the
// process, so a timed-out tool never lingers as a zombie.
type ExecRunner struct{}

// Run executes the command, applying the command's own timeout on top of
// the caller's context.
func (ExecRunner) Run(ctx context.Context, cmd Command) (RunResult, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()

	result := RunResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}
	return result, err
}

// ShellEscape escapes a string for safe display in a shell command line.
// This is used for logging purposes only - exec.Command doesn't need this.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}

	needsEscape := false
	for _, c := range s {
		if isShellSpecialChar(c) {
			needsEscape = true
			break
		}
	}

	if !needsEscape {
		return s
	}

	// Use single quotes, but handle embedded single quotes specially
	var result strings.Builder
	result.WriteString("'")
	for _, c := range s {
		if c == '\'' {
			result.WriteString("'\"'\"'")
		} else {
			result.WriteRune(c)
		}
	}
	result.WriteString("'")
	return result.String()
}

// isShellSpecialChar returns true if the character has special meaning in shell
func isShellSpecialChar(c rune) bool {
	switch c {
	case ' ', '\t', '\'', '"', '$', '`', '\\', '!', '*', '?', '[', ']',
		'(', ')', '{', '}', '|', ';', '<', '>', '&', '~', '#', '%', '\n', '\r':
		return true
	default:
		return false
	}
}
