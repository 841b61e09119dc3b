// Package media drives ffmpeg and ffprobe: it concatenates audio segments,
// measures durations and applies audio effects.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrCommandEmpty is returned when a configured command line has no words.
var ErrCommandEmpty = errors.New("command line is empty")

// Command is a program plus the arguments that precede any added by this
// package, for example "ffmpeg -hide_banner -y".
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a shell-style command line.
func ParseCommand(line string) (Command, error) {
	parser := shellwords.NewParser()

	words, parseErr := parser.Parse(line)
	if parseErr != nil {
		return Command{}, fmt.Errorf("parse command %q: %w", line, parseErr)
	}

	if len(words) == 0 {
		return Command{}, ErrCommandEmpty
	}

	return Command{Name: words[0], Args: words[1:]}, nil
}

// With returns the full argument list: the command's own arguments followed
// by extra.
func (c Command) With(extra ...string) []string {
	args := make([]string, 0, len(c.Args)+len(extra))
	args = append(args, c.Args...)

	return append(args, extra...)
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.ExitCode, e.Stderr)
}

// Runner executes an external program and returns its standard output. A
// non-zero exit is reported as *ExitError; a context that ends first is
// reported through the context's error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	// #nosec G204 -- the program comes from configuration, arguments are built here
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		return stdout.Bytes(), nil
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return stdout.Bytes(), &ExitError{
			Name:     name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}

	return stdout.Bytes(), fmt.Errorf("failed to run %s: %w", name, runErr)
}
