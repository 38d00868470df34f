// Package execx executes external commands with concurrently streamed
// output and a lenient success classification.
package execx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// EnvVar is a single KEY=VALUE environment override for an invocation.
type EnvVar struct {
	Key   string
	Value string
}

// Invocation describes one external command run. It is built fresh for
// every execution attempt and consumed exactly once.
type Invocation struct {
	Program string
	Args    []string
	Env     []EnvVar
	Dir     string
}

// String renders the invocation the way it would be typed in a shell:
// environment overrides first, then the program and its arguments.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Env)+len(inv.Args)+1)
	for _, kv := range inv.Env {
		parts = append(parts, kv.Key+"="+kv.Value)
	}
	parts = append(parts, inv.Program)
	parts = append(parts, inv.Args...)
	return strings.Join(parts, " ")
}

// Outcome reports how a single invocation went. ExitStatus is nil when
// execution was skipped by dry-run mode.
type Outcome struct {
	Succeeded  bool
	ExitStatus *int
	ErrorLines int
}

// Options tune a single run.
type Options struct {
	// DryRun logs the rendered command and skips execution entirely.
	DryRun bool
	// SkipError excludes stderr lines containing this substring from
	// the error tally.
	SkipError string
}

// Runner executes invocations, streaming their output to the logger.
type Runner struct {
	logger *slog.Logger
}

// NewRunner constructs a Runner bound to the provided logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes the invocation and classifies the result. Stdout lines
// are logged at info level and stderr lines at warn level while the
// command runs; stderr lines matching Options.SkipError are demoted to
// debug and not counted.
//
// A run is considered successful when the command either exited cleanly
// or produced no stderr lines counted as errors. A nonzero exit with a
// quiet stderr therefore still succeeds; tools that misuse stderr for
// progress output rely on this leniency, at the cost of masking
// commands that fail without writing anything.
//
// An error is returned only when the command could not be spawned or
// its output could not be captured, never for the command's own
// failure.
func (r *Runner) Run(ctx context.Context, inv Invocation, opts Options) (Outcome, error) {
	r.logger.Info("running command", "command", inv.String())
	if opts.DryRun {
		r.logger.Info("dry run mode enabled, skipping command execution")
		return Outcome{Succeeded: true}, nil
	}

	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		env := os.Environ()
		for _, kv := range inv.Env {
			env = append(env, kv.Key+"="+kv.Value)
		}
		cmd.Env = env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("capture stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start %s: %w", inv.Program, err)
	}

	stdoutDone := make(chan error, 1)
	go func() {
		stdoutDone <- drainLines(stdout, func(line string) {
			r.logger.Info("command output", "line", line)
		})
	}()

	type stderrDrain struct {
		errorLines int
		err        error
	}
	stderrDone := make(chan stderrDrain, 1)
	go func() {
		var res stderrDrain
		res.err = drainLines(stderr, func(line string) {
			if opts.SkipError != "" && strings.Contains(line, opts.SkipError) {
				r.logger.Debug("skipping error", "line", line)
				return
			}
			r.logger.Warn("command output", "line", line)
			res.errorLines++
		})
		stderrDone <- res
	}()

	// Both streams must be fully drained before Wait so the child is
	// never blocked on a full pipe.
	outErr := <-stdoutDone
	errRes := <-stderrDone

	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return Outcome{}, fmt.Errorf("wait for %s: %w", inv.Program, waitErr)
	}
	if outErr != nil {
		return Outcome{}, fmt.Errorf("drain stdout of %s: %w", inv.Program, outErr)
	}
	if errRes.err != nil {
		return Outcome{}, fmt.Errorf("drain stderr of %s: %w", inv.Program, errRes.err)
	}

	code := cmd.ProcessState.ExitCode()
	return Outcome{
		Succeeded:  cmd.ProcessState.Success() || errRes.errorLines == 0,
		ExitStatus: &code,
		ErrorLines: errRes.errorLines,
	}, nil
}

// drainLines reads a stream line by line until EOF. Lines may be of
// any length: the stream must always be consumed completely so the
// child is never blocked writing to a full pipe.
func drainLines(r io.Reader, handle func(line string)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			handle(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
