// Package adapters implements the backend adapters that translate
// declared resources into calls against real subsystems: the system
// package manager, flatpak, the filesystem, the desktop preference
// store, remote installer scripts and shell extensions.
package adapters

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// CmdResult captures the output of one command invocation.
type CmdResult struct {
	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the command's exit code. Zero means success.
	ExitCode int
}

// Ok reports whether the command exited zero.
func (r CmdResult) Ok() bool { return r.ExitCode == 0 }

// CommandRunner abstracts shell-outs so adapters can be tested against
// a fake. The returned error is reserved for failures to run at all
// (context cancelled, binary unstartable); a non-zero exit is reported
// through CmdResult, not the error.
type CommandRunner interface {
	// Run executes name with args and captures its output.
	Run(ctx context.Context, name string, args ...string) (CmdResult, error)

	// RunEnv is Run with additional environment variables (KEY=VALUE).
	RunEnv(ctx context.Context, env []string, name string, args ...string) (CmdResult, error)

	// LookPath reports whether an executable is available.
	LookPath(name string) bool
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CmdResult, error) {
	return ExecRunner{}.RunEnv(ctx, nil, name, args...)
}

// RunEnv implements CommandRunner.
func (ExecRunner) RunEnv(ctx context.Context, env []string, name string, args ...string) (CmdResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CmdResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}

// LookPath implements CommandRunner.
func (ExecRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// stderrTail returns the last line of stderr for error messages.
func stderrTail(r CmdResult) string {
	s := strings.TrimSpace(r.Stderr)
	if s == "" {
		s = strings.TrimSpace(r.Stdout)
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
