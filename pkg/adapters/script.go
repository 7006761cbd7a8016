package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

// ScriptInstallAdapter fetches a remote installer to a private temp
// path, executes it, and removes the temp path in all outcomes. The
// temp directory must never leak, regardless of the script's exit
// status.
type ScriptInstallAdapter struct {
	run   CommandRunner
	fetch *Fetcher
	log   *telemetry.Logger
}

// NewScriptInstallAdapter creates a script-install adapter.
func NewScriptInstallAdapter(run CommandRunner, fetch *Fetcher, log *telemetry.Logger) *ScriptInstallAdapter {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &ScriptInstallAdapter{run: run, fetch: fetch, log: log.NewComponentLogger("script")}
}

// Kind implements engine.Adapter.
func (a *ScriptInstallAdapter) Kind() resource.Kind { return resource.KindScriptInstall }

// ConcurrencySafe implements engine.Adapter. Installer scripts touch
// arbitrary system state.
func (a *ScriptInstallAdapter) ConcurrencySafe() bool { return false }

// Probe runs the spec's check command when one is declared; a zero
// exit means the install is already satisfied.
func (a *ScriptInstallAdapter) Probe(ctx context.Context, res *resource.Resource) (engine.ProbeResult, error) {
	spec := res.Spec.(*resource.ScriptInstallSpec)

	if spec.Check == "" {
		return engine.ProbeResult{Reason: "no check command declared"}, nil
	}

	result, err := a.run.Run(ctx, "/bin/sh", "-c", spec.Check)
	if err != nil {
		return engine.ProbeResult{}, engine.NewPermanentError("run check command", err).
			WithCode(engine.ErrCodeCommand)
	}
	if result.Ok() {
		return engine.ProbeResult{Satisfied: true, Reason: "check command succeeded"}, nil
	}
	return engine.ProbeResult{Reason: "check command reported not installed"}, nil
}

// Apply downloads and runs the installer. The temp directory is
// removed on every path out of this function.
func (a *ScriptInstallAdapter) Apply(ctx context.Context, res *resource.Resource) (*engine.ApplyResult, error) {
	spec := res.Spec.(*resource.ScriptInstallSpec)

	tmpDir, err := os.MkdirTemp("", "desktide-script-*")
	if err != nil {
		return nil, engine.NewPermanentError("create temp directory", err).
			WithCode(engine.ErrCodeCommand)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			a.log.WithError(rmErr).Warnf("failed to remove temp dir %s", tmpDir)
		}
	}()
	if err := os.Chmod(tmpDir, 0700); err != nil {
		return nil, engine.NewPermanentError("restrict temp directory", err).
			WithCode(engine.ErrCodeCommand)
	}

	scriptPath := filepath.Join(tmpDir, "installer")
	if err := a.fetch.Download(ctx, spec.URL, scriptPath, spec.SHA256); err != nil {
		return nil, err
	}
	if err := os.Chmod(scriptPath, 0700); err != nil {
		return nil, engine.NewPermanentError("mark installer executable", err).
			WithCode(engine.ErrCodeCommand)
	}

	interpreter := spec.Interpreter
	if interpreter == "" {
		interpreter = "/bin/sh"
	}

	args := append([]string{scriptPath}, spec.Args...)
	result, err := a.run.Run(ctx, interpreter, args...)
	if err != nil {
		return nil, engine.NewPermanentError("run installer", err).
			WithCode(engine.ErrCodeCommand)
	}
	if !result.Ok() {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("installer exited %d: %s", result.ExitCode, stderrTail(result)), nil).
			WithCode(engine.ErrCodeCommand)
	}

	applied := &engine.ApplyResult{
		Changed: true,
		Detail:  fmt.Sprintf("ran installer from %s", spec.URL),
	}
	if spec.Advisory != "" {
		applied.Flags = []engine.AdvisoryFlag{engine.AdvisoryFlag(spec.Advisory)}
	}
	return applied, nil
}
