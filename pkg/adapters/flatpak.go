package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

// FlatpakAdapter installs applications from flatpak remotes.
type FlatpakAdapter struct {
	run CommandRunner
	log *telemetry.Logger
}

// NewFlatpakAdapter creates a flatpak adapter.
func NewFlatpakAdapter(run CommandRunner, log *telemetry.Logger) *FlatpakAdapter {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &FlatpakAdapter{run: run, log: log.NewComponentLogger("flatpak")}
}

// Kind implements engine.Adapter.
func (a *FlatpakAdapter) Kind() resource.Kind { return resource.KindFlatpakApp }

// ConcurrencySafe implements engine.Adapter. Flatpak serializes on its
// own installation lock.
func (a *FlatpakAdapter) ConcurrencySafe() bool { return false }

// Probe reports whether the application ref is already installed.
func (a *FlatpakAdapter) Probe(ctx context.Context, res *resource.Resource) (engine.ProbeResult, error) {
	spec := res.Spec.(*resource.FlatpakSpec)

	if !a.run.LookPath("flatpak") {
		return engine.ProbeResult{}, engine.NewUnsupportedError(
			"flatpak not found on this system", nil).
			WithCode(engine.ErrCodeMissingBinary)
	}

	result, err := a.run.Run(ctx, "flatpak", "info", spec.Ref)
	if err != nil {
		return engine.ProbeResult{}, engine.NewPermanentError(
			fmt.Sprintf("query flatpak %s", spec.Ref), err).
			WithCode(engine.ErrCodeCommand)
	}
	if result.Ok() {
		return engine.ProbeResult{Satisfied: true,
			Reason: fmt.Sprintf("%s already installed", spec.Ref)}, nil
	}
	return engine.ProbeResult{Reason: fmt.Sprintf("%s not installed", spec.Ref)}, nil
}

// Apply adds the remote if missing and installs the ref. An
// "already installed" outcome from flatpak is success, not failure.
func (a *FlatpakAdapter) Apply(ctx context.Context, res *resource.Resource) (*engine.ApplyResult, error) {
	spec := res.Spec.(*resource.FlatpakSpec)

	result, err := a.run.Run(ctx, "flatpak", "remote-add", "--if-not-exists",
		spec.Remote.Name, spec.Remote.URL)
	if err != nil {
		return nil, engine.NewPermanentError("add flatpak remote", err).
			WithCode(engine.ErrCodeCommand)
	}
	if !result.Ok() {
		return nil, engine.NewTransientError(
			fmt.Sprintf("add remote %s: %s", spec.Remote.Name, stderrTail(result)), nil).
			WithCode(engine.ErrCodeCommand)
	}

	result, err = a.run.Run(ctx, "flatpak", "install", "-y", "--noninteractive",
		spec.Remote.Name, spec.Ref)
	if err != nil {
		return nil, engine.NewPermanentError("install flatpak", err).
			WithCode(engine.ErrCodeCommand)
	}
	if !result.Ok() {
		if alreadyInstalled(result) {
			return &engine.ApplyResult{Detail: fmt.Sprintf("%s already installed", spec.Ref)}, nil
		}
		// Install failures are commonly network hiccups against the
		// remote; give the retry budget a chance.
		return nil, engine.NewTransientError(
			fmt.Sprintf("install %s: %s", spec.Ref, stderrTail(result)), nil).
			WithCode(engine.ErrCodeCommand)
	}

	return &engine.ApplyResult{
		Changed: true,
		Detail:  fmt.Sprintf("installed %s from %s", spec.Ref, spec.Remote.Name),
	}, nil
}

func alreadyInstalled(r CmdResult) bool {
	out := strings.ToLower(r.Stderr + r.Stdout)
	return strings.Contains(out, "already installed")
}
