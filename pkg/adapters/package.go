package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

// PackageAdapter manages packages through the system package manager.
// Probing goes through dpkg's installed-state database; the adapter
// relies on it for idempotence rather than keeping any state itself.
type PackageAdapter struct {
	run CommandRunner
	log *telemetry.Logger
}

// NewPackageAdapter creates a package adapter.
func NewPackageAdapter(run CommandRunner, log *telemetry.Logger) *PackageAdapter {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &PackageAdapter{run: run, log: log.NewComponentLogger("pkg")}
}

// Kind implements engine.Adapter.
func (a *PackageAdapter) Kind() resource.Kind { return resource.KindPackage }

// ConcurrencySafe implements engine.Adapter. The package database is
// single-locked; concurrent installs would just contend on dpkg's lock.
func (a *PackageAdapter) ConcurrencySafe() bool { return false }

// Probe reports whether every requested package is already installed.
func (a *PackageAdapter) Probe(ctx context.Context, res *resource.Resource) (engine.ProbeResult, error) {
	spec := res.Spec.(*resource.PackageSpec)

	if !a.run.LookPath("dpkg-query") {
		return engine.ProbeResult{}, engine.NewUnsupportedError(
			"dpkg-query not found: not a dpkg-based system", nil).
			WithCode(engine.ErrCodeMissingBinary)
	}

	for _, name := range spec.Names {
		installed, err := a.installed(ctx, name)
		if err != nil {
			return engine.ProbeResult{}, err
		}
		if !installed {
			return engine.ProbeResult{Reason: fmt.Sprintf("package %s not installed", name)}, nil
		}
	}
	return engine.ProbeResult{Satisfied: true, Reason: "all packages installed"}, nil
}

func (a *PackageAdapter) installed(ctx context.Context, name string) (bool, error) {
	result, err := a.run.Run(ctx, "dpkg-query", "-W", "-f=${Status}", name)
	if err != nil {
		return false, engine.NewPermanentError(fmt.Sprintf("query package %s", name), err).
			WithCode(engine.ErrCodeCommand)
	}
	// dpkg-query exits non-zero for unknown packages, and reports
	// "deinstall ok config-files" for removed-but-not-purged ones.
	return result.Ok() && strings.Contains(result.Stdout, "install ok installed"), nil
}

// Apply installs the missing packages, optionally refreshing the index
// first. A failed refresh is tolerated for best-effort resources: the
// install is still attempted against the existing index.
func (a *PackageAdapter) Apply(ctx context.Context, res *resource.Resource) (*engine.ApplyResult, error) {
	spec := res.Spec.(*resource.PackageSpec)

	if spec.RefreshIndex {
		result, err := a.run.RunEnv(ctx, aptEnv(), "apt-get", "update")
		if err != nil {
			return nil, engine.NewTransientError("refresh package index", err).
				WithCode(engine.ErrCodeCommand)
		}
		if !result.Ok() {
			if res.Fatal() {
				return nil, engine.NewTransientError(
					fmt.Sprintf("refresh package index: %s", stderrTail(result)), nil).
					WithCode(engine.ErrCodeCommand)
			}
			a.log.Warnf("package index refresh failed, continuing: %s", stderrTail(result))
		}
	}

	missing := make([]string, 0, len(spec.Names))
	for _, name := range spec.Names {
		installed, err := a.installed(ctx, name)
		if err != nil || !installed {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return &engine.ApplyResult{Detail: "all packages installed"}, nil
	}

	args := append([]string{"install", "-y"}, missing...)
	result, err := a.run.RunEnv(ctx, aptEnv(), "apt-get", args...)
	if err != nil {
		return nil, engine.NewPermanentError("install packages", err).
			WithCode(engine.ErrCodeCommand)
	}
	if !result.Ok() {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("install %s: %s", strings.Join(missing, " "), stderrTail(result)), nil).
			WithCode(engine.ErrCodeCommand)
	}

	applied := &engine.ApplyResult{
		Changed: true,
		Detail:  fmt.Sprintf("installed %s", strings.Join(missing, " ")),
	}
	if spec.Advisory != "" {
		applied.Flags = []engine.AdvisoryFlag{engine.AdvisoryFlag(spec.Advisory)}
	}
	return applied, nil
}

func aptEnv() []string {
	return []string{"DEBIAN_FRONTEND=noninteractive"}
}
