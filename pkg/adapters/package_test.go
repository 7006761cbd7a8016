package adapters

import (
	"context"
	"testing"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
)

func pkgResource(spec *resource.PackageSpec) *resource.Resource {
	return &resource.Resource{ID: "pkgs", Kind: resource.KindPackage, Spec: spec}
}

const installedStatus = "install ok installed"

func TestPackageAdapter_ProbeUnsupportedWithoutDpkg(t *testing.T) {
	run := newFakeRunner()
	run.missing["dpkg-query"] = true
	adapter := NewPackageAdapter(run, nil)

	_, err := adapter.Probe(context.Background(), pkgResource(&resource.PackageSpec{Names: []string{"git"}}))
	if !engine.IsUnsupported(err) {
		t.Fatalf("Expected unsupported error, got: %v", err)
	}
}

func TestPackageAdapter_ProbeSatisfied(t *testing.T) {
	run := newFakeRunner()
	run.respond("dpkg-query -W -f=${Status} git", CmdResult{Stdout: installedStatus})
	run.respond("dpkg-query -W -f=${Status} curl", CmdResult{Stdout: installedStatus})
	adapter := NewPackageAdapter(run, nil)

	probe, err := adapter.Probe(context.Background(),
		pkgResource(&resource.PackageSpec{Names: []string{"git", "curl"}}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !probe.Satisfied {
		t.Errorf("Expected satisfied probe, got: %+v", probe)
	}
}

func TestPackageAdapter_ProbeMissingPackage(t *testing.T) {
	run := newFakeRunner()
	run.respond("dpkg-query -W -f=${Status} git", CmdResult{Stdout: installedStatus})
	run.respond("dpkg-query -W -f=${Status} code", CmdResult{ExitCode: 1})
	adapter := NewPackageAdapter(run, nil)

	probe, err := adapter.Probe(context.Background(),
		pkgResource(&resource.PackageSpec{Names: []string{"git", "code"}}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if probe.Satisfied {
		t.Error("Expected unsatisfied probe for missing package")
	}
}

func TestPackageAdapter_ProbeDeinstalledNotSatisfied(t *testing.T) {
	run := newFakeRunner()
	run.respond("dpkg-query -W -f=${Status} old", CmdResult{Stdout: "deinstall ok config-files"})
	adapter := NewPackageAdapter(run, nil)

	probe, err := adapter.Probe(context.Background(),
		pkgResource(&resource.PackageSpec{Names: []string{"old"}}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if probe.Satisfied {
		t.Error("Removed-but-not-purged package must not count as installed")
	}
}

func TestPackageAdapter_ApplyInstallsOnlyMissing(t *testing.T) {
	run := newFakeRunner()
	run.respond("dpkg-query -W -f=${Status} git", CmdResult{Stdout: installedStatus})
	run.respond("dpkg-query -W -f=${Status} code", CmdResult{ExitCode: 1})
	adapter := NewPackageAdapter(run, nil)

	result, err := adapter.Apply(context.Background(),
		pkgResource(&resource.PackageSpec{Names: []string{"git", "code"}}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Changed {
		t.Error("Expected a change")
	}
	if !run.called("apt-get install -y code") {
		t.Errorf("Expected install of only the missing package, calls: %v", run.calls)
	}
	if run.called("apt-get install -y git code") {
		t.Error("Already-installed package must not be re-installed")
	}
}

func TestPackageAdapter_ApplyRefreshFailureTolerated(t *testing.T) {
	run := newFakeRunner()
	run.respond("apt-get update", CmdResult{ExitCode: 100, Stderr: "mirror unreachable"})
	run.respond("dpkg-query -W -f=${Status} git", CmdResult{ExitCode: 1})
	adapter := NewPackageAdapter(run, nil)

	// Best-effort: the failed refresh is logged and the install proceeds.
	_, err := adapter.Apply(context.Background(),
		pkgResource(&resource.PackageSpec{Names: []string{"git"}, RefreshIndex: true}))
	if err != nil {
		t.Fatalf("Expected refresh failure to be tolerated, got: %v", err)
	}
	if !run.called("apt-get install -y git") {
		t.Errorf("Expected install after tolerated refresh failure, calls: %v", run.calls)
	}
}

func TestPackageAdapter_ApplyRefreshFailureFatalResource(t *testing.T) {
	run := newFakeRunner()
	run.respond("apt-get update", CmdResult{ExitCode: 100, Stderr: "mirror unreachable"})
	adapter := NewPackageAdapter(run, nil)

	res := pkgResource(&resource.PackageSpec{Names: []string{"git"}, RefreshIndex: true})
	res.FailurePolicy = resource.PolicyFatal

	_, err := adapter.Apply(context.Background(), res)
	if err == nil {
		t.Fatal("Expected error for failed refresh on fatal resource")
	}
	if !engine.IsTransient(err) {
		t.Errorf("Expected transient classification, got: %v", err)
	}
}

func TestPackageAdapter_ApplyAdvisoryFlag(t *testing.T) {
	run := newFakeRunner()
	run.respond("dpkg-query -W -f=${Status} nvidia-driver", CmdResult{ExitCode: 1})
	adapter := NewPackageAdapter(run, nil)

	result, err := adapter.Apply(context.Background(), pkgResource(&resource.PackageSpec{
		Names:    []string{"nvidia-driver"},
		Advisory: string(engine.FlagRebootRequired),
	}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(result.Flags) != 1 || result.Flags[0] != engine.FlagRebootRequired {
		t.Errorf("Expected reboot-required flag, got: %v", result.Flags)
	}
}

func TestPackageAdapter_ApplyInstallFailure(t *testing.T) {
	run := newFakeRunner()
	run.respond("dpkg-query -W -f=${Status} ghost", CmdResult{ExitCode: 1})
	run.respond("apt-get install -y ghost", CmdResult{ExitCode: 100, Stderr: "E: Unable to locate package ghost"})
	adapter := NewPackageAdapter(run, nil)

	_, err := adapter.Apply(context.Background(),
		pkgResource(&resource.PackageSpec{Names: []string{"ghost"}}))
	if err == nil {
		t.Fatal("Expected install failure")
	}
	if !engine.IsPermanent(err) {
		t.Errorf("Expected permanent classification, got: %v", err)
	}
}
