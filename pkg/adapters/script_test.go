package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
)

func scriptResource(spec *resource.ScriptInstallSpec) *resource.Resource {
	return &resource.Resource{ID: "script", Kind: resource.KindScriptInstall, Spec: spec}
}

func scriptServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScriptInstallAdapter_ProbeCheckCommand(t *testing.T) {
	run := newFakeRunner()
	run.respond("/bin/sh -c command -v starship", CmdResult{Stdout: "/usr/local/bin/starship\n"})
	adapter := NewScriptInstallAdapter(run, testFetcher(), nil)

	probe, err := adapter.Probe(context.Background(), scriptResource(&resource.ScriptInstallSpec{
		URL:   "https://example.com/install.sh",
		Check: "command -v starship",
	}))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !probe.Satisfied {
		t.Errorf("Expected satisfied probe when check succeeds, got: %+v", probe)
	}
}

func TestScriptInstallAdapter_ProbeWithoutCheck(t *testing.T) {
	adapter := NewScriptInstallAdapter(newFakeRunner(), testFetcher(), nil)

	probe, err := adapter.Probe(context.Background(), scriptResource(&resource.ScriptInstallSpec{
		URL: "https://example.com/install.sh",
	}))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if probe.Satisfied {
		t.Error("Without a check command the probe must not report satisfied")
	}
}

func TestScriptInstallAdapter_ApplyRunsInstaller(t *testing.T) {
	server := scriptServer(t, "#!/bin/sh\nexit 0\n")

	var ranScript string
	run := newFakeRunner()
	adapter := NewScriptInstallAdapter(&recordingRunner{inner: run, sawScript: &ranScript}, testFetcher(), nil)

	result, err := adapter.Apply(context.Background(), scriptResource(&resource.ScriptInstallSpec{
		URL:      server.URL,
		Args:     []string{"--yes"},
		Advisory: string(engine.FlagRebootRecommended),
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Changed {
		t.Error("Expected a change")
	}
	if len(result.Flags) != 1 || result.Flags[0] != engine.FlagRebootRecommended {
		t.Errorf("Expected advisory flag, got: %v", result.Flags)
	}

	if ranScript == "" {
		t.Fatal("Installer was never executed")
	}
	// The temp directory is removed after the run.
	if _, err := os.Stat(ranScript); !os.IsNotExist(err) {
		t.Errorf("Expected temp script %s to be cleaned up", ranScript)
	}
}

func TestScriptInstallAdapter_FailingInstallerStillCleansUp(t *testing.T) {
	server := scriptServer(t, "#!/bin/sh\nexit 1\n")

	var ranScript string
	run := newFakeRunner()
	rec := &recordingRunner{inner: run, sawScript: &ranScript, exitCode: 1}
	adapter := NewScriptInstallAdapter(rec, testFetcher(), nil)

	_, err := adapter.Apply(context.Background(), scriptResource(&resource.ScriptInstallSpec{
		URL: server.URL,
	}))
	if err == nil {
		t.Fatal("Expected installer failure")
	}
	if !engine.IsPermanent(err) {
		t.Errorf("Expected permanent classification, got: %v", err)
	}

	if ranScript == "" {
		t.Fatal("Installer was never executed")
	}
	if _, statErr := os.Stat(ranScript); !os.IsNotExist(statErr) {
		t.Error("Temp directory must be cleaned up when the installer fails")
	}
}

// recordingRunner captures the downloaded script path passed to the
// interpreter while the temp directory still exists, then reports the
// configured exit code.
type recordingRunner struct {
	inner     *fakeRunner
	sawScript *string
	exitCode  int
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (CmdResult, error) {
	if len(args) > 0 && strings.Contains(args[0], "desktide-script-") {
		*r.sawScript = args[0]
		if _, err := os.Stat(args[0]); err != nil {
			return CmdResult{}, err
		}
		return CmdResult{ExitCode: r.exitCode}, nil
	}
	return r.inner.Run(ctx, name, args...)
}

func (r *recordingRunner) RunEnv(ctx context.Context, env []string, name string, args ...string) (CmdResult, error) {
	return r.Run(ctx, name, args...)
}

func (r *recordingRunner) LookPath(name string) bool { return r.inner.LookPath(name) }
