package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desktide/desktide/pkg/resource"
)

const sampleConfig = `
version: 1
defaults:
  failure_policy: best-effort
  timeout: 5m
resources:
  - id: apt-refresh
    failure_policy: fatal
    package:
      names: [ca-certificates]
      refresh_index: true

  - id: devtools
    depends_on: [apt-refresh]
    labels: {feature: devtools}
    package:
      names: [git, build-essential]

  - id: editor-config
    depends_on: [devtools]
    timeout: 30s
    file:
      path: ~/.config/editor/settings.conf
      content: |
        theme=dark

  - id: nvidia-driver
    labels: {gpu: nvidia}
    package:
      names: [nvidia-driver-535]
      advisory: reboot-required

  - id: amd-firmware
    labels: {gpu: amd}
    package:
      names: [firmware-amd-graphics]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "desktide.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Version != 1 {
		t.Errorf("Expected version 1, got %d", doc.Version)
	}
	if len(doc.Resources) != 5 {
		t.Errorf("Expected 5 resources, got %d", len(doc.Resources))
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
resources:
  - id: x
    pakage:
      names: [git]
`))
	if err == nil {
		t.Fatal("Expected error for misspelled field")
	}
}

func TestLoad_MissingKindPayload(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
resources:
  - id: empty
`))
	if err == nil {
		t.Fatal("Expected error for entry without kind payload")
	}
}

func TestLoad_MultipleKindPayloads(t *testing.T) {
	_, err := Load(writeConfig(t, `
version: 1
resources:
  - id: both
    package:
      names: [git]
    file:
      path: /tmp/x
      content: a
`))
	if err == nil {
		t.Fatal("Expected error for entry with two kind payloads")
	}
}

func TestResources_DefaultsApplied(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	resources, err := Resources(doc, Modes{})
	if err != nil {
		t.Fatalf("Resources failed: %v", err)
	}

	byID := make(map[string]resource.Resource)
	for _, r := range resources {
		byID[r.ID] = r
	}

	if byID["apt-refresh"].FailurePolicy != resource.PolicyFatal {
		t.Errorf("Expected fatal policy on apt-refresh, got %s", byID["apt-refresh"].FailurePolicy)
	}
	if byID["devtools"].FailurePolicy != resource.PolicyBestEffort {
		t.Errorf("Expected document default policy on devtools, got %s", byID["devtools"].FailurePolicy)
	}
	if byID["devtools"].Timeout != 5*time.Minute {
		t.Errorf("Expected document default timeout, got %s", byID["devtools"].Timeout)
	}
	if byID["editor-config"].Timeout != 30*time.Second {
		t.Errorf("Expected per-resource timeout override, got %s", byID["editor-config"].Timeout)
	}
}

func TestResources_HomeExpansion(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	resources, err := Resources(doc, Modes{})
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range resources {
		if r.ID != "editor-config" {
			continue
		}
		spec := r.Spec.(*resource.FileWriteSpec)
		if filepath.IsAbs(spec.Path) == false {
			t.Errorf("Expected expanded absolute path, got %s", spec.Path)
		}
		if spec.Path[0] == '~' {
			t.Errorf("Home prefix not expanded: %s", spec.Path)
		}
	}
}

func TestResources_GPUFiltering(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	// No GPU mode: all gpu-labeled resources excluded.
	resources, err := Resources(doc, Modes{})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resources {
		if r.Label(LabelGPU) != "" {
			t.Errorf("Expected no gpu resources without a gpu mode, got %s", r.ID)
		}
	}

	// nvidia mode keeps nvidia, drops amd.
	resources, err = Resources(doc, Modes{GPU: "nvidia"})
	if err != nil {
		t.Fatal(err)
	}
	var sawNvidia, sawAMD bool
	for _, r := range resources {
		switch r.ID {
		case "nvidia-driver":
			sawNvidia = true
		case "amd-firmware":
			sawAMD = true
		}
	}
	if !sawNvidia || sawAMD {
		t.Errorf("Expected nvidia kept and amd dropped, nvidia=%v amd=%v", sawNvidia, sawAMD)
	}
}

func TestResources_SkipPrunesDependencies(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	resources, err := Resources(doc, Modes{Skip: []string{"devtools"}})
	if err != nil {
		t.Fatalf("Resources with skip failed: %v", err)
	}

	for _, r := range resources {
		if r.ID == "devtools" {
			t.Error("Skipped feature must be excluded")
		}
		for _, dep := range r.DependsOn {
			if dep == "devtools" {
				t.Errorf("Dependency on skipped resource must be pruned (%s)", r.ID)
			}
		}
	}
}

func TestResources_PruningLeavesDocumentIntact(t *testing.T) {
	// The dropped dependency comes first so pruning has to shift the
	// kept one, which must not write through to the document's slice.
	doc, err := Load(writeConfig(t, `
version: 1
resources:
  - id: base
    package:
      names: [ca-certificates]

  - id: games
    labels: {feature: gaming}
    package:
      names: [steam]

  - id: launcher
    depends_on: [games, base]
    package:
      names: [lutris]
`))
	if err != nil {
		t.Fatal(err)
	}

	resources, err := Resources(doc, Modes{Skip: []string{"gaming"}})
	if err != nil {
		t.Fatalf("Resources with skip failed: %v", err)
	}
	for _, r := range resources {
		if r.ID == "launcher" {
			if len(r.DependsOn) != 1 || r.DependsOn[0] != "base" {
				t.Fatalf("Expected pruned deps [base], got %v", r.DependsOn)
			}
		}
	}

	// The document may be converted again with different modes.
	for _, e := range doc.Resources {
		if e.ID == "launcher" {
			if len(e.DependsOn) != 2 || e.DependsOn[0] != "games" || e.DependsOn[1] != "base" {
				t.Fatalf("Document dependencies mutated by pruning: %v", e.DependsOn)
			}
		}
	}

	resources, err = Resources(doc, Modes{})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resources {
		if r.ID == "launcher" {
			if len(r.DependsOn) != 2 || r.DependsOn[0] != "games" {
				t.Errorf("Expected full dependency list on reconversion, got %v", r.DependsOn)
			}
		}
	}
}

func TestAllResources_KeepsEverything(t *testing.T) {
	doc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	resources, err := AllResources(doc)
	if err != nil {
		t.Fatalf("AllResources failed: %v", err)
	}
	if len(resources) != 5 {
		t.Errorf("Expected all 5 resources, got %d", len(resources))
	}
}
