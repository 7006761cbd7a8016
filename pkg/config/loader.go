package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/desktide/desktide/pkg/resource"
)

// Label keys with selection semantics.
const (
	// LabelFeature groups resources into a named feature that can be
	// skipped wholesale with Modes.Skip.
	LabelFeature = "feature"

	// LabelGPU marks a resource as specific to one GPU vendor. Such
	// resources are kept only when Modes.GPU names that vendor.
	LabelGPU = "gpu"
)

// Modes selects which declared resources take part in a run.
type Modes struct {
	// Skip lists feature labels to exclude.
	Skip []string

	// GPU names the GPU vendor whose resources to include. When empty,
	// every gpu-labeled resource is excluded.
	GPU string
}

const defaultTimeout = 10 * time.Minute

// Load reads, parses and shape-validates a desired-state document.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &doc, nil
}

// AllResources converts every declared resource regardless of labels.
// Used for validation, where filtered-out resources still have to be
// well formed.
func AllResources(doc *Document) ([]resource.Resource, error) {
	return convert(doc, nil)
}

// Resources converts a document into the resource set for one run,
// applying document defaults, expanding home-relative paths and
// filtering by the given modes. Dependencies on filtered-out resources
// are pruned so the remaining set stands on its own.
func Resources(doc *Document, modes Modes) ([]resource.Resource, error) {
	return convert(doc, &modes)
}

func convert(doc *Document, modes *Modes) ([]resource.Resource, error) {
	skip := make(map[string]bool)
	if modes != nil {
		for _, s := range modes.Skip {
			skip[s] = true
		}
	}

	var out []resource.Resource
	dropped := make(map[string]bool)
	for i := range doc.Resources {
		e := &doc.Resources[i]
		if modes != nil {
			if feat, ok := e.Labels[LabelFeature]; ok && skip[feat] {
				dropped[e.ID] = true
				continue
			}
			if gpu, ok := e.Labels[LabelGPU]; ok && gpu != modes.GPU {
				dropped[e.ID] = true
				continue
			}
		}

		spec, err := e.spec()
		if err != nil {
			return nil, err
		}
		expandPaths(spec)

		res := resource.Resource{
			ID:            e.ID,
			Kind:          spec.Kind(),
			Spec:          spec,
			DependsOn:     e.DependsOn,
			FailurePolicy: resource.FailurePolicy(firstNonEmpty(e.FailurePolicy, doc.Defaults.FailurePolicy)),
			Labels:        e.Labels,
			Timeout:       time.Duration(e.Timeout),
		}
		if res.Timeout == 0 {
			res.Timeout = time.Duration(doc.Defaults.Timeout)
		}
		if res.Timeout == 0 {
			res.Timeout = defaultTimeout
		}
		out = append(out, res)
	}

	// Prune edges into filtered-out resources so a skipped feature does
	// not strand its dependents. The document's own slices stay intact;
	// callers may convert the same document more than once.
	for i := range out {
		if len(out[i].DependsOn) == 0 {
			continue
		}
		kept := make([]string, 0, len(out[i].DependsOn))
		for _, dep := range out[i].DependsOn {
			if !dropped[dep] {
				kept = append(kept, dep)
			}
		}
		out[i].DependsOn = kept
	}

	if err := resource.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func expandPaths(spec resource.Spec) {
	switch s := spec.(type) {
	case *resource.FileWriteSpec:
		s.Path = resource.ExpandHome(s.Path)
	case *resource.ExtensionSpec:
		s.InstallDir = resource.ExpandHome(s.InstallDir)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
