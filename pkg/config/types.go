// Package config loads desired-state documents from YAML and turns
// them into resource sets ready for planning.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/desktide/desktide/pkg/resource"
)

// Duration is a time.Duration that parses from strings like "30s" or
// "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("timeout must be a duration string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Document is the top-level shape of a desired-state file.
type Document struct {
	// Version is the document format version. Only version 1 is
	// understood today.
	Version int `yaml:"version" validate:"required,eq=1"`

	// Defaults apply to every resource entry that does not set the
	// corresponding field itself.
	Defaults Defaults `yaml:"defaults"`

	// Resources is the declared resource list. Declaration order is
	// preserved and used as the planning tie-break.
	Resources []Entry `yaml:"resources" validate:"required,min=1,dive"`
}

// Defaults holds document-wide fallbacks for per-resource settings.
type Defaults struct {
	FailurePolicy string   `yaml:"failure_policy" validate:"omitempty,oneof=fatal best-effort"`
	Timeout       Duration `yaml:"timeout"`
}

// Entry is a single resource declaration. Exactly one of the
// kind-specific payload fields must be set; the kind is inferred from
// which one it is.
type Entry struct {
	ID            string            `yaml:"id" validate:"required"`
	FailurePolicy string            `yaml:"failure_policy" validate:"omitempty,oneof=fatal best-effort"`
	DependsOn     []string          `yaml:"depends_on"`
	Labels        map[string]string `yaml:"labels"`
	Timeout       Duration          `yaml:"timeout"`

	Package    *resource.PackageSpec       `yaml:"package"`
	Flatpak    *resource.FlatpakSpec       `yaml:"flatpak"`
	File       *resource.FileWriteSpec     `yaml:"file"`
	Preference *resource.PreferenceSpec    `yaml:"preference"`
	Script     *resource.ScriptInstallSpec `yaml:"script"`
	Extension  *resource.ExtensionSpec     `yaml:"extension"`
}

// spec returns the single populated payload, or an error when the
// entry declares zero or more than one.
func (e *Entry) spec() (resource.Spec, error) {
	var specs []resource.Spec
	if e.Package != nil {
		specs = append(specs, e.Package)
	}
	if e.Flatpak != nil {
		specs = append(specs, e.Flatpak)
	}
	if e.File != nil {
		specs = append(specs, e.File)
	}
	if e.Preference != nil {
		specs = append(specs, e.Preference)
	}
	if e.Script != nil {
		specs = append(specs, e.Script)
	}
	if e.Extension != nil {
		specs = append(specs, e.Extension)
	}
	switch len(specs) {
	case 0:
		return nil, fmt.Errorf("resource %q declares no kind payload", e.ID)
	case 1:
		return specs[0], nil
	default:
		return nil, fmt.Errorf("resource %q declares %d kind payloads, want exactly one", e.ID, len(specs))
	}
}

var validate = validator.New()

// Validate checks the document shape before resource conversion.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	for i := range d.Resources {
		if _, err := d.Resources[i].spec(); err != nil {
			return err
		}
	}
	return nil
}
