// Package resource defines the declarative resource model: typed
// descriptions of desired system state (packages, flatpak apps, files,
// desktop preferences, scripted installers, shell extensions) plus
// pre-run validation of the dependency graph.
package resource

import (
	"fmt"
	"time"
)

// Kind identifies the backend responsible for a resource.
type Kind string

const (
	// KindPackage is a package installed through the system package manager.
	KindPackage Kind = "package"

	// KindFlatpakApp is an application installed from a flatpak remote.
	KindFlatpakApp Kind = "flatpak"

	// KindFileWrite is a file whose content should match a rendered template.
	KindFileWrite Kind = "file"

	// KindPreferenceSet is a desktop preference key set to a desired value.
	KindPreferenceSet Kind = "preference"

	// KindScriptInstall is a remote installer script fetched and executed.
	KindScriptInstall Kind = "script"

	// KindExtensionInstall is a shell extension extracted and enabled.
	KindExtensionInstall Kind = "extension"
)

// Validate checks if the kind is one of the recognized resource kinds.
func (k Kind) Validate() error {
	switch k {
	case KindPackage, KindFlatpakApp, KindFileWrite,
		KindPreferenceSet, KindScriptInstall, KindExtensionInstall:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// FailurePolicy controls whether a step's failure halts the run.
type FailurePolicy string

const (
	// PolicyFatal stops the run on failure; remaining steps are not attempted.
	PolicyFatal FailurePolicy = "fatal"

	// PolicyBestEffort records the failure and continues with the next step.
	PolicyBestEffort FailurePolicy = "best-effort"
)

// Validate checks if the failure policy is valid.
func (p FailurePolicy) Validate() error {
	switch p {
	case PolicyFatal, PolicyBestEffort:
		return nil
	default:
		return fmt.Errorf("invalid failure policy: %s", p)
	}
}

// Spec is the kind-specific payload of a resource.
type Spec interface {
	// Kind returns the resource kind this spec belongs to.
	Kind() Kind

	// Validate checks the spec for structural errors.
	Validate() error
}

// Resource is a declared unit of desired system state.
// Resources are defined at configuration-load time and are immutable
// for the duration of a run.
type Resource struct {
	// ID is the unique identifier within a plan.
	ID string `json:"id"`

	// Kind selects the backend adapter.
	Kind Kind `json:"kind"`

	// Spec is the kind-specific desired state.
	Spec Spec `json:"spec"`

	// DependsOn lists resource IDs that must be applied before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// FailurePolicy controls whether a failure halts the run.
	// Defaults to PolicyBestEffort when empty.
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty"`

	// Labels are key-value pairs used for run-mode filtering
	// (e.g. feature groups, GPU variants).
	Labels map[string]string `json:"labels,omitempty"`

	// Timeout bounds a single adapter call for this resource.
	// Zero means the executor default applies.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Policy returns the effective failure policy, defaulting to best-effort.
func (r *Resource) Policy() FailurePolicy {
	if r.FailurePolicy == "" {
		return PolicyBestEffort
	}
	return r.FailurePolicy
}

// Fatal reports whether a failure of this resource halts the run.
func (r *Resource) Fatal() bool {
	return r.Policy() == PolicyFatal
}

// Label returns the value of a label, or "" if unset.
func (r *Resource) Label(key string) string {
	if r.Labels == nil {
		return ""
	}
	return r.Labels[key]
}
