package engine

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/desktide/desktide/pkg/resource"
)

// OutcomeStatus is the terminal status of one resource in a run.
type OutcomeStatus string

const (
	// OutcomeApplied means the adapter mutated the system successfully.
	OutcomeApplied OutcomeStatus = "applied"

	// OutcomeSkipped means no mutation was attempted: the state was
	// already satisfied, the environment does not support the resource,
	// a dependency failed, or the run was a dry run.
	OutcomeSkipped OutcomeStatus = "skipped"

	// OutcomeFailed means the adapter attempted the mutation and failed.
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome is the immutable terminal result of attempting one resource.
// Every resource that the executor reaches ends in exactly one outcome.
type Outcome struct {
	// ResourceID identifies the resource.
	ResourceID string `json:"resource_id"`

	// Kind is the resource's kind, carried for reporting.
	Kind resource.Kind `json:"kind"`

	// Status is the terminal status.
	Status OutcomeStatus `json:"status"`

	// Reason explains skips and failures.
	Reason string `json:"reason,omitempty"`

	// Err carries the classified error for failed outcomes.
	Err *StepError `json:"error,omitempty"`

	// StartedAt and CompletedAt bound the step's execution.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Attempts counts adapter apply attempts, including retries.
	Attempts int `json:"attempts,omitempty"`
}

// AdvisoryFlag is a follow-up action surfaced once at the end of a run,
// regardless of which step raised it.
type AdvisoryFlag string

const (
	// FlagRebootRecommended suggests rebooting to pick up changes.
	FlagRebootRecommended AdvisoryFlag = "reboot-recommended"

	// FlagRebootRequired means changes do not take effect until reboot
	// (e.g. a GPU driver install).
	FlagRebootRequired AdvisoryFlag = "reboot-required"

	// FlagLogoutRequired means the desktop session must be restarted.
	FlagLogoutRequired AdvisoryFlag = "logout-required"
)

// Summary aggregates outcome counts for a run.
type Summary struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RunReport is the single source of truth for what a run did.
type RunReport struct {
	// RunID identifies this run.
	RunID string `json:"run_id"`

	// PlanID identifies the plan that was executed.
	PlanID string `json:"plan_id"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Outcomes are ordered by execution order.
	Outcomes []Outcome `json:"outcomes"`

	// Summary holds derived counts.
	Summary Summary `json:"summary"`

	// FatalFailure is set when a fatal step halted the run. Steps after
	// it were never attempted and have no outcome.
	FatalFailure *Outcome `json:"fatal_failure,omitempty"`

	// Flags are advisory flags accumulated across all steps.
	Flags []AdvisoryFlag `json:"flags,omitempty"`
}

// record appends an outcome and updates the summary.
func (r *RunReport) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Summary.Total++
	switch o.Status {
	case OutcomeApplied:
		r.Summary.Applied++
	case OutcomeSkipped:
		r.Summary.Skipped++
	case OutcomeFailed:
		r.Summary.Failed++
	}
}

// addFlags merges advisory flags with set semantics: flags accumulate
// and are never overwritten or duplicated.
func (r *RunReport) addFlags(flags []AdvisoryFlag) {
	for _, f := range flags {
		if !r.HasFlag(f) {
			r.Flags = append(r.Flags, f)
		}
	}
	sort.Slice(r.Flags, func(i, j int) bool { return r.Flags[i] < r.Flags[j] })
}

// HasFlag reports whether a flag was raised during the run.
func (r *RunReport) HasFlag(flag AdvisoryFlag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ExitCode is 0 when the run had no fatal failure, non-zero otherwise.
func (r *RunReport) ExitCode() int {
	if r.FatalFailure != nil {
		return 1
	}
	return 0
}

// Outcome returns the outcome for a resource ID, or nil if the step
// was never reached.
func (r *RunReport) Outcome(resourceID string) *Outcome {
	for i := range r.Outcomes {
		if r.Outcomes[i].ResourceID == resourceID {
			return &r.Outcomes[i]
		}
	}
	return nil
}

// Render writes a human-readable summary of the run.
func (r *RunReport) Render(w io.Writer) {
	fmt.Fprintf(w, "Run %s: %d applied, %d skipped, %d failed (of %d)\n",
		r.RunID, r.Summary.Applied, r.Summary.Skipped, r.Summary.Failed, r.Summary.Total)

	for _, o := range r.Outcomes {
		switch o.Status {
		case OutcomeApplied:
			fmt.Fprintf(w, "  applied  %s\n", o.ResourceID)
		case OutcomeSkipped:
			fmt.Fprintf(w, "  skipped  %s (%s)\n", o.ResourceID, o.Reason)
		case OutcomeFailed:
			fmt.Fprintf(w, "  FAILED   %s: %s\n", o.ResourceID, o.Reason)
		}
	}

	if r.FatalFailure != nil {
		fmt.Fprintf(w, "run halted: fatal failure in %s\n", r.FatalFailure.ResourceID)
	}
	for _, f := range r.Flags {
		fmt.Fprintf(w, "advisory: %s\n", f)
	}
}
