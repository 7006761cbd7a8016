package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/desktide/desktide/pkg/resource"
)

// StepState tracks a step through the executor's state machine:
// Pending -> Probing -> {Skipped | Applying -> {Applied | Failed}}.
type StepState string

const (
	StepPending  StepState = "pending"
	StepProbing  StepState = "probing"
	StepApplying StepState = "applying"
	StepApplied  StepState = "applied"
	StepSkipped  StepState = "skipped"
	StepFailed   StepState = "failed"
)

// Step is one resource positioned in the execution order.
type Step struct {
	// Resource is the declared resource this step applies.
	Resource resource.Resource `json:"resource"`

	// Order is the position in the topological execution order.
	Order int `json:"order"`

	// Level is the dependency depth. Steps sharing a level have no
	// dependency path between them and form an independent set.
	Level int `json:"level"`
}

// Plan is a dependency-ordered sequence of steps for one run.
// Plans are deterministic: the same resource set always produces the
// same step ordering.
type Plan struct {
	// ID is the unique identifier of this plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`

	// Steps are the plan steps in execution order.
	Steps []Step `json:"steps"`

	// Levels holds indices into Steps grouped by dependency depth.
	// Every step in a level may only depend on steps in lower levels.
	Levels [][]int `json:"levels"`
}

// Render writes a human-readable listing of the plan.
func (p *Plan) Render(w io.Writer) {
	fmt.Fprintf(w, "Plan %s: %d steps, %d levels\n", p.ID, len(p.Steps), len(p.Levels))
	for _, s := range p.Steps {
		policy := ""
		if s.Resource.Fatal() {
			policy = " [fatal]"
		}
		deps := ""
		if len(s.Resource.DependsOn) > 0 {
			deps = fmt.Sprintf(" (after %v)", s.Resource.DependsOn)
		}
		fmt.Fprintf(w, "  %3d. %-10s %s%s%s\n", s.Order+1, s.Resource.Kind, s.Resource.ID, deps, policy)
	}
}
