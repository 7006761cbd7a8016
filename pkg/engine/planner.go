package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/desktide/desktide/pkg/resource"
)

// BuildPlan validates a resource set and resolves it into an ordered
// plan using Kahn's algorithm. Ties between resources with no ordering
// constraint are broken by declaration order, so identical input yields
// identical output. A cycle or any other validation failure is reported
// before any adapter runs.
func BuildPlan(resources []resource.Resource) (*Plan, error) {
	if err := resource.Validate(resources); err != nil {
		return nil, err
	}

	declIndex := make(map[string]int, len(resources))
	for i := range resources {
		declIndex[resources[i].ID] = i
	}

	// dependents maps a resource to the declaration indices of the
	// resources that depend on it.
	dependents := make(map[string][]int, len(resources))
	inDegree := make([]int, len(resources))
	for i := range resources {
		for _, dep := range resources[i].DependsOn {
			dependents[dep] = append(dependents[dep], i)
			inDegree[i]++
		}
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Steps:     make([]Step, 0, len(resources)),
	}

	// Kahn's algorithm processed wave by wave. Each wave is an
	// independent set; scanning waves in declaration order gives the
	// stable tie-break.
	current := make([]int, 0)
	for i := range resources {
		if inDegree[i] == 0 {
			current = append(current, i)
		}
	}

	order := 0
	for level := 0; len(current) > 0; level++ {
		levelSteps := make([]int, 0, len(current))
		next := make(map[int]bool)

		for _, idx := range current {
			plan.Steps = append(plan.Steps, Step{
				Resource: resources[idx],
				Order:    order,
				Level:    level,
			})
			levelSteps = append(levelSteps, order)
			order++

			for _, depIdx := range dependents[resources[idx].ID] {
				inDegree[depIdx]--
				if inDegree[depIdx] == 0 {
					next[depIdx] = true
				}
			}
		}
		plan.Levels = append(plan.Levels, levelSteps)

		current = current[:0]
		// Rebuild the next wave in declaration order.
		for i := range resources {
			if next[i] {
				current = append(current, i)
			}
		}
	}

	// Validation already rejects cycles; a short count here would mean
	// an internal bookkeeping bug.
	if len(plan.Steps) != len(resources) {
		return nil, NewPermanentError("planner failed to order all resources", nil).
			WithCode(ErrCodeInternal)
	}

	return plan, nil
}
