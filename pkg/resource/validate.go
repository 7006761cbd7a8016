package resource

import (
	"fmt"
	"strings"
)

// ValidationError aggregates all pre-run validation failures for a
// resource set. Validation blocks planning entirely: no adapter runs
// against an invalid set.
type ValidationError struct {
	Errs []error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("resource validation failed: %v", e.Errs[0])
	}
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("resource validation failed (%d errors): %s",
		len(e.Errs), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual validation errors to errors.Is/As.
func (e *ValidationError) Unwrap() []error {
	return e.Errs
}

// DuplicateIDError reports a resource ID declared more than once.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate resource id: %s", e.ID)
}

// DanglingDependencyError reports a dependsOn reference to an ID that
// is not declared in the resource set.
type DanglingDependencyError struct {
	ResourceID string
	DependsOn  string
}

func (e *DanglingDependencyError) Error() string {
	return fmt.Sprintf("resource %s depends on undeclared resource %s",
		e.ResourceID, e.DependsOn)
}

// CycleError reports a dependency cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Validate checks a resource set for duplicate IDs, dangling
// dependencies, invalid kinds/specs/policies, and dependency cycles.
// It is pure: no adapter is consulted and no side effects occur.
func Validate(resources []Resource) error {
	var errs []error

	byID := make(map[string]*Resource, len(resources))
	for i := range resources {
		r := &resources[i]
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("resource at index %d has an empty id", i))
			continue
		}
		if _, dup := byID[r.ID]; dup {
			errs = append(errs, &DuplicateIDError{ID: r.ID})
			continue
		}
		byID[r.ID] = r

		if err := r.Kind.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", r.ID, err))
		}
		if r.FailurePolicy != "" {
			if err := r.FailurePolicy.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("resource %s: %w", r.ID, err))
			}
		}
		if r.Spec == nil {
			errs = append(errs, fmt.Errorf("resource %s has no spec", r.ID))
		} else {
			if r.Spec.Kind() != r.Kind {
				errs = append(errs, fmt.Errorf("resource %s: spec kind %s does not match resource kind %s",
					r.ID, r.Spec.Kind(), r.Kind))
			}
			if err := r.Spec.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("resource %s: %w", r.ID, err))
			}
		}
	}

	for i := range resources {
		r := &resources[i]
		for _, dep := range r.DependsOn {
			if dep == r.ID {
				errs = append(errs, &CycleError{Cycle: []string{r.ID, r.ID}})
				continue
			}
			if _, ok := byID[dep]; !ok {
				errs = append(errs, &DanglingDependencyError{ResourceID: r.ID, DependsOn: dep})
			}
		}
	}

	// Cycle detection only makes sense on a structurally sound graph.
	if len(errs) == 0 {
		if cycle := findCycle(resources, byID); cycle != nil {
			errs = append(errs, &CycleError{Cycle: cycle})
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errs: errs}
	}
	return nil
}

// findCycle runs a depth-first search over the dependency edges and
// returns the first cycle found as an ID path, or nil.
func findCycle(resources []Resource, byID map[string]*Resource) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(resources))

	var path []string
	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)

		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case gray:
				// Found a back edge; slice the path from the repeat.
				for i, p := range path {
					if p == dep {
						return append(append([]string{}, path[i:]...), dep)
					}
				}
			}
		}

		color[id] = black
		path = path[:len(path)-1]
		return nil
	}

	for i := range resources {
		id := resources[i].ID
		if color[id] == white {
			path = path[:0]
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
