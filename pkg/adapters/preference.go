package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

// PrefStore reads and writes desktop preference keys through the
// gsettings CLI. The available-schema list is fetched once per run and
// cached; preference schemas vary across desktop versions, which is
// why resources carry ordered candidate targets instead of one key.
type PrefStore struct {
	run CommandRunner

	mu      sync.Mutex
	schemas map[string]bool
}

// NewPrefStore creates a preference store backed by gsettings.
func NewPrefStore(run CommandRunner) *PrefStore {
	return &PrefStore{run: run}
}

// ResolveTarget returns the first candidate whose schema exists on this
// system. No candidate present is an unsupported environment, never a
// failure.
func (s *PrefStore) ResolveTarget(ctx context.Context, targets []resource.PrefTarget) (resource.PrefTarget, error) {
	if !s.run.LookPath("gsettings") {
		return resource.PrefTarget{}, engine.NewUnsupportedError(
			"gsettings not found on this system", nil).
			WithCode(engine.ErrCodeMissingBinary)
	}

	if err := s.loadSchemas(ctx); err != nil {
		return resource.PrefTarget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		if s.schemas[t.Schema] {
			return t, nil
		}
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Schema)
	}
	return resource.PrefTarget{}, engine.NewUnsupportedError(
		fmt.Sprintf("no candidate schema present (tried %s)", strings.Join(names, ", ")), nil).
		WithCode(engine.ErrCodeMissingSchema)
}

func (s *PrefStore) loadSchemas(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemas != nil {
		return nil
	}

	result, err := s.run.Run(ctx, "gsettings", "list-schemas")
	if err != nil || !result.Ok() {
		return engine.NewUnsupportedError("list preference schemas", err).
			WithCode(engine.ErrCodeMissingSchema)
	}

	s.schemas = make(map[string]bool)
	for _, line := range strings.Split(result.Stdout, "\n") {
		if schema := strings.TrimSpace(line); schema != "" {
			s.schemas[schema] = true
		}
	}
	return nil
}

// Get reads the current value of a key in GVariant text form.
func (s *PrefStore) Get(ctx context.Context, t resource.PrefTarget) (string, error) {
	result, err := s.run.Run(ctx, "gsettings", "get", t.Schema, t.Key)
	if err != nil {
		return "", engine.NewPermanentError(
			fmt.Sprintf("read %s %s", t.Schema, t.Key), err).
			WithCode(engine.ErrCodeCommand)
	}
	if !result.Ok() {
		// Schema exists but the key does not on this desktop version.
		return "", engine.NewUnsupportedError(
			fmt.Sprintf("key %s not present in schema %s", t.Key, t.Schema), nil).
			WithCode(engine.ErrCodeMissingSchema)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Set writes a key value in GVariant text form.
func (s *PrefStore) Set(ctx context.Context, t resource.PrefTarget, value string) error {
	result, err := s.run.Run(ctx, "gsettings", "set", t.Schema, t.Key, value)
	if err != nil {
		return engine.NewPermanentError(
			fmt.Sprintf("set %s %s", t.Schema, t.Key), err).
			WithCode(engine.ErrCodeCommand)
	}
	if !result.Ok() {
		return engine.NewPermanentError(
			fmt.Sprintf("set %s %s: %s", t.Schema, t.Key, stderrTail(result)), nil).
			WithCode(engine.ErrCodeCommand)
	}
	return nil
}

// PreferenceAdapter sets desktop preference keys, including pure
// read-modify-write transforms of list-valued keys.
type PreferenceAdapter struct {
	store *PrefStore
	log   *telemetry.Logger
}

// NewPreferenceAdapter creates a preference adapter sharing the given
// store (and its schema cache).
func NewPreferenceAdapter(store *PrefStore, log *telemetry.Logger) *PreferenceAdapter {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &PreferenceAdapter{store: store, log: log.NewComponentLogger("pref")}
}

// Kind implements engine.Adapter.
func (a *PreferenceAdapter) Kind() resource.Kind { return resource.KindPreferenceSet }

// ConcurrencySafe implements engine.Adapter. All keys funnel into one
// session dconf writer.
func (a *PreferenceAdapter) ConcurrencySafe() bool { return false }

// Probe compares the current key value with the desired one.
func (a *PreferenceAdapter) Probe(ctx context.Context, res *resource.Resource) (engine.ProbeResult, error) {
	spec := res.Spec.(*resource.PreferenceSpec)

	target, err := a.store.ResolveTarget(ctx, spec.Targets)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	current, err := a.store.Get(ctx, target)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	desired, err := desiredValue(spec, current)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	if normalizeValue(current) == normalizeValue(desired) {
		return engine.ProbeResult{Satisfied: true,
			Reason: fmt.Sprintf("%s %s already set", target.Schema, target.Key)}, nil
	}
	return engine.ProbeResult{
		Reason: fmt.Sprintf("%s %s is %s, want %s", target.Schema, target.Key, current, desired)}, nil
}

// Apply sets the resolved key to the desired value.
func (a *PreferenceAdapter) Apply(ctx context.Context, res *resource.Resource) (*engine.ApplyResult, error) {
	spec := res.Spec.(*resource.PreferenceSpec)

	target, err := a.store.ResolveTarget(ctx, spec.Targets)
	if err != nil {
		return nil, err
	}

	current, err := a.store.Get(ctx, target)
	if err != nil {
		return nil, err
	}

	desired, err := desiredValue(spec, current)
	if err != nil {
		return nil, err
	}
	if normalizeValue(current) == normalizeValue(desired) {
		return &engine.ApplyResult{
			Detail: fmt.Sprintf("%s %s already set", target.Schema, target.Key)}, nil
	}

	if err := a.store.Set(ctx, target, desired); err != nil {
		return nil, err
	}
	return &engine.ApplyResult{
		Changed: true,
		Detail:  fmt.Sprintf("set %s %s to %s", target.Schema, target.Key, desired),
	}, nil
}

// desiredValue computes the value to write: either the literal value
// or the list transform applied to the current value.
func desiredValue(spec *resource.PreferenceSpec, current string) (string, error) {
	if spec.ListOp == nil {
		return spec.Value, nil
	}

	elems, err := parseListValue(current)
	if err != nil {
		return "", engine.NewPermanentError(
			fmt.Sprintf("parse list value %q", current), err).
			WithCode(engine.ErrCodeCommand)
	}

	elem := strings.TrimSpace(spec.ListOp.Element)
	switch spec.ListOp.Op {
	case resource.ListOpEnsureContains:
		if !containsElem(elems, elem) {
			elems = append(elems, elem)
		}
	case resource.ListOpEnsureAbsent:
		elems = removeElem(elems, elem)
	case resource.ListOpPrepend:
		elems = append([]string{elem}, removeElem(elems, elem)...)
	default:
		return "", engine.NewPermanentError(
			fmt.Sprintf("unknown list op %q", spec.ListOp.Op), nil).
			WithCode(engine.ErrCodeCommand)
	}
	return formatListValue(elems), nil
}

// parseListValue parses a GVariant text list like ['a', 'b'] into its
// elements, kept in their textual form. Empty lists may appear as
// "@as []".
func parseListValue(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@as")
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("not a list value")
	}
	inner := s[1 : len(s)-1]

	var elems []string
	var buf strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case inQuote != 0:
			buf.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			buf.WriteByte(c)
		case c == ',':
			if e := strings.TrimSpace(buf.String()); e != "" {
				elems = append(elems, e)
			}
			buf.Reset()
		default:
			buf.WriteByte(c)
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("unterminated quote in list value")
	}
	if e := strings.TrimSpace(buf.String()); e != "" {
		elems = append(elems, e)
	}
	return elems, nil
}

// formatListValue renders elements back into GVariant text form.
func formatListValue(elems []string) string {
	if len(elems) == 0 {
		return "@as []"
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func containsElem(elems []string, elem string) bool {
	for _, e := range elems {
		if e == elem {
			return true
		}
	}
	return false
}

func removeElem(elems []string, elem string) []string {
	out := elems[:0:0]
	for _, e := range elems {
		if e != elem {
			out = append(out, e)
		}
	}
	return out
}

func normalizeValue(s string) string {
	return strings.TrimSpace(s)
}
