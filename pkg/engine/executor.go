package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

// Options control one run of the executor.
type Options struct {
	// DryRun probes every step but applies nothing; unsatisfied steps
	// are reported as skipped with a dry-run reason.
	DryRun bool

	// Parallelism bounds concurrent applies within an independent set.
	// The default of 1 executes strictly sequentially; concurrency is
	// an opt-in optimization and only applies to adapters that declare
	// themselves concurrency-safe.
	Parallelism int

	// StepTimeout bounds a single adapter call. A per-resource timeout
	// overrides it. A timeout is treated as a failure.
	StepTimeout time.Duration

	// MaxRetries is the retry budget for transient failures. Zero
	// means the default of 2; a negative value disables retries.
	MaxRetries int

	// RetryBaseDelay is the initial backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Parallelism < 1 {
		o.Parallelism = 1
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 10 * time.Minute
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	return o
}

// Runner drives a plan through the adapters and aggregates outcomes
// into a run report.
type Runner struct {
	registry *Registry
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
}

// NewRunner creates a runner. Logger and metrics may be nil.
func NewRunner(registry *Registry, logger *telemetry.Logger, metrics *telemetry.Metrics) *Runner {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Runner{
		registry: registry,
		log:      logger.NewComponentLogger("executor"),
		metrics:  metrics,
	}
}

// Run plans and executes a resource set. This is the core entry point
// consumed by the CLI.
func (r *Runner) Run(ctx context.Context, resources []resource.Resource, opts Options) (*RunReport, error) {
	plan, err := BuildPlan(resources)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, plan, opts)
}

// Execute applies every step of the plan in dependency order and
// returns the run report. The error return covers executor-level
// problems only; step failures live in the report.
func (r *Runner) Execute(ctx context.Context, plan *Plan, opts Options) (*RunReport, error) {
	opts = opts.withDefaults()

	ctx, span := otel.Tracer("desktide/engine").Start(ctx, "run")
	defer span.End()

	report := &RunReport{
		RunID:     uuid.New().String(),
		PlanID:    plan.ID,
		StartedAt: time.Now(),
	}
	span.SetAttributes(
		attribute.String("run.id", report.RunID),
		attribute.Int("plan.steps", len(plan.Steps)),
	)

	log := r.log.WithRunID(report.RunID)
	log.Infof("starting run: %d steps, parallelism=%d, dry_run=%v",
		len(plan.Steps), opts.Parallelism, opts.DryRun)
	if r.metrics != nil {
		r.metrics.RunStarted()
	}

	st := &runState{
		states: make(map[string]StepState, len(plan.Steps)),
		report: report,
	}

levels:
	for _, level := range plan.Levels {
		steps := make([]*Step, 0, len(level))
		for _, idx := range level {
			steps = append(steps, &plan.Steps[idx])
		}

		if opts.Parallelism > 1 {
			r.executeLevelParallel(ctx, steps, opts, st, log)
		} else {
			for _, step := range steps {
				r.executeStep(ctx, step, opts, st, log)
				if st.halted() {
					break levels
				}
			}
		}
		if st.halted() {
			break
		}
	}

	report.CompletedAt = time.Now()
	if r.metrics != nil {
		r.metrics.RunCompleted(report.Summary.Applied, report.Summary.Skipped,
			report.Summary.Failed, report.CompletedAt.Sub(report.StartedAt))
	}
	log.Infof("run complete: %d applied, %d skipped, %d failed",
		report.Summary.Applied, report.Summary.Skipped, report.Summary.Failed)
	return report, nil
}

// executeLevelParallel runs one independent set. Steps whose adapter is
// concurrency-safe go through a bounded worker pool; the rest run
// sequentially afterwards. Ordering guarantees hold only across
// dependency edges, never within a level.
func (r *Runner) executeLevelParallel(ctx context.Context, steps []*Step, opts Options, st *runState, log *telemetry.Logger) {
	var safe, serial []*Step
	for _, step := range steps {
		adapter, err := r.registry.Get(step.Resource.Kind)
		if err == nil && adapter.ConcurrencySafe() {
			safe = append(safe, step)
		} else {
			serial = append(serial, step)
		}
	}

	if len(safe) > 0 {
		workers := opts.Parallelism
		if len(safe) < workers {
			workers = len(safe)
		}
		queue := make(chan *Step, len(safe))
		for _, step := range safe {
			queue <- step
		}
		close(queue)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for step := range queue {
					if st.halted() {
						return
					}
					r.executeStep(ctx, step, opts, st, log)
				}
			}()
		}
		wg.Wait()
	}

	for _, step := range serial {
		if st.halted() {
			return
		}
		r.executeStep(ctx, step, opts, st, log)
	}
}

// executeStep walks one step through
// Pending -> Probing -> {Skipped | Applying -> {Applied | Failed}}
// and records its terminal outcome.
func (r *Runner) executeStep(ctx context.Context, step *Step, opts Options, st *runState, log *telemetry.Logger) {
	res := &step.Resource
	log = log.WithResourceID(res.ID)

	ctx, span := otel.Tracer("desktide/engine").Start(ctx, "step")
	defer span.End()
	span.SetAttributes(
		attribute.String("resource.id", res.ID),
		attribute.String("resource.kind", string(res.Kind)),
	)

	started := time.Now()
	outcome := Outcome{ResourceID: res.ID, Kind: res.Kind, StartedAt: started}
	var flags []AdvisoryFlag

	defer func() {
		outcome.CompletedAt = time.Now()
		st.finish(res.ID, outcome, flags)
		if r.metrics != nil {
			r.metrics.StepObserved(string(res.Kind), string(outcome.Status),
				outcome.CompletedAt.Sub(started))
		}
	}()

	// Dependency gate: a failed dependency skips its dependents. Fatal
	// failures halt the run before dependents are scheduled at all, so
	// this only triggers for best-effort failures.
	if failedDep := st.failedDependency(res.DependsOn); failedDep != "" {
		outcome.Status = OutcomeSkipped
		outcome.Reason = fmt.Sprintf("dependency %s failed", failedDep)
		log.Warnf("skipping %s: dependency %s failed", res.ID, failedDep)
		return
	}

	adapter, err := r.registry.Get(res.Kind)
	if err != nil {
		r.fail(&outcome, step, st, classify(err, res.ID), log)
		return
	}

	timeout := opts.StepTimeout
	if res.Timeout > 0 {
		timeout = res.Timeout
	}

	st.setState(res.ID, StepProbing)
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	probe, probeErr := adapter.Probe(probeCtx, res)
	cancel()

	switch {
	case probeErr == nil && probe.Satisfied:
		outcome.Status = OutcomeSkipped
		outcome.Reason = probe.Reason
		if outcome.Reason == "" {
			outcome.Reason = "already satisfied"
		}
		log.Debugf("skipping %s: %s", res.ID, outcome.Reason)
		return
	case IsUnsupported(probeErr):
		outcome.Status = OutcomeSkipped
		outcome.Reason = classify(probeErr, res.ID).Message
		log.Warnf("skipping %s: unsupported environment: %s", res.ID, outcome.Reason)
		return
	case probeErr != nil:
		// A broken probe is not conclusive either way; the apply path
		// decides, and the adapters are idempotent.
		log.WithError(probeErr).Warnf("probe failed for %s, attempting apply", res.ID)
	}

	if opts.DryRun {
		outcome.Status = OutcomeSkipped
		outcome.Reason = "dry-run: would apply"
		return
	}

	st.setState(res.ID, StepApplying)
	for attempt := 0; ; attempt++ {
		outcome.Attempts = attempt + 1

		applyCtx, cancel := context.WithTimeout(ctx, timeout)
		result, applyErr := adapter.Apply(applyCtx, res)
		timedOut := applyCtx.Err() != nil && errors.Is(applyCtx.Err(), context.DeadlineExceeded)
		cancel()

		if applyErr == nil {
			if result != nil {
				outcome.Reason = result.Detail
				flags = result.Flags
			}
			// Some states only become visible at apply time: the adapter
			// reports no mutation, so the step converged rather than
			// changed anything.
			if result != nil && !result.Changed {
				outcome.Status = OutcomeSkipped
				log.Debugf("skipping %s: %s", res.ID, outcome.Reason)
				return
			}
			outcome.Status = OutcomeApplied
			log.Infof("applied %s", res.ID)
			return
		}

		if timedOut {
			r.fail(&outcome, step, st,
				NewPermanentError("adapter call timed out", applyErr).
					WithCode(ErrCodeTimeout).WithResource(res.ID), log)
			return
		}
		if IsUnsupported(applyErr) {
			outcome.Status = OutcomeSkipped
			outcome.Reason = classify(applyErr, res.ID).Message
			log.Warnf("skipping %s: unsupported environment: %s", res.ID, outcome.Reason)
			return
		}
		if IsRetryable(applyErr) && attempt < opts.MaxRetries {
			delay := opts.RetryBaseDelay << uint(attempt)
			log.WithError(applyErr).Warnf("transient failure on %s, retrying in %s (%d/%d)",
				res.ID, delay, attempt+1, opts.MaxRetries)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				r.fail(&outcome, step, st,
					NewPermanentError("run cancelled", ctx.Err()).
						WithCode(ErrCodeTimeout).WithResource(res.ID), log)
				return
			}
		}

		r.fail(&outcome, step, st, classify(applyErr, res.ID), log)
		return
	}
}

// fail records a failed outcome and halts the run when the resource's
// failure policy is fatal.
func (r *Runner) fail(outcome *Outcome, step *Step, st *runState, err *StepError, log *telemetry.Logger) {
	outcome.Status = OutcomeFailed
	outcome.Reason = err.Error()
	outcome.Err = err
	log.WithError(err).Errorf("failed %s", step.Resource.ID)

	if step.Resource.Fatal() {
		st.halt(outcome)
		log.Errorf("halting run: fatal failure in %s", step.Resource.ID)
	}
}

// classify wraps any error into the StepError taxonomy, defaulting to
// permanent.
func classify(err error, resourceID string) *StepError {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		if stepErr.Resource == "" {
			stepErr.Resource = resourceID
		}
		return stepErr
	}
	return NewPermanentError("adapter call failed", err).
		WithCode(ErrCodeCommand).WithResource(resourceID)
}

// runState is the executor's shared mutable state for one run.
type runState struct {
	mu      sync.Mutex
	states  map[string]StepState
	report  *RunReport
	fatal   bool
	fatalID string
}

func (s *runState) setState(id string, state StepState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = state
}

func (s *runState) finish(id string, o Outcome, flags []AdvisoryFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = StepState(o.Status)
	s.report.record(o)
	s.report.addFlags(flags)
	if s.fatal && s.fatalID == id {
		cp := o
		s.report.FatalFailure = &cp
	}
}

func (s *runState) failedDependency(deps []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dep := range deps {
		if s.states[dep] == StepFailed {
			return dep
		}
	}
	return ""
}

func (s *runState) halt(fatal *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatal = true
	s.fatalID = fatal.ResourceID
}

func (s *runState) halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}
