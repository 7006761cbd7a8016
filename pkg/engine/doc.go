// Package engine plans and applies declarative system configuration.
//
// # Overview
//
// The engine turns a validated resource set into an ordered plan and
// drives it through backend adapters, producing a run report:
//
//  1. Validate - reject duplicate IDs, dangling references and cycles
//  2. Plan - topological sort (Kahn) with declaration-order tie-break
//  3. Execute - probe each step, apply if unsatisfied, classify failures
//  4. Report - aggregate outcomes, counts and advisory flags
//
// # Core Domain Types
//
//   - Step: one resource positioned in the execution order
//   - Plan: the dependency-ordered step sequence plus independent sets
//   - Outcome: the immutable terminal result of one step
//   - RunReport: ordered outcomes, summary counts, advisory flags
//   - AdvisoryFlag: follow-up actions such as a required reboot
//
// # Adapter Interface
//
// Backends implement resource mutation through the Adapter interface:
//
//	type Adapter interface {
//	    Kind() resource.Kind
//	    Probe(ctx context.Context, res *resource.Resource) (ProbeResult, error)
//	    Apply(ctx context.Context, res *resource.Resource) (*ApplyResult, error)
//	    ConcurrencySafe() bool
//	}
//
// # Idempotence
//
// Re-running the executor against the same resource set converges:
// steps whose probe reports the desired state are skipped, so repeated
// runs are safe. This is the central contract of the design.
//
// # Error Classification
//
// Adapter errors are classified for outcome and retry logic:
//
//   - Transient: may succeed on retry (bounded backoff)
//   - Unsupported: the environment cannot carry the resource (skip)
//   - Permanent: attempted and failed
//
// A step's failure policy decides what a failure means: fatal halts the
// run immediately with all outcomes so far; best-effort records the
// failure and continues.
//
// # Concurrency
//
// Execution is sequential by default because the mutated backends
// (package database, desktop session) cannot be assumed concurrency
// safe. With Options.Parallelism > 1, steps inside one independent set
// whose adapters declare themselves concurrency-safe run through a
// bounded worker pool; ordering holds only across dependency edges.
package engine
