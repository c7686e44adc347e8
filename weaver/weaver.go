// Package weaver implements the instruction-stream rewriting engine: it
// takes methods selected for timing instrumentation and rewrites their
// bodies in place so that each one measures and logs its own wall-clock
// duration at run time.
//
// Standard methods get a stack-local timer started at entry and stopped at
// every exit point. Suspension-based methods (asynchronous state machines)
// get the same treatment applied to their step method, with injected state
// relocated into machine instance fields. Lazy-sequence state machines are
// refused.
//
// The engine is a single-threaded, purely in-memory transform; concurrency
// across methods is an optional optimization enabled per batch. A failure
// while processing one method never blocks the remaining methods.
package weaver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cloudcmds/chronoweave/diag"
	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/scan"
)

// Status describes the outcome of weaving one method.
type Status int

const (
	// StatusWoven means the method body was rewritten, possibly with
	// degradation diagnostics.
	StatusWoven Status = iota
	// StatusSkipped means the method was intentionally left unwoven.
	StatusSkipped
	// StatusFailed means weaving the method failed with a hard error.
	StatusFailed
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "woven"
	}
}

// Result is the outcome of weaving one method.
type Result struct {
	Method      string             `json:"method"`
	Kind        string             `json:"kind"`
	Status      Status             `json:"status"`
	Diagnostics []*diag.Diagnostic `json:"diagnostics,omitempty"`
}

// Report is the outcome of weaving one module.
type Report struct {
	Module  string        `json:"module"`
	BatchID string        `json:"batch_id"`
	Hook    string        `json:"hook"`
	Woven   int           `json:"woven"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
	Results []Result      `json:"results,omitempty"`
}

// Option configures a Weaver.
type Option func(*Weaver)

// WithLogger sets the logger used for per-method progress events.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Weaver) {
		w.log = log
	}
}

// WithConcurrency sets how many methods may be woven in parallel. Methods
// are independent targets; the default of 1 keeps the batch sequential.
func WithConcurrency(n int) Option {
	return func(w *Weaver) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithStateFieldName overrides the conventional name of the dispatch-state
// field on state machine types.
func WithStateFieldName(name string) Option {
	return func(w *Weaver) {
		w.stateFieldName = name
	}
}

// Weaver weaves one module: the batch unit of work.
type Weaver struct {
	module         *il.Module
	log            zerolog.Logger
	concurrency    int
	stateFieldName string
}

// New creates a Weaver for the given module.
func New(module *il.Module, opts ...Option) *Weaver {
	w := &Weaver{
		module:      module,
		log:         zerolog.Nop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WeaveModule selects the module's eligible methods and rewrites each one.
// Per-method failures are captured in the report; the returned error is
// reserved for batch-level failures (context cancellation).
func (w *Weaver) WeaveModule(goctx context.Context) (*Report, error) {
	started := time.Now()
	wctx := NewContext(w.module, w.log)
	if w.stateFieldName != "" {
		wctx.StateFieldName = w.stateFieldName
	}

	targets := scan.Select(w.module)
	w.log.Debug().
		Str("module", w.module.Name).
		Str("batch_id", wctx.BatchID).
		Int("targets", len(targets)).
		Str("hook", wctx.Hooks.Best(false).String()).
		Msg("weaving module")

	results := make([]Result, len(targets))
	if w.concurrency > 1 {
		g, ggctx := errgroup.WithContext(goctx)
		g.SetLimit(w.concurrency)
		for i, target := range targets {
			i, target := i, target
			g.Go(func() error {
				if err := ggctx.Err(); err != nil {
					return err
				}
				results[i] = w.weaveTarget(wctx, target)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, target := range targets {
			if err := goctx.Err(); err != nil {
				return nil, err
			}
			results[i] = w.weaveTarget(wctx, target)
		}
	}

	// A body that fails validation after a successful rewrite means the host
	// model itself is corrupt, which is fatal for the whole batch.
	for i, target := range targets {
		if results[i].Status != StatusWoven {
			continue
		}
		if body := wovenBody(target); body != nil {
			if err := body.Validate(); err != nil {
				return nil, fmt.Errorf("weaver: module %s is structurally invalid after weaving %s: %w",
					w.module.Name, target.Method.FullName(), err)
			}
		}
	}

	report := &Report{
		Module:  w.module.Name,
		BatchID: wctx.BatchID,
		Hook:    wctx.Hooks.Best(false).String(),
		Elapsed: time.Since(started),
		Results: results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusWoven:
			report.Woven++
		case StatusSkipped:
			report.Skipped++
		case StatusFailed:
			report.Failed++
		}
	}
	w.log.Info().
		Str("module", w.module.Name).
		Int("woven", report.Woven).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("weave complete")
	return report, nil
}

// weaveTarget weaves one method. Any panic while rewriting is recovered and
// wrapped with the method's identity so the batch continues.
func (w *Weaver) weaveTarget(wctx *Context, target scan.Target) (result Result) {
	identity := target.Method.FullName()
	result = Result{Method: identity, Kind: target.Kind.String()}

	defer func() {
		if r := recover(); r != nil {
			d := diag.New(diag.Internal, identity, "panic while rewriting: %v", r)
			result.Status = StatusFailed
			result.Diagnostics = append(result.Diagnostics, d)
			w.log.Error().Str("method", identity).Msg(d.Message)
		}
	}()

	switch target.Kind {
	case scan.TargetGenerator:
		// A lazy-sequence state machine is a deliberate non-goal. Opting the
		// method in explicitly upgrades the fixed diagnostic to a hard error.
		if target.Explicit {
			d := diag.New(diag.UnsupportedShape, identity,
				"method is a lazy-sequence state machine and was explicitly opted in")
			result.Status = StatusFailed
			result.Diagnostics = append(result.Diagnostics, d)
		} else {
			d := diag.Skip(diag.UnsupportedShape, identity,
				"method is a lazy-sequence state machine")
			result.Status = StatusSkipped
			result.Diagnostics = append(result.Diagnostics, d)
		}
	case scan.TargetSuspension:
		degraded, err := instrumentStateMachine(wctx, target.Method, target.StateMachine, target.Template)
		result.Diagnostics = append(result.Diagnostics, degraded...)
		if err != nil {
			result.Status = StatusFailed
			result.Diagnostics = append(result.Diagnostics, asDiagnostics(identity, err)...)
		}
	default:
		if err := instrumentStandard(wctx, target.Method, target.Template); err != nil {
			result.Status = StatusFailed
			result.Diagnostics = append(result.Diagnostics, asDiagnostics(identity, err)...)
		}
	}

	w.log.Debug().
		Str("method", identity).
		Str("kind", result.Kind).
		Str("status", result.Status.String()).
		Int("diagnostics", len(result.Diagnostics)).
		Msg("method processed")
	return result
}

// wovenBody returns the body that was rewritten for the target: the step
// method's body for suspension shapes, the method's own body otherwise.
func wovenBody(target scan.Target) *il.Body {
	if target.Kind == scan.TargetSuspension {
		if target.StateMachine == nil {
			return nil
		}
		step := target.StateMachine.MethodNamed(StepMethodName)
		if step == nil {
			return nil
		}
		return step.Body
	}
	return target.Method.Body
}

// asDiagnostics extracts diagnostics from a weave error, wrapping plain
// errors so a failure is never reported without a reason.
func asDiagnostics(method string, err error) []*diag.Diagnostic {
	if ds := diag.Diagnostics(err); len(ds) > 0 {
		return ds
	}
	return []*diag.Diagnostic{
		diag.New(diag.Internal, method, "rewrite failed").WithCause(err),
	}
}
