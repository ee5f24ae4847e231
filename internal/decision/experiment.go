package decision

import (
	"context"

	"github.com/rafaeljc/arbiter/internal/store"
)

// CaseErrorGatewayClosed is the rejection type returned by experiment nodes
// when the subject is not eligible.
const CaseErrorGatewayClosed = "gateway-closed"

// Limiter is an eligibility predicate. Limiters of one experiment are
// independent and evaluated concurrently; all must allow.
type Limiter interface {
	Allowed(ctx context.Context, dctx *Context, result Result) (bool, error)
}

// LimiterFunc adapts a function to Limiter.
type LimiterFunc func(ctx context.Context, dctx *Context, result Result) (bool, error)

func (f LimiterFunc) Allowed(ctx context.Context, dctx *Context, result Result) (bool, error) {
	return f(ctx, dctx, result)
}

// ExperimentPolicy is the behaviour that specialises an experiment node.
type ExperimentPolicy interface {
	// Definition identifies the experiment. It is upserted on every run.
	Definition() store.ExperimentDefinition

	// Limiters gate eligibility for subjects without a prior successful, linked visit.
	Limiters() []Limiter

	// ExperimentCase produces the outcome of the node's single case.
	ExperimentCase(ctx context.Context, dctx *Context, eligible bool, result Result) (CaseOutcome, error)

	// IsSuccessful decides a pending visit once the walk reached a terminal node.
	IsSuccessful(ctx context.Context, dctx *Context, result Result) (bool, error)

	// OnAdvanceCreated runs after a downstream artifact produced by the run was
	// linked to visit. firstTime is true when the subject had no other successful,
	// linked visit for this experiment.
	OnAdvanceCreated(ctx context.Context, outcomeID string, visit store.VisitLog, firstTime bool) error
}
