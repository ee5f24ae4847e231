// Package experiment provides the Gate experiment policy and its limiters.
//
// A Gate admits a subject when, in order, the experiment is active, the
// subject's deterministic bucket falls within the ratio, the optional quota
// still has room and the optional custom limiter agrees. Subjects who already
// benefited from the experiment skip all of this; the engine applies that rule.
//
// A context without a SubjectID is never admitted, even at ratio 1.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/arbiter/internal/counter"
	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/rollout"
	"github.com/rafaeljc/arbiter/internal/store"
)

// ErrInvalidRatio is returned by NewGate when the ratio lies outside [0, 1].
var ErrInvalidRatio = errors.New("experiment: invalid ratio")

// SuccessFunc decides whether a visit succeeded once the walk is over.
type SuccessFunc func(ctx context.Context, dctx *decision.Context, result decision.Result) (bool, error)

// IncrementPredicate decides whether a created advance consumes quota.
type IncrementPredicate func(ctx context.Context, outcomeID string, visit store.VisitLog, firstTime bool) bool

// FirstTimeOnly consumes quota only for a subject's first linked success.
func FirstTimeOnly(_ context.Context, _ string, _ store.VisitLog, firstTime bool) bool {
	return firstTime
}

// Always consumes quota for every linked success.
func Always(context.Context, string, store.VisitLog, bool) bool {
	return true
}

// SuccessField returns a SuccessFunc reading a boolean result field.
func SuccessField(field string) SuccessFunc {
	return func(_ context.Context, _ *decision.Context, result decision.Result) (bool, error) {
		return result.Bool(field), nil
	}
}

// Compile-time check to verify that Gate implements decision.ExperimentPolicy.
var _ decision.ExperimentPolicy = (*Gate)(nil)

// Gate is the standard experiment policy.
type Gate struct {
	def          store.ExperimentDefinition
	isSuccessful SuccessFunc
	active       bool
	ratio        float64
	treatment    decision.Updates

	custom    decision.Limiter
	quota     *CounterQuotaLimiter
	counter   counter.Store
	increment IncrementPredicate

	limiters []decision.Limiter
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

func WithDescription(description string) Option {
	return func(g *Gate) { g.def.Description = description }
}

func WithVersion(version int) Option {
	return func(g *Gate) { g.def.Version = version }
}

// WithActive switches the experiment on or off. Gates are active by default.
func WithActive(active bool) Option {
	return func(g *Gate) { g.active = active }
}

// WithRatio sets the admitted share of subjects. The default admits everybody.
func WithRatio(ratio float64) Option {
	return func(g *Gate) { g.ratio = ratio }
}

// WithCustomLimiter appends a limiter evaluated after the built-in ones.
func WithCustomLimiter(l decision.Limiter) Option {
	return func(g *Gate) { g.custom = l }
}

// WithCounter caps participation at limit using the shared counter named
// after the experiment. increment decides which created advances consume a
// slot; nil selects FirstTimeOnly.
func WithCounter(counters counter.Store, limit int64, increment IncrementPredicate) Option {
	return func(g *Gate) {
		g.counter = counters
		g.quota = NewCounterQuotaLimiter(counters, g.def.Name, limit)
		g.increment = increment
		if g.increment == nil {
			g.increment = FirstTimeOnly
		}
	}
}

// WithTreatment sets the updates contributed when a subject is admitted.
func WithTreatment(updates decision.Updates) Option {
	return func(g *Gate) { g.treatment = updates }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate builds a Gate.
func NewGate(id int64, name string, isSuccessful SuccessFunc, opts ...Option) (*Gate, error) {
	if name == "" {
		return nil, fmt.Errorf("experiment: name is required")
	}
	if isSuccessful == nil {
		return nil, fmt.Errorf("experiment %q: success predicate is required", name)
	}

	g := &Gate{
		def:          store.ExperimentDefinition{ID: id, Name: name, Version: 1},
		isSuccessful: isSuccessful,
		active:       true,
		ratio:        1,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := rollout.ValidateRatio(g.ratio); err != nil {
		return nil, fmt.Errorf("%w: experiment %q: %v", ErrInvalidRatio, name, err)
	}

	g.limiters = []decision.Limiter{
		ActiveLimiter(g.active),
		&RatioLimiter{Ratio: g.ratio, Salt: fmt.Sprintf("%d%s", id, name)},
	}
	if g.quota != nil {
		g.limiters = append(g.limiters, g.quota)
	}
	if g.custom != nil {
		g.limiters = append(g.limiters, g.custom)
	}
	return g, nil
}

func (g *Gate) Definition() store.ExperimentDefinition { return g.def }

// Limiters returns active, ratio, quota and custom limiters, in that order.
func (g *Gate) Limiters() []decision.Limiter {
	return g.limiters
}

// Node wraps the gate in an experiment node.
func (g *Gate) Node(opts ...decision.NodeOption) *decision.Node {
	return decision.NewExperimentNode(g, opts...)
}

func (g *Gate) ExperimentCase(_ context.Context, _ *decision.Context, eligible bool, _ decision.Result) (decision.CaseOutcome, error) {
	if !eligible {
		return decision.Reject(decision.CaseErrorGatewayClosed,
			fmt.Sprintf("experiment %q is closed for this subject", g.def.Name)), nil
	}
	return decision.Pass(g.treatment).WithLogData(map[string]any{
		"ratio":   g.ratio,
		"version": g.def.Version,
	}), nil
}

func (g *Gate) IsSuccessful(ctx context.Context, dctx *decision.Context, result decision.Result) (bool, error) {
	return g.isSuccessful(ctx, dctx, result)
}

// OnAdvanceCreated consumes one quota slot when a counter is configured and
// its predicate agrees.
func (g *Gate) OnAdvanceCreated(ctx context.Context, outcomeID string, visit store.VisitLog, firstTime bool) error {
	if g.counter == nil || !g.increment(ctx, outcomeID, visit, firstTime) {
		return nil
	}

	n, err := g.counter.Increment(ctx, g.def.Name)
	if err != nil {
		return err
	}
	g.logger.Info("experiment quota consumed",
		slog.String("experiment", g.def.Name),
		slog.String("outcome_id", outcomeID),
		slog.Int64("count", n),
		slog.Int64("limit", g.quota.Limit()),
	)
	return nil
}
