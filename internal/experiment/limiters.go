package experiment

import (
	"context"
	"fmt"

	"github.com/rafaeljc/arbiter/internal/counter"
	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/rollout"
	"github.com/rafaeljc/arbiter/internal/validation"
)

// Compile-time checks.
var (
	_ decision.Limiter = ActiveLimiter(false)
	_ decision.Limiter = (*RatioLimiter)(nil)
	_ decision.Limiter = (*CounterQuotaLimiter)(nil)
)

// ActiveLimiter is the experiment's on/off switch.
type ActiveLimiter bool

func (a ActiveLimiter) Allowed(context.Context, *decision.Context, decision.Result) (bool, error) {
	return bool(a), nil
}

// RatioLimiter admits the share of subjects given by Ratio. Assignment is a
// pure function of the subject and Salt.
type RatioLimiter struct {
	Ratio float64
	Salt  string
}

func (r *RatioLimiter) Allowed(_ context.Context, dctx *decision.Context, _ decision.Result) (bool, error) {
	return rollout.InBucket(r.Ratio, dctx.SubjectID, r.Salt), nil
}

// CounterQuotaLimiter admits explicit user requests while the shared counter
// is below Limit. Background and scheduled triggers never pass, so they never
// consume quota.
//
// The limiter only reads the counter. Increments happen when an advance is
// created, see Gate.OnAdvanceCreated.
type CounterQuotaLimiter struct {
	counter counter.Store
	name    string
	limit   int64
}

// NewCounterQuotaLimiter returns a quota limiter over the counter called name.
func NewCounterQuotaLimiter(counters counter.Store, name string, limit int64) *CounterQuotaLimiter {
	validation.AssertNotNil(counters, "counter store")
	return &CounterQuotaLimiter{counter: counters, name: name, limit: limit}
}

func (c *CounterQuotaLimiter) Allowed(ctx context.Context, dctx *decision.Context, _ decision.Result) (bool, error) {
	if dctx.Trigger != decision.TriggerUserRequest {
		return false, nil
	}
	current, err := c.counter.Get(ctx, c.name)
	if err != nil {
		return false, fmt.Errorf("quota %q: %w", c.name, err)
	}
	return current < c.limit, nil
}

// Limit returns the configured ceiling.
func (c *CounterQuotaLimiter) Limit() int64 {
	return c.limit
}
