package observability

import "context"

// Checker is a dependency verified by the readiness probe. Check must honour
// the context deadline.
type Checker interface {
	// Name identifies the component in the readiness payload (e.g., "postgres", "redis").
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.Component }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
