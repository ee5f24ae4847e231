package decision

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rafaeljc/arbiter/internal/store"
)

// stubPolicy is a configurable experiment policy for engine tests.
type stubPolicy struct {
	def      store.ExperimentDefinition
	limiters []Limiter
	success  bool
	failCase bool

	mu       sync.Mutex
	advances []advanceCall
}

type advanceCall struct {
	outcomeID string
	visitID   string
	firstTime bool
}

func newStubPolicy(id int64, name string) *stubPolicy {
	return &stubPolicy{def: store.ExperimentDefinition{ID: id, Name: name, Version: 1}, success: true}
}

func (p *stubPolicy) Definition() store.ExperimentDefinition { return p.def }
func (p *stubPolicy) Limiters() []Limiter                    { return p.limiters }

func (p *stubPolicy) ExperimentCase(_ context.Context, _ *Context, eligible bool, _ Result) (CaseOutcome, error) {
	if !eligible {
		return Reject(CaseErrorGatewayClosed, "experiment closed"), nil
	}
	if p.failCase {
		return Reject("treatment-failed", "treatment rejected"), nil
	}
	return Pass(Updates{"variant": "treatment"}).WithLogData(map[string]any{"arm": "b"}), nil
}

func (p *stubPolicy) IsSuccessful(_ context.Context, _ *Context, result Result) (bool, error) {
	return p.success && result.Bool("approved"), nil
}

func (p *stubPolicy) OnAdvanceCreated(_ context.Context, outcomeID string, visit store.VisitLog, firstTime bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advances = append(p.advances, advanceCall{outcomeID: outcomeID, visitID: visit.ID, firstTime: firstTime})
	return nil
}

func (p *stubPolicy) calls() []advanceCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]advanceCall(nil), p.advances...)
}

// countingLimiter answers allow and counts its calls.
type countingLimiter struct {
	calls atomic.Int64
	allow bool
}

func (l *countingLimiter) Allowed(context.Context, *Context, Result) (bool, error) {
	l.calls.Add(1)
	return l.allow, nil
}

// recordingMetrics keeps every event for assertions.
type recordingMetrics struct {
	mu       sync.Mutex
	cases    []string
	nodes    []string
	visited  []string
	resolved []string
	linked   []string
}

func (m *recordingMetrics) CaseEvaluated(node, caseName string, passed bool, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases = append(m.cases, fmt.Sprintf("%s/%s:%t:%s", node, caseName, passed, errorType))
}

func (m *recordingMetrics) NodeEvaluated(node string, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, fmt.Sprintf("%s:%t", node, passed))
}

func (m *recordingMetrics) ExperimentVisited(experiment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visited = append(m.visited, experiment)
}

func (m *recordingMetrics) ExperimentResolved(experiment string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, fmt.Sprintf("%s:%t", experiment, success))
}

func (m *recordingMetrics) AdvanceLinked(experiment string, firstTime bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linked = append(m.linked, fmt.Sprintf("%s:%t", experiment, firstTime))
}

// passCase returns a case that passes with the given updates.
func passCase(name string, updates Updates) Case {
	return Case{Name: name, Run: func(context.Context, *Context, Result, Updates) (CaseOutcome, error) {
		return Pass(updates), nil
	}}
}

// failCase returns a case that rejects with errType.
func failCase(name, errType string) Case {
	return Case{Name: name, Run: func(context.Context, *Context, Result, Updates) (CaseOutcome, error) {
		return Reject(errType, name+" failed"), nil
	}}
}

// sequentialIDs returns an id generator yielding prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
