package experiment_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/arbiter/internal/counter"
	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/experiment"
	"github.com/rafaeljc/arbiter/internal/store"
)

// buildGraph wires: eligibility -> gate -> (treated | control).
func buildGraph(t *testing.T, gate *experiment.Gate) *decision.Node {
	t.Helper()
	root := decision.NewNode("eligibility", []decision.Case{{
		Name: "approve",
		Run: func(context.Context, *decision.Context, decision.Result, decision.Updates) (decision.CaseOutcome, error) {
			return decision.Pass(decision.Updates{"approved": true}), nil
		},
	}})
	node := root.OnSuccess(gate.Node())
	node.OnSuccess(decision.NewNode("treated", nil))
	node.OnFailure(decision.NewNode("control", nil))
	return root
}

func TestScenario_QuotaOfOne(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counters := counter.NewRedis(client, "test")
	repo := store.NewMemoryStore()

	gate, err := experiment.NewGate(42, "instant-advance", experiment.SuccessField("approved"),
		experiment.WithRatio(1),
		experiment.WithActive(true),
		experiment.WithCounter(counters, 1, nil),
	)
	require.NoError(t, err)

	engine, err := decision.NewEngine(buildGraph(t, gate), repo)
	require.NoError(t, err)

	// Act: the first subject takes the only slot.
	alice := &decision.Context{SubjectID: "alice", AccountID: "acc-a", Trigger: decision.TriggerUserRequest, AuditEnabled: true}
	first, err := engine.Evaluate(ctx, alice, decision.NewResult(nil))
	require.NoError(t, err)
	require.NoError(t, engine.AdvanceCreated(ctx, alice.RunID, "advance-1"))

	// Act: a different subject finds the quota exhausted.
	bob := &decision.Context{SubjectID: "bob", AccountID: "acc-b", Trigger: decision.TriggerUserRequest, AuditEnabled: true}
	second, err := engine.Evaluate(ctx, bob, decision.NewResult(nil))
	require.NoError(t, err)

	// Act: alice comes back and is grandfathered despite the closed quota.
	aliceAgain := &decision.Context{SubjectID: "alice", AccountID: "acc-a", Trigger: decision.TriggerUserRequest, AuditEnabled: true}
	third, err := engine.Evaluate(ctx, aliceAgain, decision.NewResult(nil))
	require.NoError(t, err)

	// Assert
	assert.True(t, first.IsExperimental)
	passed, _ := first.Passed("instant-advance")
	assert.True(t, passed)

	assert.False(t, second.IsExperimental)
	passed, found := second.Passed("instant-advance")
	require.True(t, found)
	assert.False(t, passed)

	assert.True(t, third.IsExperimental)

	n, err := counters.Get(ctx, "instant-advance")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var gatewayClosed int
	for _, c := range repo.CaseLogs() {
		if c.ErrorType == decision.CaseErrorGatewayClosed {
			gatewayClosed++
		}
	}
	assert.Equal(t, 1, gatewayClosed)

	visits, err := repo.FindVisitLogsByRun(ctx, bob.RunID)
	require.NoError(t, err)
	assert.Empty(t, visits, "an ineligible subject leaves no visit")
}

func TestScenario_BackgroundTriggerNeverConsumesQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := store.NewMemoryStore()
	counters := counter.NewMemory()

	gate, err := experiment.NewGate(7, "auto-renewal", experiment.SuccessField("approved"),
		experiment.WithCounter(counters, 100, nil),
	)
	require.NoError(t, err)
	engine, err := decision.NewEngine(buildGraph(t, gate), repo)
	require.NoError(t, err)

	dctx := &decision.Context{SubjectID: "carol", Trigger: decision.TriggerBackground, AuditEnabled: true}
	result, err := engine.Evaluate(ctx, dctx, decision.NewResult(nil))
	require.NoError(t, err)

	assert.False(t, result.IsExperimental)
	assert.Empty(t, repo.VisitLogs())
}

// unreliableCounter fails the first failures increments.
type unreliableCounter struct {
	counter.Store
	failures atomic.Int32
}

func (u *unreliableCounter) Increment(ctx context.Context, name string) (int64, error) {
	if u.failures.Add(-1) >= 0 {
		return 0, errors.New("redis: connection reset")
	}
	return u.Store.Increment(ctx, name)
}

func TestScenario_AdvanceRetryAfterCounterFailure(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx := context.Background()
	repo := store.NewMemoryStore()
	counters := &unreliableCounter{Store: counter.NewMemory()}
	counters.failures.Store(1)

	gate, err := experiment.NewGate(9, "instant-limit", experiment.SuccessField("approved"),
		experiment.WithCounter(counters, 1, nil),
	)
	require.NoError(t, err)
	engine, err := decision.NewEngine(buildGraph(t, gate), repo)
	require.NoError(t, err)

	alice := &decision.Context{SubjectID: "alice", Trigger: decision.TriggerUserRequest, AuditEnabled: true}
	first, err := engine.Evaluate(ctx, alice, decision.NewResult(nil))
	require.NoError(t, err)
	require.True(t, first.IsExperimental)

	// Act: the first delivery fails on the counter, the retry succeeds.
	errFirst := engine.AdvanceCreated(ctx, alice.RunID, "advance-1")
	errRetry := engine.AdvanceCreated(ctx, alice.RunID, "advance-1")
	errRedelivery := engine.AdvanceCreated(ctx, alice.RunID, "advance-1")

	bob := &decision.Context{SubjectID: "bob", Trigger: decision.TriggerUserRequest, AuditEnabled: true}
	second, err := engine.Evaluate(ctx, bob, decision.NewResult(nil))
	require.NoError(t, err)

	// Assert
	assert.Error(t, errFirst)
	assert.NoError(t, errRetry)
	assert.NoError(t, errRedelivery)

	n, err := counters.Get(ctx, "instant-limit")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "the retry must consume the slot exactly once")
	assert.False(t, second.IsExperimental, "the quota is exhausted for other subjects")

	visits, err := repo.FindVisitLogsByRun(ctx, alice.RunID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	require.NotNil(t, visits[0].LinkedOutcomeID)
	assert.Equal(t, "advance-1", *visits[0].LinkedOutcomeID)
}

func TestScenario_AnonymousContextIsNeverAdmitted(t *testing.T) {
	t.Parallel()

	// Arrange: everybody is in the treatment share
	ctx := context.Background()
	repo := store.NewMemoryStore()
	gate, err := experiment.NewGate(3, "open-door", experiment.SuccessField("approved"), experiment.WithRatio(1))
	require.NoError(t, err)
	engine, err := decision.NewEngine(buildGraph(t, gate), repo)
	require.NoError(t, err)

	// Act
	result, err := engine.Evaluate(ctx, &decision.Context{Trigger: decision.TriggerUserRequest, AuditEnabled: true}, decision.NewResult(nil))

	// Assert
	require.NoError(t, err)
	assert.False(t, result.IsExperimental)
	passed, found := result.Passed("open-door")
	require.True(t, found)
	assert.False(t, passed)
	assert.Empty(t, repo.VisitLogs())
}
