package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repositoryFactory builds a fresh, empty repository for one test.
type repositoryFactory func(t *testing.T) Repository

func repositories() map[string]repositoryFactory {
	return map[string]repositoryFactory{
		"memory": func(t *testing.T) Repository {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Repository {
			s, err := NewSQLiteStore(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestRepository_Conformance(t *testing.T) {
	for name, factory := range repositories() {
		t.Run(name, func(t *testing.T) {
			RunRepositoryConformance(t, factory)
		})
	}
}

// RunRepositoryConformance exercises the Repository contract. The Postgres
// integration test reuses it against a real database.
func RunRepositoryConformance(t *testing.T, newRepo repositoryFactory) {
	ctx := context.Background()
	exp := ExperimentDefinition{ID: 7, Name: "checkout-copy", Description: "button label", Version: 1}

	seedVisit := func(t *testing.T, repo Repository, id, runID, subject string) *VisitLog {
		t.Helper()
		v := &VisitLog{ID: id, ExperimentID: exp.ID, RunID: runID, SubjectID: subject, AccountID: "acc-1"}
		require.NoError(t, repo.CreateVisitLog(ctx, v))
		return v
	}

	t.Run("audit rows get ids and timestamps", func(t *testing.T) {
		repo := newRepo(t)

		c := &CaseLog{RunID: "run-1", NodeName: "root", CaseName: "has-email", Success: true, Data: json.RawMessage(`{"a":1}`)}
		require.NoError(t, repo.CreateCaseLog(ctx, c))
		assert.NotZero(t, c.ID)
		assert.WithinDuration(t, time.Now(), c.CreatedAt, time.Minute)

		n := &NodeLog{RunID: "run-1", NodeName: "root", Success: false, FailureNodeName: "fallback"}
		require.NoError(t, repo.CreateNodeLog(ctx, n))
		assert.NotZero(t, n.ID)
	})

	t.Run("upsert definition is idempotent", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.UpsertExperimentDefinition(ctx, exp))
		changed := exp
		changed.Name = "renamed"
		require.NoError(t, repo.UpsertExperimentDefinition(ctx, changed))

		if mem, ok := repo.(*MemoryStore); ok {
			assert.Equal(t, "checkout-copy", mem.Experiments()[exp.ID].Name)
		}
	})

	t.Run("pending visit resolves exactly once", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.UpsertExperimentDefinition(ctx, exp))
		seedVisit(t, repo, "v-1", "run-1", "alice")

		pending, err := repo.FindPendingVisitLogs(ctx, "run-1", []int64{exp.ID})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.True(t, pending[0].Pending())

		require.NoError(t, repo.UpdateVisitLogSuccess(ctx, "v-1", true))
		err = repo.UpdateVisitLogSuccess(ctx, "v-1", false)
		assert.ErrorIs(t, err, ErrVisitLogNotPending)

		visits, err := repo.FindVisitLogsByRun(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, visits, 1)
		require.NotNil(t, visits[0].Success)
		assert.True(t, *visits[0].Success)

		pending, err = repo.FindPendingVisitLogs(ctx, "run-1", []int64{exp.ID})
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("resolving an unknown visit", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.UpdateVisitLogSuccess(ctx, "missing", true)
		assert.ErrorIs(t, err, ErrVisitLogNotFound)

		err = repo.LinkVisitLogOutcome(ctx, "missing", "order-1")
		assert.ErrorIs(t, err, ErrVisitLogNotFound)
	})

	t.Run("pending lookup filters by experiment and run", func(t *testing.T) {
		repo := newRepo(t)
		other := ExperimentDefinition{ID: 8, Name: "other", Version: 1}
		require.NoError(t, repo.UpsertExperimentDefinition(ctx, exp))
		require.NoError(t, repo.UpsertExperimentDefinition(ctx, other))

		seedVisit(t, repo, "v-1", "run-1", "alice")
		require.NoError(t, repo.CreateVisitLog(ctx, &VisitLog{ID: "v-2", ExperimentID: other.ID, RunID: "run-1", SubjectID: "alice"}))
		seedVisit(t, repo, "v-3", "run-2", "alice")

		pending, err := repo.FindPendingVisitLogs(ctx, "run-1", []int64{exp.ID})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "v-1", pending[0].ID)

		pending, err = repo.FindPendingVisitLogs(ctx, "run-1", nil)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("visit written already resolved is not pending", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.UpsertExperimentDefinition(ctx, exp))
		failed := false
		require.NoError(t, repo.CreateVisitLog(ctx, &VisitLog{ID: "v-1", ExperimentID: exp.ID, RunID: "run-1", SubjectID: "bob", Success: &failed}))

		pending, err := repo.FindPendingVisitLogs(ctx, "run-1", []int64{exp.ID})
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("linked visits drive grandfathering and counting", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.UpsertExperimentDefinition(ctx, exp))

		has, err := repo.HasSuccessfulLinkedVisit(ctx, exp.ID, "alice", "acc-1")
		require.NoError(t, err)
		assert.False(t, has)

		seedVisit(t, repo, "v-1", "run-1", "alice")
		require.NoError(t, repo.UpdateVisitLogSuccess(ctx, "v-1", true))

		// Successful but not linked yet.
		has, err = repo.HasSuccessfulLinkedVisit(ctx, exp.ID, "alice", "acc-1")
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, repo.LinkVisitLogOutcome(ctx, "v-1", "order-1"))

		has, err = repo.HasSuccessfulLinkedVisit(ctx, exp.ID, "alice", "acc-1")
		require.NoError(t, err)
		assert.True(t, has)

		has, err = repo.HasSuccessfulLinkedVisit(ctx, exp.ID, "alice", "acc-2")
		require.NoError(t, err)
		assert.False(t, has)

		n, err := repo.CountSuccessfulLinkedVisits(ctx, "alice", exp.ID, "order-2")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.CountSuccessfulLinkedVisits(ctx, "alice", exp.ID, "order-1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestDefinitionCache_SkipsRepeatedUpserts(t *testing.T) {
	ctx := context.Background()
	counting := &countingRepo{MemoryStore: NewMemoryStore()}

	cache, err := NewDefinitionCache(counting, 16, time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	def := ExperimentDefinition{ID: 1, Name: "exp", Version: 1}
	for i := 0; i < 5; i++ {
		require.NoError(t, cache.UpsertExperimentDefinition(ctx, def))
	}
	assert.Equal(t, 1, counting.upserts)

	def.Version = 2
	require.NoError(t, cache.UpsertExperimentDefinition(ctx, def))
	assert.Equal(t, 2, counting.upserts)

	// Other calls pass through.
	require.NoError(t, cache.CreateVisitLog(ctx, &VisitLog{ID: "v", ExperimentID: 1, RunID: "r", SubjectID: "s"}))
	assert.Len(t, counting.VisitLogs(), 1)
}

type countingRepo struct {
	*MemoryStore
	upserts int
}

func (c *countingRepo) UpsertExperimentDefinition(ctx context.Context, def ExperimentDefinition) error {
	c.upserts++
	return c.MemoryStore.UpsertExperimentDefinition(ctx, def)
}
