//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/arbiter/internal/store"
	"github.com/rafaeljc/arbiter/internal/testsupport"
)

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()
	pg, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	defer pg.Terminate(ctx)

	store.RunRepositoryConformance(t, func(t *testing.T) store.Repository {
		_, err := pg.DB.Exec(ctx, `TRUNCATE experiment_visit_logs, experiments, decision_case_logs, decision_node_logs RESTART IDENTITY`)
		require.NoError(t, err)
		return pg.Store
	})
}
