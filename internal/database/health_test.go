package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	t.Run("Should fail without a connection", func(t *testing.T) {
		t.Parallel()
		h := NewHealthChecker(nil)
		assert.Equal(t, "postgres", h.Name())
		assert.EqualError(t, h.Check(context.Background()), "postgres connection is nil")
	})

	t.Run("Should ping a SQL handle", func(t *testing.T) {
		t.Parallel()
		db, err := sql.Open("sqlite", ":memory:")
		require.NoError(t, err)

		h := NewSQLHealthChecker("sqlite", db)
		assert.Equal(t, "sqlite", h.Name())
		assert.NoError(t, h.Check(context.Background()))

		require.NoError(t, db.Close())
		assert.Error(t, h.Check(context.Background()))
	})
}
