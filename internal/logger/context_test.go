package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()

	t.Run("Should return the injected logger instance when present", func(t *testing.T) {
		expected := slog.New(slog.NewJSONHandler(io.Discard, nil))

		got := FromContext(WithContext(context.Background(), expected))

		assert.Same(t, expected, got)
	})

	t.Run("Should return the global default logger when context is empty", func(t *testing.T) {
		currentDefault := slog.Default()

		got := FromContext(context.Background())

		assert.Same(t, currentDefault, got, "Should fallback to slog.Default() to avoid nil panic")
	})
}
