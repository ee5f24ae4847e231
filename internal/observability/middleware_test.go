package observability

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		wantLevel string
		wantCode  string
	}{
		{name: "Should log successful requests at debug", path: "/healthz", wantLevel: "level=DEBUG", wantCode: "status=200"},
		{name: "Should log client errors at warn", path: "/missing", wantLevel: "level=WARN", wantCode: "status=404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			s := NewServer(log, testConfig())

			// Act
			resp, _ := get(t, s.Handler(), tt.path)

			// Assert
			assert.NotEqual(t, 0, resp.StatusCode)
			out := buf.String()
			assert.Contains(t, out, "HTTP request completed")
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, tt.wantCode)
			assert.Contains(t, out, "path="+tt.path)
			assert.Contains(t, out, "request_id=")
		})
	}

	t.Run("Should log server errors at error", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))
		h := requestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		// Act
		resp, _ := get(t, h, "/boom")

		// Assert
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, buf.String(), "level=ERROR")
	})
}
