package outcomes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		runID     string
		outcomeID string
		want      string
		wantErr   bool
	}{
		{name: "Should join run and outcome ids", runID: "run-1", outcomeID: "adv-9", want: "run-1|adv-9"},
		{name: "Should allow separators in the outcome id", runID: "run-1", outcomeID: "a|b", want: "run-1|a|b"},
		{name: "Should reject empty run id", outcomeID: "adv-9", wantErr: true},
		{name: "Should reject empty outcome id", runID: "run-1", wantErr: true},
		{name: "Should reject separators in the run id", runID: "run|1", outcomeID: "adv-9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := EncodeMessage(tt.runID, tt.outcomeID)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     string
		want    Event
		wantErr bool
	}{
		{name: "Should split on the first separator", msg: "run-1|a|b", want: Event{RunID: "run-1", OutcomeID: "a|b"}},
		{name: "Should decode a simple message", msg: "run-1|adv-9", want: Event{RunID: "run-1", OutcomeID: "adv-9"}},
		{name: "Should reject messages without separator", msg: "run-1", wantErr: true},
		{name: "Should reject empty run id", msg: "|adv-9", wantErr: true},
		{name: "Should reject empty outcome id", msg: "run-1|", wantErr: true},
		{name: "Should reject empty message", msg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeMessage(tt.msg)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
