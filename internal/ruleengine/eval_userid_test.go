package ruleengine

import (
	"testing"

	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDEvaluator_Eval(t *testing.T) {
	t.Parallel()

	evaluator := &UserIDEvaluator{}
	allowed := map[string]struct{}{"user-1": {}, "user-2": {}}

	tests := []struct {
		name     string
		ruleData any
		input    EvaluationInput
		want     bool
		wantErr  bool
	}{
		{
			name:     "Should match subject in the list",
			ruleData: allowed,
			input:    EvaluationInput{Context: &decision.Context{SubjectID: "user-2"}},
			want:     true,
		},
		{
			name:     "Should not match subject outside the list",
			ruleData: allowed,
			input:    EvaluationInput{Context: &decision.Context{SubjectID: "user-3"}},
		},
		{
			name:     "Should not match empty subject",
			ruleData: allowed,
			input:    EvaluationInput{Context: &decision.Context{}},
		},
		{
			name:     "Should not match without a context",
			ruleData: allowed,
			input:    EvaluationInput{},
		},
		{
			name:     "Should fail on wrong rule data type",
			ruleData: []string{"user-1"},
			input:    EvaluationInput{Context: &decision.Context{SubjectID: "user-1"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			got, err := evaluator.Eval(tt.ruleData, tt.input)

			// Assert
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid rule data type")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
