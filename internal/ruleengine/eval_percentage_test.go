package ruleengine

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/rollout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateRandomID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// TestPercentageEvaluator_Boundaries proves that 0% never admits anyone and
// 100% always admits everyone.
func TestPercentageEvaluator_Boundaries(t *testing.T) {
	t.Parallel()

	evaluator := PercentageEvaluator{}
	iterations := 5000

	for _, tc := range []struct {
		name  string
		ratio float64
		want  bool
	}{
		{name: "0% rollout", ratio: 0, want: false},
		{name: "100% rollout", ratio: 1, want: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ruleData := percentageRuleData{Ratio: tc.ratio, Salt: "any-rule"}
			for i := range iterations {
				input := EvaluationInput{Context: &decision.Context{SubjectID: generateRandomID()}}

				got, err := evaluator.Eval(ruleData, input)

				require.NoError(t, err)
				if got != tc.want {
					t.Fatalf("iteration %d: got %v, want %v", i, got, tc.want)
				}
			}
		})
	}
}

func TestPercentageEvaluator_Eval(t *testing.T) {
	t.Parallel()

	evaluator := PercentageEvaluator{}
	everyone := func(attr string) percentageRuleData {
		return percentageRuleData{Ratio: 1, Attribute: attr, Salt: "s"}
	}

	tests := []struct {
		name     string
		ruleData any
		input    EvaluationInput
		want     bool
		wantErr  bool
	}{
		{
			name:     "Should hash account id when configured",
			ruleData: everyone("account_id"),
			input:    EvaluationInput{Context: &decision.Context{AccountID: "acc-1"}},
			want:     true,
		},
		{
			name:     "Should fail closed when account id is empty",
			ruleData: everyone("account_id"),
			input:    EvaluationInput{Context: &decision.Context{SubjectID: "user-1"}},
		},
		{
			name:     "Should hash a custom attribute",
			ruleData: everyone("device_id"),
			input: EvaluationInput{Context: &decision.Context{
				SubjectID:  "user-1",
				Attributes: map[string]any{"device_id": 42},
			}},
			want: true,
		},
		{
			name:     "Should fail closed when the custom attribute is missing",
			ruleData: everyone("device_id"),
			input:    EvaluationInput{Context: &decision.Context{SubjectID: "user-1"}},
		},
		{
			name:     "Should fail closed without a context",
			ruleData: everyone(""),
			input:    EvaluationInput{},
		},
		{
			name:     "Should fail on wrong rule data type",
			ruleData: 50,
			input:    EvaluationInput{Context: &decision.Context{SubjectID: "user-1"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := evaluator.Eval(tt.ruleData, tt.input)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPercentageEvaluator_MatchesRolloutBucket(t *testing.T) {
	t.Parallel()

	// Arrange
	evaluator := PercentageEvaluator{}
	ruleData := percentageRuleData{Ratio: 0.3}

	for range 200 {
		subject := generateRandomID()
		input := EvaluationInput{Context: &decision.Context{SubjectID: subject}, Salt: "rule-name"}

		// Act
		got, err := evaluator.Eval(ruleData, input)

		// Assert: the input salt is used when the rule has none
		require.NoError(t, err)
		assert.Equal(t, rollout.InBucket(0.3, subject, "rule-name"), got)
	}
}
