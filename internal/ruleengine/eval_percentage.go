package ruleengine

import (
	"fmt"

	"github.com/rafaeljc/arbiter/internal/rollout"
)

// PercentageEvaluator implements the Evaluator interface for gradual rollouts.
// The same subject always falls into the same bucket for a given salt.
type PercentageEvaluator struct{}

// percentageRuleData is the compiled form of a percentage rule.
type percentageRuleData struct {
	// Ratio is the admitted share in [0, 1].
	Ratio float64

	// Attribute is the context field hashed to place the subject. Empty and
	// "subject_id" use the subject id, "account_id" the account id, and any
	// other name an entry of Context.Attributes.
	Attribute string

	Salt string
}

// Eval hashes the resolved subject and checks it against the ratio.
func (e *PercentageEvaluator) Eval(ruleData any, input EvaluationInput) (bool, error) {
	data, ok := ruleData.(percentageRuleData)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected percentageRuleData, got %T", ruleData)
	}

	subject, ok := hashSubject(data.Attribute, input)
	if !ok {
		// Fail closed: without the attribute there is nothing stable to hash.
		return false, nil
	}

	salt := data.Salt
	if salt == "" {
		salt = input.Salt
	}
	return rollout.InBucket(data.Ratio, subject, salt), nil
}

func hashSubject(attribute string, input EvaluationInput) (string, bool) {
	dctx := input.Context
	if dctx == nil {
		return "", false
	}

	switch attribute {
	case "", "subject_id":
		return dctx.SubjectID, dctx.SubjectID != ""
	case "account_id":
		return dctx.AccountID, dctx.AccountID != ""
	}

	v, found := dctx.Attribute(attribute)
	if !found || v == nil {
		return "", false
	}
	s := fmt.Sprint(v)
	return s, s != ""
}
