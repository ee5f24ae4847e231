package ruleengine

import (
	"fmt"
)

// UserIDEvaluator implements the Evaluator interface for allow-list strategies.
// It determines if the subject is explicitly included in a list of ids.
type UserIDEvaluator struct{}

// Eval checks if the subject id exists in the pre-compiled set.
func (e *UserIDEvaluator) Eval(ruleData any, input EvaluationInput) (bool, error) {
	allowedIDs, ok := ruleData.(map[string]struct{})
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected map[string]struct{}, got %T", ruleData)
	}

	// A missing subject can never match an allow-list.
	if input.Context == nil || input.Context.SubjectID == "" {
		return false, nil
	}

	_, found := allowedIDs[input.Context.SubjectID]
	return found, nil
}
