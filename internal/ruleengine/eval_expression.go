package ruleengine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEnv is the variable set visible to expression rules.
type exprEnv struct {
	SubjectID  string          `expr:"subject_id"`
	AccountID  string          `expr:"account_id"`
	Trigger    string          `expr:"trigger"`
	Attributes map[string]any  `expr:"attributes"`
	Result     map[string]any  `expr:"result"`
	Prev       map[string]any  `expr:"prev"`
	Cases      map[string]bool `expr:"cases"`
}

func newExprEnv(input EvaluationInput) exprEnv {
	env := exprEnv{
		Attributes: map[string]any{},
		Result:     input.Result.Fields,
		Prev:       map[string]any(input.Prev),
		Cases:      make(map[string]bool, len(input.Result.CaseResolutionStatus)),
	}
	if env.Result == nil {
		env.Result = map[string]any{}
	}
	if env.Prev == nil {
		env.Prev = map[string]any{}
	}
	if dctx := input.Context; dctx != nil {
		env.SubjectID = dctx.SubjectID
		env.AccountID = dctx.AccountID
		env.Trigger = string(dctx.Trigger)
		if dctx.Attributes != nil {
			env.Attributes = dctx.Attributes
		}
	}
	// Later entries win so a case evaluated twice reports its latest status.
	for _, status := range input.Result.CaseResolutionStatus {
		env.Cases[status.Name] = status.Passed
	}
	return env
}

// ExpressionEvaluator runs a compiled expr-lang program.
type ExpressionEvaluator struct{}

// Eval runs the program against the decision context and accumulated result.
func (e *ExpressionEvaluator) Eval(ruleData any, input EvaluationInput) (bool, error) {
	program, ok := ruleData.(*vm.Program)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected *vm.Program, got %T", ruleData)
	}

	out, err := expr.Run(program, newExprEnv(input))
	if err != nil {
		return false, err
	}

	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression must evaluate to bool (got %T)", out)
	}
	return matched, nil
}
