package ruleengine

// Evaluator is the interface that all rule strategies must implement.
type Evaluator interface {
	// Eval checks if the input satisfies the rule's conditions.
	//
	// ruleData is the compiled representation produced by CompileRules. A
	// non-nil error means the data has the wrong type or the rule could not
	// be evaluated against this input.
	Eval(ruleData any, input EvaluationInput) (bool, error)
}
