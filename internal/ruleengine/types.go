// Package ruleengine turns declarative business rules into decision cases.
// Each rule type is a strategy: the rule's parameters are compiled once into
// an efficient representation, then evaluated against the decision context
// and the accumulated result on every walk.
package ruleengine

import "github.com/rafaeljc/arbiter/internal/decision"

// Supported rule types.
const (
	RuleTypeExpression = "expression"
	RuleTypeUserIDList = "user_id_list"
	RuleTypePercentage = "percentage"
)

// Case error types emitted by compiled rules.
const (
	// ErrorTypeNotMatched is used when a rule does not match and declares no
	// error type of its own.
	ErrorTypeNotMatched = "rule-not-matched"

	// ErrorTypeEvaluationFailed marks a rule that could not be evaluated, for
	// example an expression reading a field with an unexpected type.
	ErrorTypeEvaluationFailed = "rule-evaluation-failed"
)

// Rule is a single business rule as declared in a graph definition.
type Rule struct {
	// Name identifies the rule inside its node. It becomes the case name.
	Name string `json:"name" yaml:"name"`

	// Type selects the strategy used to evaluate the rule.
	Type string `json:"type" yaml:"type"`

	// Expression is the boolean expr-lang program of an expression rule.
	Expression string `json:"expression,omitempty" yaml:"expression"`

	// UserIDs is the allow-list of a user_id_list rule, matched against the
	// subject id.
	UserIDs []string `json:"user_ids,omitempty" yaml:"user_ids"`

	// Percentage (0-100) and Attribute configure a percentage rule. Attribute
	// defaults to the subject id. Salt defaults to the rule name.
	Percentage float64 `json:"percentage,omitempty" yaml:"percentage"`
	Attribute  string  `json:"attribute,omitempty" yaml:"attribute"`
	Salt       string  `json:"salt,omitempty" yaml:"salt"`

	// Updates are merged into the result when the rule matches.
	Updates map[string]any `json:"updates,omitempty" yaml:"updates"`

	// ErrorType and ErrorMessage describe the rejection when the rule does not
	// match.
	ErrorType    string `json:"error_type,omitempty" yaml:"error_type"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message"`

	// CompiledValue holds the strategy-specific representation built by
	// CompileRules.
	CompiledValue any `json:"-" yaml:"-"`
}

func (r Rule) rejection() decision.CaseOutcome {
	errType := r.ErrorType
	if errType == "" {
		errType = ErrorTypeNotMatched
	}
	msg := r.ErrorMessage
	if msg == "" {
		msg = "rule " + r.Name + " did not match"
	}
	return decision.Reject(errType, msg)
}

// EvaluationInput aggregates everything a strategy may read.
type EvaluationInput struct {
	// Context is the subject and run being decided.
	Context *decision.Context

	// Result is the accumulated result before the case runs.
	Result decision.Result

	// Prev holds the updates of the previous case in the same node.
	Prev decision.Updates

	// Salt seeds deterministic hashing strategies.
	Salt string
}
