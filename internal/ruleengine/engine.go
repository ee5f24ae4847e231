package ruleengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/arbiter/internal/decision"
)

// Engine builds decision cases out of rules.
type Engine struct {
	strategies map[string]Evaluator
	logger     *slog.Logger
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		logger: logger,
		strategies: map[string]Evaluator{
			RuleTypeExpression: &ExpressionEvaluator{},
			RuleTypeUserIDList: &UserIDEvaluator{},
			RuleTypePercentage: &PercentageEvaluator{},
		},
	}
}

// Cases compiles rules and returns one case per rule, in order.
func (e *Engine) Cases(rules []Rule) ([]decision.Case, error) {
	compiled := make([]Rule, len(rules))
	copy(compiled, rules)
	if err := CompileRules(compiled); err != nil {
		return nil, err
	}

	cases := make([]decision.Case, 0, len(compiled))
	for _, rule := range compiled {
		c, err := e.Case(rule)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// Case wraps a single rule into a decision case. The rule is compiled first
// when it has not been already.
//
// A matching rule passes with its updates. A rule that does not match is
// rejected with its declared error type. A rule that fails to evaluate is
// logged and rejected with ErrorTypeEvaluationFailed, so a bad rule selects
// the failure edge instead of aborting the walk.
func (e *Engine) Case(rule Rule) (decision.Case, error) {
	if rule.CompiledValue == nil {
		if err := compileRule(&rule); err != nil {
			return decision.Case{}, fmt.Errorf("failed to compile rule %q: %w", rule.Name, err)
		}
	}

	strategy, exists := e.strategies[rule.Type]
	if !exists {
		return decision.Case{}, fmt.Errorf("%w: %q", ErrUnknownRuleType, rule.Type)
	}

	run := func(ctx context.Context, dctx *decision.Context, result decision.Result, prev decision.Updates) (decision.CaseOutcome, error) {
		input := EvaluationInput{Context: dctx, Result: result, Prev: prev, Salt: rule.Name}

		match, err := strategy.Eval(rule.CompiledValue, input)
		if err != nil {
			e.logger.ErrorContext(ctx, "rule evaluation failed",
				"error", err,
				"rule", rule.Name,
				"type", rule.Type,
			)
			return decision.Reject(ErrorTypeEvaluationFailed, err.Error()), nil
		}

		logData := map[string]any{"rule_type": rule.Type}
		if !match {
			return rule.rejection().WithLogData(logData), nil
		}
		return decision.Pass(decision.DeepMerge(nil, rule.Updates)).WithLogData(logData), nil
	}

	return decision.Case{Name: rule.Name, Run: run}, nil
}
