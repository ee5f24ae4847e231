package ruleengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

const (
	// MaxUserIDListSize limits the number of ids in a single user_id_list rule.
	// Larger groups belong in an attribute or a percentage rule.
	MaxUserIDListSize = 10_000
)

var (
	// ErrUnknownRuleType is returned when a rule names a strategy that does
	// not exist.
	ErrUnknownRuleType = errors.New("unknown rule type")

	// ErrMissingRuleName is returned for rules without a name.
	ErrMissingRuleName = errors.New("rule name is required")
)

// CompileRules compiles every rule's parameters into CompiledValue.
// It must run once, when the graph is built, before any evaluation.
func CompileRules(rules []Rule) error {
	for i := range rules {
		if err := compileRule(&rules[i]); err != nil {
			return fmt.Errorf("failed to compile rule %q: %w", rules[i].Name, err)
		}
	}
	return nil
}

func compileRule(rule *Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return ErrMissingRuleName
	}

	switch rule.Type {
	case RuleTypeExpression:
		return compileExpressionRule(rule)
	case RuleTypeUserIDList:
		return compileUserIDListRule(rule)
	case RuleTypePercentage:
		return compilePercentageRule(rule)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRuleType, rule.Type)
	}
}

// compileExpressionRule type-checks the program against the expression
// environment and requires a boolean result.
func compileExpressionRule(rule *Rule) error {
	src := strings.TrimSpace(rule.Expression)
	if src == "" {
		return errors.New("expression rule requires an expression")
	}

	program, err := expr.Compile(src, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("invalid expression: %w", err)
	}

	rule.CompiledValue = program
	return nil
}

// compileUserIDListRule builds a set for O(1) lookup.
func compileUserIDListRule(rule *Rule) error {
	if len(rule.UserIDs) > MaxUserIDListSize {
		return fmt.Errorf("user_id_list rule exceeds maximum size: %d > %d", len(rule.UserIDs), MaxUserIDListSize)
	}

	compiled := make(map[string]struct{}, len(rule.UserIDs))
	for _, id := range rule.UserIDs {
		compiled[id] = struct{}{}
	}

	rule.CompiledValue = compiled
	return nil
}

func compilePercentageRule(rule *Rule) error {
	if !(rule.Percentage >= 0 && rule.Percentage <= 100) {
		return fmt.Errorf("percentage must be between 0 and 100, got %v", rule.Percentage)
	}

	salt := rule.Salt
	if salt == "" {
		salt = rule.Name
	}

	rule.CompiledValue = percentageRuleData{
		Ratio:     rule.Percentage / 100,
		Attribute: rule.Attribute,
		Salt:      salt,
	}
	return nil
}
