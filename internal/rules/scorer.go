// Package rules provides the CEL-Go based fraud scorer.
package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// Rule weights. Weights are additive; the total is capped at 1.
const (
	WeightHighAmount      = 0.3
	WeightRiskyChannel    = 0.2
	WeightAccountDrained  = 0.3
	WeightFullBalance     = 0.2
	WeightBalanceMismatch = 0.2
)

const (
	// FraudThreshold is the probability at or above which a transaction is fraud.
	FraudThreshold = 0.5

	// HighAmountThreshold is the amount above which the high-amount rule fires.
	HighAmountThreshold = 200000.0

	// NormalReason replaces the rule reasons when the verdict is not fraud.
	NormalReason = "Normal transaction pattern"
)

// Rule is one weighted condition. Expression is a CEL boolean over:
// amount (double), tx_type (string, upper case), old_balance and new_balance
// (double, 0 when unknown) and has_balances (bool).
type Rule struct {
	Name       string
	Expression string
	Weight     float64
	Reason     string
}

// DefaultRules is the balance-consistency rule set in evaluation order.
var DefaultRules = []Rule{
	{
		Name:       "high_amount",
		Expression: fmt.Sprintf("amount > %.1f", HighAmountThreshold),
		Weight:     WeightHighAmount,
		Reason:     "Very high amount",
	},
	{
		Name:       "risky_channel",
		Expression: `tx_type in ["TRANSFER", "CASH_OUT"]`,
		Weight:     WeightRiskyChannel,
		Reason:     "High-risk transaction type (TRANSFER or CASH_OUT)",
	},
	{
		Name:       "account_drained",
		Expression: "has_balances && old_balance > 0.0 && new_balance == 0.0",
		Weight:     WeightAccountDrained,
		Reason:     "Origin account emptied",
	},
	{
		Name:       "full_balance_moved",
		Expression: "has_balances && old_balance > 0.0 && amount - old_balance < 0.01 && old_balance - amount < 0.01",
		Weight:     WeightFullBalance,
		Reason:     "Amount equals the full origin balance",
	},
	{
		Name:       "balance_mismatch",
		Expression: "has_balances && (old_balance - amount - new_balance > 0.01 || new_balance - (old_balance - amount) > 0.01)",
		Weight:     WeightBalanceMismatch,
		Reason:     "Origin balance does not reconcile with amount",
	},
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Scorer evaluates the rule set against one transaction. Safe for concurrent use.
type Scorer struct {
	rules []compiledRule
}

// NewScorer compiles rules in order. With no rules, DefaultRules is used.
func NewScorer(rules ...Rule) (*Scorer, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("old_balance", cel.DoubleType),
		cel.Variable("new_balance", cel.DoubleType),
		cel.Variable("has_balances", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	s := &Scorer{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for rule %s: %w", r.Name, err)
		}
		s.rules = append(s.rules, compiledRule{Rule: r, program: program})
	}

	return s, nil
}

// Score evaluates every rule in order and returns the capped probability and verdict.
// A rule whose evaluation errors does not fire.
func (s *Scorer) Score(in domain.ScoreInput) domain.ScoreResult {
	activation := map[string]any{
		"amount":       in.Amount,
		"tx_type":      strings.ToUpper(strings.TrimSpace(in.Category)),
		"old_balance":  0.0,
		"new_balance":  0.0,
		"has_balances": in.BalanceBefore != nil && in.BalanceAfter != nil,
	}
	if in.BalanceBefore != nil && in.BalanceAfter != nil {
		activation["old_balance"] = *in.BalanceBefore
		activation["new_balance"] = *in.BalanceAfter
	}

	probability := 0.0
	reasons := []string{}
	for _, r := range s.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			continue
		}
		if fired, ok := out.(types.Bool); ok && bool(fired) {
			probability += r.Weight
			reasons = append(reasons, r.Reason)
		}
	}

	probability = math.Round(math.Min(probability, 1.0)*100) / 100
	result := domain.ScoreResult{
		IsFraud:     probability >= FraudThreshold,
		Probability: probability,
		Reasons:     reasons,
	}
	if !result.IsFraud {
		result.Reasons = []string{NormalReason}
	}
	return result
}

// Rules returns the rule definitions in evaluation order.
func (s *Scorer) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Rule
	}
	return out
}
