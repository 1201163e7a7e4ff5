// Package rules provides the CEL-Go based fraud rule engine.
package rules

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/features"
)

// Engine evaluates receivables against the builtin heuristics plus any
// tenant-defined rules. Evaluation is deterministic: builtins run first in
// their fixed order, then custom rules in load order.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	builtins []*CompiledRule
	custom   []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a rule engine with the builtin heuristics loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("days_to_maturity", cel.DoubleType),
		cel.Variable("dates_valid", cel.BoolType),
		cel.Variable("weekend_issue", cel.BoolType),
		cel.Variable("round_amount", cel.BoolType),
		cel.Variable("fiscal_linked", cel.BoolType),
		cel.Variable("doc_type", cel.StringType),
		cel.Variable("drawer", cel.StringType),
		cel.Variable("debtor", cel.StringType),
		cel.Variable("status", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, cfg := range BuiltinRules() {
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return nil, fmt.Errorf("builtin rule %s: %w", cfg.ID, err)
		}
		e.builtins = append(e.builtins, compiled)
	}
	return e, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required: %w", domain.ErrInvalidInput)
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a tenant rule. Loading an existing ID replaces
// it in place, preserving its evaluation position. Builtin IDs are reserved.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, b := range e.builtins {
		if b.Config.ID == cfg.ID {
			return fmt.Errorf("rule id %s is builtin: %w", cfg.ID, domain.ErrInvalidInput)
		}
	}
	for i, c := range e.custom {
		if c.Config.ID == cfg.ID {
			e.custom[i] = compiled
			return nil
		}
	}
	e.custom = append(e.custom, compiled)
	return nil
}

// ReloadRules replaces the full custom rule set. Builtins are unaffected.
// Disabled configs are skipped.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	fresh := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		fresh = append(fresh, compiled)
	}

	e.mu.Lock()
	e.custom = fresh
	e.mu.Unlock()
	return nil
}

// Evaluate runs all rules against one receivable. The verdict's reasons are
// in rule order with no duplicates; a rule evaluation error marks the result
// but never fires the rule.
func (e *Engine) Evaluate(rec *domain.Receivable) *domain.RuleVerdict {
	e.mu.RLock()
	ordered := make([]*CompiledRule, 0, len(e.builtins)+len(e.custom))
	ordered = append(ordered, e.builtins...)
	ordered = append(ordered, e.custom...)
	e.mu.RUnlock()

	activation := buildActivation(rec)
	verdict := &domain.RuleVerdict{ReceivableID: rec.ID, Reasons: []string{}}
	seen := make(map[string]bool)

	for _, rule := range ordered {
		result := domain.RuleResult{RuleID: rule.Config.ID, ReceivableID: rec.ID}

		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			result.Err = err.Error()
			verdict.Results = append(verdict.Results, result)
			continue
		}
		if fired, ok := out.(types.Bool); ok && bool(fired) {
			result.Fired = true
			result.Reason = rule.Config.Reason
			verdict.Suspicious = true
			if !seen[rule.Config.Reason] {
				seen[rule.Config.Reason] = true
				verdict.Reasons = append(verdict.Reasons, rule.Config.Reason)
			}
		}
		verdict.Results = append(verdict.Results, result)
	}
	return verdict
}

// EvaluateBatch evaluates every record, order-preserved.
func (e *Engine) EvaluateBatch(batch []*domain.Receivable) []*domain.RuleVerdict {
	verdicts := make([]*domain.RuleVerdict, len(batch))
	for i, rec := range batch {
		verdicts[i] = e.Evaluate(rec)
	}
	return verdicts
}

// buildActivation derives the CEL variables for one receivable. Derived
// booleans are precomputed here so rule expressions stay simple.
func buildActivation(rec *domain.Receivable) map[string]any {
	days, ok := features.DaysToMaturity(rec)
	datesValid := ok && days >= 0

	weekend := false
	if issue, err := domain.ParseDate(rec.IssueDate); err == nil {
		wd := issue.Weekday()
		weekend = wd == time.Saturday || wd == time.Sunday
	}

	roundAmount := rec.Amount >= RoundNumberThreshold && math.Mod(rec.Amount, 1000) == 0

	return map[string]any{
		"amount":           rec.Amount,
		"days_to_maturity": days,
		"dates_valid":      datesValid,
		"weekend_issue":    weekend,
		"round_amount":     roundAmount,
		"fiscal_linked":    rec.FiscalLinked,
		"doc_type":         rec.DocType,
		"drawer":           rec.Drawer,
		"debtor":           rec.Debtor,
		"status":           rec.Status,
	}
}

// RulesCount returns the number of loaded rules, builtins included.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtins) + len(e.custom)
}

// GetLoadedRules returns the loaded rule configurations in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.builtins)+len(e.custom))
	for _, compiled := range e.builtins {
		rules = append(rules, compiled.Config)
	}
	for _, compiled := range e.custom {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close clears custom rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = nil
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}
