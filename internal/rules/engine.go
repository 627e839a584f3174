// Package rules provides the CEL-Go based condition engine that evaluates a
// rulebase against climate variables locally.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/pacificclimate/impacts/internal/domain"
)

// Engine compiles rule conditions and evaluates them in file order.
// Conditions may reference earlier rules as rule_<id>.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledRule
	skipped  []ConditionError
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    domain.RuleRecord
	Program cel.Program
}

// ConditionError reports a rule whose condition could not be compiled or
// evaluated.
type ConditionError struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}

func (e ConditionError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

// Result is the outcome of evaluating every loaded rule.
type Result struct {
	Activation domain.Activation `json:"activation"`
	Errors     []ConditionError  `json:"errors"`
	ProcessMs  int64             `json:"processMs"`
}

// NewEngine creates a new condition engine.
func NewEngine() (*Engine, error) {
	// Variables are not declared: climate variable names come from the
	// rulebase and are resolved against the activation at evaluation time.
	env, err := cel.NewEnv(
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// Validate compiles a single condition without loading it.
func (e *Engine) Validate(condition string) error {
	_, err := e.compile(condition)
	return err
}

// Load replaces the loaded rules. Rules whose condition does not compile
// are skipped and returned.
func (e *Engine) Load(rules []domain.RuleRecord) []ConditionError {
	compiled := make([]*CompiledRule, 0, len(rules))
	var skipped []ConditionError

	for _, r := range rules {
		program, err := e.compile(r.Condition)
		if err != nil {
			skipped = append(skipped, ConditionError{RuleID: r.ID, Reason: err.Error()})
			continue
		}
		compiled = append(compiled, &CompiledRule{Rule: r, Program: program})
	}

	e.mu.Lock()
	e.compiled = compiled
	e.skipped = skipped
	e.mu.Unlock()

	return skipped
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Skipped returns the rules rejected by the last Load.
func (e *Engine) Skipped() []ConditionError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ConditionError, len(e.skipped))
	copy(out, e.skipped)
	return out
}

// Evaluate runs every loaded rule against vars. Evaluation is sequential
// because later conditions may read earlier results. A rule that fails to
// evaluate is inactive and listed in Result.Errors.
func (e *Engine) Evaluate(ctx context.Context, vars map[string]any) (*Result, error) {
	start := time.Now()

	e.mu.RLock()
	rules := e.compiled
	e.mu.RUnlock()

	activation := make(map[string]any, len(vars)+len(rules))
	for k, v := range vars {
		activation[k] = normalizeVar(v)
	}

	result := &Result{
		Activation: make(domain.Activation, len(rules)),
		Errors:     []ConditionError{},
	}

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := e.evaluateRule(ctx, r, activation)
		if err != nil {
			result.Errors = append(result.Errors, ConditionError{RuleID: r.Rule.ID, Reason: err.Error()})
			value = domain.Bool(false)
		}

		result.Activation[r.Rule.ID] = value
		activation[domain.RuleIDPrefix+r.Rule.ID] = celValue(value)
	}

	result.ProcessMs = time.Since(start).Milliseconds()
	return result, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any) (domain.ActivationValue, error) {
	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		return domain.ActivationValue{}, fmt.Errorf("evaluation error: %w", err)
	}
	return toValue(out)
}

// toValue converts a CEL value to an activation.
func toValue(val ref.Val) (domain.ActivationValue, error) {
	switch v := val.(type) {
	case types.Bool:
		return domain.Bool(bool(v)), nil
	case types.Double:
		return toNumber(float64(v))
	case types.Int:
		return toNumber(float64(v))
	case types.Uint:
		return toNumber(float64(v))
	default:
		return domain.ActivationValue{}, fmt.Errorf("condition must return bool or number, got %s", val.Type().TypeName())
	}
}

// toNumber rejects results outside the percentage domain so they are
// reported instead of silently counting as inactive.
func toNumber(n float64) (domain.ActivationValue, error) {
	v := domain.Number(n)
	if v.Kind() == domain.ActivationInvalid {
		return v, fmt.Errorf("condition result %v is not a percentage", n)
	}
	return v, nil
}

// celValue exposes a rule result to later conditions.
func celValue(v domain.ActivationValue) any {
	if v.Kind() == domain.ActivationNumber {
		return v.Float()
	}
	return v.Truthy()
}

// normalizeVar widens integers to doubles so conditions can compare
// climate values without caring how the caller encoded them.
func normalizeVar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		if math.IsNaN(n) {
			return 0.0
		}
		return n
	default:
		return v
	}
}

func (e *Engine) compile(condition string) (cel.Program, error) {
	expr := TranslateCondition(condition)
	if strings.TrimSpace(expr) == "" {
		return nil, errors.New("empty condition")
	}

	ast, issues := e.env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}
