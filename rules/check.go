package rules

import (
	"fmt"
	"time"
)

// Rule is a named boolean expression guarding a single config field.
type Rule struct {
	Field string
	Expr  string
}

// Checker evaluates rules with a single evaluator and reports each attempt
// to its logger.
type Checker struct {
	engine    string
	evaluator Evaluator
	logger    Logger
}

// NewChecker wraps evaluator. A nil logger discards events.
func NewChecker(engine string, evaluator Evaluator, logger Logger) *Checker {
	if logger == nil {
		logger = noopLogger{}
	}
	if engine == "" {
		engine = EngineExpr
	}
	return &Checker{engine: engine, evaluator: evaluator, logger: logger}
}

// Engine returns the engine name the checker was built for.
func (c *Checker) Engine() string {
	return c.engine
}

// Check evaluates rule against snapshot and requires a boolean result.
func (c *Checker) Check(rule Rule, snapshot map[string]any) (bool, error) {
	start := time.Now()
	result, err := c.evaluator.Evaluate(Context{Snapshot: snapshot, Field: rule.Field}, rule.Expr)
	passed := false
	if err == nil {
		var ok bool
		passed, ok = result.(bool)
		if !ok {
			err = wrapEvaluationError(c.engine, rule.Expr, rule.Field, fmt.Errorf("%w: got %T", ErrNotBoolean, result))
		}
	}
	c.logger.LogEvaluation(LogEvent{
		Engine:   c.engine,
		Expr:     rule.Expr,
		Field:    rule.Field,
		Passed:   passed,
		Duration: time.Since(start),
		Err:      err,
	})
	return passed, err
}
