package rule

import (
	"errors"
	"fmt"
)

// ErrEmptyExpression indicates an evaluator received an empty rule.
var ErrEmptyExpression = errors.New("rule: expression must not be empty")

// Error captures engine metadata alongside the originating failure.
type Error struct {
	Engine string
	Expr   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rule: %s engine expr=%q: %v", e.Engine, e.Expr, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	var ruleErr *Error
	if errors.As(err, &ruleErr) {
		if ruleErr.Engine == "" {
			ruleErr.Engine = engine
		}
		if ruleErr.Expr == "" {
			ruleErr.Expr = expr
		}
		return ruleErr
	}
	return &Error{Engine: engine, Expr: expr, Err: err}
}
