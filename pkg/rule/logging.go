package rule

import "time"

// LogEvent describes one evaluation attempt.
type LogEvent struct {
	Engine   string
	Expr     string
	UserID   string
	Duration time.Duration
	Err      error
}

// Logger records evaluation events.
type Logger interface {
	LogEvaluation(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogEvaluation implements Logger.
func (f LoggerFunc) LogEvaluation(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogEvaluation(LogEvent) {}

// NopLogger returns a Logger that discards events.
func NopLogger() Logger { return noopLogger{} }

// Logged wraps an evaluator so every evaluation is reported to logger.
func Logged(inner Evaluator, logger Logger) Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &loggedEvaluator{inner: inner, logger: logger}
}

type loggedEvaluator struct {
	inner  Evaluator
	logger Logger
}

func (e *loggedEvaluator) Evaluate(ctx Context, expr string) (any, error) {
	start := time.Now()
	result, err := e.inner.Evaluate(ctx, expr)
	e.logger.LogEvaluation(LogEvent{
		Engine:   engineName(e.inner),
		Expr:     expr,
		UserID:   ctx.UserID,
		Duration: time.Since(start),
		Err:      err,
	})
	return result, err
}

func (e *loggedEvaluator) Compile(expr string) (CompiledRule, error) {
	return e.inner.Compile(expr)
}

func engineName(e Evaluator) string {
	switch e.(type) {
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		return "custom"
	}
}
