package definition

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/soochol/minizaps/internal/zaps"
)

// EvaluateCondition evaluates a step's when-expression against the execution
// context. Context keys are variables, e.g. `step_1.status_code == 200` or
// `trigger.send`. Unknown variables evaluate to nil. An empty expression is
// true.
func EvaluateCondition(expression string, ectx zaps.ExecutionContext) (bool, error) {
	if expression == "" {
		return true, nil
	}
	env := map[string]any(ectx)
	if env == nil {
		env = map[string]any{}
	}
	program, err := compileCondition(expression, env)
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}
	return isTruthy(result), nil
}

func compileCondition(expression string, env map[string]any) (*vm.Program, error) {
	opts := []expr.Option{expr.AllowUndefinedVariables()}
	if env != nil {
		opts = append(opts, expr.Env(env))
	}
	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	return program, nil
}

// isTruthy converts a value to a boolean.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
