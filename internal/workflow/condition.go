package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/Rick1330/cybersage/internal/types"
)

// Env is the evaluation environment handed to step conditions. Results
// holds the outputs of previously completed steps keyed by step name, so
// a condition can gate on what earlier steps produced.
type Env struct {
	Params  map[string]any
	Results map[string]map[string]any
	Vars    map[string]any
}

// Condition gates a step's execution. All conditions on a step must
// return true for the step to run; a false skips the step, an error fails
// the workflow without consuming a retry attempt.
type Condition interface {
	Evaluate(env *Env) (bool, error)
}

// FuncCondition adapts a zero-argument predicate into a Condition.
type FuncCondition func() bool

// Evaluate implements Condition.
func (f FuncCondition) Evaluate(*Env) (bool, error) {
	return f(), nil
}

// PredicateCondition adapts an environment-aware predicate into a
// Condition.
type PredicateCondition func(env *Env) (bool, error)

// Evaluate implements Condition.
func (p PredicateCondition) Evaluate(env *Env) (bool, error) {
	return p(env)
}

// compiled programs are cached by source so workflows built repeatedly
// from the same definition (scheduled runs) compile each condition once.
var exprCache sync.Map // source -> *vm.Program

// ExprCondition evaluates an expression against the step environment.
// The expression sees "params", "results", and "vars" and must produce a
// boolean, e.g. `results.port_scan.open_ports != nil`.
type ExprCondition struct {
	source  string
	program *vm.Program
}

// NewExprCondition compiles the expression source. Compilation failures
// are reported at workflow construction, not at run time.
func NewExprCondition(source string) (*ExprCondition, error) {
	if cached, ok := exprCache.Load(source); ok {
		return &ExprCondition{source: source, program: cached.(*vm.Program)}, nil
	}

	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, types.WrapError(types.CONDITION_FAILED,
			fmt.Sprintf("failed to compile condition %q", source), err)
	}

	exprCache.Store(source, program)
	return &ExprCondition{source: source, program: program}, nil
}

// Source returns the original expression text.
func (c *ExprCondition) Source() string {
	return c.source
}

// Evaluate implements Condition.
func (c *ExprCondition) Evaluate(env *Env) (bool, error) {
	out, err := expr.Run(c.program, map[string]any{
		"params":  env.Params,
		"results": env.Results,
		"vars":    env.Vars,
	})
	if err != nil {
		return false, types.WrapError(types.CONDITION_FAILED,
			fmt.Sprintf("failed to evaluate condition %q", c.source), err)
	}

	ok, isBool := out.(bool)
	if !isBool {
		return false, types.NewError(types.CONDITION_FAILED,
			fmt.Sprintf("condition %q did not produce a boolean", c.source))
	}
	return ok, nil
}
