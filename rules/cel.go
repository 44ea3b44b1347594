package rules

import (
	"fmt"
	"reflect"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var nativeListType = reflect.TypeOf([]any{})

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go. Snapshot keys are
// declared as dyn variables and registry functions are bound with one to
// three dyn arguments.
func NewCELEvaluator(opts ...Option) Evaluator {
	cfg := applyOptions(opts)
	return &celEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

func (e *celEvaluator) Evaluate(ctx Context, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(EngineCEL, fmt.Errorf("expression must not be empty"))
	}
	ctx = ctx.withDefaults()
	program, err := e.loadOrCompile(expression, ctx.Snapshot)
	if err != nil {
		return nil, err
	}
	out, _, err := program.program.Eval(ctx.Snapshot)
	if err != nil {
		return nil, wrapEvaluationError(EngineCEL, expression, ctx.fieldLabel(), err)
	}
	return out.Value(), nil
}

// Compile defers program construction until the snapshot shape is known.
func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(EngineCEL, fmt.Errorf("expression must not be empty"))
	}
	return &celCompiledRule{
		evaluator:  e,
		expression: expression,
	}, nil
}

func (e *celEvaluator) loadOrCompile(expression string, snapshot map[string]any) (*celProgram, error) {
	key := snapshotKey(expression, snapshot)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv(snapshot)
	if err != nil {
		return nil, wrapEvaluatorError(EngineCEL, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError(EngineCEL, expression, "", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError(EngineCEL, expression, "", err)
	}

	bundle := &celProgram{
		env:     env,
		program: prg,
	}
	if e.cache != nil {
		e.cache.Set(key, bundle)
	}
	return bundle, nil
}

func (e *celEvaluator) buildEnv(snapshot map[string]any) (*celgo.Env, error) {
	opts := make([]celgo.EnvOption, 0, len(snapshot))
	for key := range snapshot {
		opts = append(opts, celgo.Variable(key, celgo.DynType))
	}
	for _, name := range e.registry.Names() {
		opts = append(opts, e.functionDecl(name))
	}
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) functionDecl(name string) celgo.EnvOption {
	dyn := celgo.DynType
	return celgo.Function(name,
		celgo.Overload(name+"_dyn", []*celgo.Type{dyn}, dyn,
			celgo.UnaryBinding(func(arg ref.Val) ref.Val {
				return e.call(name, arg)
			}),
		),
		celgo.Overload(name+"_dyn_dyn", []*celgo.Type{dyn, dyn}, dyn,
			celgo.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				return e.call(name, lhs, rhs)
			}),
		),
		celgo.Overload(name+"_dyn_dyn_dyn", []*celgo.Type{dyn, dyn, dyn}, dyn,
			celgo.FunctionBinding(func(values ...ref.Val) ref.Val {
				return e.call(name, values...)
			}),
		),
	)
}

func (e *celEvaluator) call(name string, values ...ref.Val) ref.Val {
	args := make([]any, 0, len(values))
	for _, val := range values {
		args = append(args, celNative(val))
	}
	result, err := e.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}

func celNative(val ref.Val) any {
	if lister, ok := val.(traits.Lister); ok {
		if native, err := lister.ConvertToNative(nativeListType); err == nil {
			return native
		}
	}
	return val.Value()
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	expression string
}

func (r *celCompiledRule) Evaluate(ctx Context) (any, error) {
	return r.evaluator.Evaluate(ctx, r.expression)
}
