package rules

import "fmt"

// Engine names accepted by New.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

type evaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// Option configures an evaluator instance.
type Option func(*evaluatorConfig)

// WithProgramCache wires a ProgramCache into the evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *evaluatorConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry wires a FunctionRegistry into the evaluator.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *evaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyOptions(opts []Option) evaluatorConfig {
	cfg := evaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// New returns the evaluator registered for engine. An empty engine selects
// expr.
func New(engine string, opts ...Option) (Evaluator, error) {
	switch engine {
	case "", EngineExpr:
		return NewExprEvaluator(opts...), nil
	case EngineCEL:
		return NewCELEvaluator(opts...), nil
	case EngineJS:
		if !JSAvailable() {
			return nil, fmt.Errorf("rules: js engine requires the js_eval build tag")
		}
		return NewJSEvaluator(opts...), nil
	default:
		return nil, fmt.Errorf("rules: unknown engine %q", engine)
	}
}
