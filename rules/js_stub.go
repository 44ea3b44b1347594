//go:build !js_eval

package rules

// NewJSEvaluator is unavailable without the js_eval build tag.
func NewJSEvaluator(opts ...Option) Evaluator {
	_ = applyOptions(opts)
	return nil
}

// JSAvailable reports whether the goja engine was compiled in.
func JSAvailable() bool {
	return false
}
