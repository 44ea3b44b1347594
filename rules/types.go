// Package rules evaluates boolean field rules against a flat snapshot of a
// map configuration. The default engine is expr; CEL is available through
// NewCELEvaluator and JavaScript (goja) behind the js_eval build tag.
package rules

import (
	"sort"
	"strings"
	"sync"
)

// Context carries the variables a rule can reference.
type Context struct {
	Snapshot map[string]any
	Field    string
}

func (ctx Context) withDefaults() Context {
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	return ctx
}

func (ctx Context) fieldLabel() string {
	if ctx.Field != "" {
		return ctx.Field
	}
	return "unknown"
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx Context, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx Context) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapCache is a concurrency-safe ProgramCache.
type MapCache struct {
	entries sync.Map
}

// NewMapCache returns an empty cache.
func NewMapCache() *MapCache {
	return &MapCache{}
}

// Get implements ProgramCache.
func (c *MapCache) Get(key string) (any, bool) {
	return c.entries.Load(key)
}

// Set implements ProgramCache.
func (c *MapCache) Set(key string, value any) {
	c.entries.Store(key, value)
}

// snapshotKey identifies a program compiled for a given set of variable
// names, since typed environments declare variables at compile time.
func snapshotKey(expression string, snapshot map[string]any) string {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return expression + "|" + strings.Join(names, ",")
}
