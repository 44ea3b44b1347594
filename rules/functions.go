package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom functions keyed by name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Builtins returns a registry holding the geometry helpers shared by every
// engine: inRange(value, min, max) and withinExtent([x, y], [minX, minY, maxX, maxY]).
func Builtins() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("inRange", inRange)
	_ = registry.Register("withinExtent", withinExtent)
	return registry
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("rules: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("rules: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("rules: function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("rules: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("rules: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func inRange(args ...any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("inRange expects 3 arguments, got %d", len(args))
	}
	values, err := floats(args...)
	if err != nil {
		return nil, err
	}
	return values[0] >= values[1] && values[0] <= values[2], nil
}

func withinExtent(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("withinExtent expects 2 arguments, got %d", len(args))
	}
	point, err := floatList(args[0], 2)
	if err != nil {
		return nil, fmt.Errorf("withinExtent point: %w", err)
	}
	extent, err := floatList(args[1], 4)
	if err != nil {
		return nil, fmt.Errorf("withinExtent extent: %w", err)
	}
	return point[0] >= extent[0] && point[0] <= extent[2] &&
		point[1] >= extent[1] && point[1] <= extent[3], nil
}

func floatList(value any, size int) ([]float64, error) {
	var items []any
	switch typed := value.(type) {
	case []any:
		items = typed
	case []float64:
		if len(typed) != size {
			return nil, fmt.Errorf("expected %d numbers, got %d", size, len(typed))
		}
		return typed, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
	if len(items) != size {
		return nil, fmt.Errorf("expected %d numbers, got %d", size, len(items))
	}
	return floats(items...)
}

func floats(values ...any) ([]float64, error) {
	out := make([]float64, len(values))
	for i, value := range values {
		number, ok := ToFloat(value)
		if !ok {
			return nil, fmt.Errorf("argument %d is not a number (%T)", i, value)
		}
		out[i] = number
	}
	return out, nil
}

// ToFloat converts the numeric types rule snapshots carry into float64.
func ToFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case json.Number:
		number, err := typed.Float64()
		return number, err == nil
	default:
		return 0, false
	}
}
