// Package layering deep merges typed configuration snapshots. Layers are
// ordered strongest to weakest; stronger values win field by field while
// weaker layers fill whatever was left unset.
//
// Per-field policy is declared with a `merge` struct tag:
//
//	override (default)  scalars: strong wins unless zero; pointers: strong wins unless nil,
//	                    so *bool false and *float64 0 are kept; structs and maps recurse
//	replace  (slices)   a non-nil strong slice replaces the weak one wholesale, even when empty
//	         (pointers) a non-nil strong pointer is taken whole, zero fields included
//	fallback (slices)   the strong slice is used only when it has elements
//
// Slices never concatenate.
package layering

import (
	"reflect"
	"strings"
)

// Policy names a per-field merge rule.
type Policy string

const (
	PolicyOverride Policy = "override"
	PolicyReplace  Policy = "replace"
	PolicyFallback Policy = "fallback"
)

// TagName is the struct tag consulted for field policies.
const TagName = "merge"

// MergeLayers composes snapshots ordered from strongest to weakest, returning
// a new value that keeps explicit settings from stronger layers while
// filling missing data from weaker ones. Inputs are never mutated.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	merged := cloneValue(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = mergeValue(reflect.ValueOf(layers[i]), merged, PolicyOverride)
	}

	if !merged.IsValid() {
		return zero
	}
	target := reflect.TypeOf(zero)
	if target == nil {
		return merged.Interface().(T)
	}
	if merged.Type() != target {
		result := reflect.New(target).Elem()
		result.Set(merged.Convert(target))
		return result.Interface().(T)
	}
	return merged.Interface().(T)
}

// Clone returns a deep copy of value.
func Clone[T any](value T) T {
	var zero T
	cloned := cloneValue(reflect.ValueOf(value))
	if !cloned.IsValid() {
		return zero
	}
	return cloned.Interface().(T)
}

// FieldPolicy returns the policy declared on a struct field.
func FieldPolicy(field reflect.StructField) Policy {
	tag := strings.TrimSpace(field.Tag.Get(TagName))
	switch Policy(tag) {
	case PolicyReplace, PolicyFallback:
		return Policy(tag)
	default:
		if field.Type.Kind() == reflect.Slice {
			return PolicyReplace
		}
		return PolicyOverride
	}
}

func mergeValue(strong, weak reflect.Value, policy Policy) reflect.Value {
	if !strong.IsValid() {
		return cloneValue(weak)
	}

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		if policy == PolicyReplace || !isComposite(strong.Elem().Kind()) {
			return cloneValue(strong)
		}
		var weakElem reflect.Value
		if weak.IsValid() && weak.Kind() == reflect.Pointer && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		merged := mergeValue(strong.Elem(), weakElem, PolicyOverride)
		result := reflect.New(strong.Type().Elem())
		result.Elem().Set(merged)
		return result
	case reflect.Interface:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		var weakElem reflect.Value
		if weak.IsValid() && weak.Kind() == reflect.Interface && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		if !isComposite(strong.Elem().Kind()) {
			return cloneValue(strong)
		}
		if weakElem.IsValid() && weakElem.Kind() != strong.Elem().Kind() {
			weakElem = reflect.Value{}
		}
		merged := mergeValue(strong.Elem(), weakElem, PolicyOverride)
		return merged.Convert(strong.Type())
	case reflect.Struct:
		result := reflect.New(strong.Type()).Elem()
		var weakStruct reflect.Value
		if weak.IsValid() && weak.Type() == strong.Type() {
			weakStruct = weak
		}
		structType := strong.Type()
		for i := 0; i < strong.NumField(); i++ {
			field := result.Field(i)
			if !field.CanSet() {
				continue
			}
			var weakField reflect.Value
			if weakStruct.IsValid() {
				weakField = weakStruct.Field(i)
			}
			field.Set(mergeValue(strong.Field(i), weakField, FieldPolicy(structType.Field(i))))
		}
		return result
	case reflect.Map:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		result := reflect.MakeMapWithSize(strong.Type(), strong.Len())
		if weak.IsValid() && weak.Kind() == reflect.Map && !weak.IsNil() && weak.Type() == strong.Type() {
			iter := weak.MapRange()
			for iter.Next() {
				result.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
			}
		}
		iter := strong.MapRange()
		for iter.Next() {
			key := iter.Key()
			value := iter.Value()
			existing := result.MapIndex(key)
			if existing.IsValid() && isComposite(value.Kind()) {
				result.SetMapIndex(key, mergeValue(value, existing, PolicyOverride))
				continue
			}
			result.SetMapIndex(key, cloneValue(value))
		}
		return result
	case reflect.Slice:
		if strong.IsNil() || (policy == PolicyFallback && strong.Len() == 0) {
			if weak.IsValid() && weak.Type() == strong.Type() {
				return cloneValue(weak)
			}
			return cloneValue(strong)
		}
		return cloneValue(strong)
	case reflect.Array:
		result := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.Len(); i++ {
			var weakElem reflect.Value
			if weak.IsValid() && weak.Kind() == reflect.Array && weak.Len() > i {
				weakElem = weak.Index(i)
			}
			result.Index(i).Set(mergeValue(strong.Index(i), weakElem, PolicyOverride))
		}
		return result
	default:
		if strong.IsZero() && weak.IsValid() && weak.Type() == strong.Type() {
			return cloneValue(weak)
		}
		return cloneValue(strong)
	}
}

// isComposite reports whether values of kind are merged recursively rather
// than taken as a whole. Present scalars inside maps and interfaces always
// win, even when zero.
func isComposite(kind reflect.Kind) bool {
	switch kind {
	case reflect.Map, reflect.Struct, reflect.Pointer, reflect.Interface, reflect.Array:
		return true
	default:
		return false
	}
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	default:
		clone := reflect.New(v.Type()).Elem()
		clone.Set(v)
		return clone
	}
}
