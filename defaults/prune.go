package defaults

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/schema"
)

// pruneViolations deletes every value the input schema rejected so the
// projection defaults can take their place. Members of numeric tuples such as
// zoomAndCenter or an extent take the whole tuple with them; elements of
// object lists (layers, entries) are dropped individually. Root-level
// violations are left to the caller.
func pruneViolations(doc map[string]any, violations []schema.Violation) []prunedValue {
	targets := map[string][]string{}
	for _, v := range violations {
		segments := splitPointer(v.InstancePath)
		if len(segments) == 0 {
			continue
		}
		segments = pruneTarget(doc, segments)
		if len(segments) == 0 {
			continue
		}
		targets[strings.Join(segments, "/")] = segments
	}

	ordered := make([][]string, 0, len(targets))
	for _, segments := range targets {
		ordered = append(ordered, segments)
	}
	// Deepest and highest-indexed paths first so earlier deletions never
	// shift later ones.
	sort.Slice(ordered, func(i, j int) bool {
		return comparePointers(ordered[i], ordered[j]) > 0
	})

	var pruned []prunedValue
	for _, segments := range ordered {
		value, _ := lookup(doc, segments)
		if deleteAt(doc, segments) {
			pruned = append(pruned, prunedValue{Pointer: "/" + strings.Join(segments, "/"), Value: value})
		}
	}
	sort.Slice(pruned, func(i, j int) bool {
		return pruned[i].Pointer < pruned[j].Pointer
	})
	return pruned
}

type prunedValue struct {
	Pointer string
	Value   any
}

// pruneTarget walks up from segments while the parent container is a tuple,
// that is any list other than a listOf... collection.
func pruneTarget(doc map[string]any, segments []string) []string {
	for len(segments) > 1 {
		parentSegments := segments[:len(segments)-1]
		parent, ok := lookup(doc, parentSegments)
		if !ok {
			return nil
		}
		if _, isList := parent.([]any); !isList {
			return segments
		}
		if strings.HasPrefix(parentSegments[len(parentSegments)-1], "listOf") {
			return segments
		}
		segments = parentSegments
	}
	return segments
}

func lookup(doc map[string]any, segments []string) (any, bool) {
	var current any = doc
	for _, segment := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

func deleteAt(doc map[string]any, segments []string) bool {
	parentSegments := segments[:len(segments)-1]
	last := segments[len(segments)-1]
	parent, ok := lookup(doc, parentSegments)
	if !ok {
		return false
	}
	switch node := parent.(type) {
	case map[string]any:
		if _, ok := node[last]; !ok {
			return false
		}
		delete(node, last)
		return true
	case []any:
		index, err := strconv.Atoi(last)
		if err != nil || index < 0 || index >= len(node) {
			return false
		}
		trimmed := append(node[:index:index], node[index+1:]...)
		return setAt(doc, parentSegments, trimmed)
	default:
		return false
	}
}

func setAt(doc map[string]any, segments []string, value any) bool {
	if len(segments) == 0 {
		return false
	}
	parent, ok := lookup(doc, segments[:len(segments)-1])
	if !ok {
		return false
	}
	last := segments[len(segments)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = value
		return true
	case []any:
		index, err := strconv.Atoi(last)
		if err != nil || index < 0 || index >= len(node) {
			return false
		}
		node[index] = value
		return true
	default:
		return false
	}
}

func splitPointer(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	parts := strings.Split(pointer, "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		parts[i] = strings.ReplaceAll(part, "~0", "~")
	}
	return parts
}

func comparePointers(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		ai, aerr := strconv.Atoi(a[i])
		bi, berr := strconv.Atoi(b[i])
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			return 1
		}
		return strings.Compare(a[i], b[i])
	}
	return len(a) - len(b)
}
