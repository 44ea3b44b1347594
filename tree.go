package geoview

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layering"
)

// PathSeparator joins layer ids into a layer path.
const PathSeparator = "/"

// IsGroup reports whether the entry is a group node.
func (e *LayerEntryConfig) IsGroup() bool {
	return e != nil && e.EntryType == EntryTypeGroup
}

// Parent returns the owning group, or nil for top-level entries.
func (e *LayerEntryConfig) Parent() *LayerEntryConfig {
	if e == nil {
		return nil
	}
	return e.parent
}

// Root returns the top-level layer config the entry belongs to once the
// tree has been linked.
func (e *LayerEntryConfig) Root() *GeoviewLayerConfig {
	if e == nil {
		return nil
	}
	return e.root
}

// LayerPath derives the node's address: the geoview layer id followed by the
// chain of ancestor layer ids down to the node.
func (e *LayerEntryConfig) LayerPath() string {
	if e == nil {
		return ""
	}
	var segments []string
	for node := e; node != nil; node = node.parent {
		segments = append(segments, node.LayerID)
	}
	if e.root != nil && e.root.GeoviewLayerID != "" {
		segments = append(segments, e.root.GeoviewLayerID)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, PathSeparator)
}

// LinkTree wires parent and root back-references through the layer tree so
// layer paths can be derived. It must be called again after the entry list
// is replaced.
func LinkTree(layer *GeoviewLayerConfig) {
	if layer == nil {
		return
	}
	var link func(parent *LayerEntryConfig, entries []*LayerEntryConfig)
	link = func(parent *LayerEntryConfig, entries []*LayerEntryConfig) {
		for _, entry := range entries {
			if entry == nil {
				continue
			}
			entry.parent = parent
			entry.root = layer
			if entry.IsGroup() {
				link(entry, entry.ListOfLayerEntryConfig)
			}
		}
	}
	link(nil, layer.ListOfLayerEntryConfig)
}

// CheckTree enforces the group/leaf invariant: groups own at least one child
// and leaves own none. Entries without an explicit type that carry children
// are promoted to groups; remaining untyped leaves get defaultLeaf.
func CheckTree(layer *GeoviewLayerConfig) error {
	if layer == nil {
		return NewShapeError("check tree", "", fmt.Errorf("layer config is nil"))
	}
	leafType := DefaultEntryType(layer.GeoviewLayerType)
	var check func(path string, entries []*LayerEntryConfig) error
	check = func(path string, entries []*LayerEntryConfig) error {
		for i, entry := range entries {
			if entry == nil {
				return NewShapeError("check tree", fmt.Sprintf("%s[%d]", path, i), fmt.Errorf("entry is null"))
			}
			entryPath := path + PathSeparator + entry.LayerID
			if entry.LayerID == "" {
				return NewShapeError("check tree", fmt.Sprintf("%s[%d]", path, i), fmt.Errorf("layerId is required"))
			}
			if entry.EntryType == "" {
				if len(entry.ListOfLayerEntryConfig) > 0 {
					entry.EntryType = EntryTypeGroup
				} else {
					entry.EntryType = leafType
				}
			}
			switch {
			case entry.IsGroup() && len(entry.ListOfLayerEntryConfig) == 0:
				return NewShapeError("check tree", entryPath, fmt.Errorf("group has no children"))
			case !entry.IsGroup() && len(entry.ListOfLayerEntryConfig) > 0:
				return NewShapeError("check tree", entryPath, fmt.Errorf("leaf of type %q owns children", entry.EntryType))
			}
			if entry.IsGroup() {
				if err := check(entryPath, entry.ListOfLayerEntryConfig); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := check(layer.GeoviewLayerID, layer.ListOfLayerEntryConfig); err != nil {
		return err
	}
	LinkTree(layer)
	return nil
}

// Walk visits entries depth first in declared order. Returning false from fn
// stops the walk.
func Walk(entries []*LayerEntryConfig, fn func(*LayerEntryConfig) bool) bool {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if !fn(entry) {
			return false
		}
		if entry.IsGroup() {
			if !Walk(entry.ListOfLayerEntryConfig, fn) {
				return false
			}
		}
	}
	return true
}

// Leaves returns every leaf entry of the layer in declared order.
func Leaves(layer *GeoviewLayerConfig) []*LayerEntryConfig {
	if layer == nil {
		return nil
	}
	var out []*LayerEntryConfig
	Walk(layer.ListOfLayerEntryConfig, func(e *LayerEntryConfig) bool {
		if !e.IsGroup() {
			out = append(out, e)
		}
		return true
	})
	return out
}

// FindByID searches entries depth first for the node whose layer id equals
// the last path segment of id.
func FindByID(entries []*LayerEntryConfig, id string) *LayerEntryConfig {
	target := lastSegment(id)
	if target == "" {
		return nil
	}
	var found *LayerEntryConfig
	Walk(entries, func(e *LayerEntryConfig) bool {
		if e.LayerID == target {
			found = e
			return false
		}
		return true
	})
	return found
}

// AllDescendantsIncluded reports whether every child, and recursively every
// grandchild, of node is present in ids.
func AllDescendantsIncluded(node *LayerEntryConfig, ids map[string]struct{}) bool {
	if node == nil {
		return false
	}
	for _, child := range node.ListOfLayerEntryConfig {
		if child == nil {
			continue
		}
		if _, ok := ids[child.LayerID]; !ok {
			return false
		}
		if child.IsGroup() && !AllDescendantsIncluded(child, ids) {
			return false
		}
	}
	return true
}

// BuildPartialGroup returns a tree containing only the selected descendants
// of group. Unless the whole group can be reused, the result is a synthetic
// group "group-<id>" holding copies of the selected leaves, built with the
// same rule for nested groups. When dynamicService is set and every
// descendant is selected, group itself is returned unmodified. The second
// return lists selected ids that exist nowhere under group.
func BuildPartialGroup(group *LayerEntryConfig, selected []string, dynamicService bool) (*LayerEntryConfig, []string) {
	if group == nil {
		return nil, append([]string(nil), selected...)
	}
	ids := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		ids[lastSegment(id)] = struct{}{}
	}

	var missing []string
	for _, id := range selected {
		if FindByID(group.ListOfLayerEntryConfig, id) == nil {
			missing = append(missing, id)
		}
	}

	if !group.IsGroup() {
		if _, ok := ids[group.LayerID]; ok {
			return group, missing
		}
		return nil, missing
	}
	if dynamicService && AllDescendantsIncluded(group, ids) {
		return group, missing
	}
	return buildPartial(group, ids, dynamicService), missing
}

func buildPartial(group *LayerEntryConfig, ids map[string]struct{}, dynamicService bool) *LayerEntryConfig {
	synthetic := &LayerEntryConfig{
		LayerID:   "group-" + group.LayerID,
		LayerName: group.LayerName,
		EntryType: EntryTypeGroup,
	}
	for _, child := range group.ListOfLayerEntryConfig {
		if child == nil {
			continue
		}
		if !child.IsGroup() {
			if _, ok := ids[child.LayerID]; ok {
				synthetic.ListOfLayerEntryConfig = append(synthetic.ListOfLayerEntryConfig, CloneEntry(child))
			}
			continue
		}
		if dynamicService && AllDescendantsIncluded(child, ids) {
			synthetic.ListOfLayerEntryConfig = append(synthetic.ListOfLayerEntryConfig, CloneEntry(child))
			continue
		}
		if nested := buildPartial(child, ids, dynamicService); nested != nil {
			synthetic.ListOfLayerEntryConfig = append(synthetic.ListOfLayerEntryConfig, nested)
		}
	}
	if len(synthetic.ListOfLayerEntryConfig) == 0 {
		return nil
	}
	return synthetic
}

// CloneEntry deep copies an entry and its children. Back-references, status
// and diagnostics are not carried over.
func CloneEntry(e *LayerEntryConfig) *LayerEntryConfig {
	if e == nil {
		return nil
	}
	out := &LayerEntryConfig{
		LayerID:   e.LayerID,
		LayerName: e.LayerName,
		EntryType: e.EntryType,
	}
	if e.Source != nil {
		src := *e.Source
		src.Extra = cloneAnyMap(e.Source.Extra)
		out.Source = &src
	}
	out.InitialSettings = e.InitialSettings.Clone()
	out.LayerStyle = cloneAnyMap(e.LayerStyle)
	for _, child := range e.ListOfLayerEntryConfig {
		out.ListOfLayerEntryConfig = append(out.ListOfLayerEntryConfig, CloneEntry(child))
	}
	return out
}

// Clone deep copies the settings.
func (s *InitialSettings) Clone() *InitialSettings {
	if s == nil {
		return nil
	}
	out := &InitialSettings{
		Extent: append([]float64(nil), s.Extent...),
		Bounds: append([]float64(nil), s.Bounds...),
		Extra:  cloneAnyMap(s.Extra),
	}
	if s.MinScale != nil {
		out.MinScale = Float(*s.MinScale)
	}
	if s.MaxScale != nil {
		out.MaxScale = Float(*s.MaxScale)
	}
	if s.States != nil {
		states := LayerStates{}
		if s.States.Visible != nil {
			states.Visible = Bool(*s.States.Visible)
		}
		if s.States.Opacity != nil {
			states.Opacity = Float(*s.States.Opacity)
		}
		out.States = &states
	}
	return out
}

// AssignLayerIDs gives every layer without a geoview layer id a generated
// one and returns how many were assigned.
func AssignLayerIDs(layers []*GeoviewLayerConfig) int {
	assigned := 0
	for _, layer := range layers {
		if layer == nil || strings.TrimSpace(layer.GeoviewLayerID) != "" {
			continue
		}
		layer.GeoviewLayerID = uuid.NewString()
		assigned++
	}
	return assigned
}

func lastSegment(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, PathSeparator); i >= 0 {
		return id[i+1:]
	}
	return id
}

// cloneAnyMap copies nested maps and slices too, so decoded JSON objects are
// never shared between a clone and its source.
func cloneAnyMap(src map[string]any) map[string]any {
	return layering.Clone(src)
}
