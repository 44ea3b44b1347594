package defaults

import (
	"reflect"
	"testing"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/schema"
)

func TestPruneViolations(t *testing.T) {
	doc := map[string]any{
		"map": map[string]any{
			"viewSettings": map[string]any{
				"initialView": map[string]any{"zoomAndCenter": []any{"far", []any{-90.0, 60.0}}},
				"projection":  4326.0,
				"maxExtent":   []any{-135.0, 25.0, -50.0, "north"},
			},
			"listOfGeoviewLayerConfig": []any{
				map[string]any{"geoviewLayerId": "a"},
				map[string]any{"geoviewLayerId": "b", "geoviewLayerType": "ogcWms"},
				map[string]any{"geoviewLayerId": "c"},
			},
		},
	}
	violations := []schema.Violation{
		{InstancePath: "/map/viewSettings/initialView/zoomAndCenter/0"},
		{InstancePath: "/map/viewSettings/projection"},
		{InstancePath: "/map/viewSettings/maxExtent/3"},
		{InstancePath: "/map/listOfGeoviewLayerConfig/0"},
		{InstancePath: "/map/listOfGeoviewLayerConfig/2"},
		{InstancePath: ""},
	}

	pruned := pruneViolations(doc, violations)

	var pointers []string
	for _, p := range pruned {
		pointers = append(pointers, p.Pointer)
	}
	want := []string{
		"/map/listOfGeoviewLayerConfig/0",
		"/map/listOfGeoviewLayerConfig/2",
		"/map/viewSettings/initialView/zoomAndCenter",
		"/map/viewSettings/maxExtent",
		"/map/viewSettings/projection",
	}
	if !reflect.DeepEqual(want, pointers) {
		t.Fatalf("expected pruned pointers %v, got %v", want, pointers)
	}

	view := doc["map"].(map[string]any)["viewSettings"].(map[string]any)
	if _, ok := view["projection"]; ok {
		t.Fatalf("expected projection removed")
	}
	if _, ok := view["maxExtent"]; ok {
		t.Fatalf("expected whole extent tuple removed")
	}
	if len(view["initialView"].(map[string]any)) != 0 {
		t.Fatalf("expected zoomAndCenter removed")
	}

	layers := doc["map"].(map[string]any)["listOfGeoviewLayerConfig"].([]any)
	if len(layers) != 1 || layers[0].(map[string]any)["geoviewLayerId"] != "b" {
		t.Fatalf("expected only layer b to remain, got %v", layers)
	}
}

func TestSplitPointerUnescapes(t *testing.T) {
	got := splitPointer("/a~1b/c~0d/0")
	want := []string{"a/b", "c~d", "0"}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if splitPointer("") != nil {
		t.Fatalf("expected root pointer to have no segments")
	}
}

func TestComparePointersIsNumericAware(t *testing.T) {
	if comparePointers([]string{"list", "10"}, []string{"list", "9"}) <= 0 {
		t.Fatalf("expected index 10 to sort after 9")
	}
	if comparePointers([]string{"a", "b"}, []string{"a"}) <= 0 {
		t.Fatalf("expected deeper pointer to sort after its parent")
	}
}

func TestVersionMatcherCanonicalizes(t *testing.T) {
	m, err := newVersionMatcher([]string{"1.0"})
	if err != nil {
		t.Fatalf("expected matcher, got %v", err)
	}
	cases := map[string]string{"1.0": "1.0", "1.0.0": "1.0", "v1.0": "1.0", "1.1": "", "": ""}
	for in, want := range cases {
		if got := m.Canonical(in); got != want {
			t.Fatalf("expected Canonical(%q) = %q, got %q", in, want, got)
		}
	}
	if _, err := m.function(); err == nil {
		t.Fatalf("expected arity error")
	}
}
