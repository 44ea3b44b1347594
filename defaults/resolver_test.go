package defaults

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/internal/hydrate"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/rules"
)

var ruleEngines = []string{rules.EngineExpr, rules.EngineCEL}

func newResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	r, err := NewResolver(opts...)
	if err != nil {
		t.Fatalf("expected resolver, got %v", err)
	}
	return r
}

func payloadOf(t *testing.T, value any) map[string]any {
	t.Helper()
	payload, err := hydrate.ToPayload(value)
	if err != nil {
		t.Fatalf("failed to build payload: %v", err)
	}
	return payload
}

func userConfig(view map[string]any, extra map[string]any) map[string]any {
	cfg := map[string]any{
		"map": map[string]any{
			"viewSettings": view,
		},
	}
	for k, v := range extra {
		if k == "basemapOptions" {
			cfg["map"].(map[string]any)[k] = v
			continue
		}
		cfg[k] = v
	}
	return cfg
}

func correctedFields(res Result) map[string]Correction {
	out := map[string]Correction{}
	for _, c := range res.Corrections {
		out[c.Field] = c
	}
	return out
}

func TestResolvingDefaultsIsIdempotent(t *testing.T) {
	for _, engine := range ruleEngines {
		r := newResolver(t, WithRuleEngine(engine))
		for _, code := range SupportedProjections() {
			want := MapFeatureConfig(code)
			first := r.Resolve(payloadOf(t, want), 0)
			if first.Config.ErrorDetected || len(first.Corrections) > 0 || len(first.Violations) > 0 {
				t.Fatalf("%s/%d: expected clean resolution, got corrections=%v violations=%v", engine, code, first.Corrections, first.Violations)
			}
			if !reflect.DeepEqual(want, first.Config) {
				t.Fatalf("%s/%d: resolved defaults differ:\nwant: %#v\n got: %#v", engine, code, want, first.Config)
			}
			second := r.Resolve(payloadOf(t, first.Config), 0)
			if second.Config.ErrorDetected || !reflect.DeepEqual(first.Config, second.Config) {
				t.Fatalf("%s/%d: expected second resolution to be identical", engine, code)
			}
		}
	}
}

func TestProjectionDefaultsAreConsistent(t *testing.T) {
	lcc := MapFeatureConfig(ProjectionLCC)
	merc := MapFeatureConfig(ProjectionWebMercator)
	if reflect.DeepEqual(lcc.Map.ViewSettings.MaxExtent, merc.Map.ViewSettings.MaxExtent) {
		t.Fatalf("expected max extents to differ per projection")
	}
	if *lcc.Map.ViewSettings.InitialView.ZoomAndCenter == *merc.Map.ViewSettings.InitialView.ZoomAndCenter {
		t.Fatalf("expected zoom and center to differ per projection")
	}
	for _, cfg := range []geoview.MapFeatureConfig{lcc, merc} {
		view := cfg.Map.ViewSettings
		if !containsPoint(view.MaxExtent, view.InitialView.ZoomAndCenter.Center) {
			t.Fatalf("expected default center inside max extent for %d", view.Projection)
		}
	}
}

func TestZoomCorrectionBoundary(t *testing.T) {
	cases := []struct {
		zoom    float64
		want    float64
		flagged bool
	}{
		{zoom: -5, want: 3.5, flagged: true},
		{zoom: 999, want: 3.5, flagged: true},
		{zoom: 10, want: 10, flagged: false},
		{zoom: 0, want: 0, flagged: false},
	}
	for _, engine := range ruleEngines {
		r := newResolver(t, WithRuleEngine(engine))
		for _, tc := range cases {
			res := r.Resolve(userConfig(map[string]any{
				"initialView": map[string]any{"zoomAndCenter": []any{tc.zoom, []any{-90.0, 60.0}}},
			}, nil), 0)
			got := res.Config.Map.ViewSettings.InitialView.ZoomAndCenter
			if got == nil || got.Zoom != tc.want {
				t.Fatalf("%s: expected zoom %v for input %v, got %+v", engine, tc.want, tc.zoom, got)
			}
			if got.Center != [2]float64{-90, 60} {
				t.Fatalf("%s: expected user center to survive zoom correction, got %v", engine, got.Center)
			}
			if res.Config.ErrorDetected != tc.flagged {
				t.Fatalf("%s: expected error flag %v for zoom %v", engine, tc.flagged, tc.zoom)
			}
		}
	}
}

func TestUnsupportedProjectionFallsBack(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(userConfig(map[string]any{"projection": 4326.0}, nil), 0)
	if res.Config.Map.ViewSettings.Projection != DefaultProjection {
		t.Fatalf("expected projection %d, got %d", DefaultProjection, res.Config.Map.ViewSettings.Projection)
	}
	if !res.Config.ErrorDetected {
		t.Fatalf("expected error flag for unsupported projection")
	}

	hinted := r.Resolve(userConfig(map[string]any{}, nil), ProjectionWebMercator)
	if hinted.Config.Map.ViewSettings.Projection != ProjectionWebMercator {
		t.Fatalf("expected projection hint to apply, got %d", hinted.Config.Map.ViewSettings.Projection)
	}
	if hinted.Config.Map.ViewSettings.InitialView.ZoomAndCenter.Zoom != 4 {
		t.Fatalf("expected web mercator default zoom")
	}
}

func TestBasemapCorrectedPerProjection(t *testing.T) {
	for _, engine := range ruleEngines {
		r := newResolver(t, WithRuleEngine(engine))

		lcc := r.Resolve(userConfig(map[string]any{"projection": 3978.0}, map[string]any{
			"basemapOptions": map[string]any{"basemapId": "imagery", "shaded": false, "labeled": false},
		}), 0)
		if lcc.Config.Map.BasemapOptions.BasemapID != "transport" {
			t.Fatalf("%s: expected imagery replaced for LCC, got %q", engine, lcc.Config.Map.BasemapOptions.BasemapID)
		}
		if *lcc.Config.Map.BasemapOptions.Labeled {
			t.Fatalf("%s: expected valid labeled=false to be kept", engine)
		}
		if _, ok := correctedFields(lcc)["map.basemapOptions.basemapId"]; !ok {
			t.Fatalf("%s: expected basemapId correction to be reported", engine)
		}

		merc := r.Resolve(userConfig(map[string]any{"projection": 3857.0}, map[string]any{
			"basemapOptions": map[string]any{"basemapId": "imagery", "shaded": true},
		}), 0)
		if merc.Config.Map.BasemapOptions.BasemapID != "imagery" {
			t.Fatalf("%s: expected imagery kept for web mercator", engine)
		}
		if *merc.Config.Map.BasemapOptions.Shaded {
			t.Fatalf("%s: expected shaded replaced by false for web mercator", engine)
		}
	}
}

func TestCenterOutsideWindowReplaced(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(userConfig(map[string]any{
		"initialView": map[string]any{"zoomAndCenter": []any{5.0, []any{100.0, 10.0}}},
	}, nil), 0)
	zc := res.Config.Map.ViewSettings.InitialView.ZoomAndCenter
	if zc.Center != [2]float64{-90, 60} || zc.Zoom != 5 {
		t.Fatalf("expected center replaced and zoom kept, got %+v", zc)
	}
	c, ok := correctedFields(res)["map.viewSettings.initialView.zoomAndCenter.center"]
	if !ok || !strings.Contains(c.Message(), "replaced by [-90 60]") {
		t.Fatalf("expected center correction message, got %+v", res.Corrections)
	}
}

func TestMaxExtentMustContainCenter(t *testing.T) {
	r := newResolver(t, WithRuleEngine(rules.EngineCEL))
	res := r.Resolve(userConfig(map[string]any{
		"initialView": map[string]any{"zoomAndCenter": []any{5.0, []any{-100.0, 50.0}}},
		"maxExtent":   []any{-80.0, 30.0, -60.0, 70.0},
	}, nil), 0)
	view := res.Config.Map.ViewSettings
	if !reflect.DeepEqual(view.MaxExtent, []float64{-135, 25, -50, 89}) {
		t.Fatalf("expected default max extent, got %v", view.MaxExtent)
	}
	if view.InitialView.ZoomAndCenter.Center != [2]float64{-100, 50} {
		t.Fatalf("expected center kept once extent contains it, got %v", view.InitialView.ZoomAndCenter.Center)
	}
}

func TestZoomLimitsCorrected(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(userConfig(map[string]any{"minZoom": 12.0, "maxZoom": 6.0}, nil), 0)
	view := res.Config.Map.ViewSettings
	if *view.MinZoom != 12 || *view.MaxZoom != MaxZoomLimit {
		t.Fatalf("expected maxZoom below minZoom to be replaced, got min=%v max=%v", *view.MinZoom, *view.MaxZoom)
	}
}

func TestSchemaVersionCorrection(t *testing.T) {
	r := newResolver(t)
	cases := map[string]string{"2.0": "1.0", "1.0.0": "1.0", "garbage": "1.0", "1.0": "1.0"}
	for declared, want := range cases {
		res := r.Resolve(userConfig(map[string]any{}, map[string]any{"schemaVersionUsed": declared}), 0)
		if res.Config.SchemaVersionUsed != want {
			t.Fatalf("expected %q to resolve to %q, got %q", declared, want, res.Config.SchemaVersionUsed)
		}
		_, corrected := correctedFields(res)["schemaVersionUsed"]
		if corrected != (declared != want) {
			t.Fatalf("unexpected correction state for %q: %v", declared, res.Corrections)
		}
	}
}

func TestUnknownTopLevelKeysRemoved(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(userConfig(map[string]any{}, map[string]any{"colour": "red"}), 0)
	if len(res.UnknownKeys) != 1 || res.UnknownKeys[0] != "colour" {
		t.Fatalf("expected colour to be reported, got %v", res.UnknownKeys)
	}
	if !res.Config.ErrorDetected {
		t.Fatalf("expected error flag for unknown key")
	}
	if msg := correctedFields(res)["colour"].Message(); !strings.Contains(msg, "removed") {
		t.Fatalf("expected removal message, got %q", msg)
	}
}

func TestExtentInitialViewDropsDefaultZoomAndCenter(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(userConfig(map[string]any{
		"initialView": map[string]any{"extent": []any{-120.0, 45.0, -70.0, 60.0}},
	}, nil), 0)
	view := res.Config.Map.ViewSettings.InitialView
	if view.ZoomAndCenter != nil {
		t.Fatalf("expected zoomAndCenter removed when extent is given, got %+v", view.ZoomAndCenter)
	}
	if len(view.Extent) != 4 {
		t.Fatalf("expected user extent kept, got %v", view.Extent)
	}
	if res.Config.ErrorDetected {
		t.Fatalf("expected clean resolution, got %v", res.Corrections)
	}
}

func TestMistypedValuesPrunedToDefaults(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(userConfig(map[string]any{
		"initialView": map[string]any{"zoomAndCenter": []any{"far", []any{-90.0, 60.0}}},
		"projection":  "lcc",
	}, nil), 0)
	want := MapFeatureConfig(DefaultProjection).Map.ViewSettings
	got := res.Config.Map.ViewSettings
	if got.Projection != want.Projection || *got.InitialView.ZoomAndCenter != *want.InitialView.ZoomAndCenter {
		t.Fatalf("expected defaults after pruning, got %+v", got)
	}
	fields := correctedFields(res)
	for _, pointer := range []string{"/map/viewSettings/initialView/zoomAndCenter", "/map/viewSettings/projection"} {
		if _, ok := fields[pointer]; !ok {
			t.Fatalf("expected %s to be reported, got %v", pointer, res.Corrections)
		}
	}
}

func TestMaximallyMalformedInputYieldsDefaults(t *testing.T) {
	r := newResolver(t)
	for _, input := range []map[string]any{nil, {}, {"map": "not an object"}} {
		res := r.Resolve(input, 0)
		if !res.Config.ErrorDetected {
			t.Fatalf("expected error flag for %v", input)
		}
		want := MapFeatureConfig(DefaultProjection)
		want.ErrorDetected = true
		if !reflect.DeepEqual(want, res.Config) {
			t.Fatalf("expected full defaults for %v, got %#v", input, res.Config)
		}
	}
}

func TestLayersGetIDsAndBrokenLayersAreDropped(t *testing.T) {
	r := newResolver(t)
	res := r.Resolve(map[string]any{
		"map": map[string]any{
			"listOfGeoviewLayerConfig": []any{
				map[string]any{"geoviewLayerType": "ogcWms", "metadataAccessPath": "https://example.gc.ca/wms",
					"listOfLayerEntryConfig": []any{map[string]any{"layerId": "roads"}}},
				map[string]any{"geoviewLayerId": "bad", "geoviewLayerType": "esriDynamic",
					"listOfLayerEntryConfig": []any{map[string]any{"layerId": "g", "entryType": "group"}}},
				map[string]any{"geoviewLayerId": "typo", "geoviewLayerType": "esriDynamo"},
			},
		},
	}, 0)
	layers := res.Config.Map.ListOfGeoviewLayerConfig
	if len(layers) != 1 {
		t.Fatalf("expected only the valid layer to remain, got %d", len(layers))
	}
	if layers[0].GeoviewLayerID == "" {
		t.Fatalf("expected a generated geoview layer id")
	}
	if path := layers[0].ListOfLayerEntryConfig[0].LayerPath(); path != layers[0].GeoviewLayerID+"/roads" {
		t.Fatalf("expected linked tree, got path %q", path)
	}
	if !res.Config.ErrorDetected {
		t.Fatalf("expected error flag when layers are dropped")
	}
}

func TestRuleLoggerSeesEveryRule(t *testing.T) {
	var events []rules.LogEvent
	r := newResolver(t, WithRuleLogger(rules.LoggerFunc(func(e rules.LogEvent) {
		events = append(events, e)
	})))
	r.Resolve(payloadOf(t, MapFeatureConfig(ProjectionLCC)), 0)
	if len(events) != len(correctionRules) {
		t.Fatalf("expected %d rule evaluations, got %d", len(correctionRules), len(events))
	}
	for _, e := range events {
		if !e.Passed || e.Err != nil {
			t.Fatalf("expected default config to pass %s, got %+v", e.Field, e)
		}
	}
}
