package defaults

import (
	"fmt"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/rules"
)

// Correction records one value the resolver replaced.
type Correction struct {
	Field       string
	Original    any
	Replacement any
}

// Message renders the correction as "<field> <original> replaced by <replacement>".
func (c Correction) Message() string {
	if c.Replacement == nil {
		return fmt.Sprintf("%s %s removed", c.Field, describe(c.Original))
	}
	return fmt.Sprintf("%s %s replaced by %s", c.Field, describe(c.Original), describe(c.Replacement))
}

func describe(value any) string {
	switch v := value.(type) {
	case nil:
		return "<missing>"
	case string:
		return fmt.Sprintf("%q", v)
	case *bool:
		if v == nil {
			return "<missing>"
		}
		return fmt.Sprintf("%v", *v)
	case *float64:
		if v == nil {
			return "<missing>"
		}
		return fmt.Sprintf("%v", *v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

type fixContext struct {
	cfg      *geoview.MapFeatureConfig
	proj     Projection
	versions *versionMatcher
	record   func(field string, original, replacement any)
}

type correctionRule struct {
	rule    rules.Rule
	applies func(cfg *geoview.MapFeatureConfig) bool
	fix     func(ctx *fixContext)
}

func always(*geoview.MapFeatureConfig) bool { return true }

func hasZoomAndCenter(cfg *geoview.MapFeatureConfig) bool {
	return cfg.Map.ViewSettings.InitialView.ZoomAndCenter != nil
}

// correctionRules is evaluated in order against a fresh snapshot each time,
// so later rules see earlier repairs.
var correctionRules = []correctionRule{
	{
		rule:    rules.Rule{Field: "map.viewSettings.projection", Expr: "projection in validProjections"},
		applies: always,
		fix: func(ctx *fixContext) {
			view := &ctx.cfg.Map.ViewSettings
			ctx.record("map.viewSettings.projection", view.Projection, DefaultProjection)
			view.Projection = DefaultProjection
		},
	},
	{
		rule:    rules.Rule{Field: "map.viewSettings.initialView.zoomAndCenter.zoom", Expr: "zoom >= minZoomLimit && zoom <= maxZoomLimit"},
		applies: hasZoomAndCenter,
		fix: func(ctx *fixContext) {
			zc := ctx.cfg.Map.ViewSettings.InitialView.ZoomAndCenter
			ctx.record("map.viewSettings.initialView.zoomAndCenter.zoom", zc.Zoom, ctx.proj.Zoom)
			zc.Zoom = ctx.proj.Zoom
		},
	},
	{
		rule: rules.Rule{
			Field: "map.viewSettings.initialView.zoomAndCenter.center",
			Expr:  "center[0] >= centerLonMin && center[0] <= centerLonMax && center[1] >= centerLatMin && center[1] <= centerLatMax",
		},
		applies: hasZoomAndCenter,
		fix: func(ctx *fixContext) {
			zc := ctx.cfg.Map.ViewSettings.InitialView.ZoomAndCenter
			ctx.record("map.viewSettings.initialView.zoomAndCenter.center", zc.Center, ctx.proj.Center)
			zc.Center = ctx.proj.Center
		},
	},
	{
		rule:    rules.Rule{Field: "map.basemapOptions.basemapId", Expr: "basemapId in validBasemapIds"},
		applies: always,
		fix: func(ctx *fixContext) {
			opts := &ctx.cfg.Map.BasemapOptions
			ctx.record("map.basemapOptions.basemapId", opts.BasemapID, ctx.proj.DefaultBasemap)
			opts.BasemapID = ctx.proj.DefaultBasemap
		},
	},
	{
		rule:    rules.Rule{Field: "map.basemapOptions.shaded", Expr: "shaded in validShaded"},
		applies: always,
		fix: func(ctx *fixContext) {
			opts := &ctx.cfg.Map.BasemapOptions
			ctx.record("map.basemapOptions.shaded", opts.Shaded, ctx.proj.DefaultShaded)
			opts.Shaded = geoview.Bool(ctx.proj.DefaultShaded)
		},
	},
	{
		rule:    rules.Rule{Field: "map.basemapOptions.labeled", Expr: "labeled in validLabeled"},
		applies: always,
		fix: func(ctx *fixContext) {
			opts := &ctx.cfg.Map.BasemapOptions
			ctx.record("map.basemapOptions.labeled", opts.Labeled, ctx.proj.DefaultLabeled)
			opts.Labeled = geoview.Bool(ctx.proj.DefaultLabeled)
		},
	},
	{
		rule:    rules.Rule{Field: "schemaVersionUsed", Expr: "acceptedVersion(schemaVersion) == schemaVersion"},
		applies: always,
		fix: func(ctx *fixContext) {
			replacement := ctx.versions.Canonical(ctx.cfg.SchemaVersionUsed)
			if replacement == "" {
				replacement = DefaultSchemaVersion
			}
			ctx.record("schemaVersionUsed", ctx.cfg.SchemaVersionUsed, replacement)
			ctx.cfg.SchemaVersionUsed = replacement
		},
	},
	{
		rule:    rules.Rule{Field: "map.viewSettings.minZoom", Expr: "minZoom >= minZoomLimit && minZoom <= maxZoomLimit"},
		applies: always,
		fix: func(ctx *fixContext) {
			view := &ctx.cfg.Map.ViewSettings
			ctx.record("map.viewSettings.minZoom", view.MinZoom, MinZoomLimit)
			view.MinZoom = geoview.Float(MinZoomLimit)
		},
	},
	{
		rule:    rules.Rule{Field: "map.viewSettings.maxZoom", Expr: "maxZoom >= minZoomLimit && maxZoom <= maxZoomLimit && maxZoom >= minZoom"},
		applies: always,
		fix: func(ctx *fixContext) {
			view := &ctx.cfg.Map.ViewSettings
			ctx.record("map.viewSettings.maxZoom", view.MaxZoom, MaxZoomLimit)
			view.MaxZoom = geoview.Float(MaxZoomLimit)
		},
	},
	{
		rule:    rules.Rule{Field: "map.viewSettings.maxExtent", Expr: "withinExtent(center, maxExtent)"},
		applies: hasZoomAndCenter,
		fix: func(ctx *fixContext) {
			view := &ctx.cfg.Map.ViewSettings
			extent := ctx.proj.MaxExtent[:]
			ctx.record("map.viewSettings.maxExtent", view.MaxExtent, extent)
			view.MaxExtent = append([]float64(nil), extent...)
			zc := view.InitialView.ZoomAndCenter
			if !containsPoint(view.MaxExtent, zc.Center) {
				ctx.record("map.viewSettings.initialView.zoomAndCenter.center", zc.Center, ctx.proj.Center)
				zc.Center = ctx.proj.Center
			}
		},
	},
}

func containsPoint(extent []float64, point [2]float64) bool {
	if len(extent) != 4 {
		return false
	}
	return point[0] >= extent[0] && point[0] <= extent[2] && point[1] >= extent[1] && point[1] <= extent[3]
}

// snapshot flattens the fields the rule table reads. Numbers are float64 so
// every engine compares like with like.
func snapshot(cfg *geoview.MapFeatureConfig, proj Projection) map[string]any {
	view := cfg.Map.ViewSettings
	zoom, center := proj.Zoom, proj.Center
	if zc := view.InitialView.ZoomAndCenter; zc != nil {
		zoom, center = zc.Zoom, zc.Center
	}
	minZoom, maxZoom := MinZoomLimit, MaxZoomLimit
	if view.MinZoom != nil {
		minZoom = *view.MinZoom
	}
	if view.MaxZoom != nil {
		maxZoom = *view.MaxZoom
	}

	validProjections := make([]any, 0, len(projections))
	for _, code := range SupportedProjections() {
		validProjections = append(validProjections, float64(code))
	}

	return map[string]any{
		"projection":       float64(view.Projection),
		"validProjections": validProjections,
		"zoom":             zoom,
		"minZoomLimit":     MinZoomLimit,
		"maxZoomLimit":     MaxZoomLimit,
		"center":           []any{center[0], center[1]},
		"centerLonMin":     proj.CenterWindow.LonMin,
		"centerLonMax":     proj.CenterWindow.LonMax,
		"centerLatMin":     proj.CenterWindow.LatMin,
		"centerLatMax":     proj.CenterWindow.LatMax,
		"basemapId":        cfg.Map.BasemapOptions.BasemapID,
		"validBasemapIds":  stringsToAny(proj.BasemapIDs),
		"shaded":           boolValue(cfg.Map.BasemapOptions.Shaded),
		"validShaded":      boolsToAny(proj.ShadedAllowed),
		"labeled":          boolValue(cfg.Map.BasemapOptions.Labeled),
		"validLabeled":     boolsToAny(proj.LabeledAllowed),
		"schemaVersion":    cfg.SchemaVersionUsed,
		"minZoom":          minZoom,
		"maxZoom":          maxZoom,
		"maxExtent":        floatsToAny(view.MaxExtent),
	}
}

func boolValue(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func boolsToAny(values []bool) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func floatsToAny(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
