// Package defaults resolves user map configurations against projection
// specific defaults: it merges, validates, and repairs whatever it cannot
// accept so that a usable configuration always comes back.
package defaults

import (
	"sort"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
)

const (
	// ProjectionLCC is Canada Atlas Lambert (EPSG:3978).
	ProjectionLCC = 3978
	// ProjectionWebMercator is EPSG:3857.
	ProjectionWebMercator = 3857

	DefaultProjection    = ProjectionLCC
	MinZoomLimit         = 0.0
	MaxZoomLimit         = 28.0
	DefaultSchemaVersion = "1.0"
	DefaultLanguage      = "en"
)

// AcceptedSchemaVersions lists the schemaVersionUsed values a configuration
// may declare.
var AcceptedSchemaVersions = []string{"1.0"}

// Languages lists the supported display languages.
var Languages = []string{"en", "fr"}

// Window bounds valid centre coordinates, in degrees.
type Window struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// Projection holds the per-projection defaults and allowed values.
type Projection struct {
	Code           int
	Zoom           float64
	Center         [2]float64
	MaxExtent      [4]float64
	CenterWindow   Window
	BasemapIDs     []string
	ShadedAllowed  []bool
	LabeledAllowed []bool
	DefaultBasemap string
	DefaultShaded  bool
	DefaultLabeled bool
}

var projections = map[int]Projection{
	ProjectionLCC: {
		Code:           ProjectionLCC,
		Zoom:           3.5,
		Center:         [2]float64{-90, 60},
		MaxExtent:      [4]float64{-135, 25, -50, 89},
		CenterWindow:   Window{LonMin: -140, LonMax: 40, LatMin: 40, LatMax: 90},
		BasemapIDs:     []string{"transport", "simple", "shaded", "osm", "nogeom"},
		ShadedAllowed:  []bool{true, false},
		LabeledAllowed: []bool{true, false},
		DefaultBasemap: "transport",
		DefaultShaded:  true,
		DefaultLabeled: true,
	},
	ProjectionWebMercator: {
		Code:           ProjectionWebMercator,
		Zoom:           4,
		Center:         [2]float64{-100, 55},
		MaxExtent:      [4]float64{-170, 35, -20, 84},
		CenterWindow:   Window{LonMin: -180, LonMax: 180, LatMin: -90, LatMax: 90},
		BasemapIDs:     []string{"transport", "imagery", "labeled", "osm", "nogeom"},
		ShadedAllowed:  []bool{false},
		LabeledAllowed: []bool{true, false},
		DefaultBasemap: "transport",
		DefaultShaded:  false,
		DefaultLabeled: true,
	},
}

// ProjectionFor returns the defaults for code and whether code is supported.
func ProjectionFor(code int) (Projection, bool) {
	p, ok := projections[code]
	return p, ok
}

// SupportedProjections returns the supported projection codes, sorted.
func SupportedProjections() []int {
	codes := make([]int, 0, len(projections))
	for code := range projections {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// SupportedLanguage reports whether lang is a display language.
func SupportedLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// MapFeatureConfig returns the complete default configuration for a
// projection. Unsupported codes get the global default projection.
func MapFeatureConfig(code int) geoview.MapFeatureConfig {
	p, ok := projections[code]
	if !ok {
		p = projections[DefaultProjection]
	}
	return geoview.MapFeatureConfig{
		Map: geoview.MapConfig{
			Interaction: "dynamic",
			ViewSettings: geoview.ViewSettings{
				InitialView: geoview.InitialView{
					ZoomAndCenter: &geoview.ZoomAndCenter{Zoom: p.Zoom, Center: p.Center},
				},
				EnableRotation: geoview.Bool(true),
				Rotation:       geoview.Float(0),
				MinZoom:        geoview.Float(MinZoomLimit),
				MaxZoom:        geoview.Float(MaxZoomLimit),
				MaxExtent:      p.MaxExtent[:],
				Projection:     p.Code,
			},
			HighlightColor: "black",
			BasemapOptions: geoview.BasemapOptions{
				BasemapID: p.DefaultBasemap,
				Shaded:    geoview.Bool(p.DefaultShaded),
				Labeled:   geoview.Bool(p.DefaultLabeled),
			},
			ListOfGeoviewLayerConfig: []*geoview.GeoviewLayerConfig{},
		},
		Theme:            "geo.ca",
		Components:       []string{"overview-map"},
		AppBar:           &geoview.AppBarConfig{Tabs: geoview.AppBarTabs{Core: []string{"geolocator"}}},
		NavBar:           []string{"zoom", "fullscreen", "home"},
		FooterBar:        &geoview.FooterBar{Tabs: geoview.FooterTabs{Core: []string{"legend", "layers", "details", "data-table"}}},
		CorePackages:     []string{},
		ExternalPackages: []string{},
		ServiceURLs: geoview.ServiceURLs{
			GeocoreURL:    "https://geocore.api.geo.ca",
			GeolocatorURL: "https://geolocator.api.geo.ca?keys=geonames,nominatim,locate",
			ProxyURL:      "https://maps.canada.ca/wmsproxy/ws/wmsproxy/executeFromProxy",
		},
		SchemaVersionUsed: DefaultSchemaVersion,
	}
}
