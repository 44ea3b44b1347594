package geoview

import (
	"encoding/json"
	"fmt"
)

// MapFeatureConfig is the root configuration of one map instance.
type MapFeatureConfig struct {
	Map               MapConfig      `json:"map"`
	Theme             string         `json:"theme,omitempty"`
	Components        []string       `json:"components,omitempty"`
	AppBar            *AppBarConfig  `json:"appBar,omitempty"`
	NavBar            []string       `json:"navBar,omitempty"`
	FooterBar         *FooterBar     `json:"footerBar,omitempty"`
	OverviewMap       map[string]any `json:"overviewMap,omitempty"`
	CorePackages      []string       `json:"corePackages,omitempty"`
	ExternalPackages  []string       `json:"externalPackages,omitempty"`
	ServiceURLs       ServiceURLs    `json:"serviceUrls"`
	GlobalSettings    map[string]any `json:"globalSettings,omitempty"`
	SchemaVersionUsed string         `json:"schemaVersionUsed,omitempty"`

	// ErrorDetected is set whenever validation or auto-correction had to
	// replace a user supplied value.
	ErrorDetected bool `json:"-"`
}

// MapConfig holds the map view settings and the layer list.
type MapConfig struct {
	Interaction              string                `json:"interaction,omitempty"`
	ViewSettings             ViewSettings          `json:"viewSettings"`
	HighlightColor           string                `json:"highlightColor,omitempty"`
	BasemapOptions           BasemapOptions        `json:"basemapOptions"`
	ListOfGeoviewLayerConfig []*GeoviewLayerConfig `json:"listOfGeoviewLayerConfig,omitempty" merge:"replace"`
	ExtraOptions             map[string]any        `json:"extraOptions,omitempty"`
}

// ViewSettings describes projection, initial view and zoom bounds.
type ViewSettings struct {
	InitialView    InitialView `json:"initialView"`
	EnableRotation *bool       `json:"enableRotation,omitempty"`
	Rotation       *float64    `json:"rotation,omitempty"`
	MinZoom        *float64    `json:"minZoom,omitempty"`
	MaxZoom        *float64    `json:"maxZoom,omitempty"`
	MaxExtent      []float64   `json:"maxExtent,omitempty"`
	Projection     int         `json:"projection,omitempty"`
}

// InitialView carries one of the mutually exclusive initial view strategies.
// ZoomAndCenter is the fallback when neither Extent nor LayerIDs is set.
type InitialView struct {
	ZoomAndCenter *ZoomAndCenter `json:"zoomAndCenter,omitempty" merge:"replace"`
	Extent        []float64      `json:"extent,omitempty"`
	LayerIDs      []string       `json:"layerIds,omitempty"`
}

// ZoomAndCenter is encoded as [zoom, [lon, lat]].
type ZoomAndCenter struct {
	Zoom   float64
	Center [2]float64
}

// MarshalJSON implements json.Marshaler.
func (z ZoomAndCenter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{z.Zoom, []float64{z.Center[0], z.Center[1]}})
}

// UnmarshalJSON implements json.Unmarshaler.
func (z *ZoomAndCenter) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("zoomAndCenter: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("zoomAndCenter: expected [zoom, [lon, lat]], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &z.Zoom); err != nil {
		return fmt.Errorf("zoomAndCenter: zoom: %w", err)
	}
	var center []float64
	if err := json.Unmarshal(raw[1], &center); err != nil {
		return fmt.Errorf("zoomAndCenter: center: %w", err)
	}
	if len(center) != 2 {
		return fmt.Errorf("zoomAndCenter: center must have 2 coordinates, got %d", len(center))
	}
	z.Center = [2]float64{center[0], center[1]}
	return nil
}

// BasemapOptions selects the basemap.
type BasemapOptions struct {
	BasemapID string `json:"basemapId,omitempty"`
	Shaded    *bool  `json:"shaded,omitempty"`
	Labeled   *bool  `json:"labeled,omitempty"`
}

// AppBarConfig lists app bar tabs.
type AppBarConfig struct {
	Tabs AppBarTabs `json:"tabs"`
}

// AppBarTabs lists core app bar tabs.
type AppBarTabs struct {
	Core []string `json:"core,omitempty" merge:"fallback"`
}

// FooterBar lists footer tabs.
type FooterBar struct {
	Tabs FooterTabs `json:"tabs"`
}

// FooterTabs lists core and custom footer tabs.
type FooterTabs struct {
	Core   []string `json:"core,omitempty" merge:"fallback"`
	Custom []string `json:"custom,omitempty"`
}

// ServiceURLs points at the remote services the map talks to.
type ServiceURLs struct {
	GeocoreURL    string `json:"geocoreUrl,omitempty"`
	GeolocatorURL string `json:"geolocatorUrl,omitempty"`
	ProxyURL      string `json:"proxyUrl,omitempty"`
}

// GeoviewLayerConfig is the root of one top-level layer tree.
type GeoviewLayerConfig struct {
	GeoviewLayerID         string              `json:"geoviewLayerId"`
	GeoviewLayerName       string              `json:"geoviewLayerName,omitempty"`
	GeoviewLayerType       LayerType           `json:"geoviewLayerType"`
	MetadataAccessPath     string              `json:"metadataAccessPath,omitempty"`
	IsTimeAware            *bool               `json:"isTimeAware,omitempty"`
	IsGeocore              bool                `json:"isGeocore,omitempty"`
	ServiceDateFormat      string              `json:"serviceDateFormat,omitempty"`
	ExternalDateFormat     string              `json:"externalDateFormat,omitempty"`
	InitialSettings        *InitialSettings    `json:"initialSettings,omitempty"`
	ListOfLayerEntryConfig []*LayerEntryConfig `json:"listOfLayerEntryConfig,omitempty" merge:"replace"`
}

// LayerEntryConfig is one node of a layer tree. A node is a group iff its
// EntryType is EntryTypeGroup; only groups own ListOfLayerEntryConfig.
type LayerEntryConfig struct {
	LayerID                string              `json:"layerId"`
	LayerName              string              `json:"layerName,omitempty"`
	EntryType              EntryType           `json:"entryType,omitempty"`
	Source                 *Source             `json:"source,omitempty"`
	InitialSettings        *InitialSettings    `json:"initialSettings,omitempty"`
	LayerStyle             map[string]any      `json:"layerStyle,omitempty"`
	ListOfLayerEntryConfig []*LayerEntryConfig `json:"listOfLayerEntryConfig,omitempty" merge:"replace"`

	parent      *LayerEntryConfig
	root        *GeoviewLayerConfig
	status      LayerStatus
	diagnostics []string
}

// Source describes where and how a leaf's data is read.
type Source struct {
	DataAccessPath string         `json:"dataAccessPath,omitempty"`
	Format         string         `json:"format,omitempty"`
	Projection     int            `json:"projection,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// InitialSettings holds the initial extent, scale bounds and states.
type InitialSettings struct {
	Extent   []float64      `json:"extent,omitempty"`
	MinScale *float64       `json:"minScale,omitempty"`
	MaxScale *float64       `json:"maxScale,omitempty"`
	States   *LayerStates   `json:"states,omitempty"`
	Bounds   []float64      `json:"bounds,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// LayerStates holds toggles applied when the layer is first rendered.
type LayerStates struct {
	Visible *bool    `json:"visible,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
}

// LayerType is the closed set of geoview layer types.
type LayerType string

const (
	LayerTypeEsriDynamic LayerType = "esriDynamic"
	LayerTypeEsriFeature LayerType = "esriFeature"
	LayerTypeEsriImage   LayerType = "esriImage"
	LayerTypeImageStatic LayerType = "imageStatic"
	LayerTypeGeoJSON     LayerType = "GeoJSON"
	LayerTypeGeoPackage  LayerType = "GeoPackage"
	LayerTypeGeoTIFF     LayerType = "GeoTIFF"
	LayerTypeXYZTiles    LayerType = "xyzTiles"
	LayerTypeVectorTiles LayerType = "vectorTiles"
	LayerTypeOGCFeature  LayerType = "ogcFeature"
	LayerTypeWFS         LayerType = "ogcWfs"
	LayerTypeWMS         LayerType = "ogcWms"
	LayerTypeCSV         LayerType = "CSV"
	LayerTypeWKB         LayerType = "WKB"
	LayerTypeGeoCore     LayerType = "geoCore"
)

var layerTypes = map[LayerType]struct{}{
	LayerTypeEsriDynamic: {}, LayerTypeEsriFeature: {}, LayerTypeEsriImage: {},
	LayerTypeImageStatic: {}, LayerTypeGeoJSON: {}, LayerTypeGeoPackage: {},
	LayerTypeGeoTIFF: {}, LayerTypeXYZTiles: {}, LayerTypeVectorTiles: {},
	LayerTypeOGCFeature: {}, LayerTypeWFS: {}, LayerTypeWMS: {},
	LayerTypeCSV: {}, LayerTypeWKB: {}, LayerTypeGeoCore: {},
}

// Valid reports whether t is a known layer type.
func (t LayerType) Valid() bool {
	_, ok := layerTypes[t]
	return ok
}

// EntryType distinguishes groups from the various leaf kinds.
type EntryType string

const (
	EntryTypeGroup       EntryType = "group"
	EntryTypeVector      EntryType = "vector"
	EntryTypeVectorTile  EntryType = "vector-tile"
	EntryTypeRasterTile  EntryType = "raster-tile"
	EntryTypeRasterImage EntryType = "raster-image"
	EntryTypeGeoCore     EntryType = "geocore"
)

// DefaultEntryType returns the leaf entry type a layer type produces.
func DefaultEntryType(t LayerType) EntryType {
	switch t {
	case LayerTypeEsriFeature, LayerTypeGeoJSON, LayerTypeGeoPackage, LayerTypeOGCFeature,
		LayerTypeWFS, LayerTypeCSV, LayerTypeWKB:
		return EntryTypeVector
	case LayerTypeVectorTiles:
		return EntryTypeVectorTile
	case LayerTypeXYZTiles:
		return EntryTypeRasterTile
	case LayerTypeGeoCore:
		return EntryTypeGeoCore
	default:
		return EntryTypeRasterImage
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
