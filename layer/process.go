package layer

import (
	"context"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
)

// ProcessGeoviewLayerConfig builds a layer of type t with one leaf per entry
// id and loads it. It is the shortcut for callers that already know which
// sub-layers they want.
func (o *Orchestrator) ProcessGeoviewLayerConfig(ctx context.Context, t geoview.LayerType, id, name, accessPath string, entryIDs []string, isTimeAware bool) (*Result, error) {
	layer := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     id,
		GeoviewLayerName:   name,
		GeoviewLayerType:   t,
		MetadataAccessPath: accessPath,
		IsTimeAware:        geoview.Bool(isTimeAware),
	}
	if layer.GeoviewLayerID == "" {
		geoview.AssignLayerIDs([]*geoview.GeoviewLayerConfig{layer})
	}
	for _, entryID := range entryIDs {
		if entryID == "" {
			continue
		}
		layer.ListOfLayerEntryConfig = append(layer.ListOfLayerEntryConfig, &geoview.LayerEntryConfig{LayerID: entryID})
	}
	return o.Load(ctx, layer)
}
