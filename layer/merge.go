package layer

import (
	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layering"
)

// mergeEntryMetadata folds service metadata into a leaf. Metadata is the base
// and the entry's explicit settings win, except for scale bounds where the
// narrower range is kept: the larger min scale and the smaller max scale.
func mergeEntryMetadata(entry *geoview.LayerEntryConfig, md *Metadata, meta *MetadataEntry) {
	if entry.LayerName == "" {
		entry.LayerName = meta.Name
	}

	base := &geoview.Source{Projection: md.Projection}
	if format, ok := md.Source["format"].(string); ok {
		base.Format = format
	}
	if len(md.Source) > 0 {
		base.Extra = md.Source
	}
	entry.Source = layering.MergeLayers(entry.Source, base)

	user := entry.InitialSettings
	metaSettings := &geoview.InitialSettings{
		Extent:   meta.Extent,
		MinScale: meta.MinScale,
		MaxScale: meta.MaxScale,
	}
	merged := layering.MergeLayers(user, metaSettings)
	if user != nil {
		merged.MinScale = maxScale(user.MinScale, meta.MinScale)
		merged.MaxScale = minScale(user.MaxScale, meta.MaxScale)
	}
	entry.InitialSettings = merged

	if len(meta.Style) > 0 {
		entry.LayerStyle = layering.MergeLayers(entry.LayerStyle, meta.Style)
	}
}

// substituteAsset points the leaf at its own file when its data path still
// names the parent access path and the metadata publishes an asset for it.
func substituteAsset(entry *geoview.LayerEntryConfig, md *Metadata) {
	root := entry.Root()
	if root == nil || entry.Source == nil {
		return
	}
	if path := entry.Source.DataAccessPath; path != "" && path != root.MetadataAccessPath {
		return
	}
	if asset, ok := md.Assets[entry.LayerID]; ok && asset.Href != "" {
		entry.Source.DataAccessPath = asset.Href
	}
}

func maxScale(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return geoview.Float(*b)
	case b == nil:
		return geoview.Float(*a)
	case *a >= *b:
		return geoview.Float(*a)
	default:
		return geoview.Float(*b)
	}
}

func minScale(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return geoview.Float(*b)
	case b == nil:
		return geoview.Float(*a)
	case *a <= *b:
		return geoview.Float(*a)
	default:
		return geoview.Float(*b)
	}
}
