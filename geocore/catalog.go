package geocore

import (
	"fmt"
	"strconv"
	"strings"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
)

// KeyPrefix is the catalog's namespace for record keys.
const KeyPrefix = "rcs"

// RecordKey builds the composite key the catalog reports for one id.
func RecordKey(id, lang string) string {
	return KeyPrefix + "." + id + "." + lang
}

// catalogResponse is the body of GET {base}/vcs.
type catalogResponse struct {
	Response struct {
		RCS map[string][]RecordEntry `json:"rcs"`
		GCS []OverrideEntry          `json:"gcs,omitempty"`
	} `json:"response"`
}

// RecordEntry is one catalog record for one language.
type RecordEntry struct {
	Key    string         `json:"key"`
	Layers []CatalogLayer `json:"layers"`
}

// CatalogLayer describes the service behind a record.
type CatalogLayer struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	URL          string         `json:"url"`
	ServerType   string         `json:"serverType"`
	IsTimeAware  *bool          `json:"isTimeAware,omitempty"`
	LayerEntries []CatalogEntry `json:"layerEntries,omitempty"`
}

// CatalogEntry names one sub-layer. ESRI services address sub-layers by
// numeric index, everything else by id.
type CatalogEntry struct {
	Index *int   `json:"index,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// OverrideEntry maps a record id to per-language partial layer configs that
// are deep merged into the generated layer.
type OverrideEntry map[string]map[string]map[string]any

func (e CatalogEntry) layerID(byIndex bool) string {
	if byIndex && e.Index != nil {
		return strconv.Itoa(*e.Index)
	}
	if e.ID != "" {
		return e.ID
	}
	if e.Index != nil {
		return strconv.Itoa(*e.Index)
	}
	return ""
}

// shapeFor picks the concrete layer type for a catalog layer. A FeatureServer
// URL is always an ESRI feature layer whatever the catalog reports.
func shapeFor(layer CatalogLayer) (geoview.LayerType, error) {
	if strings.Contains(layer.URL, "FeatureServer") {
		return geoview.LayerTypeEsriFeature, nil
	}
	reported := strings.TrimSpace(layer.ServerType)
	for _, t := range catalogShapes {
		if strings.EqualFold(string(t), reported) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported catalog server type %q", layer.ServerType)
}

var catalogShapes = []geoview.LayerType{
	geoview.LayerTypeEsriDynamic,
	geoview.LayerTypeEsriFeature,
	geoview.LayerTypeEsriImage,
	geoview.LayerTypeImageStatic,
	geoview.LayerTypeGeoJSON,
	geoview.LayerTypeGeoPackage,
	geoview.LayerTypeGeoTIFF,
	geoview.LayerTypeXYZTiles,
	geoview.LayerTypeVectorTiles,
	geoview.LayerTypeOGCFeature,
	geoview.LayerTypeWFS,
	geoview.LayerTypeWMS,
	geoview.LayerTypeCSV,
	geoview.LayerTypeWKB,
}

func indexedEntries(t geoview.LayerType) bool {
	switch t {
	case geoview.LayerTypeEsriDynamic, geoview.LayerTypeEsriFeature, geoview.LayerTypeEsriImage:
		return true
	default:
		return false
	}
}

// buildLayer turns a catalog record into a concrete layer config keyed by the
// original GeoCore id.
func buildLayer(id string, record RecordEntry) (*geoview.GeoviewLayerConfig, error) {
	if len(record.Layers) == 0 {
		return nil, fmt.Errorf("record %s has no layers", record.Key)
	}
	src := record.Layers[0]
	shape, err := shapeFor(src)
	if err != nil {
		return nil, err
	}
	cfg := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     id,
		GeoviewLayerName:   src.Name,
		GeoviewLayerType:   shape,
		MetadataAccessPath: src.URL,
		IsGeocore:          true,
	}
	if src.IsTimeAware != nil {
		cfg.IsTimeAware = geoview.Bool(*src.IsTimeAware)
	}
	byIndex := indexedEntries(shape)
	for _, entry := range src.LayerEntries {
		layerID := entry.layerID(byIndex)
		if layerID == "" {
			continue
		}
		cfg.ListOfLayerEntryConfig = append(cfg.ListOfLayerEntryConfig, &geoview.LayerEntryConfig{
			LayerID:   layerID,
			LayerName: entry.Name,
		})
	}
	return cfg, nil
}

// overridesFor collects the override blocks for one id and language.
func overridesFor(entries []OverrideEntry, id, lang string) []map[string]any {
	var out []map[string]any
	for _, entry := range entries {
		perLang, ok := entry[id]
		if !ok {
			continue
		}
		if block, ok := perLang[lang]; ok && block != nil {
			out = append(out, block)
		}
	}
	return out
}
