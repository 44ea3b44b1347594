package layer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
)

const geotiffLogPrefix = "layer:geotiff"

// ProbeTimeout bounds the detached projection probe of a GeoTIFF file.
const ProbeTimeout = 20 * time.Second

// HeaderPrefixSize is how much of a GeoTIFF file is read to find its GeoKey
// directory. Cloud optimized files keep the first IFD and its tags at the
// front.
const HeaderPrefixSize = 256 << 10

// metadataExtensions mark an access path as a metadata document rather than
// a raw raster file.
var metadataExtensions = map[string]struct{}{".meta": {}, ".json": {}}

// GeoTIFFAdapter loads single-file rasters and raster collections described
// by a JSON metadata document.
type GeoTIFFAdapter struct {
	env    Env
	logger *slog.Logger
}

// NewGeoTIFFAdapter is the registry factory for GeoTIFF layers.
func NewGeoTIFFAdapter(env Env) Adapter {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeoTIFFAdapter{env: env, logger: logger}
}

func (a *GeoTIFFAdapter) Type() geoview.LayerType { return geoview.LayerTypeGeoTIFF }

// InitEntries synthesizes the single leaf of a raw file. A metadata document
// must be accompanied by the entries to load from it.
func (a *GeoTIFFAdapter) InitEntries(layer *geoview.GeoviewLayerConfig) error {
	if len(layer.ListOfLayerEntryConfig) == 0 {
		if a.ExpectsMetadata(layer) {
			return fmt.Errorf("geotiff: %s: metadata document needs listOfLayerEntryConfig", layer.GeoviewLayerID)
		}
		file := fileName(layer.MetadataAccessPath)
		if file == "" {
			return fmt.Errorf("geotiff: %s: metadataAccessPath names no file", layer.GeoviewLayerID)
		}
		layer.ListOfLayerEntryConfig = []*geoview.LayerEntryConfig{{
			LayerID:   strings.TrimSuffix(file, path.Ext(file)),
			LayerName: file,
			EntryType: geoview.EntryTypeRasterImage,
		}}
	}
	defaultDataPaths(layer.ListOfLayerEntryConfig, layer.MetadataAccessPath)
	return nil
}

// ExpectsMetadata is true when the access path names a metadata document.
func (a *GeoTIFFAdapter) ExpectsMetadata(layer *geoview.GeoviewLayerConfig) bool {
	return isMetadataDocument(layer.MetadataAccessPath)
}

func (a *GeoTIFFAdapter) MetadataRequired() bool { return false }

type geotiffDocument struct {
	Title      string                  `json:"title"`
	Projection int                     `json:"projection"`
	Source     map[string]any          `json:"source"`
	Layers     []*geotiffDocumentEntry `json:"layers"`
	Assets     map[string]Asset        `json:"assets"`
}

type geotiffDocumentEntry struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	MinScale *float64                `json:"minScale"`
	MaxScale *float64                `json:"maxScale"`
	Extent   []float64               `json:"extent"`
	Style    map[string]any          `json:"style"`
	Layers   []*geotiffDocumentEntry `json:"layers"`
}

// FetchMetadata downloads the document as raw bytes and parses it as JSON.
// Relative asset hrefs are resolved against the document location.
func (a *GeoTIFFAdapter) FetchMetadata(ctx context.Context, layer *geoview.GeoviewLayerConfig) (*Metadata, error) {
	body, err := a.env.Fetcher.FetchBlob(ctx, layer.MetadataAccessPath, a.env.MetadataOptions...)
	if err != nil {
		return nil, err
	}
	var doc geotiffDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("geotiff: parse metadata %s: %w", layer.MetadataAccessPath, err)
	}
	md := &Metadata{
		Title:      doc.Title,
		Projection: doc.Projection,
		Entries:    convertDocumentEntries(doc.Layers),
		Source:     doc.Source,
		Assets:     make(map[string]Asset, len(doc.Assets)),
	}
	base, baseErr := url.Parse(layer.MetadataAccessPath)
	for id, asset := range doc.Assets {
		if baseErr == nil && asset.Href != "" {
			if ref, err := url.Parse(asset.Href); err == nil {
				asset.Href = base.ResolveReference(ref).String()
			}
		}
		md.Assets[id] = asset
	}
	return md, nil
}

func convertDocumentEntries(in []*geotiffDocumentEntry) []*MetadataEntry {
	if len(in) == 0 {
		return nil
	}
	out := make([]*MetadataEntry, 0, len(in))
	for _, e := range in {
		if e == nil {
			continue
		}
		out = append(out, &MetadataEntry{
			ID:       e.ID,
			Name:     e.Name,
			MinScale: e.MinScale,
			MaxScale: e.MaxScale,
			Extent:   e.Extent,
			Style:    e.Style,
			Children: convertDocumentEntries(e.Layers),
		})
	}
	return out
}

func (a *GeoTIFFAdapter) ValidateEntry(entry *geoview.LayerEntryConfig, md *Metadata) error {
	_, err := validateEntry(entry, md)
	return err
}

func (a *GeoTIFFAdapter) MergeMetadata(entry *geoview.LayerEntryConfig, md *Metadata) error {
	meta, err := validateEntry(entry, md)
	if err != nil {
		return err
	}
	mergeEntryMetadata(entry, md, meta)
	substituteAsset(entry, md)
	return nil
}

// BuildRenderer describes the raster file. The file's embedded projection is
// read by a detached probe that registers it once known.
func (a *GeoTIFFAdapter) BuildRenderer(ctx context.Context, entry *geoview.LayerEntryConfig) (*Renderer, error) {
	r := newRenderer(entry, geoview.LayerTypeGeoTIFF)
	if r.URL == "" || isMetadataDocument(r.URL) {
		return nil, fmt.Errorf("geotiff: %s: no raster file for leaf", r.LayerPath)
	}
	r.Format = "GeoTIFF"
	if a.env.Detach != nil && a.env.Fetcher != nil && a.env.Projections != nil {
		probeCtx := context.WithoutCancel(ctx)
		fileURL, layerPath := r.URL, r.LayerPath
		a.env.Detach(func() { a.probeProjection(probeCtx, fileURL, layerPath) })
	}
	return r, nil
}

func (a *GeoTIFFAdapter) probeProjection(ctx context.Context, fileURL, layerPath string) {
	data, err := a.env.Fetcher.FetchBlob(ctx, fileURL, fetch.Timeout(ProbeTimeout), fetch.Prefix(HeaderPrefixSize))
	if err != nil {
		a.logger.Warn(fmt.Sprintf("%s - %s: projection probe failed: %v", geotiffLogPrefix, layerPath, err))
		return
	}
	code, err := ProbeProjection(data)
	if err != nil {
		if !errors.Is(err, ErrNoProjection) {
			a.logger.Warn(fmt.Sprintf("%s - %s: projection probe failed: %v", geotiffLogPrefix, layerPath, err))
		}
		return
	}
	if a.env.Projections.Register(code) {
		a.logger.Info(fmt.Sprintf("%s - %s: registered projection EPSG:%d", geotiffLogPrefix, layerPath, code))
	}
}

func isMetadataDocument(accessPath string) bool {
	_, ok := metadataExtensions[strings.ToLower(path.Ext(urlPath(accessPath)))]
	return ok
}

func fileName(accessPath string) string {
	base := path.Base(urlPath(accessPath))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func urlPath(accessPath string) string {
	if u, err := url.Parse(accessPath); err == nil {
		return u.Path
	}
	return accessPath
}
