package layer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
)

// EsriDynamicAdapter loads sub-layers of an ArcGIS MapServer rendered
// server side through its export endpoint.
type EsriDynamicAdapter struct {
	env    Env
	logger *slog.Logger
}

// NewEsriDynamicAdapter is the registry factory for esriDynamic layers.
func NewEsriDynamicAdapter(env Env) Adapter {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EsriDynamicAdapter{env: env, logger: logger}
}

func (a *EsriDynamicAdapter) Type() geoview.LayerType { return geoview.LayerTypeEsriDynamic }

// InitEntries requires the caller to name the sub-layers to draw.
func (a *EsriDynamicAdapter) InitEntries(layer *geoview.GeoviewLayerConfig) error {
	if len(layer.ListOfLayerEntryConfig) == 0 {
		return fmt.Errorf("esri: %s: listOfLayerEntryConfig is required", layer.GeoviewLayerID)
	}
	defaultDataPaths(layer.ListOfLayerEntryConfig, strings.TrimRight(layer.MetadataAccessPath, "/"))
	return nil
}

func (a *EsriDynamicAdapter) ExpectsMetadata(*geoview.GeoviewLayerConfig) bool { return true }

// MetadataRequired is true: sub-layer ids cannot be checked without the
// service description.
func (a *EsriDynamicAdapter) MetadataRequired() bool { return true }

type esriService struct {
	MapName          string        `json:"mapName"`
	Description      string        `json:"serviceDescription"`
	Layers           []esriLayer   `json:"layers"`
	SpatialReference *esriSpatial  `json:"spatialReference"`
	Error            *esriAPIError `json:"error"`
}

type esriLayer struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	ParentLayerID *int        `json:"parentLayerId"`
	MinScale      float64     `json:"minScale"`
	MaxScale      float64     `json:"maxScale"`
	Extent        *esriExtent `json:"extent"`
}

type esriExtent struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

type esriSpatial struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

type esriAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FetchMetadata reads the service description and rebuilds the sub-layer
// tree from parentLayerId links.
func (a *EsriDynamicAdapter) FetchMetadata(ctx context.Context, layer *geoview.GeoviewLayerConfig) (*Metadata, error) {
	serviceURL := strings.TrimRight(layer.MetadataAccessPath, "/")
	if serviceURL == "" {
		return nil, errors.New("esri: metadataAccessPath is empty")
	}
	var svc esriService
	if err := a.env.Fetcher.FetchJSON(ctx, serviceURL, &svc, append([]fetch.CallOption{fetch.Query("f", "json")}, a.env.MetadataOptions...)...); err != nil {
		return nil, err
	}
	if svc.Error != nil && svc.Error.Message != "" {
		return nil, geoview.NewRemoteError("esri service", serviceURL,
			fmt.Errorf("code %d: %s", svc.Error.Code, svc.Error.Message))
	}

	md := &Metadata{Title: svc.MapName}
	if sr := svc.SpatialReference; sr != nil {
		md.Projection = sr.LatestWKID
		if md.Projection == 0 {
			md.Projection = sr.WKID
		}
	}
	md.Entries = esriTree(svc.Layers)
	return md, nil
}

func esriTree(layers []esriLayer) []*MetadataEntry {
	nodes := make(map[int]*MetadataEntry, len(layers))
	for _, l := range layers {
		node := &MetadataEntry{
			ID:       strconv.Itoa(l.ID),
			Name:     l.Name,
			MinScale: esriScale(l.MinScale),
			MaxScale: esriScale(l.MaxScale),
		}
		if e := l.Extent; e != nil {
			node.Extent = []float64{e.XMin, e.YMin, e.XMax, e.YMax}
		}
		nodes[l.ID] = node
	}
	var roots []*MetadataEntry
	for _, l := range layers {
		node := nodes[l.ID]
		if l.ParentLayerID != nil && *l.ParentLayerID >= 0 {
			if parent, ok := nodes[*l.ParentLayerID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// esriScale maps the service's "no limit" zero to nil.
func esriScale(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return geoview.Float(v)
}

func (a *EsriDynamicAdapter) ValidateEntry(entry *geoview.LayerEntryConfig, md *Metadata) error {
	_, err := validateEntry(entry, md)
	return err
}

func (a *EsriDynamicAdapter) MergeMetadata(entry *geoview.LayerEntryConfig, md *Metadata) error {
	meta, err := validateEntry(entry, md)
	if err != nil {
		return err
	}
	mergeEntryMetadata(entry, md, meta)
	return nil
}

// BuildRenderer targets the service's export endpoint with the leaf shown.
func (a *EsriDynamicAdapter) BuildRenderer(_ context.Context, entry *geoview.LayerEntryConfig) (*Renderer, error) {
	r := newRenderer(entry, geoview.LayerTypeEsriDynamic)
	base := strings.TrimRight(r.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("esri: %s: no service url", r.LayerPath)
	}
	r.URL = base + "/export"
	r.Format = "image/png"
	r.Params["layers"] = "show:" + entry.LayerID
	r.Params["format"] = "png32"
	r.Params["transparent"] = "true"
	r.Params["f"] = "image"
	if r.Projection != 0 {
		r.Params["imageSR"] = strconv.Itoa(r.Projection)
	}
	return r, nil
}
