package layer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
)

// Fetcher is the slice of the fetch gateway adapters use.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string, out any, opts ...fetch.CallOption) error
	FetchBlob(ctx context.Context, rawURL string, opts ...fetch.CallOption) ([]byte, error)
}

// Adapter implements the per-type steps of the load lifecycle. The
// orchestrator calls them strictly in order: InitEntries, FetchMetadata
// (only when ExpectsMetadata), then ValidateEntry, MergeMetadata and
// BuildRenderer once per leaf.
type Adapter interface {
	Type() geoview.LayerType
	InitEntries(layer *geoview.GeoviewLayerConfig) error
	ExpectsMetadata(layer *geoview.GeoviewLayerConfig) bool
	MetadataRequired() bool
	FetchMetadata(ctx context.Context, layer *geoview.GeoviewLayerConfig) (*Metadata, error)
	ValidateEntry(entry *geoview.LayerEntryConfig, md *Metadata) error
	MergeMetadata(entry *geoview.LayerEntryConfig, md *Metadata) error
	BuildRenderer(ctx context.Context, entry *geoview.LayerEntryConfig) (*Renderer, error)
}

// Renderer is the renderer-facing description of one loaded leaf. It is
// handed off as is; drawing it is someone else's job.
type Renderer struct {
	LayerPath  string
	LayerType  geoview.LayerType
	Name       string
	URL        string
	Format     string
	Projection int
	Params     map[string]string
	MinScale   *float64
	MaxScale   *float64
	Visible    *bool
	Opacity    *float64
}

// Env carries the shared services an adapter factory may need.
type Env struct {
	Fetcher     Fetcher
	Logger      *slog.Logger
	Projections *ProjectionRegistry
	// MetadataOptions are passed to every service metadata fetch.
	MetadataOptions []fetch.CallOption
	// Detach runs fn outside the load, without blocking it.
	Detach func(fn func())
}

// Factory builds an adapter for one load.
type Factory func(env Env) Adapter

// Registry dispatches layer types to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[geoview.LayerType]Factory
}

// NewRegistry returns a registry with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{factories: map[geoview.LayerType]Factory{}}
	r.Register(geoview.LayerTypeGeoTIFF, NewGeoTIFFAdapter)
	r.Register(geoview.LayerTypeEsriDynamic, NewEsriDynamicAdapter)
	return r
}

// Register adds or replaces the factory for t.
func (r *Registry) Register(t geoview.LayerType, factory Factory) {
	if factory == nil {
		return
	}
	r.mu.Lock()
	r.factories[t] = factory
	r.mu.Unlock()
}

// Adapter returns a fresh adapter for t.
func (r *Registry) Adapter(t geoview.LayerType, env Env) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLayerType, t)
	}
	return factory(env), nil
}

// Types lists the registered layer types.
func (r *Registry) Types() []geoview.LayerType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]geoview.LayerType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// newRenderer fills the fields every adapter shares from a merged leaf.
func newRenderer(entry *geoview.LayerEntryConfig, t geoview.LayerType) *Renderer {
	r := &Renderer{
		LayerPath: entry.LayerPath(),
		LayerType: t,
		Name:      entry.LayerName,
		Params:    map[string]string{},
	}
	if entry.Source != nil {
		r.URL = entry.Source.DataAccessPath
		r.Format = entry.Source.Format
		r.Projection = entry.Source.Projection
	}
	if s := entry.InitialSettings; s != nil {
		r.MinScale = s.MinScale
		r.MaxScale = s.MaxScale
		if s.States != nil {
			r.Visible = s.States.Visible
			r.Opacity = s.States.Opacity
		}
	}
	return r
}

// defaultDataPaths points every leaf without a data path at the layer's
// access path, recursing into entries that own children.
func defaultDataPaths(entries []*geoview.LayerEntryConfig, accessPath string) {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if len(entry.ListOfLayerEntryConfig) > 0 || entry.IsGroup() {
			defaultDataPaths(entry.ListOfLayerEntryConfig, accessPath)
			continue
		}
		if entry.Source == nil {
			entry.Source = &geoview.Source{}
		}
		if entry.Source.DataAccessPath == "" {
			entry.Source.DataAccessPath = accessPath
		}
	}
}

// validateEntry confirms the leaf's id exists somewhere in the metadata tree.
func validateEntry(entry *geoview.LayerEntryConfig, md *Metadata) (*MetadataEntry, error) {
	meta := FindMetadataEntry(md.Entries, entry.LayerID)
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrLayerIDNotFound, entry.LayerPath())
	}
	return meta, nil
}
