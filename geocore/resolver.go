// Package geocore resolves GeoCore placeholder layers, which name a catalog
// record by UUID, into concrete layer configurations. All ids missing from the
// cache go to the catalog in a single batch request.
package geocore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/internal/hydrate"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layering"
)

const logPrefix = "geocore:resolve"

var (
	// ErrCatalogEmpty reports a catalog response without records for the
	// requested language. It indicates a misconfigured catalog, not an empty
	// result.
	ErrCatalogEmpty = errors.New("geocore: catalog returned no records")
	// ErrNoBaseURL reports a resolver built without a catalog URL.
	ErrNoBaseURL = errors.New("geocore: catalog base url is required")
)

// Fetcher is the slice of the fetch gateway the resolver needs.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string, out any, opts ...fetch.CallOption) error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFetcher replaces the default fetch client.
func WithFetcher(f Fetcher) Option {
	return func(r *Resolver) {
		if f != nil {
			r.fetcher = f
		}
	}
}

// WithCache shares resolved records across resolutions.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithCacheTTL ignores cached records older than ttl. Zero keeps them forever.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger unresolved ids are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver rewrites GeoCore placeholders in a layer list.
type Resolver struct {
	baseURL string
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver builds a resolver for the catalog at baseURL.
func NewResolver(baseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.fetcher == nil {
		r.fetcher = fetch.New(fetch.WithLogger(r.logger))
	}
	return r
}

// ResolveRaw accepts a loosely-typed layer list. A nil list is returned as is;
// anything that is not a list is a shape error.
func (r *Resolver) ResolveRaw(ctx context.Context, lang string, raw any) ([]*geoview.GeoviewLayerConfig, error) {
	switch list := raw.(type) {
	case nil:
		return nil, nil
	case []*geoview.GeoviewLayerConfig:
		return r.Resolve(ctx, lang, list), nil
	case []any:
		decoder := hydrate.NewDecoder[geoview.GeoviewLayerConfig]()
		layers := make([]*geoview.GeoviewLayerConfig, 0, len(list))
		for i, item := range list {
			payload, ok := item.(map[string]any)
			if !ok {
				return nil, geoview.NewShapeError("resolve geocore layers", fmt.Sprintf("listOfGeoviewLayerConfig[%d]", i), fmt.Errorf("expected an object, got %T", item))
			}
			layer, err := decoder.Decode(hydrate.Context{Source: "geocore layer"}, payload)
			if err != nil {
				return nil, geoview.NewShapeError("resolve geocore layers", fmt.Sprintf("listOfGeoviewLayerConfig[%d]", i), err)
			}
			layers = append(layers, &layer)
		}
		return r.Resolve(ctx, lang, layers), nil
	default:
		return nil, geoview.NewShapeError("resolve geocore layers", "listOfGeoviewLayerConfig", fmt.Errorf("expected a list, got %T", raw))
	}
}

// Resolve returns a new list where every GeoCore placeholder with a catalog
// match is replaced in place by its concrete layer. Unmatched placeholders
// are left untouched; see Unresolved and DropUnresolved. Failures are logged,
// never returned, so one bad id cannot block the others.
func (r *Resolver) Resolve(ctx context.Context, lang string, layers []*geoview.GeoviewLayerConfig) []*geoview.GeoviewLayerConfig {
	if len(layers) == 0 {
		return layers
	}

	ids := r.placeholderIDs(layers)
	if len(ids) == 0 {
		return append([]*geoview.GeoviewLayerConfig(nil), layers...)
	}

	resolved := map[string]*geoview.GeoviewLayerConfig{}
	var pending []string
	for _, id := range ids {
		if cfg, ok := r.cached(ctx, id, lang); ok {
			resolved[id] = cfg
			continue
		}
		pending = append(pending, id)
	}

	if len(pending) > 0 {
		fetched, err := r.Fetch(ctx, lang, pending)
		if err != nil {
			r.logger.Warn(fmt.Sprintf("%s - catalog request for %d ids failed: %v", logPrefix, len(pending), err))
		}
		for id, cfg := range fetched {
			resolved[id] = cfg
			r.store(ctx, id, lang, cfg)
		}
	}

	out := make([]*geoview.GeoviewLayerConfig, len(layers))
	for i, layer := range layers {
		out[i] = layer
		if !isPlaceholder(layer) {
			continue
		}
		match, ok := resolved[strings.TrimSpace(layer.GeoviewLayerID)]
		if !ok {
			continue
		}
		cfg := layering.Clone(match)
		applyUserIntent(cfg, layer)
		if err := geoview.CheckTree(cfg); err != nil {
			r.logger.Warn(fmt.Sprintf("%s - %s left unresolved: %v", logPrefix, layer.GeoviewLayerID, err))
			continue
		}
		out[i] = cfg
	}
	return out
}

// Fetch issues one catalog request for ids and returns the concrete layer for
// every id the catalog matched. Ids missing from the response are logged and
// left out of the map.
func (r *Resolver) Fetch(ctx context.Context, lang string, ids []string) (map[string]*geoview.GeoviewLayerConfig, error) {
	if r.baseURL == "" {
		return nil, geoview.NewRemoteError("fetch catalog", "", ErrNoBaseURL)
	}
	if len(ids) == 0 {
		return map[string]*geoview.GeoviewLayerConfig{}, nil
	}

	var resp catalogResponse
	endpoint := r.baseURL + "/vcs"
	err := r.fetcher.FetchJSON(ctx, endpoint, &resp,
		fetch.Query("lang", lang),
		fetch.Query("id", strings.Join(ids, ",")),
	)
	if err != nil {
		return nil, geoview.NewRemoteError("fetch catalog", endpoint, err)
	}

	records := resp.Response.RCS[lang]
	if len(records) == 0 {
		return nil, geoview.NewRemoteError("fetch catalog", endpoint, fmt.Errorf("%w for language %q", ErrCatalogEmpty, lang))
	}
	byKey := make(map[string]RecordEntry, len(records))
	for _, record := range records {
		byKey[record.Key] = record
	}

	out := make(map[string]*geoview.GeoviewLayerConfig, len(ids))
	for _, id := range ids {
		record, ok := byKey[RecordKey(id, lang)]
		if !ok {
			r.logger.Warn(fmt.Sprintf("%s - %s not found in catalog", logPrefix, id))
			continue
		}
		cfg, err := buildLayer(id, record)
		if err != nil {
			r.logger.Warn(fmt.Sprintf("%s - %s: %v", logPrefix, id, err))
			continue
		}
		if cfg.GeoviewLayerType == geoview.LayerTypeWMS {
			merged, err := applyOverrides(cfg, overridesFor(resp.Response.GCS, id, lang))
			if err != nil {
				r.logger.Warn(fmt.Sprintf("%s - %s overrides ignored: %v", logPrefix, id, err))
			} else {
				cfg = merged
			}
		}
		out[id] = cfg
	}
	return out, nil
}

func (r *Resolver) placeholderIDs(layers []*geoview.GeoviewLayerConfig) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, layer := range layers {
		if !isPlaceholder(layer) {
			continue
		}
		id := strings.TrimSpace(layer.GeoviewLayerID)
		if _, err := uuid.Parse(id); err != nil {
			r.logger.Warn(fmt.Sprintf("%s - %q is not a catalog id", logPrefix, id))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (r *Resolver) cached(ctx context.Context, id, lang string) (*geoview.GeoviewLayerConfig, bool) {
	if r.cache == nil {
		return nil, false
	}
	record, ok, err := r.cache.Load(ctx, id, lang)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("%s - cache load %s: %v", logPrefix, id, err))
		return nil, false
	}
	if !ok || (r.ttl > 0 && r.now().Sub(record.FetchedAt) > r.ttl) {
		return nil, false
	}
	var cfg geoview.GeoviewLayerConfig
	if err := json.Unmarshal(record.Config, &cfg); err != nil {
		r.logger.Warn(fmt.Sprintf("%s - cached record %s unreadable: %v", logPrefix, id, err))
		return nil, false
	}
	return &cfg, true
}

func (r *Resolver) store(ctx context.Context, id, lang string, cfg *geoview.GeoviewLayerConfig) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := r.cache.Save(ctx, Record{ID: id, Lang: lang, Config: raw, FetchedAt: r.now()}); err != nil {
		r.logger.Warn(fmt.Sprintf("%s - cache save %s: %v", logPrefix, id, err))
	}
}

// applyOverrides deep merges catalog override blocks over the generated layer.
// The id, type and GeoCore marker always come from the catalog record.
func applyOverrides(cfg *geoview.GeoviewLayerConfig, blocks []map[string]any) (*geoview.GeoviewLayerConfig, error) {
	if len(blocks) == 0 {
		return cfg, nil
	}
	payload, err := hydrate.ToPayload(cfg)
	if err != nil {
		return nil, err
	}
	for _, block := range blocks {
		payload = layering.MergeLayers(block, payload)
	}
	merged, err := hydrate.NewDecoder[geoview.GeoviewLayerConfig]().Decode(hydrate.Context{Source: "geocore override"}, payload)
	if err != nil {
		return nil, err
	}
	merged.GeoviewLayerID = cfg.GeoviewLayerID
	merged.GeoviewLayerType = cfg.GeoviewLayerType
	merged.IsGeocore = true
	return &merged, nil
}

// applyUserIntent lets the placeholder's own settings win over the catalog.
func applyUserIntent(cfg, placeholder *geoview.GeoviewLayerConfig) {
	if name := strings.TrimSpace(placeholder.GeoviewLayerName); name != "" {
		cfg.GeoviewLayerName = name
	}
	if len(placeholder.ListOfLayerEntryConfig) > 0 {
		entries := make([]*geoview.LayerEntryConfig, 0, len(placeholder.ListOfLayerEntryConfig))
		for _, entry := range placeholder.ListOfLayerEntryConfig {
			entries = append(entries, geoview.CloneEntry(entry))
		}
		cfg.ListOfLayerEntryConfig = entries
	}
	if placeholder.InitialSettings != nil {
		cfg.InitialSettings = placeholder.InitialSettings.Clone()
	}
	if placeholder.IsTimeAware != nil {
		cfg.IsTimeAware = geoview.Bool(*placeholder.IsTimeAware)
	}
	// Entries typed against the placeholder are retyped by the tree check.
	for _, entry := range cfg.ListOfLayerEntryConfig {
		if entry != nil && entry.EntryType == geoview.EntryTypeGeoCore {
			entry.EntryType = ""
		}
	}
}

func isPlaceholder(layer *geoview.GeoviewLayerConfig) bool {
	return layer != nil && layer.GeoviewLayerType == geoview.LayerTypeGeoCore
}

// Unresolved lists the ids of placeholders still present in layers.
func Unresolved(layers []*geoview.GeoviewLayerConfig) []string {
	var ids []string
	for _, layer := range layers {
		if isPlaceholder(layer) {
			ids = append(ids, layer.GeoviewLayerID)
		}
	}
	return ids
}

// DropUnresolved removes remaining placeholders, returning the kept layers
// and the dropped ids.
func DropUnresolved(layers []*geoview.GeoviewLayerConfig) ([]*geoview.GeoviewLayerConfig, []string) {
	kept := make([]*geoview.GeoviewLayerConfig, 0, len(layers))
	var dropped []string
	for _, layer := range layers {
		if isPlaceholder(layer) {
			dropped = append(dropped, layer.GeoviewLayerID)
			continue
		}
		kept = append(kept, layer)
	}
	return kept, dropped
}
