// Package configapi is the entry point host applications use to turn user
// input into map and layer configurations. Every call returns something
// usable: malformed input degrades to defaults with ErrorDetected set, and a
// layer that cannot be built comes back as nil.
package configapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/defaults"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/geocore"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/internal/hydrate"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/internal/jsonc"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layering"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/pkg/activity"
)

const logPrefix = "configapi:api"

// Option configures an API.
type Option func(*API)

// WithLogger sets the façade logger. It is also handed to the default
// resolver when none is supplied.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDefaultsResolver replaces the default/schema resolver.
func WithDefaultsResolver(r *defaults.Resolver) Option {
	return func(a *API) {
		a.defaults = r
	}
}

// WithGeocore enables GeoCore placeholder resolution.
func WithGeocore(r *geocore.Resolver) Option {
	return func(a *API) {
		a.geocore = r
	}
}

// WithFetcher sets the fetch client handed to layer orchestrators.
func WithFetcher(c *fetch.Client) Option {
	return func(a *API) {
		a.fetcher = c
	}
}

// WithEmitter sets the debug sink.
func WithEmitter(e *activity.Emitter) Option {
	return func(a *API) {
		a.emitter = e
	}
}

// WithHooks builds an enabled emitter from hooks.
func WithHooks(hooks ...activity.ActivityHook) Option {
	return func(a *API) {
		a.emitter = activity.NewEmitter(activity.Hooks(hooks), activity.Config{Enabled: true})
	}
}

// WithLanguage sets the language used when a call passes none.
func WithLanguage(lang string) Option {
	return func(a *API) {
		if defaults.SupportedLanguage(lang) {
			a.language = lang
		}
	}
}

// API creates configurations.
type API struct {
	logger   *slog.Logger
	defaults *defaults.Resolver
	geocore  *geocore.Resolver
	fetcher  *fetch.Client
	emitter  *activity.Emitter
	language string
}

// New builds an API. Without WithGeocore, GeoCore placeholders are dropped.
func New(opts ...Option) (*API, error) {
	a := &API{logger: slog.Default(), language: defaults.DefaultLanguage}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.defaults == nil {
		r, err := defaults.NewResolver(defaults.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("configapi: %w", err)
		}
		a.defaults = r
	}
	return a, nil
}

// Emitter returns the debug sink, which may be nil.
func (a *API) Emitter() *activity.Emitter {
	return a.emitter
}

// GetDefaultMapFeatureConfig returns the complete default configuration.
// Every supported language shares the same defaults.
func (a *API) GetDefaultMapFeatureConfig(lang string) geoview.MapFeatureConfig {
	if !defaults.SupportedLanguage(lang) {
		a.logger.Warn(fmt.Sprintf("%s - language %q is not supported, using %s", logPrefix, lang, a.language))
	}
	return defaults.MapFeatureConfig(defaults.DefaultProjection)
}

// CreateMapConfig resolves input into a complete map configuration. input
// may be a JSON-with-comments string or []byte, a map, or a
// geoview.MapFeatureConfig. GeoCore placeholders are resolved in one batch
// and those the catalog could not match are removed.
func (a *API) CreateMapConfig(ctx context.Context, input any, lang string) geoview.MapFeatureConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	lang = a.lang(lang)
	payload, err := toPayload(input)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("%s - %v, using defaults", logPrefix, err))
	}

	res := a.defaults.Resolve(payload, 0)
	cfg := res.Config
	if err != nil {
		cfg.ErrorDetected = true
	}
	cfg.Map.ListOfGeoviewLayerConfig = a.resolveGeocore(ctx, lang, cfg.Map.ListOfGeoviewLayerConfig)

	corrections := make([]string, 0, len(res.Corrections))
	for _, c := range res.Corrections {
		corrections = append(corrections, c.Message())
	}
	a.emit(ctx, activity.BuildMapConfigCreatedEvent(activity.MapConfigEventInput{
		Language:      lang,
		Origin:        originOf(input),
		Projection:    cfg.Map.ViewSettings.Projection,
		SchemaVersion: cfg.SchemaVersionUsed,
		ErrorDetected: cfg.ErrorDetected,
		Corrections:   corrections,
		LayerCount:    len(cfg.Map.ListOfGeoviewLayerConfig),
		Config:        &cfg,
	}))
	return cfg
}

// CreateLayerConfig builds one top-level layer from a JSON-with-comments
// string, a map, or a *geoview.GeoviewLayerConfig. A GeoCore placeholder is
// resolved through the catalog. It returns nil when the layer cannot be
// built; the reason is logged.
func (a *API) CreateLayerConfig(ctx context.Context, input any, lang string) *geoview.GeoviewLayerConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	lang = a.lang(lang)
	layer, err := a.decodeLayer(input)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("%s - layer config rejected: %v", logPrefix, err))
		return nil
	}
	geoview.AssignLayerIDs([]*geoview.GeoviewLayerConfig{layer})

	if layer.GeoviewLayerType == geoview.LayerTypeGeoCore {
		resolved := a.resolveGeocore(ctx, lang, []*geoview.GeoviewLayerConfig{layer})
		if len(resolved) == 0 {
			return nil
		}
		layer = resolved[0]
	}
	if !layer.GeoviewLayerType.Valid() {
		a.logger.Warn(fmt.Sprintf("%s - layer %s has unsupported type %q", logPrefix, layer.GeoviewLayerID, layer.GeoviewLayerType))
		return nil
	}
	if err := geoview.CheckTree(layer); err != nil {
		a.logger.Warn(fmt.Sprintf("%s - layer %s rejected: %v", logPrefix, layer.GeoviewLayerID, err))
		return nil
	}

	a.emit(ctx, activity.BuildLayerConfigCreatedEvent(activity.LayerConfigEventInput{
		LayerID:    layer.GeoviewLayerID,
		LayerType:  string(layer.GeoviewLayerType),
		Language:   lang,
		IsGeocore:  layer.IsGeocore,
		EntryCount: len(geoview.Leaves(layer)),
		Config:     layer,
	}))
	return layer
}

func (a *API) decodeLayer(input any) (*geoview.GeoviewLayerConfig, error) {
	if layer, ok := input.(*geoview.GeoviewLayerConfig); ok {
		if layer == nil {
			return nil, geoview.NewShapeError("create layer config", "", fmt.Errorf("layer config is nil"))
		}
		return layering.Clone(layer), nil
	}
	payload, err := toPayload(input)
	if err != nil {
		return nil, err
	}
	decoder := hydrate.NewDecoder[geoview.GeoviewLayerConfig]()
	layer, err := decoder.Decode(hydrate.Context{Source: "layer config"}, payload)
	if err != nil {
		return nil, geoview.NewShapeError("create layer config", "", err)
	}
	return &layer, nil
}

// resolveGeocore swaps placeholders for catalog layers and drops the ones
// that stay unresolved.
func (a *API) resolveGeocore(ctx context.Context, lang string, layers []*geoview.GeoviewLayerConfig) []*geoview.GeoviewLayerConfig {
	if len(geocore.Unresolved(layers)) == 0 {
		return layers
	}
	if a.geocore != nil {
		layers = a.geocore.Resolve(ctx, lang, layers)
	} else {
		a.logger.Warn(fmt.Sprintf("%s - no geocore service configured", logPrefix))
	}
	kept, dropped := geocore.DropUnresolved(layers)
	if len(dropped) > 0 {
		a.logger.Warn(fmt.Sprintf("%s - removed unresolved geocore layers: %s", logPrefix, strings.Join(dropped, ", ")))
	}
	return kept
}

func (a *API) emit(ctx context.Context, event activity.Event) {
	if err := a.emitter.Emit(ctx, event); err != nil {
		a.logger.Warn(fmt.Sprintf("%s - debug sink: %v", logPrefix, err))
	}
}

func (a *API) lang(lang string) string {
	if defaults.SupportedLanguage(lang) {
		return lang
	}
	if lang != "" {
		a.logger.Warn(fmt.Sprintf("%s - language %q is not supported, using %s", logPrefix, lang, a.language))
	}
	return a.language
}

// toPayload turns any accepted input form into a loosely typed document.
func toPayload(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return nil, geoview.NewShapeError("parse config", "", fmt.Errorf("no configuration supplied"))
	case string:
		return parseText([]byte(v))
	case []byte:
		return parseText(v)
	case map[string]any:
		return v, nil
	case urlInput:
		return map[string]any(v), nil
	default:
		payload, err := hydrate.ToPayload(v)
		if err != nil {
			return nil, geoview.NewShapeError("parse config", "", err)
		}
		return payload, nil
	}
}

func parseText(src []byte) (map[string]any, error) {
	var doc map[string]any
	if err := jsonc.Unmarshal(src, &doc); err != nil {
		return nil, geoview.NewShapeError("parse config", "", err)
	}
	if doc == nil {
		return nil, geoview.NewShapeError("parse config", "", fmt.Errorf("configuration is null"))
	}
	return doc, nil
}

func originOf(input any) string {
	switch input.(type) {
	case string, []byte:
		return "text"
	case map[string]any:
		return "object"
	case urlInput:
		return "url"
	default:
		return "typed"
	}
}
