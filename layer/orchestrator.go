// Package layer drives each top-level layer through its load lifecycle:
// entry initialization, service metadata fetch, per-leaf validation and
// metadata merge, then renderer hand-off. Per-type behavior lives in
// adapters selected by the layer's type.
package layer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
)

const logPrefix = "layer:orchestrator"

// StatusChange describes one leaf transition.
type StatusChange struct {
	LayerPath  string
	From       geoview.LayerStatus
	To         geoview.LayerStatus
	Diagnostic string
}

// StatusListener observes leaf transitions. It is called synchronously from
// the load that caused them.
type StatusListener func(ctx context.Context, change StatusChange)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher replaces the default fetch client.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.fetcher = f
		}
	}
}

// WithLogger sets the orchestrator and adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry replaces the adapter registry.
func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithProjectionRegistry shares a projection registry across orchestrators.
func WithProjectionRegistry(p *ProjectionRegistry) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.projections = p
		}
	}
}

// WithStatusListener observes every leaf transition.
func WithStatusListener(fn StatusListener) Option {
	return func(o *Orchestrator) {
		o.listener = fn
	}
}

// WithMetadataTimeout bounds each service metadata fetch through the fetch
// gateway, so an expiry is reported as fetch.ErrTimeout. Zero leaves it to
// the fetcher.
func WithMetadataTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.metadataTimeout = d
		}
	}
}

// WithConcurrency bounds how many layers LoadAll loads at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// DefaultConcurrency is the LoadAll fan-out when none is configured.
const DefaultConcurrency = 8

// Orchestrator loads layers. It is safe for concurrent use; each Load works
// on its own layer tree.
type Orchestrator struct {
	fetcher         Fetcher
	logger          *slog.Logger
	registry        *Registry
	projections     *ProjectionRegistry
	listener        StatusListener
	metadataTimeout time.Duration
	concurrency     int
	detached        sync.WaitGroup
}

// New builds an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.fetcher == nil {
		o.fetcher = fetch.New(fetch.WithLogger(o.logger))
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.projections == nil {
		o.projections = NewProjectionRegistry(3978, 3857, 4326)
	}
	return o
}

// Projections returns the registry detached probes report to.
func (o *Orchestrator) Projections() *ProjectionRegistry {
	return o.projections
}

// Wait blocks until every detached follow-up task has finished.
func (o *Orchestrator) Wait() {
	o.detached.Wait()
}

// Result is the outcome of loading one top-level layer.
type Result struct {
	Layer     *geoview.GeoviewLayerConfig
	Metadata  *Metadata
	Renderers []*Renderer
	// Failed lists the layer paths of leaves that ended in ERROR.
	Failed []string
}

// Load runs the lifecycle for layer, mutating its entries in place. It
// returns an error only for structural problems, an unsupported type, or a
// type whose required metadata could not be fetched; per-leaf failures are
// recorded on the leaves and in Result.Failed.
func (o *Orchestrator) Load(ctx context.Context, layer *geoview.GeoviewLayerConfig) (*Result, error) {
	if layer == nil {
		return nil, geoview.NewShapeError("load layer", "", fmt.Errorf("layer config is nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	adapter, err := o.registry.Adapter(layer.GeoviewLayerType, o.env())
	if err != nil {
		return nil, err
	}

	if err := adapter.InitEntries(layer); err != nil {
		return nil, geoview.NewShapeError("init entries", layer.GeoviewLayerID, err)
	}
	if err := geoview.CheckTree(layer); err != nil {
		return nil, err
	}
	leaves := geoview.Leaves(layer)
	res := &Result{Layer: layer}

	var md *Metadata
	if adapter.ExpectsMetadata(layer) {
		o.transitionAll(ctx, leaves, geoview.StatusServiceMetadataFetching)
		md, err = o.fetchMetadata(ctx, adapter, layer)
		if err != nil {
			if adapter.MetadataRequired() {
				for _, leaf := range leaves {
					o.fail(ctx, leaf, ErrMetadataRequired.Error()+": "+err.Error())
				}
				res.Failed = failedPaths(leaves)
				return res, fmt.Errorf("%w: %s: %w", ErrMetadataRequired, layer.GeoviewLayerID, err)
			}
			o.logger.Warn(fmt.Sprintf("%s - %s: %v, continuing without metadata", logPrefix, layer.GeoviewLayerID, err))
			for _, leaf := range leaves {
				leaf.AddDiagnostic(fmt.Sprintf("%v: %v", ErrMetadataFetch, err))
			}
			md = nil
		}
		o.transitionAll(ctx, leaves, geoview.StatusServiceMetadataFetched)
	} else {
		o.logger.Warn(fmt.Sprintf("%s - %s: %q is not a metadata document, metadata skipped", logPrefix, layer.GeoviewLayerID, layer.MetadataAccessPath))
		o.transitionAll(ctx, leaves, geoview.StatusSkipped)
	}
	res.Metadata = md

	for _, leaf := range leaves {
		o.transition(ctx, leaf, geoview.StatusProcessing, "")
		if md != nil {
			if err := adapter.ValidateEntry(leaf, md); err != nil {
				o.fail(ctx, leaf, err.Error())
				continue
			}
			if err := adapter.MergeMetadata(leaf, md); err != nil {
				o.fail(ctx, leaf, err.Error())
				continue
			}
		}
		renderer, err := adapter.BuildRenderer(ctx, leaf)
		if err != nil {
			o.fail(ctx, leaf, err.Error())
			continue
		}
		o.transition(ctx, leaf, geoview.StatusLoaded, "")
		res.Renderers = append(res.Renderers, renderer)
	}
	res.Failed = failedPaths(leaves)
	if len(res.Failed) > 0 {
		o.logger.Warn(fmt.Sprintf("%s - %s: %d of %d leaves failed", logPrefix, layer.GeoviewLayerID, len(res.Failed), len(leaves)))
	}
	return res, nil
}

func (o *Orchestrator) fetchMetadata(ctx context.Context, adapter Adapter, layer *geoview.GeoviewLayerConfig) (*Metadata, error) {
	md, err := adapter.FetchMetadata(ctx, layer)
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, errors.New("adapter returned no metadata")
	}
	return md, nil
}

func (o *Orchestrator) env() Env {
	env := Env{
		Fetcher:     o.fetcher,
		Logger:      o.logger,
		Projections: o.projections,
		Detach:      o.detach,
	}
	if o.metadataTimeout > 0 {
		env.MetadataOptions = []fetch.CallOption{fetch.Timeout(o.metadataTimeout)}
	}
	return env
}

func (o *Orchestrator) detach(fn func()) {
	o.detached.Add(1)
	go func() {
		defer o.detached.Done()
		fn()
	}()
}

func (o *Orchestrator) transitionAll(ctx context.Context, leaves []*geoview.LayerEntryConfig, next geoview.LayerStatus) {
	for _, leaf := range leaves {
		o.transition(ctx, leaf, next, "")
	}
}

func (o *Orchestrator) transition(ctx context.Context, leaf *geoview.LayerEntryConfig, next geoview.LayerStatus, diagnostic string) {
	from := leaf.Status()
	if !leaf.SetStatus(next) {
		return
	}
	o.notify(ctx, leaf, from, next, diagnostic)
}

func (o *Orchestrator) fail(ctx context.Context, leaf *geoview.LayerEntryConfig, diagnostic string) {
	from := leaf.Status()
	if !leaf.Fail(diagnostic) {
		return
	}
	o.logger.Warn(fmt.Sprintf("%s - %s: %s", logPrefix, leaf.LayerPath(), diagnostic))
	o.notify(ctx, leaf, from, geoview.StatusError, diagnostic)
}

func (o *Orchestrator) notify(ctx context.Context, leaf *geoview.LayerEntryConfig, from, to geoview.LayerStatus, diagnostic string) {
	if o.listener == nil {
		return
	}
	o.listener(ctx, StatusChange{LayerPath: leaf.LayerPath(), From: from, To: to, Diagnostic: diagnostic})
}

func failedPaths(leaves []*geoview.LayerEntryConfig) []string {
	var out []string
	for _, leaf := range leaves {
		if leaf.Status() == geoview.StatusError {
			out = append(out, leaf.LayerPath())
		}
	}
	return out
}
