package defaults

import (
	"fmt"
	"log/slog"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/internal/hydrate"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layering"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/rules"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/schema"
)

const logPrefix = "defaults:resolve"

// Result is the outcome of one resolution. Config is always usable.
type Result struct {
	Config      geoview.MapFeatureConfig
	Corrections []Correction
	Violations  []schema.Violation
	UnknownKeys []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger corrections are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRuleEngine selects the expression engine for the correction rules:
// "expr" (default), "cel", or "js" when built with js_eval.
func WithRuleEngine(engine string) Option {
	return func(r *Resolver) {
		r.engine = engine
	}
}

// WithRuleLogger receives one event per rule evaluation.
func WithRuleLogger(logger rules.Logger) Option {
	return func(r *Resolver) {
		r.ruleLogger = logger
	}
}

// WithValidator replaces the embedded schema validator.
func WithValidator(v *schema.Validator) Option {
	return func(r *Resolver) {
		if v != nil {
			r.validator = v
		}
	}
}

// Resolver merges user map configurations over projection defaults.
type Resolver struct {
	logger     *slog.Logger
	engine     string
	ruleLogger rules.Logger
	validator  *schema.Validator
	checker    *rules.Checker
	versions   *versionMatcher
}

// NewResolver compiles the schemas and the rule engine.
func NewResolver(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		logger: slog.Default(),
		engine: rules.EngineExpr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.validator == nil {
		v, err := schema.Default()
		if err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		r.validator = v
	}

	versions, err := newVersionMatcher(AcceptedSchemaVersions)
	if err != nil {
		return nil, err
	}
	r.versions = versions

	registry := rules.Builtins()
	if err := registry.Register("acceptedVersion", versions.function); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	evaluator, err := rules.New(r.engine,
		rules.WithFunctionRegistry(registry),
		rules.WithProgramCache(rules.NewMapCache()),
	)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	r.checker = rules.NewChecker(r.engine, evaluator, r.ruleLogger)
	return r, nil
}

// Resolve turns user input into a complete configuration. projectionHint is
// used when the input names no supported projection; zero selects the global
// default. Resolve never fails: anything it cannot use is replaced by a
// default, reported in the result, and ErrorDetected is set.
func (r *Resolver) Resolve(user map[string]any, projectionHint int) Result {
	var res Result
	flagged := false
	record := func(field string, original, replacement any) {
		c := Correction{Field: field, Original: original, Replacement: replacement}
		res.Corrections = append(res.Corrections, c)
		r.logger.Warn(fmt.Sprintf("%s - %s", logPrefix, c.Message()))
		flagged = true
	}

	payload, err := hydrate.ClonePayload(user)
	if err != nil || payload == nil {
		r.logger.Warn(fmt.Sprintf("%s - configuration is not an object, using defaults", logPrefix))
		payload = map[string]any{}
		flagged = true
	}

	res.UnknownKeys = schema.UnknownTopLevelKeys(payload)
	for _, key := range res.UnknownKeys {
		record(key, payload[key], nil)
		delete(payload, key)
	}

	violations, err := r.validator.ValidateInput(payload)
	if err != nil {
		r.logger.Error(fmt.Sprintf("%s - input validation failed: %v", logPrefix, err))
		flagged = true
	}
	if len(violations) > 0 {
		flagged = true
		res.Violations = append(res.Violations, violations...)
		r.logger.Warn(fmt.Sprintf("%s - input schema: %s", logPrefix, schema.Describe(violations)))
		for _, p := range pruneViolations(payload, violations) {
			record(p.Pointer, p.Value, "default")
		}
	}

	code := r.selectProjection(payload, projectionHint)
	base := MapFeatureConfig(code)
	if initialViewOverridden(payload) {
		base.Map.ViewSettings.InitialView.ZoomAndCenter = nil
	}

	decoder := hydrate.NewDecoder[geoview.MapFeatureConfig]()
	typed, err := decoder.Decode(hydrate.Context{Source: "map config"}, payload)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("%s - %v, using defaults", logPrefix, err))
		flagged = true
		typed = geoview.MapFeatureConfig{}
		base = MapFeatureConfig(code)
	}

	cfg := layering.MergeLayers(typed, base)
	cfg.Map.ViewSettings.Projection = code
	if r.checkLayers(&cfg) {
		flagged = true
	}

	internal, err := r.validator.ValidateInternal(cfg)
	if err != nil {
		r.logger.Error(fmt.Sprintf("%s - internal validation failed: %v", logPrefix, err))
		flagged = true
	}
	if len(internal) > 0 {
		flagged = true
		res.Violations = append(res.Violations, internal...)
		r.logger.Warn(fmt.Sprintf("%s - internal schema: %s", logPrefix, schema.Describe(internal)))
	}

	r.correct(&cfg, record)

	cfg.ErrorDetected = flagged
	res.Config = cfg
	return res
}

// correct runs the rule table. A rule that fails, or cannot be evaluated, has
// its field replaced by the projection default.
func (r *Resolver) correct(cfg *geoview.MapFeatureConfig, record func(string, any, any)) {
	for _, cr := range correctionRules {
		if !cr.applies(cfg) {
			continue
		}
		proj, ok := ProjectionFor(cfg.Map.ViewSettings.Projection)
		if !ok {
			proj = projections[DefaultProjection]
		}
		passed, err := r.checker.Check(cr.rule, snapshot(cfg, proj))
		if err != nil {
			r.logger.Debug(fmt.Sprintf("%s - rule %s: %v", logPrefix, cr.rule.Field, err))
		}
		if passed {
			continue
		}
		cr.fix(&fixContext{cfg: cfg, proj: proj, versions: r.versions, record: record})
	}
}

// checkLayers fills missing layer ids and drops layers whose type or tree is
// unusable. It reports whether anything was dropped.
func (r *Resolver) checkLayers(cfg *geoview.MapFeatureConfig) bool {
	layers := cfg.Map.ListOfGeoviewLayerConfig
	if n := geoview.AssignLayerIDs(layers); n > 0 {
		r.logger.Info(fmt.Sprintf("%s - generated %d geoview layer ids", logPrefix, n))
	}
	dropped := false
	kept := layers[:0]
	for _, layer := range layers {
		if layer == nil {
			dropped = true
			continue
		}
		var err error
		if !layer.GeoviewLayerType.Valid() {
			err = geoview.NewShapeError("resolve layers", layer.GeoviewLayerID, fmt.Errorf("unsupported layer type %q", layer.GeoviewLayerType))
		} else {
			err = geoview.CheckTree(layer)
		}
		if err != nil {
			r.logger.Warn(fmt.Sprintf("%s - layer %s removed: %v", logPrefix, layer.GeoviewLayerID, err))
			dropped = true
			continue
		}
		kept = append(kept, layer)
	}
	cfg.Map.ListOfGeoviewLayerConfig = kept
	return dropped
}

func (r *Resolver) selectProjection(payload map[string]any, hint int) int {
	if code, ok := payloadProjection(payload); ok {
		if _, supported := projections[code]; supported {
			return code
		}
	}
	if _, supported := projections[hint]; supported {
		return hint
	}
	return DefaultProjection
}

func payloadProjection(payload map[string]any) (int, bool) {
	view, ok := nested(payload, "map", "viewSettings")
	if !ok {
		return 0, false
	}
	number, ok := rules.ToFloat(view["projection"])
	if !ok {
		return 0, false
	}
	return int(number), true
}

// initialViewOverridden reports whether the user picked the extent or layer
// ids strategy for the initial view.
func initialViewOverridden(payload map[string]any) bool {
	view, ok := nested(payload, "map", "viewSettings", "initialView")
	if !ok {
		return false
	}
	_, extent := view["extent"]
	_, layerIDs := view["layerIds"]
	return extent || layerIDs
}

func nested(payload map[string]any, keys ...string) (map[string]any, bool) {
	current := payload
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}
