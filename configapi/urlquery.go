package configapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/defaults"
)

// urlInput marks a document built from URL parameters.
type urlInput map[string]any

// GetConfigFromURL builds a map configuration from the compact URL
// parameters a shared map link carries, then resolves it like any other
// input. raw may be a full URL or just its query string.
//
//	p     projection code
//	z     zoom
//	c     center "lon,lat"
//	b     basemap options "basemapId:transport,shaded:false"
//	keys  GeoCore ids, comma separated
//	cc    components, comma separated
//	cp    core packages, comma separated
//	l     language
//	v     schema version
//	t     theme
//	i     interaction
func (a *API) GetConfigFromURL(ctx context.Context, raw string) geoview.MapFeatureConfig {
	values, err := parseQuery(raw)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("%s - %v, using defaults", logPrefix, err))
		cfg := a.CreateMapConfig(ctx, nil, "")
		return cfg
	}
	doc, lang, problems := queryToConfig(values)
	for _, p := range problems {
		a.logger.Warn(fmt.Sprintf("%s - url parameter %s", logPrefix, p))
	}
	cfg := a.CreateMapConfig(ctx, doc, lang)
	if len(problems) > 0 {
		cfg.ErrorDetected = true
	}
	return cfg
}

func parseQuery(raw string) (url.Values, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("configapi: query: %w", err)
	}
	return values, nil
}

// queryToConfig maps URL parameters onto the configuration document. Values
// that cannot be parsed are left out and reported.
func queryToConfig(values url.Values) (urlInput, string, []string) {
	var problems []string
	view := map[string]any{}
	mapDoc := map[string]any{"viewSettings": view}
	doc := urlInput{"map": mapDoc}

	projection := defaults.DefaultProjection
	if p := values.Get("p"); p != "" {
		code, err := strconv.Atoi(p)
		if err != nil {
			problems = append(problems, fmt.Sprintf("p=%q is not a projection code", p))
		} else {
			view["projection"] = float64(code)
			projection = code
		}
	}

	zoom, center, ok := zoomAndCenter(values, projection, &problems)
	if ok {
		view["initialView"] = map[string]any{
			"zoomAndCenter": []any{zoom, []any{center[0], center[1]}},
		}
	}

	if b := values.Get("b"); b != "" {
		basemap, err := parseMiniObject(b)
		if err != nil {
			problems = append(problems, fmt.Sprintf("b=%q: %v", b, err))
		} else {
			mapDoc["basemapOptions"] = basemap
		}
	}

	if keys := splitList(values.Get("keys")); len(keys) > 0 {
		layers := make([]any, 0, len(keys))
		for _, key := range keys {
			layers = append(layers, map[string]any{
				"geoviewLayerId":   key,
				"geoviewLayerType": string(geoview.LayerTypeGeoCore),
			})
		}
		mapDoc["listOfGeoviewLayerConfig"] = layers
	}

	if cc := splitList(values.Get("cc")); len(cc) > 0 {
		doc["components"] = stringsToAny(cc)
	}
	if cp := splitList(values.Get("cp")); len(cp) > 0 {
		doc["corePackages"] = stringsToAny(cp)
	}
	if v := strings.TrimSpace(values.Get("v")); v != "" {
		doc["schemaVersionUsed"] = v
	}
	if t := strings.TrimSpace(values.Get("t")); t != "" {
		doc["theme"] = t
	}
	if i := strings.TrimSpace(values.Get("i")); i != "" {
		mapDoc["interaction"] = i
	}
	return doc, strings.TrimSpace(values.Get("l")), problems
}

// zoomAndCenter reads z and c. When only one is given the other comes from
// the projection defaults.
func zoomAndCenter(values url.Values, projection int, problems *[]string) (float64, [2]float64, bool) {
	z, c := values.Get("z"), values.Get("c")
	if z == "" && c == "" {
		return 0, [2]float64{}, false
	}
	proj, ok := defaults.ProjectionFor(projection)
	if !ok {
		proj, _ = defaults.ProjectionFor(defaults.DefaultProjection)
	}
	zoom, center := proj.Zoom, proj.Center
	if z != "" {
		v, err := strconv.ParseFloat(z, 64)
		if err != nil {
			*problems = append(*problems, fmt.Sprintf("z=%q is not a number", z))
		} else {
			zoom = v
		}
	}
	if c != "" {
		parts := splitList(c)
		var coords []float64
		for _, part := range parts {
			v, err := strconv.ParseFloat(part, 64)
			if err != nil {
				break
			}
			coords = append(coords, v)
		}
		if len(coords) != 2 || len(parts) != 2 {
			*problems = append(*problems, fmt.Sprintf("c=%q is not \"lon,lat\"", c))
		} else {
			center = [2]float64{coords[0], coords[1]}
		}
	}
	return zoom, center, true
}

// parseMiniObject reads "key:value,key:value". true and false become
// booleans.
func parseMiniObject(src string) (map[string]any, error) {
	out := map[string]any{}
	for _, pair := range splitList(src) {
		key, value, ok := strings.Cut(pair, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key:value, got %q", pair)
		}
		switch value {
		case "true":
			out[key] = true
		case "false":
			out[key] = false
		default:
			out[key] = value
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no key:value pairs")
	}
	return out, nil
}

func splitList(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
