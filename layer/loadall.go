package layer

import (
	"context"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"golang.org/x/sync/errgroup"
)

// Outcome is the settled result of one layer in LoadAll.
type Outcome struct {
	Layer  *geoview.GeoviewLayerConfig
	Result *Result
	Err    error
}

// LoadAll loads independent layers concurrently and waits for every one of
// them to settle. One layer failing never cancels the others; outcomes keep
// the input order.
func (o *Orchestrator) LoadAll(ctx context.Context, layers []*geoview.GeoviewLayerConfig) []Outcome {
	out := make([]Outcome, len(layers))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, layer := range layers {
		out[i].Layer = layer
		g.Go(func() error {
			res, err := o.Load(ctx, layer)
			out[i].Result = res
			out[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failed returns the outcomes that ended with an error.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, oc := range outcomes {
		if oc.Err != nil {
			failed = append(failed, oc)
		}
	}
	return failed
}
