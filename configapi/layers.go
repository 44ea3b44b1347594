package configapi

import (
	"context"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layer"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/pkg/activity"
)

// StatusListener reports leaf transitions to the debug sink as
// layer.status.changed events.
func (a *API) StatusListener() layer.StatusListener {
	return func(ctx context.Context, change layer.StatusChange) {
		a.emit(ctx, activity.BuildLayerStatusChangedEvent(activity.LayerStatusEventInput{
			LayerPath:  change.LayerPath,
			From:       string(change.From),
			To:         string(change.To),
			Diagnostic: change.Diagnostic,
		}))
	}
}

// NewLayerOrchestrator builds a layer orchestrator sharing the façade's
// logger, fetch client and debug sink. opts are applied last.
func (a *API) NewLayerOrchestrator(opts ...layer.Option) *layer.Orchestrator {
	base := []layer.Option{
		layer.WithLogger(a.logger),
		layer.WithStatusListener(a.StatusListener()),
	}
	if a.fetcher != nil {
		base = append(base, layer.WithFetcher(a.fetcher))
	}
	return layer.New(append(base, opts...)...)
}
