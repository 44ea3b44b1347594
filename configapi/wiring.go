package configapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/defaults"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/geocore"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/geocore/pgcache"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/pkg/activity"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/pkg/activity/natssink"
)

// ClientName identifies this process to NATS.
const ClientName = "geoview-config"

// NewFromSettings wires an API from process settings: the fetch client shared
// by the GeoCore resolver and layer orchestrators, the resolver's cache, and
// the debug sink hooks. The returned close func releases the database pool
// and the NATS connection.
func NewFromSettings(ctx context.Context, s *Settings, logger *slog.Logger, hooks ...activity.ActivityHook) (*API, func(), error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	resolver, err := defaults.NewResolver(defaults.WithLogger(logger), defaults.WithRuleEngine(s.RuleEngine))
	if err != nil {
		return nil, nil, fmt.Errorf("configapi: %w", err)
	}
	client := fetch.New(fetch.WithTimeout(s.FetchTimeout), fetch.WithLogger(logger))
	opts := []Option{
		WithLogger(logger),
		WithDefaultsResolver(resolver),
		WithLanguage(s.Language),
		WithFetcher(client),
	}

	if s.GeocoreURL != "" {
		geoOpts := []geocore.Option{geocore.WithFetcher(client), geocore.WithLogger(logger)}
		if s.CatalogDSN != "" {
			cache, closeDB, err := pgcache.Open(ctx, s.CatalogDSN)
			if err != nil {
				return nil, nil, fmt.Errorf("configapi: catalog cache: %w", err)
			}
			closers = append(closers, closeDB)
			geoOpts = append(geoOpts, geocore.WithCache(cache))
		}
		opts = append(opts, WithGeocore(geocore.NewResolver(s.GeocoreURL, geoOpts...)))
	}

	if s.NATSURL != "" {
		nc, err := natssink.Connect(s.NATSURL, ClientName, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, nc.Close)
		hooks = append(hooks, natssink.New(nc, natssink.WithSubject(s.NATSSubject), natssink.WithLogger(logger)))
	}
	if len(hooks) > 0 {
		opts = append(opts, WithHooks(hooks...))
	}

	api, err := New(opts...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return api, closeAll, nil
}
