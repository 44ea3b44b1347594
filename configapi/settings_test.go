package configapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/pkg/activity"
)

func TestLoadSettingsDefaults(t *testing.T) {
	for _, key := range []string{"GEOVIEW_GEOCORE_URL", "GEOVIEW_CATALOG_DSN", "GEOVIEW_NATS_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("GEOVIEW_FETCH_TIMEOUT", "")
	t.Setenv("GEOVIEW_LANGUAGE", "fr")
	t.Setenv("LOG_LEVEL", "debug")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.Language != "fr" || s.FetchTimeout != 30*time.Second || s.RuleEngine != "expr" {
		t.Fatalf("unexpected settings %+v", s)
	}
	if s.NATSSubject != "geoview.config.events" {
		t.Fatalf("expected default subject, got %q", s.NATSSubject)
	}
	if s.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", s.Level())
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadSettingsRejectsBadDuration(t *testing.T) {
	t.Setenv("GEOVIEW_FETCH_TIMEOUT", "soon")
	if _, err := LoadSettings(); err == nil {
		t.Fatalf("expected envconfig to reject the duration")
	}
}

func TestSettingsValidate(t *testing.T) {
	base := Settings{FetchTimeout: time.Second, LogLevel: "info", RuleEngine: "expr"}
	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"timeout", func(s *Settings) { s.FetchTimeout = 0 }, "GEOVIEW_FETCH_TIMEOUT"},
		{"geocore scheme", func(s *Settings) { s.GeocoreURL = "ftp://catalog.example.org" }, "GEOVIEW_GEOCORE_URL"},
		{"geocore host", func(s *Settings) { s.GeocoreURL = "https://" }, "GEOVIEW_GEOCORE_URL"},
		{"nats scheme", func(s *Settings) { s.NATSURL = "http://127.0.0.1:4222" }, "GEOVIEW_NATS_URL"},
		{"level", func(s *Settings) { s.LogLevel = "loud" }, "LOG_LEVEL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error naming %s, got %v", tc.want, err)
			}
		})
	}
	if s := (Settings{LogLevel: "nonsense"}); s.Level() != slog.LevelInfo {
		t.Fatalf("expected unknown level to fall back to info")
	}
}

func TestNewFromSettingsRejectsInvalidSettings(t *testing.T) {
	_, closeFn, err := NewFromSettings(context.Background(), &Settings{LogLevel: "info"}, quietLogger())
	if err == nil || closeFn != nil {
		t.Fatalf("expected invalid settings to fail before wiring")
	}
	s := &Settings{FetchTimeout: time.Second, LogLevel: "info", RuleEngine: "lua"}
	if _, _, err := NewFromSettings(context.Background(), s, quietLogger()); err == nil {
		t.Fatalf("expected unknown rule engine to fail")
	}
}

func TestNewFromSettingsWiresCatalogAndSink(t *testing.T) {
	c := newCatalog(t)
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("nats server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	t.Cleanup(sub.Close)
	received := make(chan *nats.Msg, 4)
	if _, err := sub.ChanSubscribe("geoview.wiring.>", received); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	capture := &activity.CaptureHook{}
	s := &Settings{
		GeocoreURL:   c.URL,
		Language:     "en",
		FetchTimeout: 5 * time.Second,
		NATSURL:      ns.ClientURL(),
		NATSSubject:  "geoview.wiring",
		RuleEngine:   "cel",
		LogLevel:     "info",
	}
	api, closeFn, err := NewFromSettings(context.Background(), s, quietLogger(), capture)
	if err != nil {
		t.Fatalf("wire api: %v", err)
	}
	defer closeFn()

	cfg := api.GetConfigFromURL(context.Background(), "keys="+roadsID)
	if len(cfg.Map.ListOfGeoviewLayerConfig) != 1 || c.requests() != 1 {
		t.Fatalf("expected catalog wired in, got %d layers", len(cfg.Map.ListOfGeoviewLayerConfig))
	}
	if capture.Count(activity.VerbMapConfigCreated) != 1 {
		t.Fatalf("expected caller hooks kept alongside the nats sink")
	}

	select {
	case msg := <-received:
		if msg.Subject != "geoview.wiring."+activity.VerbMapConfigCreated {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		var body map[string]any
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			t.Fatalf("decode message: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the map event on nats within 5s")
	}
}

func TestLayerOrchestratorUsesSettingsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	s := &Settings{FetchTimeout: 50 * time.Millisecond, LogLevel: "info", RuleEngine: "expr"}
	api, closeFn, err := NewFromSettings(context.Background(), s, quietLogger())
	if err != nil {
		t.Fatalf("wire api: %v", err)
	}
	defer closeFn()

	start := time.Now()
	_, err = api.NewLayerOrchestrator().Load(context.Background(), &geoview.GeoviewLayerConfig{
		GeoviewLayerID:         "roads",
		GeoviewLayerType:       geoview.LayerTypeEsriDynamic,
		MetadataAccessPath:     srv.URL + "/MapServer",
		ListOfLayerEntryConfig: []*geoview.LayerEntryConfig{{LayerID: "0"}},
	})
	if !errors.Is(err, fetch.ErrTimeout) {
		t.Fatalf("expected GEOVIEW_FETCH_TIMEOUT to bound the metadata fetch, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected the configured timeout, took %s", elapsed)
	}
}
