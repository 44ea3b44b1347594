package configapi

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const settingsLogPrefix = "configapi:settings"

// Settings holds process configuration read from the environment.
type Settings struct {
	GeocoreURL   string        `envconfig:"GEOVIEW_GEOCORE_URL"`
	Language     string        `envconfig:"GEOVIEW_LANGUAGE" default:"en"`
	FetchTimeout time.Duration `envconfig:"GEOVIEW_FETCH_TIMEOUT" default:"30s"`
	// CatalogDSN enables the shared Postgres catalog cache.
	CatalogDSN  string `envconfig:"GEOVIEW_CATALOG_DSN"`
	NATSURL     string `envconfig:"GEOVIEW_NATS_URL"`
	NATSSubject string `envconfig:"GEOVIEW_NATS_SUBJECT" default:"geoview.config.events"`
	RuleEngine  string `envconfig:"GEOVIEW_RULE_ENGINE" default:"expr"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("%s - %w", settingsLogPrefix, err)
	}
	return &s, nil
}

// Validate rejects settings the façade cannot run with.
func (s *Settings) Validate() error {
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("%s - GEOVIEW_FETCH_TIMEOUT must be positive", settingsLogPrefix)
	}
	if s.GeocoreURL != "" {
		if err := checkURL(s.GeocoreURL, "http", "https"); err != nil {
			return fmt.Errorf("%s - GEOVIEW_GEOCORE_URL: %w", settingsLogPrefix, err)
		}
	}
	if s.NATSURL != "" {
		if err := checkURL(s.NATSURL, "nats", "tls"); err != nil {
			return fmt.Errorf("%s - GEOVIEW_NATS_URL: %w", settingsLogPrefix, err)
		}
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s - LOG_LEVEL %q is not one of debug, info, warn, error", settingsLogPrefix, s.LogLevel)
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (s *Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%q must use one of %v", raw, schemes)
}
