// Package main is the geoview-config command: it resolves map configurations
// from files or shared map links and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/configapi"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/layer"
)

const usage = `Usage: geoview-config <command> [args]

Commands:
  defaults [lang]     Print the default map configuration.
  map <file>          Resolve a map configuration file (.json, .jsonc, .yaml).
  url <link>          Resolve a shared map link or its query string.
  layer <file>        Build one layer configuration.
  load <file>         Resolve a map configuration, then load its layers.

Environment: GEOVIEW_GEOCORE_URL, GEOVIEW_LANGUAGE, GEOVIEW_FETCH_TIMEOUT,
GEOVIEW_CATALOG_DSN, GEOVIEW_NATS_URL, GEOVIEW_NATS_SUBJECT,
GEOVIEW_RULE_ENGINE, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	cmd, rest := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Print(usage)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, rest); err != nil {
		log.Fatalf("geoview-config %s: %v", cmd, err)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	settings, err := configapi.LoadSettings()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.Level()}))
	slog.SetDefault(logger)

	api, closeFn, err := configapi.NewFromSettings(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	switch cmd {
	case "defaults":
		lang := ""
		if len(args) > 0 {
			lang = args[0]
		}
		return printJSON(api.GetDefaultMapFeatureConfig(lang))
	case "map":
		doc, err := readArg(args)
		if err != nil {
			return err
		}
		return printJSON(api.CreateMapConfig(ctx, doc, settings.Language))
	case "url":
		if len(args) == 0 {
			return fmt.Errorf("missing map link")
		}
		return printJSON(api.GetConfigFromURL(ctx, args[0]))
	case "layer":
		doc, err := readArg(args)
		if err != nil {
			return err
		}
		cfg := api.CreateLayerConfig(ctx, doc, settings.Language)
		if cfg == nil {
			return fmt.Errorf("layer configuration rejected, see log")
		}
		return printJSON(cfg)
	case "load":
		doc, err := readArg(args)
		if err != nil {
			return err
		}
		return load(ctx, api, api.CreateMapConfig(ctx, doc, settings.Language))
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

type loadReport struct {
	LayerID   string            `json:"layerId"`
	Error     string            `json:"error,omitempty"`
	Failed    []string          `json:"failed,omitempty"`
	Renderers []*layer.Renderer `json:"renderers,omitempty"`
}

func load(ctx context.Context, api *configapi.API, cfg geoview.MapFeatureConfig) error {
	o := api.NewLayerOrchestrator()
	outcomes := o.LoadAll(ctx, cfg.Map.ListOfGeoviewLayerConfig)
	o.Wait()

	reports := make([]loadReport, 0, len(outcomes))
	for _, oc := range outcomes {
		r := loadReport{LayerID: oc.Layer.GeoviewLayerID}
		if oc.Err != nil {
			r.Error = oc.Err.Error()
		}
		if oc.Result != nil {
			r.Failed = oc.Result.Failed
			r.Renderers = oc.Result.Renderers
		}
		reports = append(reports, r)
	}
	return printJSON(map[string]any{
		"projections": o.Projections().Codes(),
		"layers":      reports,
	})
}

func readArg(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing file argument")
	}
	return configapi.ReadConfigFile(args[0])
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
