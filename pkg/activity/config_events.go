package activity

import (
	"strings"
	"time"
)

// Verbs emitted by the configuration core.
const (
	VerbMapConfigCreated   = "map.config.created"
	VerbLayerConfigCreated = "layer.config.created"
	VerbLayerStatusChanged = "layer.status.changed"
)

// Object types carried by config events.
const (
	ObjectMapConfig   = "map_config"
	ObjectLayerConfig = "layer_config"
	ObjectLayerEntry  = "layer_entry"
)

// MapConfigEventInput describes a resolved map configuration.
type MapConfigEventInput struct {
	MapID         string
	Language      string
	Origin        string
	Projection    int
	SchemaVersion string
	ErrorDetected bool
	Corrections   []string
	LayerCount    int
	// Config is the created value itself, kept for inspection.
	Config     any
	OccurredAt time.Time
}

// BuildMapConfigCreatedEvent describes a map configuration the façade created.
func BuildMapConfigCreatedEvent(input MapConfigEventInput) Event {
	metadata := map[string]any{
		"language":       input.Language,
		"projection":     input.Projection,
		"error_detected": input.ErrorDetected,
		"layer_count":    input.LayerCount,
	}
	if input.Origin != "" {
		metadata["origin"] = input.Origin
	}
	if input.SchemaVersion != "" {
		metadata["schema_version"] = input.SchemaVersion
	}
	if len(input.Corrections) > 0 {
		metadata["corrections"] = append([]string(nil), input.Corrections...)
	}
	if input.Config != nil {
		metadata["config"] = input.Config
	}
	return Event{
		Verb:       VerbMapConfigCreated,
		ObjectType: ObjectMapConfig,
		ObjectID:   fallbackID(input.MapID, ObjectMapConfig),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// LayerConfigEventInput describes a single layer configuration.
type LayerConfigEventInput struct {
	LayerID    string
	LayerType  string
	Language   string
	IsGeocore  bool
	EntryCount int
	Config     any
	OccurredAt time.Time
}

// BuildLayerConfigCreatedEvent describes a layer configuration the façade created.
func BuildLayerConfigCreatedEvent(input LayerConfigEventInput) Event {
	metadata := map[string]any{
		"layer_type":  input.LayerType,
		"is_geocore":  input.IsGeocore,
		"entry_count": input.EntryCount,
	}
	if input.Language != "" {
		metadata["language"] = input.Language
	}
	if input.Config != nil {
		metadata["config"] = input.Config
	}
	return Event{
		Verb:       VerbLayerConfigCreated,
		ObjectType: ObjectLayerConfig,
		ObjectID:   fallbackID(input.LayerID, ObjectLayerConfig),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// LayerStatusEventInput describes one leaf status transition.
type LayerStatusEventInput struct {
	LayerPath  string
	From       string
	To         string
	Diagnostic string
	OccurredAt time.Time
}

// BuildLayerStatusChangedEvent describes a leaf moving between load states.
func BuildLayerStatusChangedEvent(input LayerStatusEventInput) Event {
	metadata := map[string]any{
		"from": input.From,
		"to":   input.To,
	}
	if input.Diagnostic != "" {
		metadata["diagnostic"] = input.Diagnostic
	}
	return Event{
		Verb:       VerbLayerStatusChanged,
		ObjectType: ObjectLayerEntry,
		ObjectID:   fallbackID(input.LayerPath, ObjectLayerEntry),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func fallbackID(id, objectType string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return objectType
}
