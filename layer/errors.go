package layer

import "errors"

var (
	// ErrLayerIDNotFound marks a leaf whose layerId is absent from the
	// service metadata.
	ErrLayerIDNotFound = errors.New("layer: layer id not found in service metadata")
	// ErrMetadataFetch marks a service whose metadata could not be read.
	// Processing continues without enrichment.
	ErrMetadataFetch = errors.New("layer: service metadata fetch failed")
	// ErrMetadataRequired is returned for layer types that cannot load
	// without their metadata; every leaf of the layer is put in ERROR.
	ErrMetadataRequired = errors.New("layer: service metadata is required")
	// ErrUnsupportedLayerType is returned when no adapter handles a type.
	ErrUnsupportedLayerType = errors.New("layer: unsupported layer type")
)
