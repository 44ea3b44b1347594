package geoview

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigShape marks structurally unusable input: a missing mandatory
	// section, a non-array where an array is required, unparsable text.
	ErrConfigShape = errors.New("geoview: configuration shape")
	// ErrValidation marks values that deviated from the schema and were
	// auto-corrected.
	ErrValidation = errors.New("geoview: validation")
	// ErrRemoteResolution marks a single unit (GeoCore id, service metadata,
	// sub-layer) that could not be resolved remotely.
	ErrRemoteResolution = errors.New("geoview: remote resolution")
	// ErrTransport marks network failures raised by the fetch gateway.
	ErrTransport = errors.New("geoview: transport")
)

// ConfigError attaches operation and location metadata to one of the kind
// sentinels above.
type ConfigError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("geoview: ")
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%q", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *ConfigError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewShapeError builds a configuration-shape error.
func NewShapeError(op, path string, err error) error {
	return wrapConfigError(ErrConfigShape, op, path, err)
}

// NewRemoteError builds a remote-resolution error.
func NewRemoteError(op, path string, err error) error {
	return wrapConfigError(ErrRemoteResolution, op, path, err)
}

func wrapConfigError(kind error, op, path string, err error) error {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Kind == kind {
		if cfgErr.Op == "" {
			cfgErr.Op = op
		}
		if cfgErr.Path == "" {
			cfgErr.Path = path
		}
		return cfgErr
	}
	return &ConfigError{Kind: kind, Op: op, Path: path, Err: err}
}

// NewTransportError builds a transport error for the fetch gateway.
func NewTransportError(op, path string, err error) error {
	return wrapConfigError(ErrTransport, op, path, err)
}
