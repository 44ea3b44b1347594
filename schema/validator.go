// Package schema validates map configurations against the published JSON
// schemas. The input schema describes what a host page may send; the internal
// schema describes a fully resolved configuration.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	InputSchemaURL    = "https://geoview.gc.ca/schema/map-config/input.json"
	InternalSchemaURL = "https://geoview.gc.ca/schema/map-config/internal.json"
)

var (
	//go:embed input.schema.json
	inputSchema []byte
	//go:embed internal.schema.json
	internalSchema []byte
)

// Violation is one schema failure located by JSON pointer.
type Violation struct {
	InstancePath string
	KeywordPath  string
	Message      string
}

func (v Violation) String() string {
	path := v.InstancePath
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s: %s", path, v.Message)
}

// Validator holds the compiled input and internal schemas.
type Validator struct {
	input    *jsonschema.Schema
	internal *jsonschema.Schema
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns a process-wide validator compiled from the embedded
// schemas.
func Default() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New()
	})
	return defaultValidator, defaultErr
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(InputSchemaURL, bytes.NewReader(inputSchema)); err != nil {
		return nil, fmt.Errorf("schema: add input schema: %w", err)
	}
	if err := compiler.AddResource(InternalSchemaURL, bytes.NewReader(internalSchema)); err != nil {
		return nil, fmt.Errorf("schema: add internal schema: %w", err)
	}
	input, err := compiler.Compile(InputSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile input schema: %w", err)
	}
	internal, err := compiler.Compile(InternalSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile internal schema: %w", err)
	}
	return &Validator{input: input, internal: internal}, nil
}

// ValidateInput checks user-shaped input.
func (v *Validator) ValidateInput(doc any) ([]Violation, error) {
	return validate(v.input, doc)
}

// ValidateInternal checks a fully merged configuration.
func (v *Validator) ValidateInternal(doc any) ([]Violation, error) {
	return validate(v.internal, doc)
}

func validate(s *jsonschema.Schema, doc any) ([]Violation, error) {
	normalized, err := Normalize(doc)
	if err != nil {
		return nil, err
	}
	err = s.Validate(normalized)
	if err == nil {
		return nil, nil
	}
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return nil, fmt.Errorf("schema: validate: %w", err)
	}
	var out []Violation
	collect(validationErr, &out)
	return out, nil
}

// collect flattens the error tree into its leaves; interior nodes only
// summarize their causes.
func collect(err *jsonschema.ValidationError, out *[]Violation) {
	if len(err.Causes) == 0 {
		*out = append(*out, Violation{
			InstancePath: err.InstanceLocation,
			KeywordPath:  err.KeywordLocation,
			Message:      err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collect(cause, out)
	}
}

// Normalize converts any Go value into the generic JSON shape the validator
// expects.
func Normalize(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: normalize: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("schema: normalize: %w", err)
	}
	return out, nil
}

var (
	topLevelOnce sync.Once
	topLevelKeys map[string]struct{}
)

// TopLevelKeys returns the property names the input schema recognizes at the
// root, sorted.
func TopLevelKeys() []string {
	known := knownTopLevel()
	keys := make([]string, 0, len(known))
	for key := range known {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// UnknownTopLevelKeys lists keys of doc the input schema does not define,
// sorted.
func UnknownTopLevelKeys(doc map[string]any) []string {
	known := knownTopLevel()
	var unknown []string
	for key := range doc {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func knownTopLevel() map[string]struct{} {
	topLevelOnce.Do(func() {
		var doc struct {
			Properties map[string]json.RawMessage `json:"properties"`
		}
		topLevelKeys = map[string]struct{}{}
		if err := json.Unmarshal(inputSchema, &doc); err != nil {
			return
		}
		for key := range doc.Properties {
			topLevelKeys[key] = struct{}{}
		}
	})
	return topLevelKeys
}

// Describe joins violations into one line for logging.
func Describe(violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}
