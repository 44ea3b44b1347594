package configapi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/internal/jsonc"
	"gopkg.in/yaml.v3"
)

// ReadConfigFile loads a map configuration document. JSON files may carry
// comments; YAML files are decoded into the same loosely typed map.
func ReadConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configapi: read %s: %w", path, err)
	}
	return ParseConfig(data, filepath.Ext(path))
}

// ParseConfig decodes data according to a file extension. An empty
// extension is treated as JSON with comments.
func ParseConfig(data []byte, ext string) (map[string]any, error) {
	var doc map[string]any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("configapi: yaml: %w", err)
		}
	case "", ".json", ".jsonc":
		if err := jsonc.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("configapi: %w", err)
		}
	default:
		return nil, fmt.Errorf("configapi: unsupported config file type %q", ext)
	}
	if doc == nil {
		return nil, fmt.Errorf("configapi: config document is empty")
	}
	return doc, nil
}
