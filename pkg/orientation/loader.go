package orientation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of an orientation file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// DecodeConfig strictly decodes a config: unknown fields and unknown layout
// names are errors. The result is not normalized or validated.
func DecodeConfig(r io.Reader, f Format) (Config, error) {
	var cfg Config
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode json: %w", err)
		}
	}
	return cfg, nil
}

type worldFile struct {
	DefaultDirectionImages WorldDefaults `yaml:"default_direction_images"`
}

// DecodeWorldDefaults reads world default images from YAML of the form
//
//	default_direction_images:
//	  default: {N: idle_n.png, E: idle_e.png}
//	  fly:     {E: fly_e.png}
//
// Direction keys other than N, E, S and W are rejected.
func DecodeWorldDefaults(r io.Reader) (WorldDefaults, error) {
	var wf worldFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if err := wf.DefaultDirectionImages.Validate(); err != nil {
		return nil, err
	}
	return wf.DefaultDirectionImages.Normalize(), nil
}
