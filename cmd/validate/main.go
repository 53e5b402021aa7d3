package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/token-orientation/pkg/orientation"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <orientation.json|orientation.yaml>...\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		validator := &ConfigValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		for _, w := range validator.warnings {
			fmt.Printf("warning: %s: %s\n", filename, w)
		}
		fmt.Printf("%s is valid!\n", filename)
	}

	if failed {
		os.Exit(1)
	}
}

// ConfigValidator checks orientation config files.
type ConfigValidator struct {
	errors   []string
	warnings []string
}

func (v *ConfigValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".yaml", ".yml":
	default:
		return fmt.Errorf("orientation file must have a .json, .yaml or .yml extension: %s", filepath.Base(filename))
	}

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := orientation.DecodeConfig(f, orientation.FormatFromPath(filename))
	if err != nil {
		return fmt.Errorf("file %s failed strict unmarshaling: %w", filename, err)
	}

	v.validateConfig(cfg)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *ConfigValidator) validateConfig(cfg orientation.Config) {
	v.errors = nil
	v.warnings = nil

	if err := cfg.Validate(); err != nil {
		v.errors = append(v.errors, strings.Split(err.Error(), "\n")...)
	}

	for _, a := range cfg.UnknownMovementActions() {
		v.warnings = append(v.warnings, fmt.Sprintf("movement action %q is not one of %v", a, orientation.KnownMovementActions))
	}

	seen := make(map[string]int)
	for i, r := range cfg.Rules {
		if r.Name == "" {
			continue
		}
		if first, ok := seen[r.Name]; ok {
			v.warnings = append(v.warnings, fmt.Sprintf("rules[%d]: name %q already used by rules[%d]", i, r.Name, first))
			continue
		}
		seen[r.Name] = i
	}

	for i, r := range cfg.Rules {
		if r.Conditions.IsEmpty() {
			v.warnings = append(v.warnings, fmt.Sprintf("rules[%d]: no conditions, so every later rule is unreachable", i))
			break
		}
	}
}
