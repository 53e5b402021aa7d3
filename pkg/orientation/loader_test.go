package orientation

import (
	"strings"
	"testing"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
	}{
		{"rules.yaml", FormatYAML},
		{"rules.YML", FormatYAML},
		{"rules.json", FormatJSON},
		{"rules", FormatJSON},
	}
	for _, tt := range tests {
		if got := FormatFromPath(tt.path); got != tt.expected {
			t.Errorf("FormatFromPath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestDecodeConfig_Strict(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		input   string
		wantErr bool
	}{
		{
			name:   "valid json",
			format: FormatJSON,
			input:  `{"rules":[{"name":"fly","direction_layout":"quad","images":{"E":"e.png"}}]}`,
		},
		{
			name:    "unknown json field",
			format:  FormatJSON,
			input:   `{"rules":[],"extra":true}`,
			wantErr: true,
		},
		{
			name:   "valid yaml",
			format: FormatYAML,
			input:  "rules:\n  - name: fly\n    direction_layout: nesw\n",
		},
		{
			name:    "unknown yaml field",
			format:  FormatYAML,
			input:   "rules: []\nrulez: []\n",
			wantErr: true,
		},
		{
			name:    "unknown layout",
			format:  FormatYAML,
			input:   "defaults:\n  direction_layout: hexagonal\n",
			wantErr: true,
		},
		{
			name:   "empty yaml",
			format: FormatYAML,
			input:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(tt.input), tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeWorldDefaults(t *testing.T) {
	input := `
default_direction_images:
  default:
    N: idle_n.png
    E: idle_e.png
    S: ""
  fly:
    E: fly_e.png
`
	w, err := DecodeWorldDefaults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeWorldDefaults() error = %v", err)
	}
	if got := w.Lookup("fly", East); got != "fly_e.png" {
		t.Errorf("Lookup(fly, E) = %q, want fly_e.png", got)
	}
	if got := w.Lookup("fly", North); got != "idle_n.png" {
		t.Errorf("Lookup(fly, N) = %q, want idle_n.png", got)
	}
	if _, ok := w["default"][South]; ok {
		t.Error("empty image should be dropped")
	}
}

func TestDecodeWorldDefaults_BadDirection(t *testing.T) {
	input := "default_direction_images:\n  default:\n    NE: diag.png\n"
	if _, err := DecodeWorldDefaults(strings.NewReader(input)); err == nil {
		t.Error("DecodeWorldDefaults() error = nil, want error for NE")
	}
}
