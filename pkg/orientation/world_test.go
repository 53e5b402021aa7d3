package orientation

import (
	"strings"
	"testing"
)

func TestWorldDefaults_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       WorldDefaults
		wantErr []string
	}{
		{"nil", nil, nil},
		{"valid", WorldDefaults{"default": {North: "n.png"}, "fly": {East: "e.png"}}, nil},
		{"bad direction", WorldDefaults{"fly": {"NE": "ne.png"}}, []string{`fly: unknown direction "NE"`}},
		{"empty action", WorldDefaults{"": {North: "n.png"}}, []string{"must not be empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error = %q, want it to contain %q", err, want)
				}
			}
		})
	}
}
