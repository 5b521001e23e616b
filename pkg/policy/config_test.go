package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseModuleConfigs(t *testing.T) {
	doc := []byte(`
policies:
  - name: pii_detection
    enabled: true
    config:
      redact_emails: true
  - name: mnpi
    enabled: false
  - name: prompt_limits
    enabled: true
`)

	configs, err := ParseModuleConfigs(doc)
	if err != nil {
		t.Fatalf("ParseModuleConfigs failed: %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(configs))
	}

	// Document order is evaluation order.
	wantNames := []string{"pii_detection", "mnpi", "prompt_limits"}
	for i, want := range wantNames {
		if configs[i].Name != want {
			t.Errorf("configs[%d].Name = %s, want %s", i, configs[i].Name, want)
		}
	}

	if !configs[0].Enabled || configs[1].Enabled || !configs[2].Enabled {
		t.Errorf("Enabled flags wrong: %v %v %v",
			configs[0].Enabled, configs[1].Enabled, configs[2].Enabled)
	}

	if v, ok := configs[0].Options["redact_emails"].(bool); !ok || !v {
		t.Errorf("Options not parsed: %v", configs[0].Options)
	}
	if configs[1].Options == nil {
		t.Error("Missing config block should yield an empty option bag, not nil")
	}
}

func TestParseModuleConfigs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no policies key", "server:\n  listen_address: ':8080'\n"},
		{"missing name", "policies:\n  - enabled: true\n"},
		{"empty name", "policies:\n  - name: ''\n    enabled: true\n"},
		{"missing enabled", "policies:\n  - name: pii_detection\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModuleConfigs([]byte(tt.doc))
			var invalid *InvalidConfigError
			if !errors.As(err, &invalid) {
				t.Errorf("Expected InvalidConfigError, got %v", err)
			}
		})
	}
}

func TestParseModuleConfigs_MalformedYAML(t *testing.T) {
	_, err := ParseModuleConfigs([]byte("policies: [unclosed"))
	if err == nil {
		t.Error("Expected parse error for malformed YAML")
	}
}

func TestLoadModuleConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	doc := "policies:\n  - name: pii_detection\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	configs, err := LoadModuleConfigs(path)
	if err != nil {
		t.Fatalf("LoadModuleConfigs failed: %v", err)
	}
	if len(configs) != 1 || configs[0].Name != "pii_detection" {
		t.Errorf("Unexpected configs: %+v", configs)
	}
}

func TestLoadModuleConfigs_MissingFile(t *testing.T) {
	_, err := LoadModuleConfigs(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}
