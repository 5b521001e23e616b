package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModuleConfig is the configuration for a single policy entry as it
// appears in the configuration document. The order of entries in the
// document is the evaluation order.
type ModuleConfig struct {
	// Name must match a registered policy name.
	Name string

	// Enabled controls whether the policy runs.
	Enabled bool

	// Options is the policy-specific option bag passed to Configure.
	Options map[string]any
}

// rawModuleConfig mirrors one document entry with pointer fields so
// missing keys are distinguishable from zero values.
type rawModuleConfig struct {
	Name    *string        `yaml:"name"`
	Enabled *bool          `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

type rawPolicyDocument struct {
	Policies []rawModuleConfig `yaml:"policies"`
}

// LoadModuleConfigs reads the ordered policy list from the YAML
// document at path. Entries missing the name or enabled field fail
// with InvalidConfigError.
func LoadModuleConfigs(path string) ([]ModuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy configuration %q: %w", path, err)
	}
	return ParseModuleConfigs(data)
}

// ParseModuleConfigs parses the policy list from raw YAML bytes.
func ParseModuleConfigs(data []byte) ([]ModuleConfig, error) {
	var doc rawPolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy configuration: %w", err)
	}

	if doc.Policies == nil {
		return nil, &InvalidConfigError{
			Index:   -1,
			Field:   "policies",
			Message: "document must contain a 'policies' list",
		}
	}

	configs := make([]ModuleConfig, 0, len(doc.Policies))
	for i, raw := range doc.Policies {
		if raw.Name == nil || *raw.Name == "" {
			return nil, &InvalidConfigError{
				Index:   i,
				Field:   "name",
				Message: "missing required 'name' field",
			}
		}
		if raw.Enabled == nil {
			return nil, &InvalidConfigError{
				Index:   i,
				Field:   "enabled",
				Message: "missing required 'enabled' field",
			}
		}

		options := raw.Config
		if options == nil {
			options = map[string]any{}
		}
		configs = append(configs, ModuleConfig{
			Name:    *raw.Name,
			Enabled: *raw.Enabled,
			Options: options,
		})
	}

	return configs, nil
}
