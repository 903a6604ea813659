package heat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Defaults apply to anything the file leaves out
	config := Config{Reduction: DefaultParams()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if config.Reduction.Strategy == "" {
		config.Reduction.Strategy = StrategyGrid
	}

	if len(config.Sources) == 0 {
		return nil, fmt.Errorf("at least one source must be defined")
	}

	seen := make(map[string]bool, len(config.Sources))
	for i, sc := range config.Sources {
		if sc.ID == "" {
			return nil, fmt.Errorf("sources[%d].id is required", i)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("sources[%d].id %q is duplicated", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" && !sc.HasAPI() {
			return nil, fmt.Errorf("sources[%d] needs a topic or apiUrl for %s", i, sc.ID)
		}
	}

	if err := config.Reduction.Validate(); err != nil {
		return nil, fmt.Errorf("reduction: %w", err)
	}
	if err := config.Reduction.CheckCapacity(MaxPoints); err != nil {
		return nil, fmt.Errorf("reduction: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyRenderDefaults fills unset render options
func (c *Config) ApplyRenderDefaults() {
	if c.Render.Scale <= 0 {
		c.Render.Scale = 10
	}
	if c.Render.Padding <= 0 {
		c.Render.Padding = 30
	}
	if c.Render.PointRadius <= 0 {
		c.Render.PointRadius = 3
	}
	if c.Render.Resolution <= 0 {
		c.Render.Resolution = 300
	}
}
