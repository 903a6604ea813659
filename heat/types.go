package heat

// SourceConfig defines a point source from the config file
type SourceConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic,omitempty" json:"topic,omitempty"`
	Color  string  `yaml:"color,omitempty" json:"color,omitempty"`
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"` // Optional URL serving the source's point JSON
}

// HasAPI returns true if the source can be fetched over HTTP
func (sc *SourceConfig) HasAPI() bool {
	return sc.ApiURL != nil && *sc.ApiURL != ""
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderConfig controls the preview renderers
type RenderConfig struct {
	Scale       float64 `yaml:"scale,omitempty" json:"scale,omitempty"`             // Pixels per world unit (default 10)
	Padding     int     `yaml:"padding,omitempty" json:"padding,omitempty"`         // Image padding in pixels (default 30)
	PointRadius float64 `yaml:"pointRadius,omitempty" json:"pointRadius,omitempty"` // Radius in pixels of a weight-1 point (default 3)
	Resolution  float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"`   // Vector PNG DPI (default 300)
}

// Config represents the full configuration file
type Config struct {
	MQTT      MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Sources   []SourceConfig `yaml:"sources" json:"sources"`
	Reduction Params         `yaml:"reduction" json:"reduction"`
	Render    RenderConfig   `yaml:"render,omitempty" json:"render,omitempty"`
}

// GetSourceByID returns the source config for the given ID
func (c *Config) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}
