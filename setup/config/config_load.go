package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// WidgetDriver is the root configuration loaded from the driver's YAML
// file, mirroring the teacher's per-component Global/Widgets split so each
// block can be passed independently to the collaborator it configures.
type WidgetDriver struct {
	Version int `yaml:"version"`

	Global  Global  `yaml:"global"`
	Widgets Widgets `yaml:"widgets"`
}

// Defaults populates c with the out-of-the-box configuration, then applies
// each component's own Defaults. generate is true only when writing a
// sample config, matching the teacher's convention of
// filling in illustrative values only in that mode.
func (c *WidgetDriver) Defaults(generate bool) {
	c.Version = 1
	c.Global.Defaults(generate)
	c.Widgets.Defaults(generate)
	c.Widgets.Matrix = &c.Global
}

// Verify checks the loaded configuration for self-consistency, accumulating
// every problem found into configErrs rather than stopping at the first.
func (c *WidgetDriver) Verify(configErrs *ConfigErrors) {
	if c.Version != 1 {
		configErrs.Add(fmt.Sprintf("unsupported config version %d, expected 1", c.Version))
	}
	c.Global.Verify(configErrs)
	c.Widgets.Verify(configErrs)
}

// Load reads and parses a WidgetDriver config file from path, applying
// defaults before unmarshalling the YAML over them.
func Load(path string) (*WidgetDriver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var c WidgetDriver
	c.Defaults(false)
	if err = yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	c.Widgets.Matrix = &c.Global

	return &c, nil
}
