package config

import (
	"github.com/matrix-org/gomatrixserverlib/spec"
)

// Global holds the settings shared across the widget driver regardless of
// which room or widget it is currently serving.
type Global struct {
	// The name of the homeserver the driver's Matrix client is registered
	// against, e.g. 'matrix.org', 'localhost'.
	ServerName spec.ServerName `yaml:"server_name"`

	// JetStream configuration, used for the room/state event subscription
	// the orchestrator reads from.
	JetStream JetStream `yaml:"jetstream"`

	// Metrics configuration.
	Metrics Metrics `yaml:"metrics"`
}

func (c *Global) Defaults(generate bool) {
	if generate {
		c.ServerName = "localhost"
	}
	c.JetStream.Defaults(generate)
	c.Metrics.Defaults(generate)
}

func (c *Global) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "global.server_name", string(c.ServerName))
	c.JetStream.Verify(configErrs)
	c.Metrics.Verify(configErrs)
}

// Metrics configures the Prometheus metrics endpoint (spec's DOMAIN STACK:
// prometheus/client_golang).
type Metrics struct {
	Enabled bool `yaml:"enabled"`
	// Use BasicAuth for Authorization
	BasicAuth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"basic_auth"`
}

func (c *Metrics) Defaults(generate bool) {
	c.Enabled = false
	if generate {
		c.BasicAuth.Username = "metrics"
		c.BasicAuth.Password = "metrics"
	}
}

func (c *Metrics) Verify(configErrs *ConfigErrors) {}
