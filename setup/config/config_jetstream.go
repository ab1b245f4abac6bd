package config

import "fmt"

// JetStream configures the NATS JetStream deployment the orchestrator
// subscribes to for room updates (spec §4.5).
type JetStream struct {
	Matrix *Global `yaml:"-"`

	// A list of NATS addresses to connect to. If none are specified, an
	// internal, in-process NATS server is started instead.
	Addresses []string `yaml:"addresses"`

	// The prefix to use for stream names, useful when more than one widget
	// driver shares a NATS deployment.
	TopicPrefix string `yaml:"topic_prefix"`

	// Persistent storage path for the embedded NATS server's JetStream
	// files. Ignored when Addresses is non-empty (an external NATS server
	// is being used) or when InMemory is true.
	StoragePath Path `yaml:"storage_path"`

	// InMemory forces the embedded NATS server to use in-memory storage
	// instead of the filesystem, for tests and short-lived driver
	// instances.
	InMemory bool `yaml:"in_memory"`
}

func (k *JetStream) TopicFor(name string) string {
	return fmt.Sprintf("%s%s", k.TopicPrefix, name)
}

func (c *JetStream) Defaults(generate bool) {
	c.Addresses = []string{}
	c.TopicPrefix = "WidgetDriver"
	if generate {
		c.StoragePath = "./jetstream"
	}
}

func (c *JetStream) Verify(configErrs *ConfigErrors) {
	if len(c.Addresses) == 0 && !c.InMemory {
		checkNotEmpty(configErrs, "global.jetstream.storage_path", string(c.StoragePath))
	}
}
