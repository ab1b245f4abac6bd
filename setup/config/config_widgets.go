package config

import "time"

// Widgets configures the widget driver's own behaviour: pending-request
// bounds and the API versions it advertises to widgets (spec §6.6).
type Widgets struct {
	Matrix *Global `yaml:"-"`

	PendingRequests PendingRequestsOptions `yaml:"pending_requests"`

	// SupportedAPIVersions overrides the advertised supported_api_versions
	// list. Left empty, the driver advertises the full spec default set.
	SupportedAPIVersions []string `yaml:"supported_api_versions"`
}

// PendingRequestsOptions configures the PendingRegistry (spec §4.3, §6.6).
type PendingRequestsOptions struct {
	MaxPending int           `yaml:"max_pending"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Widgets) Defaults(generate bool) {
	c.PendingRequests.MaxPending = 128
	c.PendingRequests.Timeout = 30 * time.Second
}

func (c *Widgets) Verify(configErrs *ConfigErrors) {
	checkPositive(configErrs, "widgets.pending_requests.max_pending", int64(c.PendingRequests.MaxPending))
	checkNotZero(configErrs, "widgets.pending_requests.max_pending", int64(c.PendingRequests.MaxPending))
	checkPositive(configErrs, "widgets.pending_requests.timeout", int64(c.PendingRequests.Timeout))
}
