// Package config implements the widget driver's YAML configuration,
// following the teacher's per-component Defaults()/Verify() convention:
// each config block knows its own defaults and validates itself into a
// shared ConfigErrors accumulator rather than failing fast on the first
// problem.
package config

import (
	"fmt"
	"strings"
)

// Path is a filesystem path read from YAML. It is its own type (rather than
// a bare string) so config structs document intent at the field level.
type Path string

// ConfigErrors collects every problem found while verifying a loaded
// config, so a user sees all of them in a single run instead of fixing one
// mistake at a time and re-running.
type ConfigErrors []string

func (e *ConfigErrors) Add(err string) {
	*e = append(*e, err)
}

func (e ConfigErrors) Error() string {
	return strings.Join(e, "\n")
}

func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d must be positive", key, value))
	}
}

func checkNotZero(configErrs *ConfigErrors, key string, value int64) {
	if value == 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d must not be zero", key, value))
	}
}
