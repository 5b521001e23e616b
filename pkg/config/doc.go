// Package config defines the gateway's configuration document and its
// loading pipeline: YAML file, defaults, environment overrides,
// validation.
//
// The same file carries the ordered policies: list consumed by the
// policy engine, so a single document configures the whole gateway
// and a single file watch covers policy hot reload.
package config
