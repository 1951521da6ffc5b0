// Package config loads the tasksd runtime configuration from a JSON or YAML
// file, applies environment overrides and fills in defaults.
package config
