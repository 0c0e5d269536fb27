// Package config loads and validates the gateway's YAML configuration.
//
// Files support ${VAR} environment expansion and human-readable duration
// strings ("30s", "5m") that are parsed into time.Duration values on load.
// Every field has a default; a config file only needs to state what differs.
package config
