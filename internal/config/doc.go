// Package config loads, normalizes, and validates TOML configuration for the
// audiobook pipeline. Defaults apply when no configuration file exists, so
// the CLI always starts with a usable config.
package config
