// Package config loads, normalizes and validates the TOML configuration
// shared by the broker operator, the stores and the pump.
package config
