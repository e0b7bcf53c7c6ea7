// Package config loads and validates the YAML service configuration.
// Each section carries its own Validate method; the live API key may be
// supplied via the LIVE_API_KEY environment variable instead of the file.
package config
