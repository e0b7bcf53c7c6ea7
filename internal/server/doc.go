// Package server implements the HTTP monitoring and management API: health
// checks, current session inspection, the mocked ticket-status lookup, and
// the Prometheus metrics endpoint.
package server
