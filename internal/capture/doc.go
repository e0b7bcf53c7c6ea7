// Package capture turns continuous microphone input into a sequence of
// transport-encoded outbound frames. The audio backend drives the pipeline
// on its own cadence; the pipeline never blocks the capture callback and
// never queues stale frames for retry.
package capture
