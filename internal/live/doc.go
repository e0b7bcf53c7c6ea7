// Package live implements the client for the remote conversational
// endpoint: a bidirectional WebSocket stream that accepts transport-encoded
// audio frames and emits transcription, audio, turn-boundary, interruption,
// error, and close events. Inbound events are delivered over a single
// ordered channel so the session controller can process them sequentially.
package live
