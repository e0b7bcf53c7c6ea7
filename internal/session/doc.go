// Package session owns the conversation lifecycle: it acquires the
// microphone and playback backends, opens the remote live stream, routes
// inbound events through the transcript aggregator, payload extractor, and
// playback scheduler, and tears everything down idempotently. All inbound
// events are processed sequentially on a single loop, so session state
// needs no fine-grained locking against the stream.
package session
