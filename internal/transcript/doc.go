// Package transcript accumulates incremental transcription fragments for the
// user and agent sides of a conversation and finalizes them into immutable
// messages at turn boundaries. Partial state is never exposed outside a turn.
package transcript
