// Package device provides the local audio backend interfaces and
// subprocess-based implementations that read microphone PCM from a capture
// command's stdout and feed playback PCM to a renderer command's stdin.
package device
