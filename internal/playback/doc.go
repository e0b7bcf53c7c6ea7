// Package playback schedules inbound synthesized speech for gapless
// sequential rendering against a real output clock, with immediate
// cancellation on barge-in interruptions.
package playback
