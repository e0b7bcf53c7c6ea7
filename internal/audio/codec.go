package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// InputSampleRate is the microphone capture rate in Hz.
	InputSampleRate = 16000

	// OutputSampleRate is the synthesized speech playback rate in Hz.
	OutputSampleRate = 24000

	// CaptureBlockSize is the number of samples per capture callback.
	CaptureBlockSize = 4096

	bytesPerSample = 2
)

// ErrMalformedPayload indicates transport bytes that cannot be decoded
// back into PCM16 samples.
var ErrMalformedPayload = errors.New("malformed audio payload")

// Encode packs PCM16 samples into little-endian bytes and wraps them in the
// base64 transport framing. Pure and deterministic.
func Encode(samples []int16) string {
	raw := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(uint16(s) >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode unwraps the base64 transport framing and unpacks little-endian
// bytes into PCM16 samples. Returns ErrMalformedPayload if the framing is
// invalid or the byte length is not a multiple of 2.
func Decode(data string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transport framing: %v", ErrMalformedPayload, err)
	}

	if len(raw)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: byte length must be even, got %d", ErrMalformedPayload, len(raw))
	}

	samples := make([]int16, len(raw)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}

	return samples, nil
}

// Quantize converts floating-point samples in [-1.0, 1.0] to PCM16 by
// rounding s*32768 and clamping to the signed 16-bit range.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// PlaybackChunk is a decoded buffer of audio ready for scheduling.
type PlaybackChunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// ToPlaybackBuffer normalizes PCM16 samples to floating-point [-1.0, 1.0]
// and computes the chunk duration. Only mono audio flows through this
// system, but the channel count is honored for correctness.
func ToPlaybackBuffer(samples []int16, sampleRate, channels int) (*PlaybackChunk, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}

	frames := len(samples) / channels
	duration := time.Duration(frames) * time.Second / time.Duration(sampleRate)

	return &PlaybackChunk{
		Samples:    out,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   duration,
	}, nil
}
