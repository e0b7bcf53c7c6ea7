package audio

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 12345, -12345, math.MaxInt16, math.MinInt16}

	encoded := Encode(samples)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("sample %d: expected %d, got %d", i, s, decoded[i])
		}
	}
}

func TestEncodeLittleEndian(t *testing.T) {
	encoded := Encode([]int16{0x0102})

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("encoded data is not valid base64: %v", err)
	}
	if len(raw) != 2 || raw[0] != 0x02 || raw[1] != 0x01 {
		t.Errorf("expected little-endian bytes [02 01], got %v", raw)
	}
}

func TestDecodeInvalidFraming(t *testing.T) {
	if _, err := Decode("not!!valid!!base64"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for invalid framing, got %v", err)
	}
}

func TestDecodeOddByteLength(t *testing.T) {
	odd := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	if _, err := Decode(odd); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for odd byte length, got %v", err)
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0.0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"clamp positive", 1.5, math.MaxInt16},
		{"clamp negative", -1.5, math.MinInt16},
		{"full scale positive clamps", 1.0, math.MaxInt16},
		{"full scale negative", -1.0, math.MinInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quantize([]float32{tt.input})
			if got[0] != tt.expected {
				t.Errorf("Quantize(%f) = %d, expected %d", tt.input, got[0], tt.expected)
			}
		})
	}
}

func TestToPlaybackBufferNormalization(t *testing.T) {
	chunk, err := ToPlaybackBuffer([]int16{-32768, 0, 16384, 32767}, OutputSampleRate, 1)
	if err != nil {
		t.Fatalf("ToPlaybackBuffer failed: %v", err)
	}

	expected := []float32{-1.0, 0.0, 0.5, 32767.0 / 32768.0}
	for i, e := range expected {
		if chunk.Samples[i] != e {
			t.Errorf("sample %d: expected %f, got %f", i, e, chunk.Samples[i])
		}
	}
}

func TestToPlaybackBufferDuration(t *testing.T) {
	// 12000 samples at 24 kHz mono is exactly half a second.
	samples := make([]int16, 12000)
	chunk, err := ToPlaybackBuffer(samples, OutputSampleRate, 1)
	if err != nil {
		t.Fatalf("ToPlaybackBuffer failed: %v", err)
	}

	if chunk.Duration != 500*time.Millisecond {
		t.Errorf("expected 500ms duration, got %v", chunk.Duration)
	}
}

func TestToPlaybackBufferRejectsBadParams(t *testing.T) {
	if _, err := ToPlaybackBuffer([]int16{0}, 0, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := ToPlaybackBuffer([]int16{0}, OutputSampleRate, 0); err == nil {
		t.Error("expected error for zero channel count")
	}
}
