package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/skypro1111/civic-voice-agent/internal/playback"
)

// ErrPermissionDenied indicates the microphone device could not be
// acquired. User-visible and terminal for the session; no retry.
var ErrPermissionDenied = errors.New("microphone access denied")

// InputBackend is a live microphone source. Start begins invoking onFrame
// with fixed-size blocks of floating-point samples on the backend's own
// goroutine; the callback must not be blocked by the consumer.
type InputBackend interface {
	Start(onFrame func(samples []float32)) error
	Stop() error
}

// InputConfig contains capture device configuration
type InputConfig struct {
	Command    []string // e.g. arecord -q -f S16_LE -r 16000 -c 1 -t raw
	SampleRate int
	BlockSize  int // samples per callback
}

// ExecInput reads S16LE PCM from a capture subprocess.
type ExecInput struct {
	config InputConfig
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	started  bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewExecInput creates a subprocess-backed microphone source.
func NewExecInput(cfg InputConfig, logger *slog.Logger) *ExecInput {
	return &ExecInput{config: cfg, logger: logger, done: make(chan struct{})}
}

// Start launches the capture command and begins delivering frames.
// Failure to launch maps to ErrPermissionDenied: on workstations the
// capture command fails exactly when device access is refused.
func (in *ExecInput) Start(onFrame func(samples []float32)) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.started {
		return fmt.Errorf("input backend already started")
	}
	if len(in.config.Command) == 0 {
		return fmt.Errorf("%w: no capture command configured", ErrPermissionDenied)
	}

	cmd := exec.Command(in.config.Command[0], in.config.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	in.cmd = cmd
	in.stdout = stdout
	in.started = true

	go in.readLoop(onFrame)

	in.logger.Info("Microphone capture started",
		slog.String("command", in.config.Command[0]),
		slog.Int("sample_rate", in.config.SampleRate),
		slog.Int("block_size", in.config.BlockSize),
	)

	return nil
}

// Stop terminates the capture subprocess. Idempotent.
func (in *ExecInput) Stop() error {
	in.mu.Lock()
	cmd := in.cmd
	stdout := in.stdout
	started := in.started
	in.mu.Unlock()

	if !started {
		return nil
	}

	in.stopOnce.Do(func() {
		if stdout != nil {
			stdout.Close()
		}
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
		close(in.done)
	})

	return nil
}

func (in *ExecInput) readLoop(onFrame func(samples []float32)) {
	frameBytes := in.config.BlockSize * 2
	buf := make([]byte, frameBytes)

	for {
		select {
		case <-in.done:
			return
		default:
		}

		if _, err := io.ReadFull(in.stdout, buf); err != nil {
			select {
			case <-in.done:
			default:
				in.logger.Warn("Microphone capture ended",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		samples := make([]float32, in.config.BlockSize)
		for i := range samples {
			s := int16(buf[i*2]) | int16(buf[i*2+1])<<8
			samples[i] = float32(s) / 32768.0
		}
		onFrame(samples)
	}
}

// OutputConfig contains playback device configuration
type OutputConfig struct {
	Command    []string // e.g. ffplay -autoexit -nodisp -f s16le -ar 24000 -i -
	SampleRate int
}

// ExecOutput renders scheduled chunks by writing S16LE PCM to a playback
// subprocess. It implements playback.OutputBackend with a wall-clock
// timeline measured from Open.
type ExecOutput struct {
	config OutputConfig
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time
	opened    bool
	closeOnce sync.Once
	closed    chan struct{}
}

// NewExecOutput creates a subprocess-backed playback sink.
func NewExecOutput(cfg OutputConfig, logger *slog.Logger) *ExecOutput {
	return &ExecOutput{config: cfg, logger: logger, closed: make(chan struct{})}
}

// Open launches the playback command and starts the output clock.
func (out *ExecOutput) Open() error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.opened {
		return fmt.Errorf("output backend already opened")
	}
	if len(out.config.Command) == 0 {
		return fmt.Errorf("no playback command configured")
	}

	cmd := exec.Command(out.config.Command[0], out.config.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open playback device: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open playback device: %w", err)
	}

	out.cmd = cmd
	out.stdin = stdin
	out.startedAt = time.Now()
	out.opened = true

	out.logger.Info("Playback device opened",
		slog.String("command", out.config.Command[0]),
		slog.Int("sample_rate", out.config.SampleRate),
	)

	return nil
}

// Now returns the output clock as an offset from Open.
func (out *ExecOutput) Now() time.Duration {
	out.mu.Lock()
	defer out.mu.Unlock()
	if !out.opened {
		return 0
	}
	return time.Since(out.startedAt)
}

type execHandle struct {
	cancel   chan struct{}
	stopOnce sync.Once
}

func (h *execHandle) Stop() {
	h.stopOnce.Do(func() { close(h.cancel) })
}

// Schedule waits until the requested start offset, writes the chunk to the
// playback subprocess, and invokes done after the chunk's duration has
// elapsed. A stopped handle skips whatever remains.
func (out *ExecOutput) Schedule(samples []float32, sampleRate int, at time.Duration, done func()) (playback.Handle, error) {
	out.mu.Lock()
	if !out.opened {
		out.mu.Unlock()
		return nil, fmt.Errorf("output backend not open")
	}
	out.mu.Unlock()

	handle := &execHandle{cancel: make(chan struct{})}

	go func() {
		if wait := at - out.Now(); wait > 0 {
			select {
			case <-time.After(wait):
			case <-handle.cancel:
				return
			case <-out.closed:
				return
			}
		}

		select {
		case <-handle.cancel:
			return
		case <-out.closed:
			return
		default:
		}

		raw := make([]byte, len(samples)*2)
		for i, s := range samples {
			v := int16(s * 32768)
			raw[i*2] = byte(v)
			raw[i*2+1] = byte(uint16(v) >> 8)
		}

		out.mu.Lock()
		stdin := out.stdin
		out.mu.Unlock()
		if stdin != nil {
			if _, err := stdin.Write(raw); err != nil {
				out.logger.Warn("Playback write failed",
					slog.String("error", err.Error()),
				)
			}
		}

		duration := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
		select {
		case <-time.After(duration):
			done()
		case <-handle.cancel:
		case <-out.closed:
		}
	}()

	return handle, nil
}

// Close terminates the playback subprocess. Idempotent.
func (out *ExecOutput) Close() error {
	out.closeOnce.Do(func() {
		close(out.closed)

		out.mu.Lock()
		stdin := out.stdin
		cmd := out.cmd
		out.stdin = nil
		out.mu.Unlock()

		if stdin != nil {
			stdin.Close()
		}
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	})
	return nil
}
