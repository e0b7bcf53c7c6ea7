package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/civic-voice-agent/internal/audio"
	"github.com/skypro1111/civic-voice-agent/internal/metrics"
)

// Handle is an opaque reference to a scheduled chunk that can be stopped
// before or during playback.
type Handle interface {
	Stop()
}

// OutputBackend is the device-facing side of the scheduler. Now reports
// the output clock as an offset from backend start. Schedule arranges for
// the samples to begin rendering at the given clock offset and invokes
// done (on its own goroutine, after Schedule returns) once the chunk has
// finished playing or been stopped.
type OutputBackend interface {
	Now() time.Duration
	Schedule(samples []float32, sampleRate int, at time.Duration, done func()) (Handle, error)
	Close() error
}

// Scheduler renders inbound audio chunks back-to-back with no silence and
// no overlap. The cursor tracks where the next chunk should begin; it is
// monotonically non-decreasing except when reset by an interruption.
type Scheduler struct {
	backend OutputBackend
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	cursor time.Duration
	active map[uint64]Handle
	nextID uint64
	closed bool
}

// NewScheduler creates a scheduler on top of the given output backend.
func NewScheduler(backend OutputBackend, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		backend: backend,
		logger:  logger,
		metrics: m,
		active:  make(map[uint64]Handle),
	}
}

// Enqueue schedules a decoded chunk to start at max(now, cursor) and
// advances the cursor past it. Chunks arriving in bursts queue back-to-back;
// chunks arriving late begin immediately. After Close, chunks are silently
// discarded: audio arriving after teardown is a safe no-op, not a fault.
func (s *Scheduler) Enqueue(chunk *audio.PlaybackChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("Discarding chunk after scheduler teardown",
			slog.Duration("duration", chunk.Duration),
		)
		return nil
	}

	start := s.backend.Now()
	if s.cursor > start {
		start = s.cursor
	}

	id := s.nextID
	s.nextID++

	handle, err := s.backend.Schedule(chunk.Samples, chunk.SampleRate, start, func() {
		s.remove(id)
	})
	if err != nil {
		s.logger.Error("Failed to schedule playback chunk",
			slog.Duration("start", start),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.active[id] = handle
	s.cursor = start + chunk.Duration
	s.metrics.RecordChunkScheduled(chunk.Duration)

	return nil
}

// Interrupt stops every active chunk immediately, clears the active set,
// and resets the cursor to zero so a fresh response starts from the current
// clock instead of a stale future cursor. The session itself continues.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, handle := range s.active {
		handle.Stop()
		delete(s.active, id)
	}
	s.cursor = 0
	s.metrics.RecordInterruption()

	s.logger.Debug("Playback interrupted, cursor reset")
}

// Close stops all active chunks and closes the output backend. Idempotent
// and safe to call multiple times.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for id, handle := range s.active {
		handle.Stop()
		delete(s.active, id)
	}
	s.mu.Unlock()

	return s.backend.Close()
}

// Cursor returns the next playback start offset.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// ActiveCount returns the number of currently scheduled chunks.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
