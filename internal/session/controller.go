package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/civic-voice-agent/internal/audio"
	"github.com/skypro1111/civic-voice-agent/internal/capture"
	"github.com/skypro1111/civic-voice-agent/internal/device"
	"github.com/skypro1111/civic-voice-agent/internal/live"
	"github.com/skypro1111/civic-voice-agent/internal/metrics"
	"github.com/skypro1111/civic-voice-agent/internal/playback"
	"github.com/skypro1111/civic-voice-agent/internal/ticket"
	"github.com/skypro1111/civic-voice-agent/internal/transcript"
)

// State is the session lifecycle state. Finished and error are terminal
// for a session instance; a new instance is created for a new request.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateFinished   State = "finished"
	StateError      State = "error"
)

// Config contains per-session parameters
type Config struct {
	InputSampleRate  int
	OutputSampleRate int
	CaptureQueueSize int
}

// Controller owns one live conversation: the microphone, the playback
// backend, the remote stream handle, and the session state. It is the sole
// writer of session state and the only component that can terminate the
// others.
type Controller struct {
	id      string
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	dialer live.Dialer
	mic    device.InputBackend

	pipeline   *capture.Pipeline
	scheduler  *playback.Scheduler
	aggregator *transcript.Aggregator
	extractor  *ticket.Extractor

	mu           sync.RWMutex
	state        State
	lastErr      error
	userMsg      string
	photo        string
	ticket       *ticket.Ticket
	confirmation string
	stream       live.Stream
	startedAt    time.Time
	ended        bool

	endOnce sync.Once
	done    chan struct{}
}

// NewController creates a session over the given collaborators. The output
// backend must already be open; the microphone and stream are acquired by
// Start.
func NewController(id string, cfg Config, dialer live.Dialer, mic device.InputBackend,
	output playback.OutputBackend, logger *slog.Logger, m *metrics.Metrics) *Controller {

	if cfg.InputSampleRate == 0 {
		cfg.InputSampleRate = audio.InputSampleRate
	}
	if cfg.OutputSampleRate == 0 {
		cfg.OutputSampleRate = audio.OutputSampleRate
	}

	logger = logger.With(slog.String("session_id", id))

	return &Controller{
		id:      id,
		config:  cfg,
		logger:  logger,
		metrics: m,
		dialer:  dialer,
		mic:     mic,
		pipeline: capture.NewPipeline(capture.Config{
			SampleRate: cfg.InputSampleRate,
			QueueSize:  cfg.CaptureQueueSize,
		}, logger, m),
		scheduler:  playback.NewScheduler(output, logger, m),
		aggregator: transcript.NewAggregator(),
		extractor:  ticket.NewExtractor(logger, m),
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// Start transitions idle → listening: it acquires the microphone, opens
// the remote stream, and wires capture output to the stream and stream
// events to the playback scheduler and transcript aggregator. On failure
// the session transitions to error with a user-facing message and no
// partial resources are left open.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session %s already started", c.id)
	}
	c.state = StateListening
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.metrics.RecordSessionStarted()
	c.logger.Info("Session starting")

	micErr := c.mic.Start(c.pipeline.OnFrame)

	// End may have raced the acquisition; its mic.Stop ran before the
	// backend handed the device over, so release the resolved handle here.
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		if micErr == nil {
			if err := c.mic.Stop(); err != nil {
				c.logger.Warn("Error releasing microphone", slog.String("error", err.Error()))
			}
		}
		return nil
	}
	c.mu.Unlock()

	if micErr != nil {
		c.fail(micErr, "Could not access the microphone. Please check your permissions.")
		c.End()
		return micErr
	}
	c.pipeline.Start()

	stream, err := c.dialer.Dial(ctx)
	if err != nil {
		c.fail(err, "Could not connect to the assistant. Please try again.")
		c.End()
		return err
	}

	// End may have raced the dial. Tear the fresh stream down instead of
	// leaking it, and leave the session in whatever state End left it.
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		stream.Close()
		return nil
	}
	c.stream = stream
	c.mu.Unlock()

	c.pipeline.SetSender(stream)

	go c.eventLoop(stream)

	c.logger.Info("Session listening")
	return nil
}

// End tears the session down: it closes the remote stream handle if open,
// stops the capture pipeline, tears down the playback scheduler, and
// releases the microphone. Idempotent and safe to call from any state,
// multiple times, or concurrently with an in-flight teardown. A failure
// closing one resource never prevents closing the others.
func (c *Controller) End() {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.ended = true
		stream := c.stream
		c.stream = nil
		startedAt := c.startedAt
		c.mu.Unlock()

		if stream != nil {
			if err := stream.Close(); err != nil {
				c.logger.Warn("Error closing live stream", slog.String("error", err.Error()))
			}
		}

		c.pipeline.Stop()

		if err := c.scheduler.Close(); err != nil {
			c.logger.Warn("Error closing playback scheduler", slog.String("error", err.Error()))
		}

		if err := c.mic.Stop(); err != nil {
			c.logger.Warn("Error releasing microphone", slog.String("error", err.Error()))
		}

		if !startedAt.IsZero() {
			c.metrics.RecordSessionEnded(time.Since(startedAt))
		}
		close(c.done)

		c.logger.Info("Session ended")
	})
}

// Done is closed once the session has been torn down.
func (c *Controller) Done() <-chan struct{} { return c.done }

// AttachPhoto stores an opaque image reference supplied by the photo
// upload collaborator. Local evidence of an attachment later overrides
// whatever the extracted payload claims about photo presence.
func (c *Controller) AttachPhoto(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.photo = ref
	c.logger.Info("Photo attached to session")
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the recorded terminal error, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// UserMessage returns the plain-language message for a terminal error.
func (c *Controller) UserMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userMsg
}

// Ticket returns the extracted ticket, or nil. At most one ticket exists
// per session.
func (c *Controller) Ticket() *ticket.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticket
}

// Confirmation returns the user-facing confirmation message once a ticket
// has been extracted.
func (c *Controller) Confirmation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.confirmation
}

// Messages returns the finalized transcript log.
func (c *Controller) Messages() []transcript.Message {
	return c.aggregator.Messages()
}

// StartedAt returns when the session started listening.
func (c *Controller) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// CaptureStats returns capture pipeline counters.
func (c *Controller) CaptureStats() capture.Stats {
	return c.pipeline.Stats()
}

// Released reports whether the session has fully released the microphone,
// audio backends, and stream handle. A new session must not start before
// this is true.
func (c *Controller) Released() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// eventLoop processes inbound stream events strictly in arrival order.
// Running every event on one goroutine serializes all mutation of the
// aggregator, scheduler, and session state against the stream.
func (c *Controller) eventLoop(stream live.Stream) {
	for ev := range stream.Events() {
		c.handleEvent(ev)
	}

	// The channel closing without an explicit close event still means the
	// stream is gone.
	c.handleEvent(live.Event{Type: live.EventClosed})
}

func (c *Controller) handleEvent(ev live.Event) {
	c.metrics.RecordStreamEvent(string(ev.Type))

	switch ev.Type {
	case live.EventInputTranscript:
		c.aggregator.AppendUser(ev.Text)

	case live.EventOutputTranscript:
		c.aggregator.AppendAgent(ev.Text)

	case live.EventTurnComplete:
		c.completeTurn()

	case live.EventAudio:
		c.playChunk(ev.Audio)

	case live.EventInterrupted:
		c.scheduler.Interrupt()

	case live.EventError:
		c.fail(ev.Err, "An error occurred with the connection.")
		c.End()

	case live.EventClosed:
		c.handleClose()
	}
}

func (c *Controller) completeTurn() {
	messages, agentText := c.aggregator.CompleteTurn()
	c.metrics.RecordTurnCompleted(len(messages))

	if agentText == "" {
		return
	}

	c.mu.RLock()
	photo := c.photo
	alreadyExtracted := c.ticket != nil
	c.mu.RUnlock()
	if alreadyExtracted {
		return
	}

	tk, confirmation, ok := c.extractor.Extract(agentText, photo)
	if !ok {
		return
	}

	c.mu.Lock()
	c.ticket = tk
	c.confirmation = confirmation
	c.state = StateProcessing
	c.mu.Unlock()

	// The conversation is over once a payload is extracted; no further
	// capture or playback is meaningful.
	c.End()
	c.setState(StateFinished)

	c.logger.Info("Session finished",
		slog.String("ticket_id", tk.TicketID),
	)
}

func (c *Controller) playChunk(data string) {
	samples, err := audio.Decode(data)
	if err != nil {
		// Malformed inbound audio must never interrupt the live session.
		c.logger.Warn("Dropping undecodable audio chunk", slog.String("error", err.Error()))
		return
	}

	chunk, err := audio.ToPlaybackBuffer(samples, c.config.OutputSampleRate, 1)
	if err != nil {
		c.logger.Warn("Dropping unplayable audio chunk", slog.String("error", err.Error()))
		return
	}

	if err := c.scheduler.Enqueue(chunk); err != nil {
		c.logger.Warn("Failed to schedule audio chunk", slog.String("error", err.Error()))
	}
}

func (c *Controller) handleClose() {
	c.mu.RLock()
	terminal := c.state == StateFinished || c.state == StateError
	c.mu.RUnlock()
	if terminal {
		return
	}

	c.logger.Warn("Live stream closed unexpectedly")
	c.End()
	c.setState(StateFinished)
}

func (c *Controller) fail(err error, userMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.userMsg = userMsg
	c.state = StateError

	c.logger.Error("Session error", slog.String("error", err.Error()))
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateError {
		return
	}
	c.state = s
}
