package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/skypro1111/civic-voice-agent/internal/audio"
	"github.com/skypro1111/civic-voice-agent/internal/metrics"
)

// Sender delivers one transport-encoded frame to the remote stream.
// Frames are transmitted in hand-off order.
type Sender interface {
	SendAudio(data, mimeType string) error
}

// Config contains capture pipeline configuration
type Config struct {
	SampleRate int // input rate in Hz
	QueueSize  int // outbound hand-off queue depth
}

// Stats represents capture pipeline counters for monitoring
type Stats struct {
	FramesCaptured uint64 `json:"frames_captured"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
}

// Pipeline quantizes microphone frames to PCM16, encodes them for
// transport, and hands them to the sender. Frames captured before the
// stream is established, or while the sender is saturated, are dropped:
// stale audio has no value in a live conversation.
type Pipeline struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	mimeType string

	senderMu sync.RWMutex
	sender   Sender

	frames  chan string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool
	started bool
	mu      sync.Mutex

	framesCaptured atomic.Uint64
	framesSent     atomic.Uint64
	framesDropped  atomic.Uint64
}

// NewPipeline creates a capture pipeline. The sender is wired later, once
// the remote stream is established.
func NewPipeline(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		config:   cfg,
		logger:   logger,
		metrics:  m,
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", cfg.SampleRate),
		frames:   make(chan string, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sender goroutine that drains the hand-off queue.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped.Load() {
		return
	}
	p.started = true

	p.wg.Add(1)
	go p.run()
}

// SetSender wires the outbound stream. Passing nil detaches it; frames
// captured while detached are dropped silently.
func (p *Pipeline) SetSender(s Sender) {
	p.senderMu.Lock()
	p.sender = s
	p.senderMu.Unlock()
}

// OnFrame is invoked by the audio input backend with one block of
// floating-point samples. It runs on the backend's goroutine and must not
// block: the frame is quantized, encoded, and handed off without waiting.
func (p *Pipeline) OnFrame(samples []float32) {
	if p.stopped.Load() {
		return
	}

	p.framesCaptured.Add(1)
	p.metrics.RecordFrameCaptured()

	p.senderMu.RLock()
	ready := p.sender != nil
	p.senderMu.RUnlock()
	if !ready {
		// Stream not yet established; the remote endpoint tolerates gaps
		// before session negotiation completes.
		p.framesDropped.Add(1)
		p.metrics.RecordFrameDropped()
		return
	}

	encoded := audio.Encode(audio.Quantize(samples))

	select {
	case p.frames <- encoded:
	default:
		p.framesDropped.Add(1)
		p.metrics.RecordFrameDropped()
	}
}

// Stop drains nothing and retries nothing: it halts the sender goroutine
// and causes subsequent OnFrame calls to return immediately. Idempotent.
func (p *Pipeline) Stop() {
	if p.stopped.Swap(true) {
		return
	}
	p.cancel()
	p.wg.Wait()
}

// Stats returns capture counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		FramesCaptured: p.framesCaptured.Load(),
		FramesSent:     p.framesSent.Load(),
		FramesDropped:  p.framesDropped.Load(),
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case encoded := <-p.frames:
			p.senderMu.RLock()
			sender := p.sender
			p.senderMu.RUnlock()

			if sender == nil {
				p.framesDropped.Add(1)
				p.metrics.RecordFrameDropped()
				continue
			}

			if err := sender.SendAudio(encoded, p.mimeType); err != nil {
				p.framesDropped.Add(1)
				p.metrics.RecordFrameDropped()
				p.logger.Debug("Dropped outbound frame",
					slog.String("error", err.Error()),
				)
				continue
			}

			p.framesSent.Add(1)
			p.metrics.RecordFrameSent()
		}
	}
}
