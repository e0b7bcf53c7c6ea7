package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectivity indicates the remote stream failed to open or errored
// mid-session. Terminal; there is no automatic retry.
var ErrConnectivity = errors.New("live stream connectivity error")

// ErrStreamClosed indicates a send on a stream that has been closed.
var ErrStreamClosed = errors.New("live stream closed")

// Config contains live endpoint client configuration
type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string
	ConnectTimeout    time.Duration
}

// Stats represents live stream counters for monitoring
type Stats struct {
	FramesSent     uint64 `json:"frames_sent"`
	EventsReceived uint64 `json:"events_received"`
}

// Stream is one open bidirectional connection to the remote endpoint.
// Events are delivered in arrival order on a single channel, which is
// closed after the final EventClosed.
type Stream interface {
	SendAudio(data, mimeType string) error
	Events() <-chan Event
	Stats() Stats
	Close() error
}

// Dialer opens streams to the remote endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Client dials the remote conversational endpoint over WebSocket.
type Client struct {
	config Config
	logger *slog.Logger
}

// NewClient creates a live endpoint client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("live endpoint cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("live model cannot be empty")
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	return &Client{config: cfg, logger: logger}, nil
}

// Dial opens the WebSocket connection, sends the session setup message,
// and starts the read loop. The returned stream is ready for audio frames.
func (c *Client) Dial(ctx context.Context) (Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.ConnectTimeout}

	header := http.Header{}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, c.config.Endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %d)",
				ErrConnectivity, c.config.Endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectivity, c.config.Endpoint, err)
	}

	s := &wsStream{
		conn:   conn,
		logger: c.logger,
		events: make(chan Event, 64),
	}

	setup := clientMessage{Setup: &setupMessage{
		Model:                    c.config.Model,
		SystemInstruction:        c.config.SystemInstruction,
		Voice:                    c.config.Voice,
		ResponseModalities:       []string{"AUDIO"},
		InputAudioTranscription:  true,
		OutputAudioTranscription: true,
	}}
	if err := s.writeJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: session setup: %v", ErrConnectivity, err)
	}

	c.logger.Info("Live stream opened",
		slog.String("endpoint", c.config.Endpoint),
		slog.String("model", c.config.Model),
	)

	go s.readLoop()

	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan Event

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once

	framesSent     atomic.Uint64
	eventsReceived atomic.Uint64
}

// SendAudio transmits one transport-encoded audio frame. Frames are
// written in call order; the transport preserves send ordering.
func (s *wsStream) SendAudio(data, mimeType string) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}

	msg := clientMessage{RealtimeInput: &realtimeInput{
		Media: mediaBlob{Data: data, MimeType: mimeType},
	}}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}

	s.framesSent.Add(1)
	return nil
}

// Events returns the ordered inbound event channel.
func (s *wsStream) Events() <-chan Event {
	return s.events
}

// Stats returns stream counters.
func (s *wsStream) Stats() Stats {
	return Stats{
		FramesSent:     s.framesSent.Load(),
		EventsReceived: s.eventsReceived.Load(),
	}
}

// Close shuts down the connection. Idempotent; the read loop then emits
// the final EventClosed and closes the event channel.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) writeJSON(msg clientMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *wsStream) readLoop() {
	defer close(s.events)

	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.closed.Load() || websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(Event{Type: EventClosed})
				return
			}

			s.logger.Warn("Live stream read failed",
				slog.String("error", err.Error()),
			)
			s.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %v", ErrConnectivity, err)})
			s.emit(Event{Type: EventClosed})
			return
		}

		s.translate(&msg)
	}
}

// translate fans one wire message out into ordered events. Within a single
// message: transcription fragments first, then the turn boundary, then
// audio, then interruption.
func (s *wsStream) translate(msg *serverMessage) {
	if msg.Error != nil {
		s.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %s", ErrConnectivity, msg.Error.Message)})
		return
	}

	content := msg.ServerContent
	if content == nil {
		return
	}

	if content.InputTranscription != nil {
		s.emit(Event{Type: EventInputTranscript, Text: content.InputTranscription.Text})
	}
	if content.OutputTranscription != nil {
		s.emit(Event{Type: EventOutputTranscript, Text: content.OutputTranscription.Text})
	}
	if content.TurnComplete {
		s.emit(Event{Type: EventTurnComplete})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				s.emit(Event{
					Type:     EventAudio,
					Audio:    part.InlineData.Data,
					MimeType: part.InlineData.MimeType,
				})
			}
		}
	}
	if content.Interrupted {
		s.emit(Event{Type: EventInterrupted})
	}
}

func (s *wsStream) emit(ev Event) {
	s.eventsReceived.Add(1)
	s.events <- ev
}
