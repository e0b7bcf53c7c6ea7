package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/civic-voice-agent/internal/audio"
	"github.com/skypro1111/civic-voice-agent/internal/device"
	"github.com/skypro1111/civic-voice-agent/internal/live"
	"github.com/skypro1111/civic-voice-agent/internal/playback"
)

type fakeStream struct {
	mu        sync.Mutex
	events    chan live.Event
	sent      []string
	closes    int
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan live.Event, 64)}
}

func (s *fakeStream) SendAudio(data, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeStream) Events() <-chan live.Event { return s.events }

func (s *fakeStream) Stats() live.Stats { return live.Stats{} }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		s.events <- live.Event{Type: live.EventClosed}
		close(s.events)
	})
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeDialer struct {
	stream  *fakeStream
	err     error
	dials   int
	blockCh chan struct{} // if set, Dial blocks until closed
	mu      sync.Mutex
}

func (d *fakeDialer) Dial(ctx context.Context) (live.Stream, error) {
	d.mu.Lock()
	d.dials++
	block := d.blockCh
	stream, dialErr := d.stream, d.err
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	if dialErr != nil {
		return nil, dialErr
	}
	return stream, nil
}

type fakeMic struct {
	mu       sync.Mutex
	onFrame  func([]float32)
	attempts int
	starts   int
	stops    int
	running  bool
	err      error
	blockCh  chan struct{} // if set, Start blocks until closed
}

func (m *fakeMic) Start(onFrame func(samples []float32)) error {
	m.mu.Lock()
	m.attempts++
	block := m.blockCh
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.onFrame = onFrame
	m.starts++
	m.running = true
	return nil
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.running = false
	return nil
}

func (m *fakeMic) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *fakeMic) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *fakeMic) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

type fakeOutputHandle struct{ stopped bool }

func (h *fakeOutputHandle) Stop() { h.stopped = true }

type fakeOutput struct {
	mu        sync.Mutex
	now       time.Duration
	scheduled []*fakeOutputHandle
	closes    int
}

func (b *fakeOutput) Now() time.Duration { return b.now }

func (b *fakeOutput) Schedule(samples []float32, sampleRate int, at time.Duration, done func()) (playback.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := &fakeOutputHandle{}
	b.scheduled = append(b.scheduled, h)
	return h, nil
}

func (b *fakeOutput) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *fakeOutput) scheduledCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scheduled)
}

type testSession struct {
	controller *Controller
	stream     *fakeStream
	dialer     *fakeDialer
	mic        *fakeMic
	output     *fakeOutput
}

func startTestSession(t *testing.T) *testSession {
	t.Helper()

	ts := &testSession{
		stream: newFakeStream(),
		mic:    &fakeMic{},
		output: &fakeOutput{},
	}
	ts.dialer = &fakeDialer{stream: ts.stream}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts.controller = NewController("test-session", Config{}, ts.dialer, ts.mic, ts.output, logger, nil)

	if err := ts.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(ts.controller.End)
	return ts
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session teardown")
	}
}

func TestTranscriptFlowAcrossTurns(t *testing.T) {
	ts := startTestSession(t)

	ts.stream.events <- live.Event{Type: live.EventInputTranscript, Text: "Hay un"}
	ts.stream.events <- live.Event{Type: live.EventInputTranscript, Text: " bache"}
	ts.stream.events <- live.Event{Type: live.EventOutputTranscript, Text: "Which street is it on?"}
	ts.stream.events <- live.Event{Type: live.EventTurnComplete}

	waitFor(t, "turn messages", func() bool { return len(ts.controller.Messages()) == 2 })

	messages := ts.controller.Messages()
	if messages[0].Text != "Hay un bache" {
		t.Errorf("expected concatenated user turn, got %q", messages[0].Text)
	}
	if messages[1].Text != "Which street is it on?" {
		t.Errorf("unexpected agent turn %q", messages[1].Text)
	}
	if ts.controller.State() != StateListening {
		t.Errorf("expected session still listening, got %q", ts.controller.State())
	}
	if ts.controller.Ticket() != nil {
		t.Error("ordinary conversation must not produce a ticket")
	}
}

func TestExtractionFinishesSession(t *testing.T) {
	ts := startTestSession(t)

	agentText := `Here is the info {"user_id":"","language":"en","category":"road","description":"pothole","photo_attached":false,"photo_url":""} Your request has been submitted with ticket ID [TICKET_ID_PLACEHOLDER].`
	ts.stream.events <- live.Event{Type: live.EventOutputTranscript, Text: agentText}
	ts.stream.events <- live.Event{Type: live.EventTurnComplete}

	waitDone(t, ts.controller)

	if ts.controller.State() != StateFinished {
		t.Errorf("expected finished state, got %q", ts.controller.State())
	}

	tk := ts.controller.Ticket()
	if tk == nil {
		t.Fatal("expected a ticket to be extracted")
	}
	if tk.Category != "road" {
		t.Errorf("expected category road, got %q", tk.Category)
	}

	confirmation := ts.controller.Confirmation()
	if !strings.Contains(confirmation, tk.TicketID) {
		t.Errorf("confirmation %q does not carry the minted ID", confirmation)
	}

	if ts.mic.stopCount() != 1 {
		t.Errorf("expected microphone released exactly once, got %d", ts.mic.stopCount())
	}
	if ts.stream.closeCount() != 1 {
		t.Errorf("expected stream closed exactly once, got %d", ts.stream.closeCount())
	}
}

func TestMalformedPayloadKeepsSessionAlive(t *testing.T) {
	ts := startTestSession(t)

	ts.stream.events <- live.Event{Type: live.EventOutputTranscript, Text: `Almost {"user_id":"","language":"en" truncated}`}
	ts.stream.events <- live.Event{Type: live.EventTurnComplete}

	waitFor(t, "turn messages", func() bool { return len(ts.controller.Messages()) == 1 })

	if ts.controller.State() != StateListening {
		t.Errorf("malformed payload must not terminate the session, state %q", ts.controller.State())
	}
	if ts.controller.Ticket() != nil {
		t.Error("malformed payload must not produce a ticket")
	}
}

func TestAttachedPhotoOverridesPayload(t *testing.T) {
	ts := startTestSession(t)

	ts.controller.AttachPhoto("file:///tmp/pothole.jpg")

	agentText := `{"user_id":"","language":"en","category":"road","description":"pothole","photo_attached":false,"photo_url":""} Done [TICKET_ID_PLACEHOLDER].`
	ts.stream.events <- live.Event{Type: live.EventOutputTranscript, Text: agentText}
	ts.stream.events <- live.Event{Type: live.EventTurnComplete}

	waitDone(t, ts.controller)

	tk := ts.controller.Ticket()
	if tk == nil {
		t.Fatal("expected a ticket")
	}
	if !tk.PhotoAttached || tk.PhotoURL != "file:///tmp/pothole.jpg" {
		t.Errorf("local photo evidence must override the payload, got %+v", tk.Payload)
	}
}

func TestInboundAudioIsScheduled(t *testing.T) {
	ts := startTestSession(t)

	encoded := audio.Encode(make([]int16, 2400))
	ts.stream.events <- live.Event{Type: live.EventAudio, Audio: encoded}

	waitFor(t, "scheduled chunk", func() bool { return ts.output.scheduledCount() == 1 })

	// An undecodable chunk is dropped without ending the session.
	ts.stream.events <- live.Event{Type: live.EventAudio, Audio: "!!!not-transport-encoded!!!"}
	ts.stream.events <- live.Event{Type: live.EventInterrupted}

	waitFor(t, "interrupt", func() bool {
		ts.output.mu.Lock()
		defer ts.output.mu.Unlock()
		return len(ts.output.scheduled) == 1 && ts.output.scheduled[0].stopped
	})

	if ts.controller.State() != StateListening {
		t.Errorf("interruption must not end the session, state %q", ts.controller.State())
	}
}

func TestStreamErrorIsTerminal(t *testing.T) {
	ts := startTestSession(t)

	ts.stream.events <- live.Event{Type: live.EventError, Err: errors.New("connection reset")}

	waitDone(t, ts.controller)

	if ts.controller.State() != StateError {
		t.Errorf("expected error state, got %q", ts.controller.State())
	}
	if ts.controller.UserMessage() == "" {
		t.Error("expected a user-facing error message")
	}
	if ts.mic.stopCount() != 1 {
		t.Errorf("expected microphone released, got %d stops", ts.mic.stopCount())
	}
}

func TestUnexpectedCloseReleasesResources(t *testing.T) {
	ts := startTestSession(t)

	ts.stream.closeOnce.Do(func() { close(ts.stream.events) })

	waitDone(t, ts.controller)

	if !ts.controller.Released() {
		t.Error("expected resources released after unexpected close")
	}
	if ts.controller.Ticket() != nil {
		t.Error("unexpected close must not emit a payload")
	}
	if ts.controller.State() != StateFinished {
		t.Errorf("expected finished state after unexpected close, got %q", ts.controller.State())
	}
}

func TestEndIsIdempotentAndConcurrencySafe(t *testing.T) {
	ts := startTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.controller.End()
		}()
	}
	wg.Wait()
	ts.controller.End()

	if ts.mic.stopCount() != 1 {
		t.Errorf("expected microphone released exactly once, got %d", ts.mic.stopCount())
	}
	ts.output.mu.Lock()
	closes := ts.output.closes
	ts.output.mu.Unlock()
	if closes != 1 {
		t.Errorf("expected output backend closed exactly once, got %d", closes)
	}
}

func TestMicrophoneFailureIsUserVisible(t *testing.T) {
	mic := &fakeMic{err: device.ErrPermissionDenied}
	dialer := &fakeDialer{stream: newFakeStream()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController("mic-fail", Config{}, dialer, mic, &fakeOutput{}, logger, nil)

	err := c.Start(context.Background())
	if !errors.Is(err, device.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}

	if c.State() != StateError {
		t.Errorf("expected error state, got %q", c.State())
	}
	if !strings.Contains(c.UserMessage(), "microphone") {
		t.Errorf("expected microphone permission message, got %q", c.UserMessage())
	}
	if dialer.dials != 0 {
		t.Error("stream must not be dialed when the microphone fails")
	}
}

func TestDialFailureReleasesMicrophone(t *testing.T) {
	mic := &fakeMic{}
	dialer := &fakeDialer{err: live.ErrConnectivity}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController("dial-fail", Config{}, dialer, mic, &fakeOutput{}, logger, nil)

	if err := c.Start(context.Background()); !errors.Is(err, live.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}

	if c.State() != StateError {
		t.Errorf("expected error state, got %q", c.State())
	}
	if mic.stopCount() != 1 {
		t.Errorf("expected microphone released after dial failure, got %d stops", mic.stopCount())
	}
}

func TestEndRacingPendingDialStillTearsDown(t *testing.T) {
	stream := newFakeStream()
	block := make(chan struct{})
	dialer := &fakeDialer{stream: stream, blockCh: block}
	mic := &fakeMic{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController("race", Config{}, dialer, mic, &fakeOutput{}, logger, nil)

	startErr := make(chan error, 1)
	go func() { startErr <- c.Start(context.Background()) }()

	waitFor(t, "dial in flight", func() bool {
		dialer.mu.Lock()
		defer dialer.mu.Unlock()
		return dialer.dials == 1
	})

	c.End()
	close(block) // let the pending open resolve

	if err := <-startErr; err != nil {
		t.Fatalf("Start after racing End should not fail, got %v", err)
	}

	waitFor(t, "stream released", func() bool { return stream.closeCount() == 1 })
	if mic.stopCount() != 1 {
		t.Errorf("expected microphone released exactly once, got %d", mic.stopCount())
	}
}

func TestEndRacingPendingMicAcquisitionStillReleases(t *testing.T) {
	block := make(chan struct{})
	mic := &fakeMic{blockCh: block}
	dialer := &fakeDialer{stream: newFakeStream()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController("mic-race", Config{}, dialer, mic, &fakeOutput{}, logger, nil)

	startErr := make(chan error, 1)
	go func() { startErr <- c.Start(context.Background()) }()

	waitFor(t, "mic acquisition in flight", func() bool { return mic.attemptCount() == 1 })

	c.End()
	close(block) // let the pending acquisition resolve

	if err := <-startErr; err != nil {
		t.Fatalf("Start after racing End should not fail, got %v", err)
	}

	if mic.isRunning() {
		t.Error("microphone left acquired after the racing End resolved")
	}

	dialer.mu.Lock()
	dials := dialer.dials
	dialer.mu.Unlock()
	if dials != 0 {
		t.Error("stream must not be dialed once the session has ended")
	}
}
