package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/skypro1111/civic-voice-agent/internal/device"
	"github.com/skypro1111/civic-voice-agent/internal/live"
	"github.com/skypro1111/civic-voice-agent/internal/metrics"
	"github.com/skypro1111/civic-voice-agent/internal/playback"
)

// ErrSessionActive indicates a start attempt while a previous session
// still holds the microphone, audio backends, or stream handle.
var ErrSessionActive = errors.New("a session is already active")

// BackendFactories construct fresh device backends for each session; the
// microphone and playback devices are owned by exactly one session at a
// time.
type BackendFactories struct {
	NewInput  func() device.InputBackend
	NewOutput func() (playback.OutputBackend, error)
}

// Manager owns the single active session and enforces the shared-resource
// policy: a new session must not start until the previous one has fully
// released its resources.
type Manager struct {
	config    Config
	dialer    live.Dialer
	factories BackendFactories
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	current *Controller
}

// NewManager creates a session manager.
func NewManager(cfg Config, dialer live.Dialer, factories BackendFactories,
	logger *slog.Logger, m *metrics.Metrics) *Manager {

	return &Manager{
		config:    cfg,
		dialer:    dialer,
		factories: factories,
		logger:    logger,
		metrics:   m,
	}
}

// StartSession creates and starts a new session. The returned controller
// is retained as the current session even when Start fails, so its
// terminal error state stays observable.
func (m *Manager) StartSession(ctx context.Context) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Released() {
		return nil, ErrSessionActive
	}

	output, err := m.factories.NewOutput()
	if err != nil {
		return nil, fmt.Errorf("opening playback backend: %w", err)
	}

	c := NewController(uuid.NewString(), m.config, m.dialer,
		m.factories.NewInput(), output, m.logger, m.metrics)
	m.current = c

	if err := c.Start(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Current returns the current session, or nil if none was ever started.
func (m *Manager) Current() *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// EndSession tears down the current session if one is live.
func (m *Manager) EndSession() {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current != nil {
		current.End()
	}
}
