package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/civic-voice-agent/internal/config"
	"github.com/skypro1111/civic-voice-agent/internal/metrics"
	"github.com/skypro1111/civic-voice-agent/internal/session"
	"github.com/skypro1111/civic-voice-agent/internal/ticket"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	sessions *session.Manager
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, sessions *session.Manager, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		sessions:  sessions,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Current conversation session
	mux.HandleFunc("/session", h.withMetrics("/session", h.handleSession))

	// Mocked ticket-status lookup
	mux.HandleFunc("/tickets/", h.withMetrics("/tickets/{id}", h.handleTicketStatus))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionState := string(session.StateIdle)
	if current := h.sessions.Current(); current != nil {
		sessionState = string(current.State())
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "civic-voice-agent",
			"version": "1.0.0",
		},
		"session_state": sessionState,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// sessionView is the JSON projection of the current session
type sessionView struct {
	ID           string      `json:"id"`
	State        string      `json:"state"`
	StartedAt    time.Time   `json:"started_at"`
	Transcript   interface{} `json:"transcript"`
	Ticket       interface{} `json:"ticket,omitempty"`
	Confirmation string      `json:"confirmation,omitempty"`
	Error        string      `json:"error,omitempty"`
	Capture      interface{} `json:"capture"`
}

// handleSession implements the /session endpoint
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	current := h.sessions.Current()
	if current == nil {
		http.Error(w, "No session has been started", http.StatusNotFound)
		return
	}

	view := sessionView{
		ID:           current.ID(),
		State:        string(current.State()),
		StartedAt:    current.StartedAt(),
		Transcript:   current.Messages(),
		Confirmation: current.Confirmation(),
		Capture:      current.CaptureStats(),
	}
	if tk := current.Ticket(); tk != nil {
		view.Ticket = tk
	}
	if current.UserMessage() != "" {
		view.Error = current.UserMessage()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// handleTicketStatus implements the /tickets/{id} endpoint. The lookup is
// mocked: only the ticket minted by the current session resolves, and the
// status record is canned.
func (h *HTTPServer) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ticketID := r.URL.Path[len("/tickets/"):]
	if ticketID == "" {
		http.Error(w, "Ticket ID required", http.StatusBadRequest)
		return
	}

	current := h.sessions.Current()
	if current == nil || current.Ticket() == nil || current.Ticket().TicketID != ticketID {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket.MockStatus(ticketID))
}

// handleConfig implements the /config endpoint with sensitive values redacted
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	redacted := *h.config
	if redacted.Live.APIKey != "" {
		redacted.Live.APIKey = "***"
	}

	response := map[string]interface{}{
		"audio":   redacted.Audio,
		"capture": redacted.Capture,
		"live": map[string]interface{}{
			"endpoint":        redacted.Live.Endpoint,
			"api_key":         redacted.Live.APIKey,
			"model":           redacted.Live.Model,
			"voice":           redacted.Live.Voice,
			"connect_timeout": redacted.Live.ConnectTimeout,
		},
		"http":    redacted.HTTP,
		"logging": redacted.Logging,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	doc := map[string]interface{}{
		"service": "civic-voice-agent",
		"endpoints": map[string]string{
			"/health":       "Service health and current session state",
			"/session":      "Current conversation session detail",
			"/tickets/{id}": "Mocked ticket-status lookup",
			"/config":       "Active configuration (redacted)",
			"/metrics":      "Prometheus metrics",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
