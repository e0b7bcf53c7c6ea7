package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skypro1111/civic-voice-agent/internal/config"
	"github.com/skypro1111/civic-voice-agent/internal/device"
	"github.com/skypro1111/civic-voice-agent/internal/live"
	"github.com/skypro1111/civic-voice-agent/internal/metrics"
	"github.com/skypro1111/civic-voice-agent/internal/playback"
	"github.com/skypro1111/civic-voice-agent/internal/server"
	"github.com/skypro1111/civic-voice-agent/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "civic-voice-agent"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	photoPath := flag.String("photo", "", "Path to a photo to attach to the service request")
	flag.Parse()

	// Load environment overrides from .env if present
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("live_endpoint", cfg.Live.Endpoint),
		slog.String("live_model", cfg.Live.Model),
		slog.Int("input_sample_rate", cfg.Audio.InputSampleRate),
		slog.Int("output_sample_rate", cfg.Audio.OutputSampleRate),
		slog.Int("block_size", cfg.Audio.BlockSize),
		slog.Int("capture_queue_size", cfg.Capture.QueueSize),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the live endpoint client
	client, err := live.NewClient(live.Config{
		Endpoint:          cfg.Live.Endpoint,
		APIKey:            cfg.Live.APIKey,
		Model:             cfg.Live.Model,
		Voice:             cfg.Live.Voice,
		SystemInstruction: live.DefaultSystemInstruction,
		ConnectTimeout:    cfg.Live.GetConnectTimeout(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create live client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Session manager with subprocess-backed audio devices
	factories := session.BackendFactories{
		NewInput: func() device.InputBackend {
			return device.NewExecInput(device.InputConfig{
				Command:    cfg.Device.InputCommand,
				SampleRate: cfg.Audio.InputSampleRate,
				BlockSize:  cfg.Audio.BlockSize,
			}, logger)
		},
		NewOutput: func() (playback.OutputBackend, error) {
			out := device.NewExecOutput(device.OutputConfig{
				Command:    cfg.Device.OutputCommand,
				SampleRate: cfg.Audio.OutputSampleRate,
			}, logger)
			if err := out.Open(); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
	sessions := session.NewManager(session.Config{
		InputSampleRate:  cfg.Audio.InputSampleRate,
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		CaptureQueueSize: cfg.Capture.QueueSize,
	}, client, factories, logger, appMetrics)
	logger.Info("Session manager initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sessions, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Start the conversation session
	controller, err := sessions.StartSession(ctx)
	if err != nil {
		logger.Error("Failed to start session", slog.String("error", err.Error()))
		if controller != nil && controller.UserMessage() != "" {
			fmt.Fprintln(os.Stderr, controller.UserMessage())
		}
		os.Exit(1)
	}

	if *photoPath != "" {
		controller.AttachPhoto(*photoPath)
		logger.Info("Photo attached to session", slog.String("path", *photoPath))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Session started, speak to file a service request",
		slog.String("session_id", controller.ID()),
	)

	// Wait for the session to finish or a shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		sessions.EndSession()
		<-controller.Done()
	case <-controller.Done():
		logger.Info("Session finished")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Report the session outcome
	printOutcome(controller)

	stats := controller.CaptureStats()
	logger.Info("Final session statistics",
		slog.String("state", string(controller.State())),
		slog.Uint64("frames_captured", stats.FramesCaptured),
		slog.Uint64("frames_sent", stats.FramesSent),
		slog.Uint64("frames_dropped", stats.FramesDropped),
		slog.Int("transcript_messages", len(controller.Messages())),
	)

	logger.Info("Service stopped")
}

// printOutcome writes the user-facing session result to stdout.
func printOutcome(c *session.Controller) {
	switch c.State() {
	case session.StateFinished:
		if tk := c.Ticket(); tk != nil {
			fmt.Printf("Service request filed: %s (%s)\n", tk.TicketID, tk.Category)
			if c.Confirmation() != "" {
				fmt.Println(c.Confirmation())
			}
		} else {
			fmt.Println("Session ended without a filed service request.")
		}
	case session.StateError:
		if msg := c.UserMessage(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
