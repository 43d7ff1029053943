// agentdesk - conversational agent server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/agentdesk/internal/api"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/conversation"
	"github.com/ashureev/agentdesk/internal/health"
	"github.com/ashureev/agentdesk/internal/llm"
	"github.com/ashureev/agentdesk/internal/middleware"
	"github.com/ashureev/agentdesk/internal/shared"
	"github.com/ashureev/agentdesk/internal/speech"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/telemetry"
	"github.com/ashureev/agentdesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// openAIMaxRetries bounds SDK-level retries of speech requests.
const openAIMaxRetries = 2

func main() {
	healthcheck := flag.Bool("healthcheck", false, "query the gRPC health server and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if *healthcheck {
		os.Exit(runHealthcheck(cfg))
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to flush telemetry", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics(tel.Meter)
	if err != nil {
		slog.Error("Failed to create metrics", "error", err)
		os.Exit(1)
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, store.WithRetryPolicy(shared.RetryPolicy{
		MaxRetries: cfg.Retry.DatabaseMaxRetries,
		BaseDelay:  cfg.Retry.DatabaseRetryBaseDelay,
	}))
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	gen := newGenerator(ctx, cfg)
	sp := newSpeech(cfg)

	styles := conversation.DefaultStyles()
	if cfg.StylesFile != "" {
		styles, err = conversation.LoadStyles(cfg.StylesFile)
		if err != nil {
			slog.Error("Failed to load response styles", "path", cfg.StylesFile, "error", err)
			os.Exit(1)
		}
	}

	conversationLogger, err := conversation.NewConversationLogger(conversation.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := conversationLogger.Close(); err != nil {
			slog.Error("Failed to close conversation logger", "error", err)
		}
	}()

	conv := conversation.NewService(repo, gen, sp,
		conversation.WithStyles(styles),
		conversation.WithConversationLogger(conversationLogger),
		conversation.WithMetrics(metrics),
		conversation.WithTracer(tel.Tracer),
		conversation.WithHistoryWindow(cfg.HistoryWindow),
	)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, gen != nil, sp != nil)
	agentHandler := api.NewAgentHandler(repo, cfg.MaxRequestBodyBytes)
	chatHandler := api.NewChatHandler(conv, cfg.MaxRequestBodyBytes, cfg.MaxAudioUploadBytes)
	voiceHandler := api.NewVoiceSocketHandler(conv, cfg.AllowedOrigins, cfg.IsDevelopment(), cfg.MaxAudioUploadBytes)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Route("/api/v1", func(r chi.Router) {
		agentHandler.RegisterRoutes(r)
		chatHandler.RegisterRoutes(r)
		r.Get("/sessions/voice-ws", voiceHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "agentdesk"),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var grpcHealth *health.Server
	if cfg.GRPCHealthAddr != "" {
		grpcHealth = health.NewServer(repo, health.WithLogger(logger))
		go func() {
			if err := grpcHealth.ListenAndServe(ctx, cfg.GRPCHealthAddr); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newGenerator returns nil when no generation backend is configured; text
// turns then fail with "LLM provider not available".
func newGenerator(ctx context.Context, cfg *config.Config) llm.Provider {
	g, err := llm.NewGenkit(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		slog.Warn("LLM provider disabled", "provider", cfg.LLM.Provider, "error", err)
		return nil
	}
	return g
}

// newSpeech returns nil when neither transcription nor synthesis is
// configured.
func newSpeech(cfg *config.Config) speech.Provider {
	var (
		stt speech.Transcriber
		tts speech.Synthesizer
	)

	openAI, err := speech.NewOpenAI(speech.OpenAIConfig{
		APIKey:     cfg.Speech.OpenAIAPIKey,
		BaseURL:    cfg.Speech.OpenAIBaseURL,
		STTModel:   cfg.Speech.STTModel,
		Language:   cfg.Speech.STTLanguage,
		TTSModel:   cfg.Speech.TTSModel,
		Voice:      cfg.Speech.TTSVoice,
		MaxRetries: openAIMaxRetries,
	})
	if err != nil {
		slog.Warn("OpenAI speech disabled", "error", err)
	} else {
		stt = openAI
		tts = openAI
	}

	if cfg.UseElevenLabs() {
		el, err := speech.NewElevenLabs(speech.ElevenLabsConfig{
			APIKey:       cfg.Speech.ElevenLabsAPIKey,
			VoiceID:      cfg.Speech.ElevenLabsVoiceID,
			ModelID:      cfg.Speech.ElevenLabsModelID,
			OutputFormat: cfg.Speech.ElevenLabsOutputFormat,
			BaseURL:      cfg.Speech.ElevenLabsBaseURL,
		})
		if err != nil {
			slog.Warn("ElevenLabs synthesis disabled", "error", err)
		} else {
			tts = el
		}
	}

	if stt == nil && tts == nil {
		slog.Warn("Speech features disabled: no speech provider configured")
		return nil
	}
	slog.Info("Speech configured", "stt", stt != nil, "tts", tts != nil, "elevenlabs", cfg.UseElevenLabs())
	return speech.NewService(stt, tts)
}

func runHealthcheck(cfg *config.Config) int {
	addr := cfg.GRPCHealthAddr
	if addr == "" {
		fmt.Fprintln(os.Stderr, "GRPC_HEALTH_ADDR is not set")
		return 1
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := health.Probe(ctx, addr, health.ServiceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}
