package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/artifact"
	"github.com/notewell/meeting-recorder/internal/config"
	"github.com/notewell/meeting-recorder/internal/gateway"
	"github.com/notewell/meeting-recorder/internal/notify"
	"github.com/notewell/meeting-recorder/internal/observability"
	"github.com/notewell/meeting-recorder/internal/recorder"
	"github.com/notewell/meeting-recorder/internal/resilience"
	"github.com/notewell/meeting-recorder/internal/session"
	"github.com/notewell/meeting-recorder/internal/store"
	"github.com/notewell/meeting-recorder/internal/summary"
	"github.com/notewell/meeting-recorder/internal/transcription"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Bool("save_audio", cfg.SaveAudio).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Meeting Recorder Service starting")

	ctx := context.Background()

	// Meeting store: Redis when configured, in-memory otherwise.
	meetingStore, storeCheck, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize meeting store")
	}

	// Artifact storage, only when audio retention is on.
	saver, err := buildSaver(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize artifact storage")
	}

	engine := transcription.NewDeepgramEngine(transcription.DeepgramOptions{
		APIKey:              cfg.DeepgramAPIKey,
		Model:               cfg.DeepgramModel,
		Language:            cfg.DeepgramLanguage,
		RequestTimeout:      time.Duration(cfg.DeepgramTimeoutSeconds) * time.Second,
		BreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
		BreakerResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
	}, logger)

	summarizer := summary.NewChatSummarizer(summary.ChatOptions{
		APIKey:      cfg.SummaryAPIKey,
		BaseURL:     cfg.SummaryBaseURL,
		Model:       cfg.SummaryModel,
		Temperature: cfg.SummaryTemperature,
		MaxTokens:   cfg.SummaryMaxTokens,
		Timeout:     time.Duration(cfg.SummaryTimeoutSeconds) * time.Second,
	}, logger)

	var notifier notify.Sink = notify.Discard{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookSink(
			cfg.NotifyWebhookURL,
			cfg.NotifyToken,
			time.Duration(cfg.NotifyTimeoutSeconds)*time.Second,
			logger,
		)
	} else {
		logger.Warn().Msg("no notification webhook configured, summaries will not be delivered")
	}

	sessionOpts := session.Options{
		MinParticipants: cfg.MinimumMeetingParticipants,
		Recorder: recorder.Options{
			SilenceTimeout: time.Duration(cfg.SilenceTimeoutSeconds * float64(time.Second)),
			MinSilence:     time.Duration(cfg.MinSilenceMs) * time.Millisecond,
			ThresholdDB:    cfg.SilenceThresholdDB,
			SourceRate:     cfg.SourceSampleRate,
			SourceChannels: cfg.SourceChannels,
			SaveAudio:      cfg.SaveAudio,
		},
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}

	gw := gateway.New(func() gateway.CallHandler {
		return session.New(sessionOpts, meetingStore, engine, summarizer, notifier, saver, observability.WithCorrelationID(""))
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/streams/calls", gw.Handler())
	mux.HandleFunc("/health", observability.HealthCheckHandler(version))
	mux.HandleFunc("/ready", observability.ReadinessHandler(version, map[string]observability.HealthCheckFunc{
		"store": storeCheck,
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/calls", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// buildStore selects the meeting store backend. Redis connection
// attempts are retried with backoff; a cold Redis at deploy time
// should not crash-loop the service.
func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.MeetingStore, observability.HealthCheckFunc, error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("using in-memory meeting store")
		healthy := func(context.Context) error { return nil }
		return store.NewMemoryStore(), healthy, nil
	}

	var rs *store.RedisStore
	err := resilience.Reconnect(ctx, func() error {
		var connErr error
		rs, connErr = store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return connErr
	}, &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis meeting store")
	return rs, rs.Ping, nil
}

// buildSaver selects the artifact backend when audio retention is on.
func buildSaver(ctx context.Context, cfg *config.Config) (artifact.Saver, error) {
	if !cfg.SaveAudio {
		return nil, nil
	}
	if cfg.MinIOEndpoint != "" {
		return artifact.NewMinIOStore(ctx, artifact.MinIOOptions{
			Endpoint:        cfg.MinIOEndpoint,
			AccessKeyID:     cfg.MinIOAccessKey,
			SecretAccessKey: cfg.MinIOSecretKey,
			UseSSL:          cfg.MinIOUseSSL,
			Bucket:          cfg.MinIOBucket,
		})
	}
	return artifact.NewLocalStore(cfg.AudioPath)
}
