package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/interviewmate/stt-relay/internal/api"
	"github.com/interviewmate/stt-relay/internal/assist"
	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/events"
	"github.com/interviewmate/stt-relay/internal/observability"
	"github.com/interviewmate/stt-relay/internal/relay"
	"github.com/interviewmate/stt-relay/internal/session"
	"github.com/interviewmate/stt-relay/internal/stt"
)

const grpcHealthRefresh = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("deepgram_transport", cfg.DeepgramTransport).
		Str("deepgram_model", cfg.DeepgramModel).
		Bool("deepgram_configured", cfg.HasDeepgramCredentials()).
		Bool("kafka_enabled", cfg.KafkaEnabled).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Transcription relay starting")

	if !cfg.HasDeepgramCredentials() {
		logger.Warn().Msg(stt.MissingAPIKeyMessage)
	}

	manager := session.NewManager(cfg, session.NewDialer(cfg), stt.NewDeepgramNormalizer(), observability.WithComponent("session"))

	var chat assist.Chat
	if openai, err := assist.NewOpenAIChat(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel); err != nil {
		logger.Warn().Err(err).Msg("Chat answers disabled")
	} else {
		chat = openai
	}

	var companies *assist.CompanyStore
	if cfg.CompanyDataFile != "" {
		companies, err = assist.LoadCompanyFile(cfg.CompanyDataFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load company data")
		}
	}

	router := mux.NewRouter()
	relayHandler := relay.NewHandler(cfg, manager)
	router.Handle("/ws/transcribe", relayHandler)
	api.New(chat, companies, nil, observability.WithComponent("api")).Register(router)

	// Readiness checks
	publisherConfig := events.ConfigFrom(cfg)
	checks := map[string]observability.HealthCheckFunc{
		"deepgram": func(ctx context.Context) (bool, error) {
			// Credentials only; a live check would open a billed session.
			if !cfg.HasDeepgramCredentials() {
				return false, errors.New(stt.MissingAPIKeyMessage)
			}
			return true, nil
		},
		"kafka": func(ctx context.Context) (bool, error) {
			return events.CheckBrokers(ctx, publisherConfig)
		},
	}
	router.HandleFunc("/health", observability.HealthCheckHandler()).Methods("GET")
	router.HandleFunc("/ready", observability.ReadinessHandler(checks)).Methods("GET")

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WriteTimeout stays zero: the transcription socket and streamed answers
	// are long-lived.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/transcribe", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthPort != "" {
		grpcHealth := observability.NewGRPCHealth(checks)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}

		g.Go(func() error {
			logger.Info().Str("port", cfg.GRPCHealthPort).Msg("gRPC health server listening")
			return grpcHealth.Serve(lis)
		})
		g.Go(func() error {
			ticker := time.NewTicker(grpcHealthRefresh)
			defer ticker.Stop()
			for {
				refreshCtx, cancel := context.WithTimeout(gctx, 5*time.Second)
				grpcHealth.Refresh(refreshCtx)
				cancel()

				select {
				case <-gctx.Done():
					grpcHealth.Stop()
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return relayHandler.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}
	logger.Info().Msg("Server exited gracefully")
}
