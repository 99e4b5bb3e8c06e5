package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helllo-ai/voice-bridge/internal/config"
	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/notify"
	"github.com/helllo-ai/voice-bridge/internal/observability"
	"github.com/helllo-ai/voice-bridge/internal/resilience"
	"github.com/helllo-ai/voice-bridge/internal/server"
	"github.com/helllo-ai/voice-bridge/internal/session"
	"github.com/helllo-ai/voice-bridge/internal/store"
	"github.com/helllo-ai/voice-bridge/internal/telephony"
	"github.com/helllo-ai/voice-bridge/internal/tenant"
)

func main() {
	host := flag.String("host", "", "bind host (overrides HOST)")
	port := flag.String("port", "", "bind port (overrides PORT)")
	basePath := flag.String("path", "", "base WebSocket path (overrides BASE_WS_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		// Use stderr for fatal errors before the logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *basePath != "" {
		cfg.BasePath = *basePath
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("base_path", cfg.BasePath).
		Str("default_tenant", cfg.DefaultTenant).
		Str("live_model", cfg.GeminiLiveModel).
		Msg("Voice Bridge starting")

	ctx := context.Background()

	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to persistence")
	}
	defer st.Close()

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryBackoff(),
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	llmClient, err := llm.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiLiveModel, cfg.GeminiAnalysisModel, cfg.GeminiVoice, retryCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM client")
	}

	cache := tenant.NewCache(st, cfg.DefaultTenant, logger)
	cache.Preload(ctx, []string{cfg.DefaultTenant})

	restClient := telephony.NewRestClient(cfg.ExotelAPIKey, cfg.ExotelAPIToken, cfg.ExotelAccountSid, cfg.ExotelSubdomain, retryCfg, logger)
	if !restClient.Configured() {
		logger.Warn().Msg("Exotel REST credentials not configured; call detail fetch disabled")
	}

	provider := notify.NewProvider(cfg.MSG91AuthKey, cfg.MSG91IntegratedNumber, cfg.MSG91TemplateNamespace, retryCfg, logger)
	metrics := observability.NewCallMetrics("process")
	dispatcher := notify.NewDispatcher(provider, llmClient, st, cfg.DefaultOwnerPhone, cfg.DefaultCountryCode, metrics, logger)

	deps := session.Deps{
		Cfg:        cfg,
		Cache:      cache,
		LLM:        llmClient,
		Store:      st,
		Rest:       restClient,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}

	bridge := server.New(deps, cfg.BasePath, logger)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.BasePath, bridge.Handler())
	mux.HandleFunc(cfg.BasePath+"/", bridge.Handler())
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"postgres": func(ctx context.Context) (bool, error) {
			if err := st.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"msg91": func(ctx context.Context) (bool, error) {
			if !provider.Configured() {
				return false, fmt.Errorf("MSG91 auth key not configured")
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("endpoint", fmt.Sprintf("ws://%s:%s%s", cfg.Host, cfg.Port, cfg.BasePath)).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
