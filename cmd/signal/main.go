package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"livecast/internal/core/services"
	"livecast/internal/infrastructure/monitoring"
	"livecast/internal/infrastructure/repositories"
	signalrelay "livecast/internal/infrastructure/signal"
	"livecast/pkg/config"
	"livecast/pkg/logger"
	"livecast/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := os.Getenv("LIVECAST_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	metricsService := services.NewMetricsService()
	streamService := services.NewStreamService(
		repoFactory.CreateStreamRepository(),
		repoFactory.CreateViewerRepository(),
		metricsService,
	)

	collector := monitoring.NewPrometheusCollector()

	relayOpts := []signalrelay.RelayServerOption{
		signalrelay.WithKeepalive(cfg.Signal.PingInterval, cfg.Signal.PongTimeout, cfg.Signal.WriteTimeout),
		signalrelay.WithMaxMessageBytes(cfg.Signal.MaxMessageBytes),
		signalrelay.WithMetrics(collector),
	}
	if cfg.RateLimiting.Enabled {
		relayOpts = append(relayOpts, signalrelay.WithEnvelopeRateLimit(
			cfg.RateLimiting.WebSocket.EnvelopesPerSecond,
			cfg.RateLimiting.WebSocket.Burst,
		))
	}
	relay := signalrelay.NewRelayServer(streamService, zapLogger, relayOpts...)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 2*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relay.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := healthChecker.CheckAll(r.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		broadcasters, viewers := relay.ConnectionCounts()
		w.Write([]byte(`{"status":"` + status.Status +
			`","broadcasters":` + strconv.Itoa(broadcasters) +
			`,"viewers":` + strconv.Itoa(viewers) + `}`))
	})
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling relay", "address", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("signaling relay failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during relay shutdown", "error", err)
		srv.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during tracing shutdown", "error", err)
	}

	log.Info("signaling relay stopped")
}
