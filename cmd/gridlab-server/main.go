// Command gridlab-server runs the WebSocket room server: the TCP
// listener that upgrades connections, resolves them to a grid room by
// x-grid-id, and fans out accepted changes to every other peer in that
// room.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/adred-codev/gridlab/internal/config"
	"github.com/adred-codev/gridlab/internal/logging"
	"github.com/adred-codev/gridlab/internal/metrics"
	"github.com/adred-codev/gridlab/internal/room"
	"github.com/adred-codev/gridlab/internal/wsserver"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set GOMAXPROCS: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	metricsRegistry := metrics.NewRegistry()
	sampler := metrics.NewSystemSampler(metricsRegistry, cfg.Metrics.SampleInterval)

	hook := buildAuditHook(cfg.NATS, logger)

	server := wsserver.New(cfg.Server.Host, cfg.Server.Port, logger,
		wsserver.WithMetrics(metricsRegistry),
		wsserver.WithAuditHook(hook),
		wsserver.WithHandshakeTimeout(cfg.Server.HandshakeTimeout),
		wsserver.WithOutboundQueueSize(cfg.Server.OutboundQueueSize),
		wsserver.WithDebugEventLogging(cfg.Logging.Level == "debug"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sampler.Run(ctx)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("wsserver start failed", zap.Error(err))
	}

	httpErrCh := make(chan error, 1)
	if cfg.Metrics.Enabled {
		go func() {
			httpErrCh <- runDiagnosticsServer(ctx, cfg, metricsRegistry, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("diagnostics server error", zap.Error(err))
		}
		stop()
	}

	server.Stop()
	logger.Info("wsserver stopped")
}

func buildAuditHook(cfg config.NATSConfig, logger *zap.Logger) room.SnapshotHook {
	if cfg.URL == "" {
		return nil
	}
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		logger.Warn("nats connect failed, audit hook disabled", zap.Error(err))
		return nil
	}
	logger.Info("audit hook connected", zap.String("url", cfg.URL))
	return room.NewNATSAuditHook(conn, cfg.SubjectPrefix)
}

func runDiagnosticsServer(ctx context.Context, cfg config.Config, registry *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	mux.Handle(cfg.Metrics.Endpoint, registry.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("diagnostics server starting", zap.String("addr", cfg.Metrics.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("diagnostics server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
