// Command paygate serves a pay-per-query chat endpoint gated by on-chain
// micropayments, with a rate-limited free tier.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/paygate"
	"github.com/vitwit/paygate/handlers"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/middleware"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "paygate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := utils.LoadGateConfigFromEnv(nil)
	if err != nil {
		return err
	}

	log, err := logger.NewZapLogger(config.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var (
		recorder metrics.Recorder = metrics.NoopRecorder{}
		registry                  = prometheus.NewRegistry()
	)
	if config.EnableMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder, err = metrics.NewPrometheusRecorder(registry)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	gate, err := paygate.New(config,
		paygate.WithLogger(log),
		paygate.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := gate.Close(); err != nil {
			log.Warn("failed to close gate", logger.Fields{"error": err})
		}
	}()

	mux, err := newMux(config, gate, handlers.EchoResponder{Delay: time.Second}, log, recorder, registry)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           middleware.RequestID(middleware.Recovery(log)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      config.ChainTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("starting paygate", logger.Fields{
		"listen_addr":      config.ListenAddr,
		"network":          config.Network.String(),
		"price":            gate.PriceDisplay(),
		"payment_address":  config.PaymentAddress,
		"chain_source":     chainSource(config),
		"redis":            config.Redis.Enabled(),
		"rate_limit_max":   config.RateLimitMax,
		"rate_limit_every": config.RateLimitWindow.String(),
		"metrics":          config.EnableMetrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newMux(config *types.GateConfig, gate *paygate.PayGate, responder handlers.Responder, log logger.Logger, rec metrics.Recorder, registry *prometheus.Registry) (*http.ServeMux, error) {
	var paymentOpts []middleware.PaymentOption
	if len(config.TrustedProxies) > 0 {
		resolve, err := middleware.TrustedProxies(config.TrustedProxies)
		if err != nil {
			return nil, &types.GateError{Code: types.ErrConfigError, Message: err.Error()}
		}
		paymentOpts = append(paymentOpts, middleware.WithClientIP(resolve))
	}

	chat := handlers.NewChatHandler(responder, log)
	wallet := handlers.NewWalletAuthHandler(nil, log)
	health := handlers.NewHealthHandler(paygate.Version, map[string]handlers.Pinger{"store": gate})

	chatRoute := middleware.CORS(middleware.Metrics(rec, "chat")(
		chat.RequireMessage(middleware.Payment(gate, log, paymentOpts...)(chat)),
	))

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", chatRoute)
	mux.Handle("OPTIONS /api/chat", chatRoute)
	mux.Handle("POST /api/auth/wallet", middleware.CORS(middleware.Metrics(rec, "wallet")(wallet)))
	mux.Handle("OPTIONS /api/auth/wallet", middleware.CORS(wallet))
	mux.Handle("GET /healthz", health)

	if config.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return mux, nil
}

func chainSource(config *types.GateConfig) string {
	if config.RPCUrl != "" {
		return "rpc"
	}
	return "explorer"
}
