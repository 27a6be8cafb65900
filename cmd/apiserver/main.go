// Command apiserver is PANfm's northbound HTTP process: it serves the JSON
// API over internal/apiserver and blocks until SIGINT or SIGTERM. Wiring
// style mirrors cmd/scheduler and, further back, the teacher's
// cmd/server/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/panfm/panfm/internal/apiserver"
	"github.com/panfm/panfm/internal/config"
	"github.com/panfm/panfm/internal/devicecrypto"
	"github.com/panfm/panfm/internal/logging"
	"github.com/panfm/panfm/internal/notify"
	"github.com/panfm/panfm/internal/obsmetrics"
	"github.com/panfm/panfm/internal/otelx"
	"github.com/panfm/panfm/internal/store"
)

func main() {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(ctx, store.DefaultConfig(cfg.DatabaseURL), logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot reach database at startup")
	}
	defer st.Close()

	var cipher *devicecrypto.Cipher
	if cfg.DeviceAPIKeyEncryptionKeyFile != "" {
		cipher, err = devicecrypto.LoadFromFile(cfg.DeviceAPIKeyEncryptionKeyFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot load device API key encryption key")
		}
	}

	reg := prometheus.NewRegistry()
	metrics := obsmetrics.New(reg)
	dispatcher := notify.New(st, logger)

	tracerCfg := otelx.DefaultConfig()
	tracerCfg.Enabled = cfg.TracingEnabled
	tracerCfg.ExporterType = otelx.ExporterType(cfg.TracingExporter)
	tracerCfg.OTLPEndpoint = cfg.TracingOTLPEndpoint
	tracerCfg.SampleRate = cfg.TracingSampleRate
	tracer, err := otelx.New(context.Background(), tracerCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot build tracer")
	}
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = tracer.Shutdown(shutCtx)
	}()

	apiCfg := apiserver.DefaultConfig()
	apiCfg.Addr = cfg.APIServerAddr
	apiCfg.APIKey = cfg.APIKey
	apiCfg.MetricsPath = cfg.MetricsPath

	srv := apiserver.New(apiCfg, st, dispatcher, cipher, reg, metrics, tracer, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("cannot start api server")
	}

	logger.Info().Str("addr", cfg.APIServerAddr).Msg("api server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down api server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during api server shutdown")
		os.Exit(1)
	}

	logger.Info().Msg("api server stopped")
}
