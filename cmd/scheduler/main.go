// Command scheduler is PANfm's polling process: it owns the Collector, the
// Alert Engine, and the Notification Dispatcher, and blocks until SIGINT or
// SIGTERM. Wiring style (flag/env config, signal handling, 30s graceful
// shutdown) is grounded on the teacher's cmd/server/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panfm/panfm/internal/alerting"
	"github.com/panfm/panfm/internal/collector"
	"github.com/panfm/panfm/internal/config"
	"github.com/panfm/panfm/internal/devicecrypto"
	"github.com/panfm/panfm/internal/firewall"
	"github.com/panfm/panfm/internal/logging"
	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/notify"
	"github.com/panfm/panfm/internal/obsmetrics"
	"github.com/panfm/panfm/internal/otelx"
	"github.com/panfm/panfm/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
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

	cipher, err := devicecrypto.LoadFromFile(cfg.DeviceAPIKeyEncryptionKeyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load device API key encryption key")
	}

	reg := prometheus.NewRegistry()
	metrics := obsmetrics.New(reg)

	dispatcher := notify.New(st, logger)
	engine := alerting.New(st, dispatcher, logger, metrics)

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

	clientFactory := func(d model.Device) (firewall.Client, error) {
		apiKey, err := cipher.Decrypt(d.EncryptedAPIKey)
		if err != nil {
			return nil, fmt.Errorf("decrypting api key for device %s: %w", d.ID, err)
		}
		return firewall.NewHTTPClient(firewall.DefaultConfig(d.ManagementEndpoint, apiKey)), nil
	}

	sched := collector.New(collector.DefaultConfig(), st, clientFactory, engine, logger, metrics, tracer)
	sched.Start(context.Background())

	logger.Info().Msg("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down scheduler")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	sched.Stop(shutdownCtx)

	logger.Info().Msg("scheduler stopped")
}
