package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/bridge"
	"github.com/mjasion/balena-home/smarthouse/config"
	"github.com/mjasion/balena-home/smarthouse/frame"
	"github.com/mjasion/balena-home/smarthouse/health"
	"github.com/mjasion/balena-home/smarthouse/pkg/profiling"
	"github.com/mjasion/balena-home/smarthouse/pkg/telemetry"
	"github.com/mjasion/balena-home/smarthouse/relay"
	"github.com/mjasion/balena-home/smarthouse/serialdev"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("c", "config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the configuration")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			panic("Failed to load " + *envFile + ": " + err.Error())
		}
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger, err := cfg.NewLogger()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}

	logger.Info("Loading configuration", zap.String("path", *configPath))
	cfg.PrintConfig(logger)
	logger.Debug("Configuration loaded successfully", zap.Any("config", cfg.Redacted()))

	if err := run(cfg, logger); err != nil {
		logger.Error("Bridge stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Initialize Pyroscope profiling
	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			logger.Error("Error shutting down profiler", zap.Error(err))
		}
	}()

	// Initialize OpenTelemetry providers
	otelProviders, err := telemetry.InitProviders(context.Background(), &cfg.OpenTelemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down OpenTelemetry providers", zap.Error(err))
		}
	}()

	instruments, err := telemetry.NewInstruments("smarthouse-bridge")
	if err != nil {
		return err
	}
	stats := bridge.NewStats(instruments)

	schema, err := cfg.Schema()
	if err != nil {
		return err
	}
	parser, err := frame.NewParser(schema)
	if err != nil {
		return err
	}

	// Set up signal handling
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	port, err := serialdev.Open(ctx, serialdev.Config{
		Device:      cfg.Serial.Device,
		BaudRate:    cfg.Serial.BaudRate,
		SettleDelay: cfg.Serial.SettleDelay(),
	}, logger)
	if err != nil {
		return err
	}
	defer port.Close()

	store, pusher, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}

	rel := relay.New(relay.Config{
		Addr:           cfg.Relay.Addr,
		ProbeToken:     cfg.Relay.ProbeToken,
		ReadBufferSize: cfg.Relay.ReadBufferSize,
	}, port, logger, relay.WithObserver(stats))
	if err := rel.Listen(); err != nil {
		closeSinks(store, logger)
		return err
	}

	lines := serialdev.NewLineSource(port, cfg.Serial.MaxLineBytes)
	acc := frame.NewAccumulator(schema.StartPrefix, schema.CompletionMarker, cfg.Frame.MaxLines)
	b := bridge.New(lines, acc, parser, store, logger, bridge.WithStats(stats))

	var pushStatus health.PushStatus
	if pusher != nil {
		pushStatus = pusher
	}
	healthChecker := health.NewChecker(health.Config{
		Port:           cfg.HealthCheckPort,
		StaleAfter:     time.Duration(cfg.HealthStaleSeconds) * time.Second,
		PushStaleAfter: 3 * time.Duration(cfg.Sinks.RemoteWrite.PushIntervalSeconds) * time.Second,
	}, stats, pushStatus, logger)

	reporter, err := bridge.NewReporter(cfg.Stats.Schedule, stats, logger)
	if err != nil {
		rel.Close()
		closeSinks(store, logger)
		return err
	}

	var (
		wg        sync.WaitGroup
		ingestErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		ingestErr = b.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := rel.Serve(ctx); err != nil {
			logger.Error("Relay stopped", zap.Error(err))
		}
	}()

	if pusher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pusher.Run(ctx)
		}()
	}

	// Start health check server in background
	go func() {
		if err := healthChecker.Start(); err != nil {
			logger.Error("Health check server error", zap.Error(err))
		}
	}()

	reporter.Start()

	logger.Info("Service started",
		zap.String("serial_device", port.Name()),
		zap.String("relay_addr", rel.Addr().String()),
		zap.String("frame_schema", schema.Name))

	<-ctx.Done()
	if sigCtx.Err() != nil {
		logger.Info("Received shutdown signal")
	}

	// Closing the port unblocks the ingestion read
	cancel()
	if err := rel.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("Relay listener close", zap.Error(err))
	}
	if err := port.Close(); err != nil {
		logger.Warn("Error closing serial port", zap.Error(err))
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	reporter.Stop(shutdownCtx)
	if err := healthChecker.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping health check server", zap.Error(err))
	}
	closeSinks(store, logger)
	reporter.Report()

	if ingestErr != nil {
		return ingestErr
	}
	logger.Info("Shutdown complete")
	return nil
}
