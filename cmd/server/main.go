package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tonyukuk-playground/internal/api"
	"tonyukuk-playground/internal/config"
	"tonyukuk-playground/internal/monitor"
	"tonyukuk-playground/internal/playground"
	"tonyukuk-playground/internal/sandbox"
	"tonyukuk-playground/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid default config")
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		log.Fatal().Err(err).Msg("invalid port in environment")
	}
	// A numeric first argument overrides the port, as in `playground 8082`.
	if len(os.Args) > 1 {
		if err := cfg.SetPort(os.Args[1]); err != nil {
			log.Warn().Str("arg", os.Args[1]).Msg("ignoring non-numeric port argument")
		}
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitor.NewMetrics()

	runner := sandbox.NewExecRunner(cfg.Sandbox.CaptureLimit)
	isolator, err := sandbox.NewIsolator(ctx, cfg, runner)
	if err != nil {
		log.Fatal().Err(err).Str("isolator", cfg.Sandbox.Isolator).Msg("failed to initialize isolator")
	}

	// Initialize database (optional, the playground runs without it)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		} else {
			defer db.Close()
			if err := db.EnsureSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("audit schema unavailable, audit logging disabled")
				db.Close()
				db = nil
			}
		}
	}

	var audit playground.Auditor
	if db != nil {
		auditWriter := storage.NewAuditWriter(db, cfg.Database.BufferSize)
		auditWriter.Start()
		defer auditWriter.Flush(10 * time.Second)
		audit = auditWriter
	}

	if cfg.Tracing.Enabled {
		log.Info().Str("service", cfg.Tracing.ServiceName).Msg("tracing spans go to the global OpenTelemetry provider")
	} else {
		log.Debug().Msg("tracing disabled, spans are no-ops")
	}

	service := playground.New(cfg, isolator, runner, metrics, audit)
	server := api.NewServer(cfg, service, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		if err := isolator.Close(); err != nil {
			log.Error().Err(err).Msg("isolator close error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Str("isolator", isolator.Name()).
		Str("compiler", cfg.Compiler.Path).
		Bool("db_enabled", db != nil).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
