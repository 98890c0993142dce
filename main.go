// Package main is the entry point for the meritforge gamification engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"meritforge/forge"
)

const (
	exitOK           = 0
	exitConfigError  = 1
	exitRuntimeFatal = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := forge.LoadConfig()
	if err != nil {
		zap.NewExample().Error("invalid configuration", zap.Error(err))
		return exitConfigError
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return exitConfigError
	}
	defer logger.Sync()

	logger.Info("meritforge starting", zap.String("addr", cfg.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := forge.Init(ctx, logger, cfg)
	if err != nil {
		logger.Error("engine init failed", zap.Error(err))
		if cfg.RulesFile != "" || cfg.CatalogFile != "" {
			// Bad seed files are configuration, not runtime, failures.
			return exitConfigError
		}
		return exitRuntimeFatal
	}

	if err := engine.Start(); err != nil {
		logger.Error("engine start failed", zap.Error(err))
		return exitRuntimeFatal
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: forge.NewRouter(engine, logger, engine.Metrics()),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
		engine.Stop()
		return exitRuntimeFatal
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	engine.Stop()
	logger.Info("goodbye")
	return exitOK
}

func buildLogger(cfg *forge.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zapCfg zap.Config
	if cfg.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg.Build()
}
