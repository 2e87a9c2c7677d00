package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/spraybot-team/spraybot/pkg/config"
	"github.com/spraybot-team/spraybot/pkg/hardware"
	"github.com/spraybot-team/spraybot/pkg/sequencer"
	"github.com/spraybot-team/spraybot/pkg/server"
)

func main() {
	fmt.Print("---- SprayBot ----\n\n")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	// Optional .env next to the binary; handy on the bench.
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() {
		_ = logger.Sync()
	}()
	logger.Infow("Using config", "config", fmt.Sprintf("%+v", cfg))

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		logger.Infow("Signal received, shutting down", "signal", s)
		cancel()
		// Give the HTTP server and cleanup a grace period, then bail.
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()

	hw := openHardware(cfg, logger)
	defer func() {
		logger.Info("Zeroing outputs for shutdown")
		if err := hw.Close(); err != nil {
			logger.Errorw("Error releasing hardware", "error", err)
		}
	}()

	seq := sequencer.New(hw, logger)
	seq.Start(ctx)

	srv := server.New(cfg.ListenAddr, seq, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Errorw("HTTP server failed", "error", err)
		cancel()
	}
}

func openHardware(cfg config.Config, logger *zap.SugaredLogger) hardware.Interface {
	if cfg.DummyHardware || os.Getenv("SPRAYBOT_DUMMY_HW") == "true" {
		logger.Info("Using dummy hardware")
		return hardware.NewDummy()
	}
	hw, err := hardware.NewRPi(hardware.Options{
		ServoDriver: cfg.ServoDriver,
		I2CDevice:   cfg.I2CDevice,
	}, logger)
	if err != nil {
		if os.Getenv("IGNORE_MISSING_HARDWARE") == "true" {
			logger.Warnw("Failed to open hardware; using dummy", "error", err)
			return hardware.NewDummy()
		}
		logger.Fatalw("Failed to initialise hardware", "error", err)
	}
	return hw
}

func newLogger(level string) *zap.SugaredLogger {
	zc := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zc.Level = lvl
	}
	logger, err := zc.Build()
	if err != nil {
		fmt.Println("Failed to build logger:", err)
		os.Exit(1)
	}
	return logger.Sugar()
}
