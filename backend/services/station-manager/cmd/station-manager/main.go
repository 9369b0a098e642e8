package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"stationmgr/backend/libs/logging"
	"stationmgr/backend/services/station-manager/internal/app"
	"stationmgr/backend/services/station-manager/internal/config"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}

// loadConfig reads the YAML file and environment, then applies command line overrides.
func loadConfig(args []string) (*config.Config, error) {
	flagSet := pflag.NewFlagSet("station-manager", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", os.Getenv("CONFIG_FILE"), "path to YAML configuration file")
	logLevel := flagSet.String("log-level", "", "log level (debug, info, warn, error)")
	port := flagSet.StringP("port", "p", "", "HTTP listen port")
	testBackend := flagSet.Bool("test-backend", false, "simulate the station fleet instead of calling hilbert")
	testConfig := flagSet.String("test-config", "", "hilbert station configuration loaded by the simulated fleet")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return nil, err
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if flagSet.Changed("port") {
		cfg.HTTP.Port = *port
	}
	if flagSet.Changed("test-backend") {
		cfg.TestBackend.Enabled = *testBackend
	}
	if flagSet.Changed("test-config") {
		cfg.TestBackend.ConfigFile = *testConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
