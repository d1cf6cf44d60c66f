package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/skillstake/skillstake/internal/config"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "", "Path to TOML configuration file (default: ~/.config/skillstake/prover.toml if present)")
	socketPath := flag.String("socket", "", "Unix socket path for IPC")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	keystorePath := flag.String("keystore", "", "Path to the encrypted wallet keystore")
	walletAddr := flag.String("wallet", "", "Watch-only wallet address, used when no keystore exists")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)
	warn := config.NewWarnings(logger)

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	if *configPath == "" {
		if _, err := os.Stat(paths.ConfigFile); err == nil {
			*configPath = paths.ConfigFile
		}
	}

	cfg, err := buildConfig(warn, *configPath, *socketPath, *keystorePath, *walletAddr)
	if err != nil {
		logger.Error("failed to build configuration", "error", err)
		os.Exit(1)
	}

	daemon, err := NewDaemon(cfg, DaemonOptions{
		ConfigPath: *configPath,
		Passphrase: os.Getenv(config.EnvPassphrase),
		Logger:     logger,
		Warnings:   warn,
	})
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting skillstake-prover daemon", "socket", cfg.Server.Socket)

	if err := daemon.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}

	logger.Info("daemon stopped gracefully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildConfig loads the config file if given, applies environment
// overrides, then flags. Flags win.
func buildConfig(warn *config.Warnings, configPath, socketPath, keystorePath, walletAddr string) (*config.ProverConfig, error) {
	var cfg *config.ProverConfig
	if configPath != "" {
		fileCfg, err := config.LoadProverConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = fileCfg
	} else {
		def := config.DefaultProverConfig()
		cfg = &def
	}

	cfg.ApplyEnv(warn)

	if socketPath != "" {
		cfg.Server.Socket = config.ExpandPath(socketPath)
	}
	if keystorePath != "" {
		cfg.Wallet.KeystorePath = config.ExpandPath(keystorePath)
	}
	if walletAddr != "" {
		cfg.Wallet.PublicKey = walletAddr
	}

	if _, err := cfg.Program.Difficulty(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
