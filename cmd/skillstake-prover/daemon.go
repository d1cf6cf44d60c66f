package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/skillstake/skillstake/internal/config"
	"github.com/skillstake/skillstake/internal/ipc"
	"github.com/skillstake/skillstake/internal/prover"
	"github.com/skillstake/skillstake/internal/wallet"
	"github.com/skillstake/skillstake/pkg/pow"
)

// DaemonOptions holds settings that do not come from the config file.
type DaemonOptions struct {
	// ConfigPath enables hot reload when set.
	ConfigPath string
	// Passphrase unlocks the keystore.
	Passphrase string
	Logger     *slog.Logger
	// Warnings is the process-wide warning set. A new one is created when nil.
	Warnings *config.Warnings
}

// Daemon serves the prover over a Unix socket.
type Daemon struct {
	cfg     *config.ProverConfig
	opts    DaemonOptions
	logger  *slog.Logger
	warn    *config.Warnings
	service *prover.Service
	server  *ipc.Server
	watcher *config.Watcher
}

// NewDaemon resolves the program settings and wallet and builds the service.
func NewDaemon(cfg *config.ProverConfig, opts DaemonOptions) (*Daemon, error) {
	if cfg.Server.Socket == "" {
		return nil, errors.New("socket path is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	warn := opts.Warnings
	if warn == nil {
		warn = config.NewWarnings(logger)
	}

	difficulty, err := cfg.Program.Difficulty()
	if err != nil {
		return nil, err
	}
	mint := cfg.Program.MintKey(warn)
	programID := cfg.Program.ProgramKey(warn)

	service, err := prover.NewService(prover.Config{
		Mint:       mint,
		DomainTag:  cfg.Program.DomainTag,
		Difficulty: difficulty,
		Solver: pow.SolverConfig{
			YieldInterval: cfg.Solver.YieldInterval,
			MaxIterations: cfg.Solver.MaxIterations,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		warn:    warn,
		service: service,
	}

	if err := d.connectWallet(); err != nil {
		service.Close()
		return nil, err
	}

	logger.Info("prover configured",
		"program_id", programID.String(),
		"mint", mint.String(),
		"difficulty", difficulty,
		"expected_iterations", difficulty.ExpectedIterations(),
		"reward", cfg.Program.PowReward,
	)
	return d, nil
}

// connectWallet loads the keystore if present, otherwise falls back to a
// watch-only address. With neither, the daemon runs with no wallet and
// solve requests fail their precondition.
func (d *Daemon) connectWallet() error {
	path := d.cfg.Wallet.KeystorePath
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			w, err := wallet.Load(path, d.opts.Passphrase)
			if err != nil {
				return fmt.Errorf("failed to unlock keystore %s: %w", path, err)
			}
			d.service.Connect(w.PublicKey)
			return nil
		}
	}

	if addr := d.cfg.Wallet.PublicKey; addr != "" {
		pk, err := pow.ParsePublicKey(addr)
		if err != nil {
			return fmt.Errorf("invalid wallet address: %w", err)
		}
		d.service.Connect(pk)
		d.logger.Info("using watch-only wallet", "wallet", pk.String())
		return nil
	}

	d.warn.Warn("No wallet configured. Solving is disabled until a keystore or public key is set.")
	return nil
}

// Service returns the prover service.
func (d *Daemon) Service() *prover.Service {
	return d.service
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	server, err := ipc.NewServer(d.cfg.Server.Socket, d.service, ipc.ServerOptions{
		VerifyRate:  d.cfg.Server.VerifyRate,
		VerifyBurst: d.cfg.Server.VerifyBurst,
		Logger:      d.logger,
	})
	if err != nil {
		d.service.Close()
		return err
	}
	d.server = server

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	if d.opts.ConfigPath != "" {
		d.startWatcher(ctx)
	}

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down daemon")
	case err := <-serverErr:
		d.logger.Error("server error", "error", err)
	}

	return d.shutdown()
}

func (d *Daemon) startWatcher(ctx context.Context) {
	watcher, err := config.NewWatcher(d.opts.ConfigPath, d.reload)
	if err != nil {
		d.logger.Warn("config hot reload disabled", "path", d.opts.ConfigPath, "error", err)
		return
	}
	watcher.SetErrorCallback(func(err error) {
		d.logger.Error("config watcher error", "error", err)
	})
	d.watcher = watcher

	go func() {
		d.logger.Info("watching config", "path", d.opts.ConfigPath)
		watcher.Start(ctx)
	}()
}

// reload applies a changed difficulty. Other settings need a restart.
func (d *Daemon) reload(cfg *config.ProverConfig) {
	cfg.ApplyEnv(d.warn)
	difficulty, err := cfg.Program.Difficulty()
	if err != nil {
		d.logger.Warn("ignoring reloaded config", "error", err)
		return
	}
	if err := d.service.SetDifficulty(difficulty); err != nil {
		d.logger.Warn("ignoring reloaded difficulty", "error", err)
	}
}

// shutdown stops the watcher, cancels every search, then stops the server.
// Closing the service first lets in-flight Solve calls return so the
// server's graceful stop can finish.
func (d *Daemon) shutdown() error {
	var errs []error

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.service.Close()
	if d.server != nil {
		d.server.Stop()
	}

	return errors.Join(errs...)
}
