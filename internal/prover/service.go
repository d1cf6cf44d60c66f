// Package prover runs proof-of-work searches on behalf of a connected wallet.
//
// Service owns the session state the puzzle engine deliberately lacks: which
// wallet is connected, the current difficulty, and the set of background
// solve jobs. Every call builds a fresh pow.Identity from that state, so a
// wallet switch or difficulty change never leaks into a search already
// running.
//
// # Submission gate
//
// A solver hit is a hint. PrepareSubmission re-verifies the nonce and checks
// the task ledger before anything is sent on-chain.
//
// # Thread Safety
//
// Service is safe for concurrent use from multiple goroutines.
package prover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/skillstake/skillstake/internal/config"
	"github.com/skillstake/skillstake/pkg/pow"
)

// Errors returned by Service.
var (
	// ErrProofInvalid is returned when a nonce does not meet the difficulty.
	ErrProofInvalid = errors.New("prover: proof does not satisfy the difficulty target")

	// ErrTaskReplay is returned when a task id is not above the last recorded one.
	ErrTaskReplay = errors.New("prover: task identifier has already been used")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("prover: job not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("prover: service closed")
)

// Config holds Service construction parameters.
type Config struct {
	Mint       pow.PublicKey
	DomainTag  string
	Difficulty pow.Difficulty
	Solver     pow.SolverConfig

	// Ledger defaults to a MemoryLedger.
	Ledger TaskLedger

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service coordinates solving, verification and submission checks.
type Service struct {
	mint      pow.PublicKey
	domainTag string
	solverCfg pow.SolverConfig
	ledger    TaskLedger
	logger    *slog.Logger

	difficulty atomic.Uint32

	walletMu sync.RWMutex
	wallet   *pow.PublicKey

	// ctx is cancelled by Close and bounds every foreground solve.
	ctx    context.Context
	cancel context.CancelFunc

	jobs   *jobTable
	closed atomic.Bool
}

// NewService creates a Service. The initial difficulty must be in
// 0..config.MaxPowDifficulty.
func NewService(cfg Config) (*Service, error) {
	if cfg.Difficulty > config.MaxPowDifficulty {
		return nil, fmt.Errorf("%w: %d exceeds %d", pow.ErrInvalidDifficulty, cfg.Difficulty, config.MaxPowDifficulty)
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DomainTag == "" {
		cfg.DomainTag = pow.DefaultDomainTag
	}

	s := &Service{
		mint:      cfg.Mint,
		domainTag: cfg.DomainTag,
		solverCfg: cfg.Solver,
		ledger:    cfg.Ledger,
		logger:    cfg.Logger.With("component", "prover"),
		jobs:      newJobTable(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.difficulty.Store(uint32(cfg.Difficulty))
	return s, nil
}

// Connect sets the wallet whose public key is bound into proofs.
func (s *Service) Connect(wallet pow.PublicKey) {
	s.walletMu.Lock()
	s.wallet = &wallet
	s.walletMu.Unlock()
	s.logger.Info("wallet connected", "wallet", wallet.String())
}

// Disconnect clears the wallet. Running jobs keep the identity they started with.
func (s *Service) Disconnect() {
	s.walletMu.Lock()
	s.wallet = nil
	s.walletMu.Unlock()
	s.logger.Info("wallet disconnected")
}

// Wallet returns the connected wallet, if any.
func (s *Service) Wallet() (pow.PublicKey, bool) {
	s.walletMu.RLock()
	defer s.walletMu.RUnlock()
	if s.wallet == nil {
		return pow.PublicKey{}, false
	}
	return *s.wallet, true
}

// Mint returns the reward mint bound into proofs.
func (s *Service) Mint() pow.PublicKey {
	return s.mint
}

// Difficulty returns the current target.
func (s *Service) Difficulty() pow.Difficulty {
	return pow.Difficulty(s.difficulty.Load())
}

// SetDifficulty changes the target for searches started afterwards.
func (s *Service) SetDifficulty(d pow.Difficulty) error {
	if d > config.MaxPowDifficulty {
		return fmt.Errorf("%w: %d exceeds %d", pow.ErrInvalidDifficulty, d, config.MaxPowDifficulty)
	}
	if old := s.difficulty.Swap(uint32(d)); old != uint32(d) {
		s.logger.Info("difficulty changed", "from", old, "to", d)
	}
	return nil
}

// identity builds a fresh identity from the session, or nil when no wallet
// is connected.
func (s *Service) identity() *pow.Identity {
	wallet, ok := s.Wallet()
	if !ok {
		return nil
	}
	id := pow.NewIdentity(wallet, s.mint)
	id.DomainTag = []byte(s.domainTag)
	return &id
}

func (s *Service) solver() *pow.Solver {
	return pow.NewSolver(s.identity(), s.Difficulty(), s.solverCfg)
}

// Verify checks a user-supplied task id and nonce. It never fails; see
// pow.Verifier.Verify.
func (s *Service) Verify(taskIDText, nonceText string) pow.VerifyResult {
	return pow.NewVerifier(s.identity(), s.Difficulty()).Verify(taskIDText, nonceText)
}

// Solve searches on the calling goroutine until a nonce is found, ctx is
// done or the service is closed.
func (s *Service) Solve(ctx context.Context, taskIDText, startingNonceText string) (*pow.SolveResult, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(s.ctx, cancel)()
	solver := s.solver()
	logger := s.logger.With("task_id", taskIDText, "difficulty", solver.Difficulty())
	logger.Debug("solve started")

	result, err := solver.Solve(ctx, taskIDText, pow.SolveOptions{StartingNonce: startingNonceText})
	if err != nil {
		logger.Debug("solve stopped", "error", err)
		return nil, err
	}

	logger.Info("solve succeeded",
		"nonce", result.Nonce,
		"iterations", result.Iterations,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// PrepareSubmission verifies a proof and checks it against the task ledger.
//
// Errors:
//   - pow.ErrPreconditionFailed when no wallet is connected
//   - pow.ErrInvalidInput when either value does not parse
//   - ErrProofInvalid when the digest misses the target
//   - ErrTaskReplay when the task id is not above the last recorded one
func (s *Service) PrepareSubmission(ctx context.Context, taskIDText, nonceText string) (*Submission, error) {
	id := s.identity()
	if id == nil {
		return nil, pow.ErrPreconditionFailed
	}

	taskID, err := pow.ParseU64(taskIDText)
	if err != nil {
		return nil, fmt.Errorf("%w: task id: %w", pow.ErrInvalidInput, err)
	}
	nonce, err := pow.ParseU64(nonceText)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", pow.ErrInvalidInput, err)
	}

	result := pow.NewVerifier(id, s.Difficulty()).VerifyNonce(taskID, nonce)
	if !result.Valid {
		return nil, fmt.Errorf("%w: digest %s", ErrProofInvalid, result.DigestHex)
	}

	last, err := s.ledger.LastTaskID(ctx, id.Wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read task ledger: %w", err)
	}
	if taskID <= last {
		return nil, fmt.Errorf("%w: task %d, last recorded %d", ErrTaskReplay, taskID, last)
	}

	return &Submission{
		Wallet: id.Wallet,
		TaskID: taskID,
		Nonce:  nonce,
		Digest: result.DigestHex,
	}, nil
}

// RecordSubmission stores an accepted submission in the ledger.
func (s *Service) RecordSubmission(ctx context.Context, sub *Submission) error {
	if err := s.ledger.Record(ctx, *sub); err != nil {
		return err
	}
	s.logger.Info("proof recorded", "wallet", sub.Wallet.String(), "task_id", sub.TaskID, "nonce", sub.Nonce)
	return nil
}

// Close cancels every running job and foreground solve, then waits for the
// jobs to stop. It is safe to call Close multiple times.
func (s *Service) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.jobs.cancelAll()
	s.jobs.wait()
}
