package pow

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// SolverConfig tunes the search loop. The zero value is usable.
type SolverConfig struct {
	// YieldInterval is the number of iterations between scheduler yields and
	// progress reports. Zero means DefaultYieldInterval.
	YieldInterval uint64

	// MaxIterations bounds the search. Zero searches until a nonce is found
	// or the search is cancelled.
	MaxIterations uint64
}

// Solver searches for a nonce that meets a difficulty target.
//
// A Solver holds no per-search state; each call to Solve owns its own nonce
// and iteration counter, so one Solver may serve concurrent searches.
type Solver struct {
	identity      *Identity
	difficulty    Difficulty
	yieldInterval uint64
	maxIterations uint64
}

// SolveResult describes a successful search.
type SolveResult struct {
	// Nonce is the value whose digest meets the target.
	Nonce uint64

	// Digest is the Keccak-256 hash of the winning preimage.
	Digest Digest

	// DigestHex is Digest in lowercase hex.
	DigestHex string

	// Iterations is the number of hashes computed, including the winning one.
	Iterations uint64

	// Elapsed is the wall-clock time spent in the loop.
	Elapsed time.Duration
}

// Progress is reported to a ProgressFunc every YieldInterval iterations.
type Progress struct {
	Iterations uint64
	// NextNonce is the nonce the following iteration will try.
	NextNonce uint64
	Elapsed   time.Duration
}

// ProgressFunc receives periodic search progress. It runs on the search
// goroutine and should return quickly.
type ProgressFunc func(Progress)

// SolveOptions carries per-search parameters.
type SolveOptions struct {
	// StartingNonce is the decimal nonce to start from. Empty means zero.
	// SolveTask ignores it.
	StartingNonce string

	// Cancel stops the search when set to true. Optional.
	Cancel *atomic.Bool

	// Progress is called every YieldInterval iterations. Optional.
	Progress ProgressFunc
}

// NewSolver creates a Solver for the given identity and target.
// A nil identity is allowed; Solve then fails with ErrPreconditionFailed.
func NewSolver(identity *Identity, difficulty Difficulty, cfg SolverConfig) *Solver {
	if cfg.YieldInterval == 0 {
		cfg.YieldInterval = DefaultYieldInterval
	}
	return &Solver{
		identity:      identity,
		difficulty:    difficulty,
		yieldInterval: cfg.YieldInterval,
		maxIterations: cfg.MaxIterations,
	}
}

// Difficulty returns the solver's target.
func (s *Solver) Difficulty() Difficulty {
	return s.difficulty
}

// Solve parses the task id and optional starting nonce, then searches.
//
// Errors:
//   - ErrPreconditionFailed when the solver has no identity
//   - ErrInvalidInput when taskIDText or opts.StartingNonce does not parse
//   - ErrInvalidDifficulty when the target exceeds the digest width
//   - ErrCancelled when ctx is done or opts.Cancel is set first
//   - ErrExhausted when MaxIterations is reached
//
// All but the last two are detected before the first hash is computed.
func (s *Solver) Solve(ctx context.Context, taskIDText string, opts SolveOptions) (*SolveResult, error) {
	if s.identity == nil {
		return nil, ErrPreconditionFailed
	}

	taskID, err := parseInput("task id", taskIDText)
	if err != nil {
		return nil, err
	}

	var start uint64
	if opts.StartingNonce != "" {
		start, err = parseInput("starting nonce", opts.StartingNonce)
		if err != nil {
			return nil, err
		}
	}

	return s.SolveTask(ctx, taskID, start, opts)
}

// SolveTask searches nonces upward from start, wrapping to zero after
// math.MaxUint64, until one meets the target or the search is stopped.
func (s *Solver) SolveTask(ctx context.Context, taskID, start uint64, opts SolveOptions) (*SolveResult, error) {
	if s.identity == nil {
		return nil, ErrPreconditionFailed
	}
	if err := s.difficulty.Validate(); err != nil {
		return nil, err
	}

	id := *s.identity
	buf := make([]byte, 0, preimageLen(id))
	done := ctx.Done()

	began := time.Now()
	nonce := start
	var iterations uint64

	for {
		if opts.Cancel != nil && opts.Cancel.Load() {
			return nil, ErrCancelled
		}
		select {
		case <-done:
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		default:
		}

		buf = AppendPreimage(buf[:0], id, taskID, nonce)
		digest := Hash(buf)
		iterations++

		if MeetsDifficulty(digest, s.difficulty) {
			return &SolveResult{
				Nonce:      nonce,
				Digest:     digest,
				DigestHex:  digest.Hex(),
				Iterations: iterations,
				Elapsed:    time.Since(began),
			}, nil
		}

		// Unsigned overflow wraps MaxUint64 to zero.
		nonce++

		if s.maxIterations != 0 && iterations >= s.maxIterations {
			return nil, fmt.Errorf("%w: %d", ErrExhausted, iterations)
		}

		if iterations%s.yieldInterval == 0 {
			if opts.Progress != nil {
				opts.Progress(Progress{
					Iterations: iterations,
					NextNonce:  nonce,
					Elapsed:    time.Since(began),
				})
			}
			runtime.Gosched()
		}
	}
}
