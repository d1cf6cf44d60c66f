package pow

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable is a target no practical search meets.
const unreachable = Difficulty(DigestBits)

// =============================================================================
// Solve Tests
// =============================================================================

func TestSolve_EndToEnd(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 8, SolverConfig{})
	verifier := NewVerifier(&id, 8)

	result, err := solver.Solve(context.Background(), "1700000000", SolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, result.Nonce+1, result.Iterations, "search starts at zero and stops at the first hit")
	assert.GreaterOrEqual(t, LeadingZeroBits(result.Digest), 8)
	assert.Equal(t, result.Digest.Hex(), result.DigestHex)

	vr := verifier.Verify("1700000000", formatU64(result.Nonce))
	assert.True(t, vr.Valid)
	assert.Equal(t, result.DigestHex, vr.DigestHex)
}

func TestSolve_FirstHitFromStartingNonce(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 8, SolverConfig{})

	first, err := solver.Solve(context.Background(), "5", SolveOptions{})
	require.NoError(t, err)

	// Starting exactly at the known hit finds it on the first iteration.
	again, err := solver.Solve(context.Background(), "5", SolveOptions{StartingNonce: formatU64(first.Nonce)})
	require.NoError(t, err)
	assert.Equal(t, first.Nonce, again.Nonce)
	assert.Equal(t, uint64(1), again.Iterations)
	assert.Equal(t, first.DigestHex, again.DigestHex)
}

func TestSolve_ZeroDifficultyAcceptsStart(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 0, SolverConfig{})

	result, err := solver.Solve(context.Background(), "1", SolveOptions{StartingNonce: "123"})
	require.NoError(t, err)
	assert.Equal(t, uint64(123), result.Nonce)
	assert.Equal(t, uint64(1), result.Iterations)
}

func TestSolve_NoIdentity(t *testing.T) {
	solver := NewSolver(nil, 8, SolverConfig{})

	_, err := solver.Solve(context.Background(), "1", SolveOptions{})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	// Precondition is reported ahead of input errors.
	_, err = solver.Solve(context.Background(), "bad", SolveOptions{})
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestSolve_InvalidInput(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 8, SolverConfig{})

	tests := []struct {
		name  string
		task  string
		start string
		inner error
	}{
		{"empty task", "", "", ErrEmpty},
		{"negative task", "-1", "", ErrNotAnInteger},
		{"task out of range", "18446744073709551616", "", ErrOutOfRange},
		{"bad starting nonce", "1", "3.5", ErrNotAnInteger},
		{"blank starting nonce", "1", "  ", ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var progressCalls atomic.Int32
			result, err := solver.Solve(context.Background(), tt.task, SolveOptions{
				StartingNonce: tt.start,
				Progress:      func(Progress) { progressCalls.Add(1) },
			})
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.ErrorIs(t, err, tt.inner)
			assert.Zero(t, progressCalls.Load())
		})
	}
}

func TestSolve_InvalidDifficulty(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 300, SolverConfig{})

	_, err := solver.Solve(context.Background(), "1", SolveOptions{})
	assert.ErrorIs(t, err, ErrInvalidDifficulty)
}

// =============================================================================
// Wraparound Tests
// =============================================================================

func TestSolveTask_NonceWrapsToZero(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, unreachable, SolverConfig{YieldInterval: 1, MaxIterations: 3})

	var seen []uint64
	_, err := solver.SolveTask(context.Background(), 1, math.MaxUint64, SolveOptions{
		Progress: func(p Progress) { seen = append(seen, p.NextNonce) },
	})
	require.ErrorIs(t, err, ErrExhausted)

	// After MaxUint64 fails, the next attempts are 0 and 1.
	require.Equal(t, []uint64{0, 1}, seen)
}

func TestSolveTask_WrappedSearchFindsHit(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 8, SolverConfig{})

	fromZero, err := solver.SolveTask(context.Background(), 9, 0, SolveOptions{})
	require.NoError(t, err)

	// Starting just below the wrap point still reaches the same hit, unless
	// an earlier hit sits in the last few nonces before the wrap.
	fromTop, err := solver.SolveTask(context.Background(), 9, math.MaxUint64-2, SolveOptions{})
	require.NoError(t, err)
	if fromTop.Nonce < math.MaxUint64-2 {
		assert.Equal(t, fromZero.Nonce, fromTop.Nonce)
		assert.Equal(t, fromZero.Nonce+4, fromTop.Iterations)
	}
}

// =============================================================================
// Cancellation Tests
// =============================================================================

func TestSolve_CancelTokenSetBeforeStart(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 0, SolverConfig{})

	var cancel atomic.Bool
	cancel.Store(true)

	result, err := solver.Solve(context.Background(), "1", SolveOptions{Cancel: &cancel})
	assert.Nil(t, result, "no result even though difficulty 0 would succeed")
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSolve_CancelTokenStopsWithinOneYield(t *testing.T) {
	id := testIdentity(t)
	const interval = 64
	solver := NewSolver(&id, unreachable, SolverConfig{YieldInterval: interval})

	var cancel atomic.Bool
	var last Progress
	var calls int
	_, err := solver.Solve(context.Background(), "1", SolveOptions{
		Cancel: &cancel,
		Progress: func(p Progress) {
			calls++
			last = p
			if p.Iterations >= 4*interval {
				cancel.Store(true)
			}
		},
	})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 4, calls, "search must stop before the next progress report")
	assert.Equal(t, uint64(4*interval), last.Iterations)
}

func TestSolve_ContextCancelled(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, unreachable, SolverConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := solver.Solve(ctx, "1", SolveOptions{})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
		assert.True(t, errors.Is(err, ErrCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("solver did not observe cancellation")
	}
}

func TestSolve_ContextDeadline(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, unreachable, SolverConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := solver.Solve(ctx, "1", SolveOptions{})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

// =============================================================================
// Progress / Concurrency Tests
// =============================================================================

func TestSolve_ProgressIterationsIncrease(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, unreachable, SolverConfig{YieldInterval: 16, MaxIterations: 160})

	var reports []Progress
	_, err := solver.SolveTask(context.Background(), 3, 100, SolveOptions{
		Progress: func(p Progress) { reports = append(reports, p) },
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.Len(t, reports, 9)

	for i, p := range reports {
		assert.Equal(t, uint64(16*(i+1)), p.Iterations)
		assert.Equal(t, 100+p.Iterations, p.NextNonce, "nonce advances by one per iteration")
	}
}

func TestSolve_YieldIntervalDoesNotChangeResult(t *testing.T) {
	id := testIdentity(t)

	a, err := NewSolver(&id, 10, SolverConfig{YieldInterval: 1}).Solve(context.Background(), "77", SolveOptions{})
	require.NoError(t, err)
	b, err := NewSolver(&id, 10, SolverConfig{YieldInterval: 1 << 20}).Solve(context.Background(), "77", SolveOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.Nonce, b.Nonce)
	assert.Equal(t, a.Iterations, b.Iterations)
	assert.Equal(t, a.Digest, b.Digest)
}

func TestSolve_ConcurrentSearchesAreIndependent(t *testing.T) {
	id := testIdentity(t)
	solver := NewSolver(&id, 8, SolverConfig{})
	verifier := NewVerifier(&id, 8)

	tasks := []string{"1", "2", "3", "4"}
	results := make([]*SolveResult, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task string) {
			defer wg.Done()
			r, err := solver.Solve(context.Background(), task, SolveOptions{})
			if err == nil {
				results[i] = r
			}
		}(i, task)
	}
	wg.Wait()

	for i, task := range tasks {
		require.NotNil(t, results[i], "task %s", task)
		sequential, err := solver.Solve(context.Background(), task, SolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, sequential.Nonce, results[i].Nonce)
		assert.True(t, verifier.Verify(task, formatU64(results[i].Nonce)).Valid)
	}
}
