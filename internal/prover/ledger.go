package prover

//go:generate mockgen -source=ledger.go -destination=mock_ledger.go -package=prover

import (
	"context"
	"fmt"
	"sync"

	"github.com/skillstake/skillstake/pkg/pow"
)

// Submission is a verified proof ready to be recorded. Its fields match the
// proof record the program stores on the stake account.
type Submission struct {
	Wallet pow.PublicKey
	TaskID uint64
	Nonce  uint64
	Digest string
}

// TaskLedger tracks the last task id recorded per wallet.
// In production this is read from the stake account; proofs for a task id
// at or below it are rejected as replays.
type TaskLedger interface {
	// LastTaskID returns the highest recorded task id, or zero if none.
	LastTaskID(ctx context.Context, wallet pow.PublicKey) (uint64, error)
	// Record stores sub as the wallet's latest proof.
	Record(ctx context.Context, sub Submission) error
}

// MemoryLedger is an in-process TaskLedger.
type MemoryLedger struct {
	mu   sync.RWMutex
	last map[pow.PublicKey]Submission
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{last: make(map[pow.PublicKey]Submission)}
}

// LastTaskID implements TaskLedger.
func (l *MemoryLedger) LastTaskID(_ context.Context, wallet pow.PublicKey) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last[wallet].TaskID, nil
}

// Record implements TaskLedger.
func (l *MemoryLedger) Record(_ context.Context, sub Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev := l.last[sub.Wallet].TaskID; sub.TaskID <= prev {
		return fmt.Errorf("%w: task %d, last recorded %d", ErrTaskReplay, sub.TaskID, prev)
	}
	l.last[sub.Wallet] = sub
	return nil
}
