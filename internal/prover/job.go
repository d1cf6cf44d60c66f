package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skillstake/skillstake/pkg/pow"
)

// finishedJobTTL is how long a finished job stays queryable.
const finishedJobTTL = 10 * time.Minute

// JobState is the lifecycle stage of a background solve.
type JobState uint8

const (
	JobRunning JobState = iota
	JobSucceeded
	JobCancelled
	JobFailed
)

// String returns the human-readable name of the state.
func (s JobState) String() string {
	names := []string{"running", "succeeded", "cancelled", "failed"}
	if int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// JobID identifies a background solve.
type JobID string

// JobStatus is a snapshot of a job.
type JobStatus struct {
	ID         JobID
	TaskID     uint64
	Difficulty pow.Difficulty
	State      JobState
	// Iterations is the count at the last progress report while running, and
	// the final count once succeeded.
	Iterations uint64
	Started    time.Time
	Finished   time.Time
	Result     *pow.SolveResult
	Err        error
}

type job struct {
	id         JobID
	taskID     uint64
	difficulty pow.Difficulty
	started    time.Time

	cancel     atomic.Bool
	iterations atomic.Uint64
	done       chan struct{}

	mu       sync.Mutex
	state    JobState
	finished time.Time
	result   *pow.SolveResult
	err      error
}

func (j *job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		ID:         j.id,
		TaskID:     j.taskID,
		Difficulty: j.difficulty,
		State:      j.state,
		Iterations: j.iterations.Load(),
		Started:    j.started,
		Finished:   j.finished,
		Result:     j.result,
		Err:        j.err,
	}
}

func (j *job) finish(result *pow.SolveResult, err error) {
	j.mu.Lock()
	j.finished = time.Now()
	j.result = result
	j.err = err
	switch {
	case err == nil:
		j.state = JobSucceeded
		j.iterations.Store(result.Iterations)
	case errors.Is(err, pow.ErrCancelled):
		j.state = JobCancelled
	default:
		j.state = JobFailed
	}
	j.mu.Unlock()
	close(j.done)
}

type jobTable struct {
	mu     sync.Mutex
	jobs   map[JobID]*job
	closed bool
	wg     sync.WaitGroup
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[JobID]*job)}
}

// add registers j and counts it in wg. It reports false once the table is closed.
func (t *jobTable) add(j *job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.pruneLocked(time.Now())
	t.jobs[j.id] = j
	t.wg.Add(1)
	return true
}

func (t *jobTable) get(id JobID) (*job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return j, ok
}

func (t *jobTable) all() []*job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	return out
}

// pruneLocked drops jobs that finished more than finishedJobTTL ago.
func (t *jobTable) pruneLocked(now time.Time) {
	for id, j := range t.jobs {
		j.mu.Lock()
		expired := j.state != JobRunning && now.Sub(j.finished) > finishedJobTTL
		j.mu.Unlock()
		if expired {
			delete(t.jobs, id)
		}
	}
}

// cancelAll closes the table and signals every job to stop.
func (t *jobTable) cancelAll() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	for _, j := range t.all() {
		j.cancel.Store(true)
	}
}

func (t *jobTable) wait() {
	t.wg.Wait()
}

// StartSolve validates the inputs and starts a background search.
// Input and precondition errors are returned immediately; search outcomes
// are reported through Job and Wait.
func (s *Service) StartSolve(taskIDText, startingNonceText string) (JobID, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	id := s.identity()
	if id == nil {
		return "", pow.ErrPreconditionFailed
	}
	taskID, err := pow.ParseU64(taskIDText)
	if err != nil {
		return "", fmt.Errorf("%w: task id: %w", pow.ErrInvalidInput, err)
	}
	var start uint64
	if startingNonceText != "" {
		start, err = pow.ParseU64(startingNonceText)
		if err != nil {
			return "", fmt.Errorf("%w: starting nonce: %w", pow.ErrInvalidInput, err)
		}
	}
	solver := pow.NewSolver(id, s.Difficulty(), s.solverCfg)

	j := &job{
		id:         JobID(uuid.NewString()),
		taskID:     taskID,
		difficulty: solver.Difficulty(),
		started:    time.Now(),
		done:       make(chan struct{}),
	}
	if !s.jobs.add(j) {
		return "", ErrClosed
	}

	logger := s.logger.With("job_id", j.id, "task_id", taskID, "difficulty", j.difficulty)
	logger.Info("solve job started", "start_nonce", start)

	go func() {
		defer s.jobs.wg.Done()
		result, err := solver.SolveTask(s.ctx, taskID, start, pow.SolveOptions{
			Cancel: &j.cancel,
			Progress: func(p pow.Progress) {
				j.iterations.Store(p.Iterations)
			},
		})
		j.finish(result, err)

		if err != nil {
			logger.Info("solve job stopped", "error", err, "iterations", j.iterations.Load())
			return
		}
		logger.Info("solve job succeeded",
			"nonce", result.Nonce,
			"iterations", result.Iterations,
			"elapsed", result.Elapsed,
		)
	}()

	return j.id, nil
}

// Cancel signals a running job to stop. Cancelling a finished job is a no-op.
func (s *Service) Cancel(id JobID) error {
	j, ok := s.jobs.get(id)
	if !ok {
		return ErrJobNotFound
	}
	j.cancel.Store(true)
	return nil
}

// Job returns a snapshot of the job.
func (s *Service) Job(id JobID) (JobStatus, error) {
	j, ok := s.jobs.get(id)
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return j.status(), nil
}

// Jobs returns snapshots of every known job.
func (s *Service) Jobs() []JobStatus {
	all := s.jobs.all()
	out := make([]JobStatus, 0, len(all))
	for _, j := range all {
		out = append(out, j.status())
	}
	return out
}

// Wait blocks until the job finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, id JobID) (JobStatus, error) {
	j, ok := s.jobs.get(id)
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	select {
	case <-j.done:
		return j.status(), nil
	case <-ctx.Done():
		return j.status(), ctx.Err()
	}
}
