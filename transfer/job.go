package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Job.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var allowedTransitions = map[State][]State{
	StatePending: {StateRunning, StateFailed, StateCancelled},
	StateRunning: {StateCompleted, StateFailed, StateCancelled},
}

// Job is one fetch of one remote object into one destination file.
// The descriptive fields never change after NewJob.
type Job struct {
	ID          string
	Object      string
	TotalSize   uint64
	ChunkSize   uint32
	TotalChunks uint32
	Destination string

	state      State
	err        error
	startedAt  time.Time
	finishedAt time.Time
	mu         sync.Mutex
}

// NewJob creates a pending job for the plan.
func NewJob(object string, plan Plan, destination string) *Job {
	return &Job{
		ID:          uuid.NewString(),
		Object:      object,
		TotalSize:   plan.TotalSize,
		ChunkSize:   plan.ChunkSize,
		TotalChunks: plan.TotalChunks(),
		Destination: destination,
		state:       StatePending,
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the terminal error of a failed or cancelled job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Duration returns how long the job has been running, or ran.
func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.startedAt.IsZero() {
		return 0
	}
	if j.finishedAt.IsZero() {
		return time.Since(j.startedAt)
	}
	return j.finishedAt.Sub(j.startedAt)
}

func (j *Job) start() error {
	return j.transition(StateRunning, nil)
}

func (j *Job) complete() error {
	return j.transition(StateCompleted, nil)
}

func (j *Job) fail(err error) error {
	return j.transition(StateFailed, err)
}

func (j *Job) cancel(err error) error {
	return j.transition(StateCancelled, err)
}

func (j *Job) transition(to State, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	allowed := false
	for _, s := range allowedTransitions[j.state] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.state, to)
	}

	now := time.Now()
	if to == StateRunning {
		j.startedAt = now
	}
	if to.Terminal() {
		j.finishedAt = now
	}
	j.state = to
	j.err = err
	return nil
}
