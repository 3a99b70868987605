// Package jobs runs long-lived engine operations (graph builds, imports)
// asynchronously and tracks their status, latest progress, and cancellation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemaport/schemaport/internal/schemaport/progress"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrJobNotFound is returned when a job id is unknown to the manager.
var ErrJobNotFound = errors.New("job not found")

// Runner is the work a job executes. It reports progress through fn and polls
// cancel at unit-of-work boundaries; the returned value becomes the job result.
type Runner func(ctx context.Context, fn progress.Func, cancel *progress.Canceller) (any, error)

// Snapshot is a point-in-time view of a job, safe to serve concurrently with
// the job still running.
type Snapshot struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Status   Status          `json:"status"`
	Created  time.Time       `json:"created"`
	Finished *time.Time      `json:"finished,omitempty"`
	Progress *progress.Event `json:"progress,omitempty"`
	Result   any             `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type job struct {
	snap     Snapshot
	cancel   *progress.Canceller
	watchers []chan progress.Event
}

// Manager is the in-memory job registry.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*job)}
}

// Start registers a new job and runs it on its own goroutine. The returned
// snapshot carries the job id for polling and subscribing.
func (m *Manager) Start(kind string, run Runner) Snapshot {
	j := &job{
		snap: Snapshot{
			ID:      uuid.New().String(),
			Kind:    kind,
			Status:  StatusRunning,
			Created: time.Now(),
		},
		cancel: progress.NewCanceller(),
	}

	m.mu.Lock()
	m.jobs[j.snap.ID] = j
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result, err := run(context.Background(), m.progressFunc(j.snap.ID), j.cancel)
		m.finish(j.snap.ID, result, err)
	}()

	log.Printf("Started %s job %s", kind, j.snap.ID)
	return j.snap
}

// progressFunc records each event as the job's latest progress and fans it out
// to watchers. Sends are non-blocking; a slow watcher misses events rather than
// stalling the import.
func (m *Manager) progressFunc(id string) progress.Func {
	return func(ev progress.Event) {
		m.mu.Lock()
		j, ok := m.jobs[id]
		if !ok {
			m.mu.Unlock()
			return
		}
		evCopy := ev
		j.snap.Progress = &evCopy
		watchers := make([]chan progress.Event, len(j.watchers))
		copy(watchers, j.watchers)
		m.mu.Unlock()

		for _, ch := range watchers {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (m *Manager) finish(id string, result any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return
	}

	now := time.Now()
	j.snap.Finished = &now
	j.snap.Result = result
	switch {
	case errors.Is(err, progress.ErrCancelled):
		j.snap.Status = StatusCancelled
	case err != nil:
		j.snap.Status = StatusFailed
		j.snap.Error = err.Error()
	default:
		j.snap.Status = StatusSucceeded
	}

	for _, ch := range j.watchers {
		close(ch)
	}
	j.watchers = nil

	log.Printf("Job %s finished: %s", id, j.snap.Status)
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.snap, nil
}

// List returns snapshots of all jobs, unordered.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snap)
	}
	return out
}

// Cancel requests cooperative cancellation of a running job. Cancelling a
// finished job is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.cancel.RequestCancel()
	log.Printf("Cancellation requested for job %s", id)
	return nil
}

// Subscribe returns a channel of the job's progress events plus the current
// snapshot. The channel closes when the job finishes; for an already-finished
// job it is closed on return. The unsubscribe func must be called when the
// watcher goes away.
func (m *Manager) Subscribe(id string) (Snapshot, <-chan progress.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	ch := make(chan progress.Event, 64)
	if j.snap.Status != StatusRunning {
		close(ch)
		return j.snap, ch, func() {}, nil
	}

	j.watchers = append(j.watchers, ch)
	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, w := range j.watchers {
			if w == ch {
				j.watchers = append(j.watchers[:i], j.watchers[i+1:]...)
				break
			}
		}
	}
	return j.snap, ch, unsubscribe, nil
}

// Shutdown requests cancellation of every running job and waits for them to
// finish.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	for _, j := range m.jobs {
		if j.snap.Status == StatusRunning {
			j.cancel.RequestCancel()
		}
	}
	m.mu.RUnlock()
	m.wg.Wait()
	log.Println("Job manager stopped")
}
