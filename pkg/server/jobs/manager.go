// pkg/server/jobs/manager.go
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scanmux/scanmux/pkg/scanexec"
)

// Job states. Pending means accepted but not yet picked up by the worker
// goroutine; the terminal states mirror the scan service.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

var (
	// ErrNotFound marks lookups of unknown job IDs.
	ErrNotFound = errors.New("job not found")

	// ErrCapacity marks submissions rejected because the in-flight limit is
	// reached. Callers should retry later.
	ErrCapacity = errors.New("job capacity reached")

	// ErrStopped marks submissions after the manager has been stopped.
	ErrStopped = errors.New("job manager stopped")
)

// Runner executes one scan; satisfied by (*scanexec.Service).Run.
type Runner func(ctx context.Context, params scanexec.Params) (*scanexec.Result, error)

// Job is one tracked scan run. The job ID doubles as the scan ID, so bus
// events and the stored Result correlate with it directly.
type Job struct {
	ID        string
	Target    string
	Profile   string
	State     string
	Error     string
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
	Result    *scanexec.Result
}

// Terminal reports whether the job has settled.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// Manager tracks scan jobs in memory: a bounded registry plus one worker
// goroutine per accepted job. History is process-local and does not survive
// a restart.
type Manager struct {
	runner    Runner
	limit     int
	retention int

	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string
	running int
	baseCtx context.Context
	stopped bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewManager builds a Manager. limit caps concurrently in-flight jobs; the
// registry retains up to four times that many settled jobs before evicting
// the oldest.
func NewManager(runner Runner, limit int) *Manager {
	if limit <= 0 {
		limit = 1
	}
	return &Manager{
		runner:    runner,
		limit:     limit,
		retention: 4 * limit,
		jobs:      make(map[string]*Job),
		logger:    log.With().Str("component", "jobs").Logger(),
	}
}

// Start installs the context scans run under. Workers derive from it rather
// than from the submitting HTTP request, so a client hanging up does not
// abort its scan.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseCtx = ctx
	m.stopped = false
	return nil
}

// Stop rejects further submissions and waits for in-flight jobs to settle,
// up to the ctx deadline.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit accepts a scan for background execution and returns the pending
// job. The returned value is a snapshot; poll Get for state changes.
func (m *Manager) Submit(target, profile, timeout string) (*Job, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	if m.running >= m.limit {
		m.mu.Unlock()
		return nil, ErrCapacity
	}
	job := &Job{
		ID:        uuid.New().String(),
		Target:    target,
		Profile:   profile,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.running++
	m.evictLocked()
	runCtx := m.baseCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	accepted := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx, job.ID, scanexec.Params{
		Target:  target,
		Profile: profile,
		Timeout: timeout,
		ScanID:  job.ID,
	})

	m.logger.Info().Str("job_id", job.ID).Str("target", target).Str("profile", profile).
		Msg("Scan job accepted")
	return &accepted, nil
}

// Get returns a snapshot of the job, or ErrNotFound.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// List returns snapshots of all tracked jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		snapshot := *m.jobs[m.order[i]]
		out = append(out, &snapshot)
	}
	return out
}

func (m *Manager) run(ctx context.Context, id string, params scanexec.Params) {
	defer m.wg.Done()

	m.transition(id, func(j *Job) {
		j.State = StateRunning
		j.StartedAt = time.Now()
	})

	result, err := m.runner(ctx, params)

	m.mu.Lock()
	m.running--
	if job, ok := m.jobs[id]; ok {
		job.EndedAt = time.Now()
		if err != nil {
			job.State = StateFailed
			job.Error = err.Error()
		} else {
			job.State = StateCompleted
			job.Result = result
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().Str("job_id", id).Err(err).Msg("Scan job failed")
		return
	}
	m.logger.Info().Str("job_id", id).Int("findings", len(result.Findings)).
		Msg("Scan job completed")
}

func (m *Manager) transition(id string, apply func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		apply(job)
	}
}

// evictLocked trims the registry back to the retention bound, oldest settled
// jobs first. In-flight jobs are never evicted.
func (m *Manager) evictLocked() {
	for len(m.order) > m.retention {
		evicted := false
		for i, id := range m.order {
			if m.jobs[id].Terminal() {
				delete(m.jobs, id)
				m.order = append(m.order[:i], m.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
