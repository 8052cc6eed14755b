package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/internal/logging"
	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

// Runner executes one reply run. *workflow.Runner satisfies it.
type Runner interface {
	Reply(ctx context.Context, runID, email string, seed map[string]any) (workflow.Result, error)
}

// Options configures a Manager.
type Options struct {
	// MaxConcurrent bounds the number of runs in flight. Zero means 4.
	MaxConcurrent int64

	// Timeout bounds each run. Zero means no limit.
	Timeout time.Duration

	Logger *slog.Logger
}

// Manager runs reply requests and records them in a Store. Synchronous and
// background runs share one concurrency limit.
type Manager struct {
	runner  Runner
	store   Store
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	stopBase context.CancelFunc
}

// NewManager creates a Manager.
func NewManager(runner Runner, store Store, opts Options) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("jobs: runner is required")
	}
	if store == nil {
		return nil, errors.New("jobs: store is required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		runner:   runner,
		store:    store,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		timeout:  opts.Timeout,
		logger:   logging.OrNop(opts.Logger),
		cancels:  make(map[string]context.CancelFunc),
		baseCtx:  base,
		stopBase: stop,
	}, nil
}

// Run executes req and waits for it. The job is stored before it starts and
// again when it ends. The returned error is the run's error; the Job is
// non-nil whenever it was recorded.
func (m *Manager) Run(ctx context.Context, req Request) (*Job, error) {
	job, err := m.create(ctx, req, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.track(ctx, job.ID)
	defer cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finishEarly(job, StatusCancelled, err)
		return job.clone(), err
	}
	defer m.sem.Release(1)

	runErr := m.execute(ctx, job)
	return job.clone(), runErr
}

// Submit stores req as a pending job and runs it in the background. The run
// does not inherit ctx's cancellation; use Cancel or Shutdown.
func (m *Manager) Submit(ctx context.Context, req Request) (*Job, error) {
	job, err := m.create(ctx, req, true)
	if err != nil {
		return nil, err
	}

	// The goroutine owns job from here on.
	snapshot := job.clone()
	runCtx, cancel := m.track(m.baseCtx, job.ID)
	go func() {
		defer m.wg.Done()
		defer cancel()

		if err := m.sem.Acquire(runCtx, 1); err != nil {
			m.finishEarly(job, StatusCancelled, err)
			return
		}
		defer m.sem.Release(1)

		if err := m.execute(runCtx, job); err != nil {
			m.logger.Warn("job failed", "job_id", job.ID, "err", err)
		}
	}()

	return snapshot, nil
}

// Get returns the stored job.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// List returns up to limit stored jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]*Job, error) {
	return m.store.List(ctx, limit)
}

// Cancel stops a pending or running job owned by this manager. It returns
// ErrFinished for a job that already ended and ErrNotFound for an unknown ID.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrFinished
	}
	// Known to the store but owned by another instance.
	return fmt.Errorf("jobs: job %s is not running on this instance", id)
}

// Shutdown stops accepting jobs and waits for background runs to finish.
// When ctx ends first, the remaining runs are cancelled and Shutdown waits
// for them to record their outcome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.stopBase()
		return nil
	case <-ctx.Done():
		m.stopBase()
		<-done
		return ctx.Err()
	}
}

// create validates and stores req as a pending job. A background job is
// added to the wait group under the same lock that checks closed, so
// Shutdown never misses it.
func (m *Manager) create(ctx context.Context, req Request, background bool) (*Job, error) {
	if err := workflow.ValidateRequest(req.Email, req.Seed); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if background {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Save(ctx, job); err != nil {
		if background {
			m.wg.Done()
		}
		return nil, fmt.Errorf("jobs: save %s: %w", job.ID, err)
	}
	return job, nil
}

func (m *Manager) track(parent context.Context, id string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
	return ctx, func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, id)
		m.mu.Unlock()
	}
}

func (m *Manager) execute(ctx context.Context, job *Job) error {
	started := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &started
	m.save(job)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.logger.Info("job started", "job_id", job.ID)
	res, err := m.runner.Reply(ctx, job.ID, job.Request.Email, job.Request.Seed)

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	job.Status = statusFor(res, err)
	if job.Status == StatusFailed && res.Status == graph.StatusCancelled {
		// The engine reports the job timeout as a cancellation.
		res.Status = graph.StatusFailed
	}
	job.Result = &res
	if err != nil {
		job.Error = err.Error()
	}
	m.save(job)

	m.logger.Info("job finished", "job_id", job.ID, "status", job.Status, "duration", finished.Sub(started))
	return err
}

func (m *Manager) finishEarly(job *Job, status Status, cause error) {
	finished := time.Now().UTC()
	job.Status = status
	job.FinishedAt = &finished
	job.Error = cause.Error()
	m.save(job)
}

// save records job state transitions. A failed write is logged; the run
// itself is unaffected. The context is detached so a cancelled run still
// records its final status.
func (m *Manager) save(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Save(ctx, job); err != nil {
		m.logger.Error("failed to save job", "job_id", job.ID, "status", job.Status, "err", err)
	}
}

func statusFor(res workflow.Result, err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, context.DeadlineExceeded):
		// The job's own timeout; treated as a failure, not a cancellation.
		return StatusFailed
	case res.Status == graph.StatusCancelled || errors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusFailed
	}
}
