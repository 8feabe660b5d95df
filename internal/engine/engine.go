// Package engine implements the in-process job execution engine: typed job
// enqueueing, bounded-concurrency dispatch, retry with capped exponential
// backoff, lifecycle events and terminal-job cleanup.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/metrics"
)

// ProgressReporter is handed to processors so they can report per-attempt
// progress. Completed is clamped to never move backwards within an attempt.
type ProgressReporter interface {
	Report(completed, total int, message string)
}

// Processor handles one job attempt. Returning a nil error completes the
// job with the returned data; a retriable error schedules a retry while
// budget remains.
type Processor func(ctx context.Context, job *domain.Job, progress ProgressReporter) (any, error)

// EnqueueOptions override per-job retry behaviour.
type EnqueueOptions struct {
	// MaxAttempts bounds how many times the job may run. Zero uses the
	// engine default.
	MaxAttempts int
	// InitialDelay postpones the first attempt.
	InitialDelay time.Duration
}

// Stats is a snapshot of engine occupancy.
type Stats struct {
	Counts        map[domain.JobStatus]int `json:"counts"`
	ActiveWorkers int                      `json:"active_workers"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds how many jobs run simultaneously.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxAttempts sets the default attempt bound for enqueued jobs.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry delay schedule.
func WithBackoff(b Backoff) Option {
	return func(e *Engine) { e.backoff = b }
}

// WithPollInterval sets the idle re-poll interval of the dispatch loop.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithRetention sets how long terminal jobs are kept before cleanup, and
// how often the cleanup pass runs.
func WithRetention(retention, interval time.Duration) Option {
	return func(e *Engine) {
		if retention > 0 {
			e.retention = retention
		}
		if interval > 0 {
			e.cleanupInterval = interval
		}
	}
}

// Engine owns all job state. Construct one per process (or per test) and
// pass it by reference; there is no global instance.
type Engine struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*domain.Job
	processors map[domain.JobType]Processor
	subs       []chan Event
	seq        int64
	active     int
	running    bool
	stopped    bool

	concurrency     int
	maxAttempts     int
	backoff         Backoff
	pollInterval    time.Duration
	retention       time.Duration
	cleanupInterval time.Duration

	wake   chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates an Engine with the given options applied over the defaults
// (concurrency 3, 3 attempts, 1s..1m exponential backoff).
func New(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		jobs:            make(map[uuid.UUID]*domain.Job),
		processors:      make(map[domain.JobType]Processor),
		concurrency:     3,
		maxAttempts:     3,
		backoff:         DefaultBackoff(),
		pollInterval:    100 * time.Millisecond,
		retention:       30 * time.Minute,
		cleanupInterval: 5 * time.Minute,
		wake:            make(chan struct{}, 1),
		logger:          logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterProcessor binds a handler to a job type. Registering twice for
// the same type replaces the handler.
func (e *Engine) RegisterProcessor(jobType domain.JobType, proc Processor) error {
	if proc == nil {
		return fmt.Errorf("engine: nil processor for type %q", jobType)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processors[jobType] = proc
	return nil
}

// Start launches the dispatch and cleanup loops. They exit when ctx is
// cancelled; call Stop to wait for in-flight jobs to finish.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Starting job engine",
		zap.Int("concurrency", e.concurrency),
		zap.Int("max_attempts", e.maxAttempts),
	)

	e.wg.Add(2)
	go e.dispatchLoop(ctx)
	go e.cleanupLoop(ctx)
}

// Stop waits for the loops and all in-flight jobs to finish. Cancel the
// context passed to Start first.
func (e *Engine) Stop() {
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.stopped = true
	e.mu.Unlock()

	e.logger.Info("Job engine stopped")
}

// Enqueue creates a job and returns its id. The job starts PENDING; an
// initial delay only postpones eligibility, so a delayed job can still be
// cancelled before its first attempt. Unregistered types are accepted and
// failed by the dispatcher. Enqueueing after Stop returns ErrEngineStopped.
func (e *Engine) Enqueue(jobType domain.JobType, payload domain.Payload, opts *EnqueueOptions) (uuid.UUID, error) {
	if payload == nil || payload.JobType() != jobType {
		return uuid.Nil, domain.ErrInvalidPayload
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return uuid.Nil, domain.ErrEngineStopped
	}
	e.mu.Unlock()

	now := time.Now()
	job := &domain.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     payload,
		Status:      domain.StatusPending,
		MaxAttempts: e.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts != nil {
		if opts.MaxAttempts > 0 {
			job.MaxAttempts = opts.MaxAttempts
		}
		if opts.InitialDelay > 0 {
			// Still PENDING: RetryDelay against CreatedAt defers the first
			// dispatch without borrowing the RETRYING status.
			job.RetryDelay = opts.InitialDelay
		}
	}

	e.mu.Lock()
	e.seq++
	job.Seq = e.seq
	e.jobs[job.ID] = job
	e.publishLocked(EventEnqueued, job)
	e.mu.Unlock()

	e.logger.Debug("Job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(jobType)),
	)

	e.signalWake()
	return job.ID, nil
}

// GetJob returns a snapshot of the job with the given id.
func (e *Engine) GetJob(id uuid.UUID) (*domain.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// GetJobsByStatus returns snapshots of all jobs in the given status,
// oldest-created first.
func (e *Engine) GetJobsByStatus(status domain.JobStatus) []*domain.Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*domain.Job
	for _, job := range e.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Cancel fails a job that has not started yet. Jobs already processing run
// to completion; there is no preemption.
func (e *Engine) Cancel(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.StatusPending {
		return domain.ErrJobNotCancellable
	}

	now := time.Now()
	job.Status = domain.StatusFailed
	job.LastError = "cancelled"
	job.UpdatedAt = now
	job.CompletedAt = &now
	job.Result = &domain.JobResult{Success: false, Error: "cancelled"}
	e.publishLocked(EventCancelled, job)

	metrics.JobsTotal.WithLabelValues(string(job.Type), "cancelled").Inc()
	return nil
}

// Stats returns per-status job counts and the active worker count.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[domain.JobStatus]int)
	for _, job := range e.jobs {
		counts[job.Status]++
	}
	return Stats{Counts: counts, ActiveWorkers: e.active}
}

func (e *Engine) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop hands runnable jobs to workers while slots are free, then
// parks until woken by a state change or the poll interval.
func (e *Engine) dispatchLoop(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(e.pollInterval)
	defer timer.Stop()

	for {
		e.dispatchReady(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.pollInterval)

		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// dispatchReady starts workers for runnable jobs until the concurrency
// bound is reached. PENDING jobs go first, oldest-created; then due
// RETRYING jobs, oldest-eligible.
func (e *Engine) dispatchReady(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for e.active < e.concurrency {
		job := e.nextRunnableLocked(now)
		if job == nil {
			return
		}

		job.Status = domain.StatusProcessing
		job.Attempts++
		job.RetryDelay = 0
		job.UpdatedAt = now
		if job.StartedAt == nil {
			t := now
			job.StartedAt = &t
		}
		e.active++
		e.publishLocked(EventStarted, job)

		e.wg.Add(1)
		go e.run(ctx, job.ID, job.Clone())
	}
}

func (e *Engine) nextRunnableLocked(now time.Time) *domain.Job {
	var pending *domain.Job
	var retrying *domain.Job
	var retryingDue time.Time

	for _, job := range e.jobs {
		switch job.Status {
		case domain.StatusPending:
			// A pending RetryDelay is an initial-delay hold-back.
			if job.RetryDelay > 0 && job.CreatedAt.Add(job.RetryDelay).After(now) {
				continue
			}
			if pending == nil || job.Seq < pending.Seq {
				pending = job
			}
		case domain.StatusRetrying:
			due := job.UpdatedAt.Add(job.RetryDelay)
			if due.After(now) {
				continue
			}
			if retrying == nil || due.Before(retryingDue) {
				retrying = job
				retryingDue = due
			}
		}
	}

	if pending != nil {
		return pending
	}
	return retrying
}

// run executes a single attempt. The processor receives a snapshot; the
// canonical record is only touched under the engine lock.
func (e *Engine) run(ctx context.Context, id uuid.UUID, snapshot *domain.Job) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Processor panic recovered",
				zap.String("job_id", id.String()),
				zap.Any("panic", r),
			)
			e.finishAttempt(id, nil, 0, fmt.Errorf("processor panic: %v", r))
		}
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
		metrics.WorkersActive.Dec()
		e.signalWake()
	}()

	metrics.WorkersActive.Inc()

	e.mu.Lock()
	proc := e.processors[snapshot.Type]
	e.mu.Unlock()

	if proc == nil {
		e.finishAttempt(id, nil, 0, fmt.Errorf("%w: %s", domain.ErrUnknownProcessor, snapshot.Type))
		return
	}

	start := time.Now()
	data, err := proc(ctx, snapshot, &progressReporter{engine: e, jobID: id})
	e.finishAttempt(id, data, time.Since(start), err)
}

// finishAttempt applies one attempt's outcome: complete, schedule a retry,
// or fail terminally.
func (e *Engine) finishAttempt(id uuid.UUID, data any, took time.Duration, err error) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok || job.Status != domain.StatusProcessing {
		return
	}
	job.UpdatedAt = now

	if err == nil {
		job.Status = domain.StatusCompleted
		job.CompletedAt = &now
		job.Result = &domain.JobResult{
			Success:    true,
			Data:       data,
			DurationMs: took.Milliseconds(),
		}
		e.publishLocked(EventCompleted, job)
		metrics.JobsTotal.WithLabelValues(string(job.Type), "completed").Inc()
		metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(took.Seconds())

		e.logger.Info("Job completed",
			zap.String("job_id", id.String()),
			zap.String("type", string(job.Type)),
			zap.Int("attempts", job.Attempts),
			zap.Duration("took", took),
		)
		return
	}

	job.LastError = err.Error()

	if domain.IsRetriable(err) && job.Attempts < job.MaxAttempts {
		job.Status = domain.StatusRetrying
		job.RetryDelay = e.backoff.Delay(job.Attempts)
		e.publishLocked(EventRetrying, job)

		e.logger.Warn("Job attempt failed, retrying",
			zap.String("job_id", id.String()),
			zap.String("type", string(job.Type)),
			zap.Int("attempt", job.Attempts),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Duration("retry_in", job.RetryDelay),
			zap.Error(err),
		)
		return
	}

	job.Status = domain.StatusFailed
	job.CompletedAt = &now
	job.Result = &domain.JobResult{
		Success:    false,
		Error:      err.Error(),
		DurationMs: took.Milliseconds(),
	}
	e.publishLocked(EventFailed, job)
	metrics.JobsTotal.WithLabelValues(string(job.Type), "failed").Inc()
	metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(took.Seconds())

	e.logger.Error("Job failed",
		zap.String("job_id", id.String()),
		zap.String("type", string(job.Type)),
		zap.Int("attempts", job.Attempts),
		zap.Error(err),
	)
}

// cleanupLoop periodically removes terminal jobs older than the retention
// window to bound memory.
func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.removeExpiredJobs()
		}
	}
}

func (e *Engine) removeExpiredJobs() {
	cutoff := time.Now().Add(-e.retention)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, job := range e.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(e.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Debug("Cleaned up terminal jobs", zap.Int("removed", removed))
	}
}

// progressReporter forwards processor progress into the job record.
type progressReporter struct {
	engine *Engine
	jobID  uuid.UUID
}

func (p *progressReporter) Report(completed, total int, message string) {
	e := p.engine

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[p.jobID]
	if !ok || job.Status != domain.StatusProcessing {
		return
	}
	if job.Progress != nil && completed < job.Progress.Completed {
		completed = job.Progress.Completed
	}
	job.Progress = &domain.Progress{Completed: completed, Total: total, Message: message}
	job.UpdatedAt = time.Now()
	e.publishLocked(EventProgress, job)
}
