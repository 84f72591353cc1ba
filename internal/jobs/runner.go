package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/metrics"
)

// Handler runs one job. progress records the attempt the session is on.
// A handler returning after its context is cancelled ends the job as
// cancelled; its result is still stored.
type Handler func(ctx context.Context, job *Job, progress func(attempt int)) (any, error)

// RunnerOptions size the queue and the worker pool.
type RunnerOptions struct {
	QueueSize int
	Workers   int
}

// DefaultRunnerOptions returns a 100 job queue served by two workers.
func DefaultRunnerOptions() RunnerOptions {
	return RunnerOptions{QueueSize: 100, Workers: 2}
}

// Runner executes submitted jobs on a fixed pool of workers and keeps
// their records in a Store.
type Runner struct {
	store    *Store
	logger   *slog.Logger
	opts     RunnerOptions
	queue    chan *Job
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	handlers map[Kind]Handler
	cancels  map[string]context.CancelFunc
	// cancelled marks queued jobs Cancel has ended; workers skip them.
	cancelled map[string]bool
	// finished holds a channel per unfinished job, closed when it ends.
	finished map[string]chan struct{}

	// dequeued runs on the worker before a job is claimed. Tests use it.
	dequeued func(*Job)
}

// NewRunner creates a runner. Call Start before submitting jobs.
func NewRunner(store *Store, logger *slog.Logger, opts RunnerOptions) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultRunnerOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Runner{
		store:     store,
		logger:    logger.With("component", "jobs"),
		opts:      opts,
		queue:     make(chan *Job, opts.QueueSize),
		done:      make(chan struct{}),
		handlers:  make(map[Kind]Handler),
		cancels:   make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
		finished:  make(map[string]chan struct{}),
	}
}

// Handle registers the handler for kind.
func (r *Runner) Handle(kind Kind, h Handler) {
	r.mu.Lock()
	r.handlers[kind] = h
	r.mu.Unlock()
}

// Start cancels jobs a previous process left unfinished and starts the
// workers.
func (r *Runner) Start() error {
	n, err := r.store.Interrupt()
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Warn("Cancelled jobs left over from a previous run", "count", n)
	}
	r.logger.Info("Starting job runner", "workers", r.opts.Workers, "queueSize", r.opts.QueueSize)
	for i := range r.opts.Workers {
		r.wg.Add(1)
		go r.work(i)
	}
	return nil
}

// Stop cancels running jobs and waits up to timeout for the workers.
// Queued jobs stay queued in the store.
func (r *Runner) Stop(timeout time.Duration) error {
	r.stopOnce.Do(func() { close(r.done) })
	r.mu.Lock()
	for id, cancel := range r.cancels {
		r.logger.Debug("Cancelling running job", "jobId", id)
		cancel()
	}
	r.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		r.logger.Info("Job runner stopped")
		return nil
	case <-time.After(timeout):
		return errors.Newf(errors.Timeout, "job runner did not stop within %v", timeout)
	}
}

// Submit records job and queues it. It fails when the runner is stopping
// or the queue is full.
func (r *Runner) Submit(job *Job) error {
	select {
	case <-r.done:
		return errors.New(errors.InvalidRequest, "job runner is stopping", nil)
	default:
	}
	if len(r.queue) == cap(r.queue) {
		return errors.Newf(errors.InvalidRequest, "repair queue is full (%d jobs)", cap(r.queue))
	}
	if err := r.store.Create(job); err != nil {
		return err
	}

	r.mu.Lock()
	r.finished[job.ID] = make(chan struct{})
	r.mu.Unlock()

	select {
	case r.queue <- job:
		metrics.RepairQueue.Inc()
		r.logger.Debug("Job queued", "jobId", job.ID, "kind", job.Kind, "target", job.Target())
		return nil
	default:
		// Lost a race for the last slot.
		r.end(job, Failed, nil, errors.New(errors.InvalidRequest, "repair queue is full", nil))
		return errors.New(errors.InvalidRequest, "repair queue is full", nil)
	}
}

// Cancel stops a queued or running job. A running job ends when its
// handler returns; a queued one ends at once and is never started.
func (r *Runner) Cancel(id string) error {
	job, err := r.store.Get(id)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Newf(errors.InvalidRequest, "job not found: %s", id)
	}
	if job.Status.Terminal() {
		return errors.Newf(errors.InvalidRequest, "job %s is already %s", id, job.Status)
	}

	r.mu.Lock()
	if cancel, running := r.cancels[id]; running {
		r.mu.Unlock()
		cancel()
		return nil
	}
	if _, pending := r.finished[id]; !pending {
		r.mu.Unlock()
		return errors.Newf(errors.InvalidRequest, "job %s is not active", id)
	}
	if r.cancelled[id] {
		r.mu.Unlock()
		return nil
	}
	// Claimed under the same lock run uses, so a worker that has not
	// registered the job yet will skip it.
	r.cancelled[id] = true
	r.mu.Unlock()

	r.end(job, Cancelled, nil, nil)
	return nil
}

// Wait blocks until the job ends or ctx is done and returns the stored
// record.
func (r *Runner) Wait(ctx context.Context, id string) (*Job, error) {
	r.mu.Lock()
	ch, pending := r.finished[id]
	r.mu.Unlock()
	if pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.store.Get(id)
}

func (r *Runner) work(id int) {
	defer r.wg.Done()
	for {
		select {
		case job := <-r.queue:
			metrics.RepairQueue.Dec()
			r.run(job)
		case <-r.done:
			r.logger.Debug("Job worker stopping", "worker", id)
			return
		}
	}
}

func (r *Runner) run(job *Job) {
	if r.dequeued != nil {
		r.dequeued(job)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.mu.Lock()
	if r.cancelled[job.ID] {
		delete(r.cancelled, job.ID)
		r.mu.Unlock()
		r.logger.Debug("Skipping cancelled job", "jobId", job.ID)
		return
	}
	handler, ok := r.handlers[job.Kind]
	r.cancels[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, job.ID)
		r.mu.Unlock()
	}()

	if !ok {
		r.end(job, Failed, nil, errors.Newf(errors.InternalError, "no handler for %s jobs", job.Kind))
		return
	}

	job.start()
	r.save(job)
	r.logger.Info("Running repair job", "jobId", job.ID, "kind", job.Kind, "target", job.Target())

	result, err := handler(ctx, job, func(attempt int) {
		job.setAttempt(attempt)
		r.save(job)
	})
	switch {
	case err != nil && ctx.Err() != nil:
		r.end(job, Cancelled, result, nil)
	case err != nil:
		r.end(job, Failed, nil, err)
	default:
		r.end(job, Completed, result, nil)
	}
}

// end records the terminal status and wakes waiters.
func (r *Runner) end(job *Job, status Status, result any, cause error) {
	job.end(status, result, cause)
	r.save(job)
	metrics.RepairJobs.WithLabelValues(string(job.Kind), string(job.Status)).Inc()

	attrs := []any{"jobId", job.ID, "target", job.Target(), "status", job.Status, "duration", job.Duration().String()}
	if job.Status == Failed {
		r.logger.Error("Repair job failed", append(attrs, "error", job.Error)...)
	} else {
		r.logger.Info("Repair job ended", attrs...)
	}
	r.release(job.ID)
}

func (r *Runner) save(job *Job) {
	if err := r.store.Update(job); err != nil {
		r.logger.Warn("Failed to save job", "jobId", job.ID, "error", err)
	}
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.finished[id]; ok {
		close(ch)
		delete(r.finished, id)
	}
}
