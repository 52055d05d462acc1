package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrJobNotFound is returned when the referenced job does not exist.
var ErrJobNotFound = errors.New("render job not found")

// ErrStalled is the cancellation cause for jobs with no heartbeat inside
// the stall window.
var ErrStalled = errors.New("job stalled: no heartbeat within stall window")

// ErrMaxDurationExceeded is the cancellation cause for jobs running past
// the wall-clock limit.
var ErrMaxDurationExceeded = errors.New("job exceeded maximum duration")

// ProgressFunc reports encode progress. Calls also count as heartbeats.
type ProgressFunc func(progress, currentFrame int)

// Processor runs the encode for one job and returns the output video path.
// Implementations must honor ctx cancellation.
type Processor interface {
	Process(ctx context.Context, job *Job, progress ProgressFunc) (string, error)
}

// Uploader pushes a finished video to durable storage and returns its URL.
type Uploader interface {
	UploadVideo(ctx context.Context, localPath, jobID string) (string, error)
}

// SubscriberFunc receives job snapshots on every observable change.
type SubscriberFunc func(*Job)

// Options tunes the Manager. Zero values fall back to defaults.
type Options struct {
	// MaxConcurrentJobs caps how many jobs encode simultaneously.
	MaxConcurrentJobs int
	// MaxRetries bounds re-queues per job before it is failed.
	MaxRetries int
	// StallTimeout is the heartbeat window for encoding jobs.
	StallTimeout time.Duration
	// MaxDuration is the wall-clock limit for a single encode attempt.
	MaxDuration time.Duration
	// Retention is how long terminal jobs stay readable before pruning.
	Retention time.Duration
	// SweepInterval is how often the timeout monitor runs.
	SweepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentJobs <= 0 {
		o.MaxConcurrentJobs = 2
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = 2 * time.Minute
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 30 * time.Minute
	}
	if o.Retention <= 0 {
		o.Retention = 30 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Second
	}
	return o
}

// Stats summarizes the queue for the stats endpoint.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Uploading  int `json:"uploading"`
	Queued     int `json:"queued"`
	Encoding   int `json:"encoding"`
	Complete   int `json:"complete"`
	Failed     int `json:"failed"`
	QueueDepth int `json:"queue_depth"`
}

// Manager owns all render jobs: admission under the concurrency cap,
// durable persistence on status transitions, crash recovery, heartbeat
// stall detection, and bounded retry. A single job's failure or panic
// never takes the queue down.
type Manager struct {
	store     Store
	processor Processor
	uploader  Uploader
	opts      Options
	logger    *slog.Logger

	mu           sync.Mutex
	jobs         map[string]*Job
	queue        []string
	encoding     int
	isProcessing bool
	cancels      map[string]context.CancelCauseFunc
	retired      map[string]time.Time
	subs         map[string]map[int]SubscriberFunc
	nextSub      int

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a Manager. A nil store disables persistence and a
// nil logger falls back to slog.Default. Call Recover before Start to
// reload jobs persisted by a previous process.
func NewManager(store Store, processor Processor, opts Options, logger *slog.Logger) *Manager {
	if store == nil {
		store = nopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		processor: processor,
		opts:      opts.withDefaults(),
		logger:    logger,
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelCauseFunc),
		retired:   make(map[string]time.Time),
		subs:      make(map[string]map[int]SubscriberFunc),
		baseCtx:   ctx,
		stop:      cancel,
	}
}

// SetUploader enables storage upload of completed videos.
func (m *Manager) SetUploader(u Uploader) { m.uploader = u }

// Recover reloads persisted jobs. Jobs found in encoding state were
// interrupted by a crash: they go back to queued with the retry counter
// incremented, or fail outright when retries are exhausted.
func (m *Manager) Recover() error {
	jobs, err := m.store.LoadAll()
	if err != nil {
		return fmt.Errorf("render: recover: %w", err)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })

	for _, job := range jobs {
		m.mu.Lock()
		m.jobs[job.ID] = job
		m.mu.Unlock()

		switch job.Status {
		case StatusEncoding:
			if job.ExhaustedRetries() {
				_ = job.Fail("interrupted by process restart, retries exhausted")
				m.persist(job)
				m.retire(job)
				m.logger.Error("recovered job failed", slog.String("job_id", job.ID))
				continue
			}
			if err := job.Requeue("interrupted by process restart"); err != nil {
				m.logger.Error("recovered job in unexpected state",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			m.persist(job)
			m.enqueue(job.ID)
			m.logger.Info("recovered interrupted job",
				slog.String("job_id", job.ID),
				slog.Int("retry_count", job.Clone().RetryCount),
			)
		case StatusQueued:
			m.enqueue(job.ID)
		case StatusComplete, StatusFailed:
			m.retire(job)
		}
	}
	m.dispatch()
	return nil
}

// Start launches the timeout and retention monitor.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.baseCtx.Done():
				return
			case <-ticker.C:
				m.sweep(time.Now())
			}
		}
	}()
}

// Close cancels all running encodes and waits for workers to exit.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// CreateJob registers a new pending job for a session.
func (m *Manager) CreateJob(sessionID string, cfg Config) (*Job, error) {
	job := NewJob(sessionID, cfg, m.opts.MaxRetries)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.persist(job)
	m.logger.Info("render job created",
		slog.String("job_id", job.ID),
		slog.String("session_id", sessionID),
		slog.Int("total_frames", cfg.TotalFrames),
	)
	return job.Clone(), nil
}

// RegisterFrames records a batch of uploaded frames. The first batch
// moves the job from pending to uploading. Checksums are advisory: a
// count mismatch is logged, never failed.
func (m *Manager) RegisterFrames(jobID string, count int, checksums []string) error {
	job, err := m.job(jobID)
	if err != nil {
		return err
	}

	// Two first batches can race here; the loser's transition fails but
	// the job is already uploading, which is all this branch needs.
	if job.GetStatus() == StatusPending {
		if err := job.TransitionTo(StatusUploading); err == nil {
			m.persist(job)
		}
	}
	if job.GetStatus() != StatusUploading {
		return fmt.Errorf("register frames on %s job: %w", job.GetStatus(), ErrInvalidTransition)
	}

	if len(checksums) > 0 && len(checksums) != count {
		m.logger.Warn("frame checksum count mismatch",
			slog.String("job_id", jobID),
			slog.Int("frames", count),
			slog.Int("checksums", len(checksums)),
		)
	}

	job.AddFrames(count, checksums)
	m.notify(job)
	return nil
}

// QueueJob moves a job into the FIFO queue and kicks the dispatcher.
func (m *Manager) QueueJob(jobID string) error {
	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	if err := job.TransitionTo(StatusQueued); err != nil {
		return err
	}
	m.persist(job)
	m.enqueue(jobID)
	m.notify(job)
	m.dispatch()
	return nil
}

// UpdateProgress records progress for a job without touching disk.
func (m *Manager) UpdateProgress(jobID string, progress, currentFrame int) error {
	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	job.UpdateProgress(progress, currentFrame)
	m.notify(job)
	return nil
}

// RecordHeartbeat marks a job as alive.
func (m *Manager) RecordHeartbeat(jobID string) error {
	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	job.Heartbeat()
	return nil
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(jobID string) (*Job, error) {
	job, err := m.job(jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Subscribe attaches a callback invoked with a snapshot on every
// observable change. The callback is invoked once immediately with the
// current state, so late subscribers to a finished job still see it.
// The returned function unsubscribes.
func (m *Manager) Subscribe(jobID string, fn SubscriberFunc) (func(), error) {
	job, err := m.job(jobID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.nextSub++
	subID := m.nextSub
	if m.subs[jobID] == nil {
		m.subs[jobID] = make(map[int]SubscriberFunc)
	}
	m.subs[jobID][subID] = fn
	m.mu.Unlock()

	fn(job.Clone())

	return func() {
		m.mu.Lock()
		if subs, ok := m.subs[jobID]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(m.subs, jobID)
			}
		}
		m.mu.Unlock()
	}, nil
}

// Stats summarizes all known jobs.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Total: len(m.jobs), QueueDepth: len(m.queue)}
	for _, job := range m.jobs {
		switch job.GetStatus() {
		case StatusPending:
			s.Pending++
		case StatusUploading:
			s.Uploading++
		case StatusQueued:
			s.Queued++
		case StatusEncoding:
			s.Encoding++
		case StatusComplete:
			s.Complete++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

func (m *Manager) job(jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

func (m *Manager) enqueue(jobID string) {
	m.mu.Lock()
	m.queue = append(m.queue, jobID)
	m.mu.Unlock()
}

// dispatch admits queued jobs up to the concurrency cap. The
// isProcessing latch keeps concurrent completion events from racing
// past the capacity check and over-admitting.
func (m *Manager) dispatch() {
	m.mu.Lock()
	if m.isProcessing {
		m.mu.Unlock()
		return
	}
	m.isProcessing = true

	var started []*Job
	for m.encoding < m.opts.MaxConcurrentJobs && len(m.queue) > 0 {
		jobID := m.queue[0]
		m.queue = m.queue[1:]

		job, ok := m.jobs[jobID]
		if !ok {
			continue
		}
		if err := job.TransitionTo(StatusEncoding); err != nil {
			continue
		}
		m.encoding++
		ctx, cancel := context.WithCancelCause(m.baseCtx)
		m.cancels[jobID] = cancel
		started = append(started, job)

		m.wg.Add(1)
		go m.runJob(ctx, job)
	}
	m.isProcessing = false
	m.mu.Unlock()

	for _, job := range started {
		m.persist(job)
		m.notify(job)
	}
}

// runJob executes one encode attempt. Errors and panics both route
// through handleJobError so the queue survives anything the processor
// throws.
func (m *Manager) runJob(ctx context.Context, job *Job) {
	defer m.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("processor panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", rec),
			)
			m.settle(job, fmt.Errorf("processor panic: %v", rec))
		}
	}()

	attempt, cancel := context.WithTimeout(ctx, m.opts.MaxDuration)
	defer cancel()

	progress := func(p, frame int) {
		job.UpdateProgress(p, frame)
		job.Heartbeat()
		m.notify(job)
	}

	output, err := m.processor.Process(attempt, job.Clone(), progress)
	if err != nil {
		// Surface the monitor's cancellation cause instead of a bare
		// context.Canceled.
		if cause := context.Cause(ctx); cause != nil && errors.Is(err, context.Canceled) {
			err = cause
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrMaxDurationExceeded
		}
		m.settle(job, err)
		return
	}

	videoURL := ""
	if m.uploader != nil {
		url, uerr := m.uploader.UploadVideo(ctx, output, job.ID)
		if uerr != nil {
			// The encode succeeded; a failed upload keeps the local path.
			m.logger.Error("video upload failed",
				slog.String("job_id", job.ID),
				slog.String("error", uerr.Error()),
			)
		} else {
			videoURL = url
		}
	}
	job.SetOutput(output, videoURL)
	m.settle(job, nil)
}

// settle finishes an encode attempt: releases the slot, completes or
// routes through the retry-or-fail path, then re-runs the dispatcher.
func (m *Manager) settle(job *Job, procErr error) {
	m.mu.Lock()
	m.encoding--
	delete(m.cancels, job.ID)
	m.mu.Unlock()

	if procErr == nil {
		if err := job.TransitionTo(StatusComplete); err != nil {
			m.logger.Error("complete transition failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		m.persist(job)
		m.notify(job)
		m.retire(job)
		m.logger.Info("render job complete", slog.String("job_id", job.ID))
	} else {
		m.handleJobError(job, procErr)
	}
	m.dispatch()
}

// handleJobError re-queues a failed attempt while retries remain,
// otherwise fails the job permanently with the error recorded.
func (m *Manager) handleJobError(job *Job, procErr error) {
	if job.ExhaustedRetries() {
		if err := job.Fail(procErr.Error()); err != nil {
			m.logger.Error("fail transition failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		m.persist(job)
		m.notify(job)
		m.retire(job)
		m.logger.Error("render job failed permanently",
			slog.String("job_id", job.ID),
			slog.String("error", procErr.Error()),
		)
		return
	}

	if err := job.Requeue(procErr.Error()); err != nil {
		m.logger.Error("requeue transition failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	m.persist(job)
	m.enqueue(job.ID)
	m.notify(job)
	m.logger.Warn("render job re-queued",
		slog.String("job_id", job.ID),
		slog.Int("retry_count", job.Clone().RetryCount),
		slog.String("error", procErr.Error()),
	)
}

// sweep flags stalled or over-limit encoding jobs and prunes terminal
// jobs past the retention window with no remaining subscribers.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	for jobID, job := range m.jobs {
		if job.GetStatus() != StatusEncoding {
			continue
		}
		snap := job.Clone()
		var cause error
		switch {
		case now.Sub(snap.LastHeartbeat) > m.opts.StallTimeout:
			cause = ErrStalled
		case now.Sub(snap.StartedAt) > m.opts.MaxDuration:
			cause = ErrMaxDurationExceeded
		}
		if cause == nil {
			continue
		}
		if cancel, ok := m.cancels[jobID]; ok {
			m.logger.Warn("cancelling unresponsive job",
				slog.String("job_id", jobID),
				slog.String("reason", cause.Error()),
			)
			cancel(cause)
		}
	}

	var prune []string
	for jobID, retiredAt := range m.retired {
		if now.Sub(retiredAt) >= m.opts.Retention && len(m.subs[jobID]) == 0 {
			prune = append(prune, jobID)
		}
	}
	for _, jobID := range prune {
		delete(m.jobs, jobID)
		delete(m.retired, jobID)
	}
	m.mu.Unlock()

	for _, jobID := range prune {
		if err := m.store.Delete(jobID); err != nil {
			m.logger.Error("prune failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		m.logger.Info("pruned retained job", slog.String("job_id", jobID))
	}
}

// retire starts the retention clock for a terminal job.
func (m *Manager) retire(job *Job) {
	m.mu.Lock()
	m.retired[job.ID] = time.Now()
	m.mu.Unlock()
}

// persist writes the job record; persistence failures are logged, never
// fatal to the queue.
func (m *Manager) persist(job *Job) {
	if err := m.store.Save(job); err != nil {
		m.logger.Error("persist failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// notify fans a snapshot out to the job's subscribers.
func (m *Manager) notify(job *Job) {
	m.mu.Lock()
	subs := make([]SubscriberFunc, 0, len(m.subs[job.ID]))
	for _, fn := range m.subs[job.ID] {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	snap := job.Clone()
	for _, fn := range subs {
		fn(snap)
	}
}
