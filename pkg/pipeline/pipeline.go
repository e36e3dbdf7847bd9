// Package pipeline implements the meeting processing pipeline: chunk
// intake, ordered transcript assembly, and the summary job state
// machine. Each meeting's state is guarded by its own coordinator so
// operations on different meetings never contend.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/minuteworks/scribe/pkg/ai"
	"github.com/minuteworks/scribe/pkg/contentid"
	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
	"github.com/minuteworks/scribe/pkg/pipeline/queues"
)

// Config holds pipeline tuning parameters.
type Config struct {
	// MaxChunkBytes caps the accepted size of a single audio chunk.
	MaxChunkBytes int64 `yaml:"max_chunk_bytes"`

	// IdleFinalize is how long a meeting with chunks may sit without
	// new uploads before summarization is triggered automatically.
	// Zero disables auto-finalize.
	IdleFinalize time.Duration `yaml:"idle_finalize"`

	// StaleJobTimeout is how long a job may stay in processing before
	// the reaper fails it. Zero disables the reaper.
	StaleJobTimeout time.Duration `yaml:"stale_job_timeout"`

	// Retry governs re-queueing of rate-limited summary jobs.
	Retry queues.RetryPolicy `yaml:"retry"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkBytes:   50 * 1024 * 1024,
		IdleFinalize:    5 * time.Minute,
		StaleJobTimeout: 15 * time.Minute,
		Retry:           queues.DefaultRetryPolicy(),
	}
}

// StatusListener receives a snapshot after every observable pipeline
// transition for a meeting.
type StatusListener func(snap meeting.StatusSnapshot)

// coordinator owns the mutable pipeline state for one meeting. The
// mutex serializes assembler steps and job transitions; external
// service calls happen outside it.
type coordinator struct {
	meetingID string

	mu        sync.Mutex
	watermark int64
	wmLoaded  bool

	// idleDeferred marks a meeting the idle sweep found nothing
	// transcribable for. It stays skipped until a new chunk arrives.
	idleDeferred bool
}

// Engine drives the pipeline over a Store, a job queue, and an
// upstream AI provider.
type Engine struct {
	store    meeting.Store
	queue    queues.Queue
	provider ai.Provider
	config   Config
	metrics  *Metrics
	logger   logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	coords   map[string]*coordinator
	listener StatusListener
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests to make
// idle-timeout and reaper behavior deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics overrides the default metrics set.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStatusListener registers a listener notified after every
// pipeline transition.
func WithStatusListener(l StatusListener) Option {
	return func(e *Engine) { e.listener = l }
}

// NewEngine creates a pipeline engine.
func NewEngine(store meeting.Store, queue queues.Queue, provider ai.Provider, config Config, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		queue:    queue,
		provider: provider,
		config:   config,
		metrics:  NewMetrics(prometheus.NewRegistry()),
		logger:   logger.With(logging.F("component", "pipeline")),
		now:      time.Now,
		coords:   make(map[string]*coordinator),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// coordinatorFor returns the coordinator for a meeting, creating it on
// first use.
func (e *Engine) coordinatorFor(meetingID string) *coordinator {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.coords[meetingID]
	if !ok {
		c = &coordinator{meetingID: meetingID}
		e.coords[meetingID] = c
	}
	return c
}

// MaxChunkBytes returns the configured chunk size cap, for transport
// layers that reject oversize uploads before buffering them.
func (e *Engine) MaxChunkBytes() int64 {
	return e.config.MaxChunkBytes
}

// CreateMeeting registers a new meeting owned by the given identity.
func (e *Engine) CreateMeeting(ctx context.Context, ownerID, title string) (*meeting.Meeting, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required: %w", scerrors.ErrInvalidInput)
	}

	now := e.now()
	m := &meeting.Meeting{
		ID:        contentid.New(contentid.TypeMeeting),
		OwnerID:   ownerID,
		Title:     title,
		State:     meeting.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateMeeting(ctx, m); err != nil {
		return nil, err
	}

	e.logger.Info("Meeting created",
		logging.F("meeting_id", m.ID),
		logging.F("owner_id", ownerID))
	return m, nil
}

// GetMeeting returns a meeting by id.
func (e *Engine) GetMeeting(ctx context.Context, meetingID string) (*meeting.Meeting, error) {
	return e.store.GetMeeting(ctx, meetingID)
}

// publish builds a status snapshot from current state and notifies the
// listener. Callers hold the meeting's coordinator lock so listeners
// observe transitions in order.
func (e *Engine) publish(m *meeting.Meeting, job *meeting.SummaryJob, watermark int64) {
	if e.listener == nil {
		return
	}
	snap := meeting.StatusSnapshot{
		MeetingID: m.ID,
		State:     m.State,
		Watermark: watermark,
	}
	if job != nil {
		snap.JobID = job.ID
		snap.Attempts = job.Attempts
		snap.LastError = job.LastError
	}
	e.listener(snap)
}

// FinalizeIdleMeetings triggers summarization for meetings whose last
// chunk upload is older than the idle-finalize window. The candidate
// scan is store-backed, so meetings uploaded before a restart still
// finalize. Called periodically from RunMaintenance and directly by
// tests.
func (e *Engine) FinalizeIdleMeetings(ctx context.Context) {
	if e.config.IdleFinalize <= 0 {
		return
	}
	cutoff := e.now().Add(-e.config.IdleFinalize)

	ids, err := e.store.IdleMeetings(ctx, cutoff)
	if err != nil {
		e.logger.Warn("Idle meeting scan failed", logging.Err(err))
		return
	}

	for _, id := range ids {
		c := e.coordinatorFor(id)
		c.mu.Lock()
		deferred := c.idleDeferred
		c.mu.Unlock()
		if deferred {
			continue
		}

		_, err := e.triggerSummary(ctx, id, "idle_timeout")
		switch {
		case scerrors.IsNotReady(err):
			// Nothing transcribable yet, and re-trying every sweep
			// cannot change that. Skip until a new chunk arrives.
			c.mu.Lock()
			c.idleDeferred = true
			c.mu.Unlock()
		case err != nil:
			e.logger.Warn("Idle finalize failed",
				logging.F("meeting_id", id), logging.Err(err))
		}
	}
}

// ReapStaleJobs fails jobs stuck in processing past the stale-job
// timeout, typically after a worker crash.
func (e *Engine) ReapStaleJobs(ctx context.Context) {
	if e.config.StaleJobTimeout <= 0 {
		return
	}
	cutoff := e.now().Add(-e.config.StaleJobTimeout)

	jobs, err := e.store.StaleJobs(ctx, cutoff)
	if err != nil {
		e.logger.Warn("Stale job scan failed", logging.Err(err))
		return
	}

	for _, job := range jobs {
		c := e.coordinatorFor(job.MeetingID)
		c.mu.Lock()
		// Re-read under the lock: a worker may have finished or failed
		// the job between the scan and here, and its outcome must not
		// be clobbered.
		cur, err := e.store.GetJob(ctx, job.ID)
		if err == nil && cur.State == meeting.StateProcessing {
			e.failJobLocked(ctx, c, cur, "processing timed out")
		}
		c.mu.Unlock()
	}
}

// RunMaintenance runs the idle-finalize and reaper sweeps on a ticker
// until the context is cancelled.
func (e *Engine) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.FinalizeIdleMeetings(ctx)
			e.ReapStaleJobs(ctx)
		}
	}
}
