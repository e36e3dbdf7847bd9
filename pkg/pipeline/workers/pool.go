// Package workers provides worker pool management for the summary
// pipeline. Workers pull job messages from a queue and hand them to a
// handler; dispatch is explicit so tests can drive it deterministically.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/pipeline/queues"
)

// WorkerStatus represents the worker's current status.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusHealthy  WorkerStatus = "healthy"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// MessageHandler processes a queue message.
type MessageHandler func(ctx context.Context, msg queues.Message) error

// Config configures a worker pool.
type Config struct {
	Count             int           `yaml:"count"`
	BatchSize         int           `yaml:"batch_size"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Count:             4,
		BatchSize:         1,
		VisibilityTimeout: 300 * time.Second,
		PollInterval:      1 * time.Second,
		ShutdownTimeout:   120 * time.Second,
	}
}

// Worker represents a single worker processing messages.
type Worker struct {
	ID           string
	Config       Config
	Status       WorkerStatus
	Queue        queues.Queue
	Handler      MessageHandler
	Retry        queues.RetryPolicy
	StartedAt    time.Time
	LastActivity time.Time

	// Metrics
	ProcessedCount atomic.Int64
	FailedCount    atomic.Int64

	logger logging.Logger

	// Control
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
}

// NewWorker creates a new worker.
func NewWorker(config Config, queue queues.Queue, handler MessageHandler, retry queues.RetryPolicy, logger logging.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Worker{
		ID:         id,
		Config:     config,
		Status:     WorkerStatusStarting,
		Queue:      queue,
		Handler:    handler,
		Retry:      retry,
		logger:     logger.With(logging.F("component", "summary_worker"), logging.F("worker_id", id)),
		ctx:        ctx,
		cancelFunc: cancel,
		wg:         &sync.WaitGroup{},
	}
}

// Start begins processing messages.
func (w *Worker) Start() {
	w.StartedAt = time.Now()
	w.Status = WorkerStatusHealthy
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.processLoop()
	}()
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.Status = WorkerStatusDraining
	w.cancelFunc()

	// Wait for shutdown with timeout
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.Status = WorkerStatusStopped
	case <-time.After(w.Config.ShutdownTimeout):
		w.Status = WorkerStatusStopped
	}
}

func (w *Worker) processLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			messages, err := w.Queue.Dequeue(w.Config.BatchSize, w.Config.PollInterval)
			if err != nil {
				if err == w.ctx.Err() || err == queues.ErrQueueClosed {
					return
				}
				w.logger.Warn("Dequeue failed", logging.Err(err))
				time.Sleep(w.Config.PollInterval)
				continue
			}

			for _, qm := range messages {
				if w.ctx.Err() != nil {
					return
				}

				w.processMessage(qm)
			}
		}
	}
}

func (w *Worker) processMessage(qm *queues.QueuedMessage) {
	w.LastActivity = time.Now()

	msg, err := qm.ParseMessage()
	if err != nil {
		// Invalid message, move to DLQ
		w.Queue.MoveToDeadLetter(qm.ID, fmt.Sprintf("parse error: %v", err))
		w.FailedCount.Add(1)
		return
	}

	// Process with timeout. Leave headroom below the visibility timeout
	// so the queue never hands the message to a second worker while the
	// first is still finishing.
	budget := w.Config.VisibilityTimeout - 10*time.Second
	if budget <= 0 {
		budget = w.Config.VisibilityTimeout
	}
	ctx, cancel := context.WithTimeout(w.ctx, budget)
	defer cancel()

	err = w.Handler(ctx, msg)
	if err != nil {
		decision := w.Retry.DecideRetry(err, qm.RetryCount+1)
		if decision.ShouldRetry {
			w.Queue.Nack(qm.ID, decision.BackoffDuration)
		} else {
			w.Queue.MoveToDeadLetter(qm.ID, err.Error())
		}
		w.FailedCount.Add(1)
		return
	}

	// Success
	w.Queue.Ack(qm.ID)
	w.ProcessedCount.Add(1)
}

// Pool manages a pool of workers.
type Pool struct {
	Config  Config
	Workers []*Worker
	Queue   queues.Queue
	Handler MessageHandler
	Retry   queues.RetryPolicy

	logger logging.Logger
	mu     sync.RWMutex
}

// NewPool creates a new worker pool.
func NewPool(config Config, queue queues.Queue, handler MessageHandler, retry queues.RetryPolicy, logger logging.Logger) *Pool {
	return &Pool{
		Config:  config,
		Queue:   queue,
		Handler: handler,
		Retry:   retry,
		Workers: make([]*Worker, 0, config.Count),
		logger:  logger,
	}
}

// Start starts all workers in the pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.Config.Count; i++ {
		worker := NewWorker(p.Config, p.Queue, p.Handler, p.Retry, p.logger)
		worker.Start()
		p.Workers = append(p.Workers, worker)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wg sync.WaitGroup
	for _, worker := range p.Workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		WorkerCount: len(p.Workers),
	}

	for _, w := range p.Workers {
		if w.Status == WorkerStatusHealthy {
			stats.ActiveCount++
		}
		stats.Processed += w.ProcessedCount.Load()
		stats.Failed += w.FailedCount.Load()
	}

	return stats
}

// PoolStats contains pool statistics.
type PoolStats struct {
	WorkerCount int
	ActiveCount int
	Processed   int64
	Failed      int64
}
