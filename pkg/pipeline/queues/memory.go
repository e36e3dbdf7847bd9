package queues

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue implementation. It backs tests,
// which need deterministic dispatch, and single-node deployments that
// run without Redis. Semantics match RedisQueue: priority ordering,
// delayed visibility, visibility timeout on dequeued messages, and a
// dead letter list.
type MemoryQueue struct {
	name   string
	config QueueConfig

	mu     sync.Mutex
	closed bool
	// ready holds pending messages; processing holds dequeued messages
	// awaiting ack or nack.
	ready      []*QueuedMessage
	processing map[string]*QueuedMessage
	deadLetter []DeadLetterEntry

	// wake is broadcast whenever a message becomes available so blocked
	// Dequeue calls can re-check without busy polling.
	wake chan struct{}
}

// DeadLetterEntry records a message that exhausted processing.
type DeadLetterEntry struct {
	Message *QueuedMessage
	Reason  string
	MovedAt time.Time
}

// NewMemoryQueue creates a new in-memory queue.
func NewMemoryQueue(config QueueConfig) *MemoryQueue {
	return &MemoryQueue{
		name:       config.Name,
		config:     config,
		processing: make(map[string]*QueuedMessage),
		wake:       make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string {
	return q.name
}

// Enqueue adds a message to the queue.
func (q *MemoryQueue) Enqueue(msg Message, delay time.Duration) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	qm := &QueuedMessage{
		ID:          uuid.New().String(),
		Message:     msgBytes,
		MessageType: msg.GetMessageType(),
		Priority:    msg.GetPriority(),
		EnqueuedAt:  time.Now(),
	}
	if delay > 0 {
		qm.VisibleAfter = time.Now().Add(delay)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.ready = append(q.ready, qm)
	q.signal()
	return nil
}

// Dequeue retrieves up to maxMessages visible messages, blocking up to
// timeout when none are available.
func (q *MemoryQueue) Dequeue(maxMessages int, timeout time.Duration) ([]*QueuedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}

		messages := q.takeLocked(maxMessages)
		q.mu.Unlock()

		if len(messages) > 0 {
			return messages, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		// Delayed messages become visible without a new Enqueue, so cap
		// the wait instead of sleeping until the next signal.
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-q.wake:
		case <-time.After(wait):
		}
	}
}

// takeLocked pops up to n visible messages ordered by priority then
// enqueue time. Caller holds q.mu.
func (q *MemoryQueue) takeLocked(n int) []*QueuedMessage {
	now := time.Now()
	sort.SliceStable(q.ready, func(i, j int) bool {
		if q.ready[i].Priority != q.ready[j].Priority {
			return q.ready[i].Priority > q.ready[j].Priority
		}
		return q.ready[i].EnqueuedAt.Before(q.ready[j].EnqueuedAt)
	})

	var taken []*QueuedMessage
	var rest []*QueuedMessage
	for _, qm := range q.ready {
		if len(taken) < n && !qm.VisibleAfter.After(now) {
			qm.VisibleAfter = now.Add(q.config.VisibilityTimeout)
			q.processing[qm.ID] = qm
			taken = append(taken, qm)
		} else {
			rest = append(rest, qm)
		}
	}
	q.ready = rest
	return taken
}

// Ack acknowledges successful processing of a message.
func (q *MemoryQueue) Ack(messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.processing[messageID]; !ok {
		return ErrMessageNotFound
	}
	delete(q.processing, messageID)
	return nil
}

// Nack returns a message to the queue with the given backoff, or moves
// it to the dead letter list when retries are exhausted.
func (q *MemoryQueue) Nack(messageID string, backoff time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	qm, ok := q.processing[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	delete(q.processing, messageID)

	qm.RetryCount++
	if qm.RetryCount >= q.config.MaxRetries {
		q.deadLetter = append(q.deadLetter, DeadLetterEntry{
			Message: qm,
			Reason:  ErrMaxRetriesExceeded.Error(),
			MovedAt: time.Now(),
		})
		return nil
	}

	qm.VisibleAfter = time.Now().Add(backoff)
	q.ready = append(q.ready, qm)
	q.signal()
	return nil
}

// MoveToDeadLetter moves a message to the dead letter list.
func (q *MemoryQueue) MoveToDeadLetter(messageID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	qm, ok := q.processing[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	delete(q.processing, messageID)
	q.deadLetter = append(q.deadLetter, DeadLetterEntry{
		Message: qm,
		Reason:  reason,
		MovedAt: time.Now(),
	})
	return nil
}

// Depth returns the number of pending messages.
func (q *MemoryQueue) Depth() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready)), nil
}

// DeadLetters returns a copy of the dead letter list.
func (q *MemoryQueue) DeadLetters() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetterEntry(nil), q.deadLetter...)
}

// Close closes the queue. Blocked Dequeue calls return ErrQueueClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
	return nil
}

// signal wakes one blocked Dequeue without blocking the caller.
func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Verify interface compliance
var _ Queue = (*MemoryQueue)(nil)
