// Package queues provides job queue infrastructure for the summary
// pipeline: an in-memory queue for tests and single-process deployments,
// and a Redis-backed queue for multi-worker deployments.
package queues

import (
	"encoding/json"
	"time"
)

// Priority levels for queue messages.
type Priority int

const (
	PriorityLow    Priority = 0 // idle-timeout finalization
	PriorityNormal Priority = 1 // manual trigger requests
	PriorityHigh   Priority = 2 // re-triggers after a failure
)

// MessageType identifies the type of queue message.
type MessageType string

const (
	MessageTypeSummary MessageType = "summary"
)

// Message is the base interface for all queue messages.
type Message interface {
	// GetJobID returns the summary job being dispatched.
	GetJobID() string
	// GetMeetingID returns the meeting the job belongs to.
	GetMeetingID() string
	// GetPriority returns the message priority.
	GetPriority() Priority
	// GetMessageType returns the message type.
	GetMessageType() MessageType
}

// SummaryMessage dispatches a queued summary job to a worker.
type SummaryMessage struct {
	JobID       string    `json:"job_id"`
	MeetingID   string    `json:"meeting_id"`
	Priority    Priority  `json:"priority"`
	TriggeredAt time.Time `json:"triggered_at"`
}

func (m *SummaryMessage) GetJobID() string            { return m.JobID }
func (m *SummaryMessage) GetMeetingID() string        { return m.MeetingID }
func (m *SummaryMessage) GetPriority() Priority       { return m.Priority }
func (m *SummaryMessage) GetMessageType() MessageType { return MessageTypeSummary }

// QueuedMessage wraps a message with queue metadata.
type QueuedMessage struct {
	ID           string          `json:"id"`
	Message      json.RawMessage `json:"message"`
	MessageType  MessageType     `json:"message_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"` // For delayed visibility
}

// ParseMessage parses the raw message based on message type.
func (qm *QueuedMessage) ParseMessage() (Message, error) {
	switch qm.MessageType {
	case MessageTypeSummary:
		var msg SummaryMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// Queue defines the interface for a job queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a message to the queue. An optional delay keeps the
	// message invisible until it elapses (retry backoff).
	Enqueue(msg Message, delay time.Duration) error

	// Dequeue retrieves messages from the queue.
	// Returns up to maxMessages, blocks for timeout.
	Dequeue(maxMessages int, timeout time.Duration) ([]*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(messageID string) error

	// Nack indicates processing failure, message will be retried with
	// the given backoff or dead-lettered when retries are exhausted.
	Nack(messageID string, backoff time.Duration) error

	// MoveToDeadLetter moves a message to the dead letter queue.
	MoveToDeadLetter(messageID string, reason string) error

	// Depth returns the current queue depth.
	Depth() (int64, error)

	// Close closes the queue connection.
	Close() error
}

// QueueConfig configures queue behavior.
type QueueConfig struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// DefaultQueueConfig returns the default summary queue configuration.
// Summarizer calls can be slow, hence the generous visibility timeout.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:              "pipeline:summary",
		VisibilityTimeout: 300 * time.Second,
		MaxRetries:        3,
		RetentionPeriod:   24 * time.Hour,
	}
}

// Verify interface compliance
var _ Message = (*SummaryMessage)(nil)
