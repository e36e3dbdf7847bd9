package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using Redis lists and sorted sets. Used
// when summary workers run in separate processes from the ingest path.
type RedisQueue struct {
	client     *redis.Client
	name       string
	config     QueueConfig
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(client *redis.Client, config QueueConfig) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client:     client,
		name:       config.Name,
		config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Redis key prefixes
const (
	keyPrefixQueue      = "queue:"      // Main queue (sorted set by priority)
	keyPrefixProcessing = "processing:" // Messages being processed
	keyPrefixMessage    = "msg:"        // Message data
	keyPrefixDLQ        = "dlq:"        // Dead letter queue
)

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) queueKey() string      { return keyPrefixQueue + q.name }
func (q *RedisQueue) processingKey() string { return keyPrefixProcessing + q.name }
func (q *RedisQueue) dlqKey() string        { return keyPrefixDLQ + q.name }
func (q *RedisQueue) msgKey(id string) string {
	return keyPrefixMessage + q.name + ":" + id
}

// Enqueue adds a message to the queue. A positive delay keeps the
// message invisible until it elapses.
func (q *RedisQueue) Enqueue(msg Message, delay time.Duration) error {
	messageID := uuid.New().String()

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	qm := &QueuedMessage{
		ID:          messageID,
		Message:     msgBytes,
		MessageType: msg.GetMessageType(),
		Priority:    msg.GetPriority(),
		RetryCount:  0,
		EnqueuedAt:  time.Now(),
	}
	visibleAt := time.Now()
	if delay > 0 {
		visibleAt = visibleAt.Add(delay)
		qm.VisibleAfter = visibleAt
	}

	qmBytes, err := json.Marshal(qm)
	if err != nil {
		return fmt.Errorf("marshaling queued message: %w", err)
	}

	// Store message data and add to sorted set in a transaction
	pipe := q.client.TxPipeline()

	msgKey := q.msgKey(messageID)
	pipe.Set(q.ctx, msgKey, qmBytes, q.config.RetentionPeriod)

	// Score = priority * 1e12 + visibility timestamp, giving FIFO within
	// priority and delayed visibility for retries.
	queueKey := q.queueKey()
	score := float64(msg.GetPriority())*1e12 + float64(visibleAt.UnixNano())
	pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: messageID})

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("enqueueing message: %w", err)
	}

	return nil
}

// Dequeue retrieves messages from the queue.
func (q *RedisQueue) Dequeue(maxMessages int, timeout time.Duration) ([]*QueuedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	queueKey := q.queueKey()
	processingKey := q.processingKey()
	deadline := time.Now().Add(timeout)

	var messages []*QueuedMessage

	for time.Now().Before(deadline) && len(messages) < maxMessages {
		// Pop highest priority message (highest score)
		result, err := q.client.ZPopMax(q.ctx, queueKey, 1).Result()
		if err == redis.Nil || len(result) == 0 {
			// Queue is empty, wait a bit and retry
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-q.ctx.Done():
				return messages, q.ctx.Err()
			}
		}
		if err != nil {
			return messages, fmt.Errorf("popping from queue: %w", err)
		}

		messageID := result[0].Member.(string)
		msgKey := q.msgKey(messageID)

		data, err := q.client.Get(q.ctx, msgKey).Bytes()
		if err == redis.Nil {
			// Message expired, skip
			continue
		}
		if err != nil {
			return messages, fmt.Errorf("reading message data: %w", err)
		}

		var qm QueuedMessage
		if err := json.Unmarshal(data, &qm); err != nil {
			return messages, fmt.Errorf("unmarshaling message: %w", err)
		}

		// A delayed message may sort ahead of ready ones within its
		// priority band; push it back and keep waiting.
		if qm.VisibleAfter.After(time.Now()) {
			score := float64(qm.Priority)*1e12 + float64(qm.VisibleAfter.UnixNano())
			q.client.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: messageID})
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-q.ctx.Done():
				return messages, q.ctx.Err()
			}
		}

		// Move to processing set with visibility timeout
		visibleAfter := time.Now().Add(q.config.VisibilityTimeout)
		qm.VisibleAfter = visibleAfter

		updatedData, _ := json.Marshal(qm)
		pipe := q.client.TxPipeline()
		pipe.Set(q.ctx, msgKey, updatedData, q.config.RetentionPeriod)
		pipe.ZAdd(q.ctx, processingKey, redis.Z{
			Score:  float64(visibleAfter.UnixNano()),
			Member: messageID,
		})
		if _, err := pipe.Exec(q.ctx); err != nil {
			return messages, fmt.Errorf("moving to processing: %w", err)
		}

		messages = append(messages, &qm)
	}

	return messages, nil
}

// Ack acknowledges successful processing of a message.
func (q *RedisQueue) Ack(messageID string) error {
	processingKey := q.processingKey()
	msgKey := q.msgKey(messageID)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, messageID)
	pipe.Del(q.ctx, msgKey)
	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("acking message: %w", err)
	}

	return nil
}

// Nack indicates processing failure; the message is re-enqueued with the
// given backoff, or dead-lettered when retries are exhausted.
func (q *RedisQueue) Nack(messageID string, backoff time.Duration) error {
	processingKey := q.processingKey()
	msgKey := q.msgKey(messageID)

	data, err := q.client.Get(q.ctx, msgKey).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}

	var qm QueuedMessage
	if err := json.Unmarshal(data, &qm); err != nil {
		return fmt.Errorf("unmarshaling message: %w", err)
	}

	qm.RetryCount++

	if qm.RetryCount >= q.config.MaxRetries {
		return q.MoveToDeadLetter(messageID, ErrMaxRetriesExceeded.Error())
	}

	// Re-enqueue with delayed visibility
	queueKey := q.queueKey()
	qm.VisibleAfter = time.Now().Add(backoff)

	updatedData, _ := json.Marshal(qm)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, messageID)
	pipe.Set(q.ctx, msgKey, updatedData, q.config.RetentionPeriod)
	score := float64(qm.Priority)*1e12 + float64(qm.VisibleAfter.UnixNano())
	pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: messageID})

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("nacking message: %w", err)
	}

	return nil
}

// MoveToDeadLetter moves a message to the dead letter queue.
func (q *RedisQueue) MoveToDeadLetter(messageID string, reason string) error {
	processingKey := q.processingKey()
	msgKey := q.msgKey(messageID)
	dlqKey := q.dlqKey()

	data, err := q.client.Get(q.ctx, msgKey).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}

	dlqEntry := map[string]interface{}{
		"message":    string(data),
		"reason":     reason,
		"moved_at":   time.Now().Format(time.RFC3339),
		"queue_name": q.name,
	}
	dlqData, _ := json.Marshal(dlqEntry)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, messageID)
	pipe.Del(q.ctx, msgKey)
	pipe.ZAdd(q.ctx, dlqKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(dlqData),
	})

	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("moving to DLQ: %w", err)
	}

	return nil
}

// Depth returns the current queue depth.
func (q *RedisQueue) Depth() (int64, error) {
	queueKey := q.queueKey()
	return q.client.ZCard(q.ctx, queueKey).Result()
}

// Close closes the queue connection.
func (q *RedisQueue) Close() error {
	q.cancelFunc()
	return nil
}

// RecoverStaleMessages recovers messages that exceeded visibility timeout.
// Should be called periodically by a background worker.
func (q *RedisQueue) RecoverStaleMessages() error {
	processingKey := q.processingKey()
	queueKey := q.queueKey()

	// Find messages whose visibility timeout has expired
	now := float64(time.Now().UnixNano())
	staleMessages, err := q.client.ZRangeByScore(q.ctx, processingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("finding stale messages: %w", err)
	}

	for _, messageID := range staleMessages {
		msgKey := q.msgKey(messageID)

		data, err := q.client.Get(q.ctx, msgKey).Bytes()
		if err == redis.Nil {
			// Message expired, just remove from processing
			q.client.ZRem(q.ctx, processingKey, messageID)
			continue
		}
		if err != nil {
			continue
		}

		var qm QueuedMessage
		if err := json.Unmarshal(data, &qm); err != nil {
			continue
		}

		qm.RetryCount++

		if qm.RetryCount >= q.config.MaxRetries {
			q.MoveToDeadLetter(messageID, "visibility timeout exceeded")
			continue
		}

		// Re-enqueue
		updatedData, _ := json.Marshal(qm)
		pipe := q.client.TxPipeline()
		pipe.ZRem(q.ctx, processingKey, messageID)
		pipe.Set(q.ctx, msgKey, updatedData, q.config.RetentionPeriod)
		score := float64(qm.Priority)*1e12 + float64(time.Now().UnixNano())
		pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: messageID})
		pipe.Exec(q.ctx)
	}

	return nil
}

// Verify interface compliance
var _ Queue = (*RedisQueue)(nil)
