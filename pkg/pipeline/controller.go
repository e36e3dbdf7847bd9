package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/minuteworks/scribe/pkg/ai"
	"github.com/minuteworks/scribe/pkg/contentid"
	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
	"github.com/minuteworks/scribe/pkg/pipeline/queues"
)

// TriggerSummary requests summarization of a meeting's assembled
// transcript. When a job is already queued or processing, the existing
// job is returned instead of creating a second one, so rapid repeated
// triggers never produce duplicate upstream calls.
//
// A completed meeting whose transcript has not changed since its last
// job also returns the existing job; a changed transcript queues a
// regeneration. A failed meeting always re-queues, with the attempt
// count starting fresh.
func (e *Engine) TriggerSummary(ctx context.Context, meetingID string) (*meeting.SummaryJob, error) {
	return e.triggerSummary(ctx, meetingID, "manual")
}

func (e *Engine) triggerSummary(ctx context.Context, meetingID, kind string) (*meeting.SummaryJob, error) {
	m, err := e.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	c := e.coordinatorFor(m.ID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := e.loadWatermarkLocked(ctx, c); err != nil {
		return nil, err
	}

	// Single active job per meeting. Concurrent triggers all observe
	// the same job.
	if active, err := e.store.ActiveJob(ctx, m.ID); err == nil {
		e.metrics.RecordTrigger("deduplicated")
		return active, nil
	} else if !scerrors.IsNotFound(err) {
		return nil, err
	}

	snapshot, err := e.assembledTranscriptLocked(ctx, c)
	if err != nil {
		return nil, err
	}
	if snapshot == "" {
		return nil, fmt.Errorf("meeting %s has no transcribed audio yet: %w", m.ID, scerrors.ErrNotReady)
	}

	// Unchanged transcript after a completed job needs no regeneration.
	if m.State == meeting.StateCompleted && m.JobID != "" {
		prev, err := e.store.GetJob(ctx, m.JobID)
		if err == nil && prev.State == meeting.StateCompleted && prev.Transcript == snapshot {
			e.metrics.RecordTrigger("unchanged")
			return prev, nil
		}
	}

	// Idle-timeout finalizations yield to caller-driven triggers, and a
	// re-trigger after a failure jumps the line.
	priority := queues.PriorityNormal
	switch {
	case kind == "idle_timeout":
		priority = queues.PriorityLow
	case m.State == meeting.StateFailed:
		priority = queues.PriorityHigh
	}

	now := e.now()
	job := &meeting.SummaryJob{
		ID:         contentid.New(contentid.TypeJob),
		MeetingID:  m.ID,
		State:      meeting.StateQueued,
		Transcript: snapshot,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	m.State = meeting.StateQueued
	m.JobID = job.ID
	m.UpdatedAt = now
	if err := e.store.UpdateMeeting(ctx, m); err != nil {
		return nil, err
	}

	msg := &queues.SummaryMessage{
		JobID:       job.ID,
		MeetingID:   m.ID,
		Priority:    priority,
		TriggeredAt: now,
	}
	if err := e.queue.Enqueue(msg, 0); err != nil {
		return nil, fmt.Errorf("enqueue summary job: %w", err)
	}

	e.metrics.RecordTrigger(kind)
	e.publish(m, job, c.watermark)
	e.logger.Info("Summary job queued",
		logging.F("meeting_id", m.ID),
		logging.F("job_id", job.ID),
		logging.F("trigger", kind))
	return job, nil
}

// CancelSummary moves the meeting's queued or processing job to Failed
// with a cancellation reason. An in-flight summarizer call is not
// aborted; its result is discarded when it returns.
func (e *Engine) CancelSummary(ctx context.Context, meetingID string) error {
	m, err := e.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}

	c := e.coordinatorFor(m.ID)
	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := e.store.ActiveJob(ctx, m.ID)
	if err != nil {
		if scerrors.IsNotFound(err) {
			return fmt.Errorf("meeting %s has no active summary job: %w", m.ID, scerrors.ErrInvalidState)
		}
		return err
	}

	e.failJobLocked(ctx, c, job, "cancelled by caller")
	return nil
}

// failJobLocked moves a job to Failed and records the reason. Caller
// holds the meeting's coordinator lock.
func (e *Engine) failJobLocked(ctx context.Context, c *coordinator, job *meeting.SummaryJob, reason string) {
	now := e.now()
	job.State = meeting.StateFailed
	job.LastError = reason
	job.FinishedAt = &now
	job.UpdatedAt = now
	if err := e.store.SaveJob(ctx, job); err != nil {
		e.logger.Error("Failed to persist job failure",
			logging.F("job_id", job.ID), logging.Err(err))
		return
	}

	m, err := e.store.GetMeeting(ctx, job.MeetingID)
	if err == nil {
		m.State = meeting.StateFailed
		m.UpdatedAt = now
		if err := e.store.UpdateMeeting(ctx, m); err != nil {
			e.logger.Error("Failed to persist meeting failure",
				logging.F("meeting_id", m.ID), logging.Err(err))
		}
		e.publish(m, job, c.watermark)
	}

	e.metrics.RecordJobFinished(string(meeting.StateFailed))
	e.logger.Warn("Summary job failed",
		logging.F("meeting_id", job.MeetingID),
		logging.F("job_id", job.ID),
		logging.F("reason", reason))
}

// HandleSummaryMessage is the worker handler for summary jobs. It runs
// the Queued -> Processing -> Completed/Failed transitions, calling the
// summarizer outside the coordinator lock.
func (e *Engine) HandleSummaryMessage(ctx context.Context, msg queues.Message) error {
	sm, ok := msg.(*queues.SummaryMessage)
	if !ok {
		return queues.NewPermanentError("bad_message",
			fmt.Sprintf("unexpected message type %s", msg.GetMessageType()), nil)
	}
	return e.processJob(ctx, sm.JobID)
}

func (e *Engine) processJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		if scerrors.IsNotFound(err) {
			return queues.NewPermanentError("job_missing",
				fmt.Sprintf("summary job %s not found", jobID), err)
		}
		return queues.NewTransientError("storage", "load summary job", err)
	}

	ctx = context.WithValue(ctx, logging.MeetingIDKey, job.MeetingID)
	ctx = context.WithValue(ctx, logging.JobIDKey, jobID)

	c := e.coordinatorFor(job.MeetingID)

	// Queued -> Processing. Anything else means the job was cancelled
	// or already handled; drop the message.
	c.mu.Lock()
	if job.State != meeting.StateQueued {
		c.mu.Unlock()
		return nil
	}
	now := e.now()
	job.State = meeting.StateProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	if err := e.store.SaveJob(ctx, job); err != nil {
		c.mu.Unlock()
		return queues.NewTransientError("storage", "persist processing state", err)
	}
	m, err := e.store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		c.mu.Unlock()
		return queues.NewTransientError("storage", "load meeting", err)
	}
	m.State = meeting.StateProcessing
	m.UpdatedAt = now
	if err := e.store.UpdateMeeting(ctx, m); err != nil {
		c.mu.Unlock()
		return queues.NewTransientError("storage", "persist meeting state", err)
	}
	e.publish(m, job, c.watermark)
	c.mu.Unlock()

	start := e.now()
	result, sumErr := e.provider.Summarize(ctx, job.Transcript)
	e.metrics.RecordSummaryLatency(e.now().Sub(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-read: a cancel or the reaper may have won while the external
	// call was in flight, in which case the result is discarded.
	job, err = e.store.GetJob(ctx, jobID)
	if err != nil {
		return queues.NewTransientError("storage", "reload summary job", err)
	}
	if job.State != meeting.StateProcessing {
		return nil
	}

	if sumErr != nil {
		return e.handleSummaryError(ctx, c, job, sumErr)
	}

	now = e.now()
	job.State = meeting.StateCompleted
	job.Result = result
	job.LastError = ""
	job.FinishedAt = &now
	job.UpdatedAt = now
	if err := e.store.SaveJob(ctx, job); err != nil {
		return queues.NewTransientError("storage", "persist completed job", err)
	}

	m, err = e.store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		return queues.NewTransientError("storage", "load meeting", err)
	}
	m.State = meeting.StateCompleted
	m.Summary = result
	m.UpdatedAt = now
	if err := e.store.UpdateMeeting(ctx, m); err != nil {
		return queues.NewTransientError("storage", "persist completed meeting", err)
	}

	e.publish(m, job, c.watermark)
	e.metrics.RecordJobFinished(string(meeting.StateCompleted))
	e.logger.WithContext(ctx).Info("Summary job completed",
		logging.F("attempts", job.Attempts))
	return nil
}

// handleSummaryError applies the retry policy: rate-limited failures
// re-queue with backoff until the attempt bound, everything else fails
// the job immediately.
func (e *Engine) handleSummaryError(ctx context.Context, c *coordinator, job *meeting.SummaryJob, sumErr error) error {
	job.Attempts++

	if errors.Is(sumErr, ai.ErrRateLimited) && job.Attempts < e.config.Retry.MaxAttempts {
		now := e.now()
		job.State = meeting.StateQueued
		job.LastError = sumErr.Error()
		job.UpdatedAt = now
		if err := e.store.SaveJob(ctx, job); err != nil {
			return queues.NewTransientError("storage", "persist requeued job", err)
		}
		if m, err := e.store.GetMeeting(ctx, job.MeetingID); err == nil {
			m.State = meeting.StateQueued
			m.UpdatedAt = now
			if err := e.store.UpdateMeeting(ctx, m); err == nil {
				e.publish(m, job, c.watermark)
			}
		}

		e.metrics.RecordRetry()
		e.logger.WithContext(ctx).Warn("Summarizer rate limited, re-queueing",
			logging.F("attempts", job.Attempts))
		return queues.NewTransientError("rate_limited", "summarizer rate limited", sumErr)
	}

	reason := sumErr.Error()
	if errors.Is(sumErr, ai.ErrRateLimited) {
		reason = fmt.Sprintf("rate limited after %d attempts: %v", job.Attempts, sumErr)
	}
	e.failJobLocked(ctx, c, job, reason)
	return nil
}

// Status returns the read-only projection for pollers: the meeting's
// job state, the transcription watermark, and the last recorded error.
func (e *Engine) Status(ctx context.Context, meetingID string) (*meeting.StatusSnapshot, error) {
	m, err := e.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	c := e.coordinatorFor(m.ID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := e.loadWatermarkLocked(ctx, c); err != nil {
		return nil, err
	}

	snap := &meeting.StatusSnapshot{
		MeetingID: m.ID,
		State:     m.State,
		Watermark: c.watermark,
	}
	if m.JobID != "" {
		if job, err := e.store.GetJob(ctx, m.JobID); err == nil {
			snap.JobID = job.ID
			snap.Attempts = job.Attempts
			snap.LastError = job.LastError
		}
	}
	return snap, nil
}
