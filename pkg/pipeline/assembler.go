package pipeline

import (
	"context"
	"strings"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// loadWatermarkLocked initializes the coordinator's watermark from
// persisted segments on first use. Segments are only ever appended in
// sequence order, so the highest stored seq is the watermark.
func (e *Engine) loadWatermarkLocked(ctx context.Context, c *coordinator) error {
	if c.wmLoaded {
		return nil
	}
	segments, err := e.store.Segments(ctx, c.meetingID)
	if err != nil {
		return err
	}
	if n := len(segments); n > 0 {
		c.watermark = segments[n-1].Seq
	}
	c.wmLoaded = true
	return nil
}

// drainLocked transcribes every chunk that is now contiguous with the
// watermark, advancing it one sequence number at a time. A failed
// transcription produces an empty segment marked failed and the
// watermark still advances, so one bad chunk never stalls the meeting.
func (e *Engine) drainLocked(ctx context.Context, c *coordinator) error {
	for {
		next := c.watermark + 1
		chunk, err := e.store.GetChunk(ctx, c.meetingID, next)
		if err != nil {
			if scerrors.IsNotFound(err) {
				return nil
			}
			return err
		}

		segment := &meeting.TranscriptSegment{
			MeetingID:     c.meetingID,
			Seq:           next,
			TranscribedAt: e.now(),
		}

		text, err := e.provider.Transcribe(ctx, c.meetingID, next, chunk.Payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			segment.Failed = true
			e.metrics.RecordSegment("failed")
			e.logger.Warn("Transcription failed, recording empty segment",
				logging.F("meeting_id", c.meetingID),
				logging.F("seq", next),
				logging.Err(err))
		} else {
			segment.Text = text
			e.metrics.RecordSegment("ok")
		}

		if err := e.store.AppendSegment(ctx, segment); err != nil {
			if !scerrors.IsDuplicate(err) {
				return err
			}
		}
		c.watermark = next
	}
}

// Watermark returns the highest contiguous transcribed sequence number
// for a meeting.
func (e *Engine) Watermark(ctx context.Context, meetingID string) (int64, error) {
	if _, err := e.store.GetMeeting(ctx, meetingID); err != nil {
		return 0, err
	}

	c := e.coordinatorFor(meetingID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := e.loadWatermarkLocked(ctx, c); err != nil {
		return 0, err
	}
	return c.watermark, nil
}

// AssembledTranscript returns the ordered transcript text up to the
// current watermark. Failed segments contribute nothing to the text.
func (e *Engine) AssembledTranscript(ctx context.Context, meetingID string) (string, error) {
	if _, err := e.store.GetMeeting(ctx, meetingID); err != nil {
		return "", err
	}

	c := e.coordinatorFor(meetingID)
	c.mu.Lock()
	defer c.mu.Unlock()

	return e.assembledTranscriptLocked(ctx, c)
}

func (e *Engine) assembledTranscriptLocked(ctx context.Context, c *coordinator) (string, error) {
	segments, err := e.store.Segments(ctx, c.meetingID)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.Failed || s.Text == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n"), nil
}

// FailedSegments lists sequence numbers whose transcription failed, for
// surfacing to the user alongside the transcript.
func (e *Engine) FailedSegments(ctx context.Context, meetingID string) ([]int64, error) {
	segments, err := e.store.Segments(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	var failed []int64
	for _, s := range segments {
		if s.Failed {
			failed = append(failed, s.Seq)
		}
	}
	return failed, nil
}
