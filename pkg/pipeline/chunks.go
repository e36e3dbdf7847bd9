package pipeline

import (
	"context"
	"fmt"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// SubmitChunk validates and persists one audio chunk, then runs the
// assembler to transcribe any newly contiguous sequence numbers.
//
// Rejections: payload over the size limit or a non-positive sequence
// number fail with an invalid-input error; an unknown meeting likewise;
// a sequence number already stored for the meeting fails with a
// duplicate error and leaves the transcript untouched.
func (e *Engine) SubmitChunk(ctx context.Context, meetingID string, seq int64, payload []byte) error {
	if seq < 1 {
		e.metrics.RecordChunkRejected("bad_sequence")
		return fmt.Errorf("sequence number must be >= 1, got %d: %w", seq, scerrors.ErrInvalidInput)
	}
	if int64(len(payload)) > e.config.MaxChunkBytes {
		e.metrics.RecordChunkRejected("payload_too_large")
		return fmt.Errorf("payload is %d bytes, limit is %d: %w",
			len(payload), e.config.MaxChunkBytes, scerrors.ErrInvalidInput)
	}
	if len(payload) == 0 {
		e.metrics.RecordChunkRejected("empty_payload")
		return fmt.Errorf("payload is empty: %w", scerrors.ErrInvalidInput)
	}

	m, err := e.store.GetMeeting(ctx, meetingID)
	if err != nil {
		if scerrors.IsNotFound(err) {
			e.metrics.RecordChunkRejected("unknown_meeting")
			return fmt.Errorf("unknown meeting %s: %w", meetingID, scerrors.ErrInvalidInput)
		}
		return err
	}

	c := e.coordinatorFor(m.ID)
	c.mu.Lock()
	defer c.mu.Unlock()

	chunk := &meeting.AudioChunk{
		MeetingID:  m.ID,
		Seq:        seq,
		Payload:    payload,
		Size:       int64(len(payload)),
		UploadedAt: e.now(),
	}
	if err := e.store.InsertChunk(ctx, chunk); err != nil {
		if scerrors.IsDuplicate(err) {
			e.metrics.RecordChunkRejected("duplicate")
		}
		return err
	}

	c.idleDeferred = false
	e.metrics.RecordChunkAccepted(m.ID)
	e.logger.Debug("Chunk accepted",
		logging.F("meeting_id", m.ID),
		logging.F("seq", seq),
		logging.F("size", chunk.Size))

	if err := e.loadWatermarkLocked(ctx, c); err != nil {
		return err
	}
	e.metrics.WatermarkLag.Observe(float64(seq - c.watermark - 1))

	return e.drainLocked(ctx, c)
}
