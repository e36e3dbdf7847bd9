package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/meeting"
)

func newTestMeeting(id string) *meeting.Meeting {
	now := time.Now()
	return &meeting.Meeting{
		ID:        id,
		OwnerID:   "user-1",
		Title:     "weekly sync",
		State:     meeting.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMeetingLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	m := newTestMeeting("mt-00000001")
	require.NoError(t, store.CreateMeeting(ctx, m))

	err := store.CreateMeeting(ctx, m)
	assert.True(t, scerrors.IsDuplicate(err))

	got, err := store.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, meeting.StateIdle, got.State)

	got.State = meeting.StateQueued
	got.UpdatedAt = time.Now()
	require.NoError(t, store.UpdateMeeting(ctx, got))

	// The store hands out copies; mutating a returned meeting must not
	// affect stored state.
	got.State = meeting.StateFailed
	reread, err := store.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, meeting.StateQueued, reread.State)

	_, err = store.GetMeeting(ctx, "mt-missing0")
	assert.True(t, scerrors.IsNotFound(err))
}

func TestChunkFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateMeeting(ctx, newTestMeeting("mt-00000001")))

	first := &meeting.AudioChunk{MeetingID: "mt-00000001", Seq: 1, Payload: []byte("first"), Size: 5, UploadedAt: time.Now()}
	require.NoError(t, store.InsertChunk(ctx, first))

	second := &meeting.AudioChunk{MeetingID: "mt-00000001", Seq: 1, Payload: []byte("second"), Size: 6, UploadedAt: time.Now()}
	err := store.InsertChunk(ctx, second)
	assert.True(t, scerrors.IsDuplicate(err))

	got, err := store.GetChunk(ctx, "mt-00000001", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got.Payload)
}

func TestChunkSeqsSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, seq := range []int64{5, 1, 3} {
		require.NoError(t, store.InsertChunk(ctx, &meeting.AudioChunk{
			MeetingID: "mt-00000001", Seq: seq, Payload: []byte("x"), Size: 1, UploadedAt: time.Now(),
		}))
	}

	seqs, err := store.ChunkSeqs(ctx, "mt-00000001")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, seqs)
}

func TestSegmentsOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, seq := range []int64{2, 1} {
		require.NoError(t, store.AppendSegment(ctx, &meeting.TranscriptSegment{
			MeetingID: "mt-00000001", Seq: seq, Text: "t", TranscribedAt: time.Now(),
		}))
	}

	err := store.AppendSegment(ctx, &meeting.TranscriptSegment{MeetingID: "mt-00000001", Seq: 2})
	assert.True(t, scerrors.IsDuplicate(err))

	segs, err := store.Segments(ctx, "mt-00000001")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, int64(1), segs[0].Seq)
	assert.Equal(t, int64(2), segs[1].Seq)
}

func TestActiveJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.ActiveJob(ctx, "mt-00000001")
	assert.True(t, scerrors.IsNotFound(err))

	job := &meeting.SummaryJob{
		ID: "jb-00000001", MeetingID: "mt-00000001",
		State: meeting.StateQueued, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SaveJob(ctx, job))

	active, err := store.ActiveJob(ctx, "mt-00000001")
	require.NoError(t, err)
	assert.Equal(t, job.ID, active.ID)

	job.State = meeting.StateCompleted
	require.NoError(t, store.SaveJob(ctx, job))

	_, err = store.ActiveJob(ctx, "mt-00000001")
	assert.True(t, scerrors.IsNotFound(err))
}

func TestStaleJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := time.Now().Add(-time.Hour)
	recent := time.Now()

	require.NoError(t, store.SaveJob(ctx, &meeting.SummaryJob{
		ID: "jb-00000001", MeetingID: "mt-1", State: meeting.StateProcessing, StartedAt: &old,
	}))
	require.NoError(t, store.SaveJob(ctx, &meeting.SummaryJob{
		ID: "jb-00000002", MeetingID: "mt-2", State: meeting.StateProcessing, StartedAt: &recent,
	}))
	require.NoError(t, store.SaveJob(ctx, &meeting.SummaryJob{
		ID: "jb-00000003", MeetingID: "mt-3", State: meeting.StateCompleted, StartedAt: &old,
	}))

	stale, err := store.StaleJobs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "jb-00000001", stale[0].ID)
}

func TestIdleMeetings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := time.Now().Add(-time.Hour)
	recent := time.Now()

	// Idle with an old chunk: a candidate.
	require.NoError(t, store.CreateMeeting(ctx, newTestMeeting("mt-00000001")))
	require.NoError(t, store.InsertChunk(ctx, &meeting.AudioChunk{
		MeetingID: "mt-00000001", Seq: 1, Payload: []byte("x"), Size: 1, UploadedAt: old,
	}))

	// Idle but recently active: the newest chunk decides.
	require.NoError(t, store.CreateMeeting(ctx, newTestMeeting("mt-00000002")))
	require.NoError(t, store.InsertChunk(ctx, &meeting.AudioChunk{
		MeetingID: "mt-00000002", Seq: 1, Payload: []byte("x"), Size: 1, UploadedAt: old,
	}))
	require.NoError(t, store.InsertChunk(ctx, &meeting.AudioChunk{
		MeetingID: "mt-00000002", Seq: 2, Payload: []byte("x"), Size: 1, UploadedAt: recent,
	}))

	// Idle without chunks: nothing to finalize.
	require.NoError(t, store.CreateMeeting(ctx, newTestMeeting("mt-00000003")))

	// Old chunk but already queued.
	queued := newTestMeeting("mt-00000004")
	queued.State = meeting.StateQueued
	require.NoError(t, store.CreateMeeting(ctx, queued))
	require.NoError(t, store.InsertChunk(ctx, &meeting.AudioChunk{
		MeetingID: "mt-00000004", Seq: 1, Payload: []byte("x"), Size: 1, UploadedAt: old,
	}))

	ids, err := store.IdleMeetings(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"mt-00000001"}, ids)
}

func TestShareLinks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	link := &meeting.ShareLink{
		ID: "sh-0123456789abcdef", MeetingID: "mt-00000001",
		Fingerprint: "fp-1", Summary: "the summary", CreatedAt: time.Now(),
	}
	require.NoError(t, store.InsertShareLink(ctx, link))

	err := store.InsertShareLink(ctx, link)
	assert.True(t, scerrors.IsDuplicate(err))

	got, err := store.GetShareLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "the summary", got.Summary)

	byFp, err := store.ShareLinkByFingerprint(ctx, "mt-00000001", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, link.ID, byFp.ID)

	_, err = store.ShareLinkByFingerprint(ctx, "mt-00000001", "fp-other")
	assert.True(t, scerrors.IsNotFound(err))
}
