package meeting

import (
	"context"
	"time"
)

// Store is the persistence boundary for the pipeline. Implementations
// must be safe for concurrent use; per-meeting ordering guarantees are
// enforced by the pipeline coordinators, not the store.
//
// Error contract: lookups return errors.ErrNotFound when the row does
// not exist; inserts return errors.ErrDuplicate when a natural key
// (meeting ID, (meeting, seq), share ID) already exists. First writer
// wins on conflicting inserts.
type Store interface {
	// CreateMeeting inserts a new meeting.
	CreateMeeting(ctx context.Context, m *Meeting) error

	// GetMeeting returns the meeting with the given ID.
	GetMeeting(ctx context.Context, id string) (*Meeting, error)

	// UpdateMeeting persists mutable meeting fields (state, summary, job
	// pointer, updated-at).
	UpdateMeeting(ctx context.Context, m *Meeting) error

	// InsertChunk persists an accepted chunk. Duplicate (meeting, seq)
	// pairs are rejected with ErrDuplicate, never overwritten.
	InsertChunk(ctx context.Context, c *AudioChunk) error

	// GetChunk returns one chunk by meeting and sequence number.
	GetChunk(ctx context.Context, meetingID string, seq int64) (*AudioChunk, error)

	// ChunkSeqs returns all stored sequence numbers for a meeting in
	// ascending order. Used for recovery after restart.
	ChunkSeqs(ctx context.Context, meetingID string) ([]int64, error)

	// AppendSegment persists a transcript segment.
	AppendSegment(ctx context.Context, s *TranscriptSegment) error

	// Segments returns all segments for a meeting ordered by sequence
	// number.
	Segments(ctx context.Context, meetingID string) ([]TranscriptSegment, error)

	// SaveJob upserts a summary job by ID.
	SaveJob(ctx context.Context, j *SummaryJob) error

	// GetJob returns the job with the given ID.
	GetJob(ctx context.Context, id string) (*SummaryJob, error)

	// ActiveJob returns the meeting's job in Queued or Processing state,
	// or ErrNotFound when the meeting has no active job.
	ActiveJob(ctx context.Context, meetingID string) (*SummaryJob, error)

	// StaleJobs returns jobs that have been Processing since before the
	// cutoff. Used by the reaper.
	StaleJobs(ctx context.Context, cutoff time.Time) ([]*SummaryJob, error)

	// IdleMeetings returns IDs of meetings in the Idle state whose newest
	// chunk was uploaded before the cutoff. Used by the idle-finalize
	// sweep; scanning the store rather than process memory lets the sweep
	// pick up meetings uploaded before a restart.
	IdleMeetings(ctx context.Context, cutoff time.Time) ([]string, error)

	// InsertShareLink persists a new share link snapshot.
	InsertShareLink(ctx context.Context, l *ShareLink) error

	// GetShareLink resolves a share link by its opaque ID.
	GetShareLink(ctx context.Context, id string) (*ShareLink, error)

	// ShareLinkByFingerprint returns the meeting's existing link for the
	// given content fingerprint, or ErrNotFound.
	ShareLinkByFingerprint(ctx context.Context, meetingID, fingerprint string) (*ShareLink, error)
}
