package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// Repository is the PostgreSQL-backed meeting.Store.
type Repository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRepository creates a new pipeline repository.
func NewRepository(pool *pgxpool.Pool, logger logging.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(logging.F("component", "pipeline_repository")),
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateMeeting inserts a new meeting.
func (r *Repository) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	query := `
		INSERT INTO meetings (id, owner_id, title, state, summary, job_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		m.ID, m.OwnerID, m.Title, string(m.State), m.Summary, m.JobID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("meeting %s: %w", m.ID, scerrors.ErrDuplicate)
		}
		r.logger.Error("Failed to create meeting", logging.Err(err), logging.F("meeting_id", m.ID))
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	return nil
}

// GetMeeting returns the meeting with the given ID.
func (r *Repository) GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	query := `
		SELECT id, owner_id, title, state, summary, job_id, created_at, updated_at
		FROM meetings WHERE id = $1
	`
	var m meeting.Meeting
	var state string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.OwnerID, &m.Title, &state, &m.Summary, &m.JobID, &m.CreatedAt, &m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("meeting %s: %w", id, scerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	m.State = meeting.SummaryState(state)
	return &m, nil
}

// UpdateMeeting persists mutable meeting fields.
func (r *Repository) UpdateMeeting(ctx context.Context, m *meeting.Meeting) error {
	query := `
		UPDATE meetings
		SET state = $2, summary = $3, job_id = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, m.ID, string(m.State), m.Summary, m.JobID, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting %s: %w", m.ID, scerrors.ErrNotFound)
	}
	return nil
}

// InsertChunk persists an accepted chunk. The primary key on
// (meeting_id, seq) makes first-writer-wins a database guarantee, so
// concurrent duplicate submissions race safely.
func (r *Repository) InsertChunk(ctx context.Context, c *meeting.AudioChunk) error {
	query := `
		INSERT INTO audio_chunks (meeting_id, seq, payload, size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (meeting_id, seq) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, c.MeetingID, c.Seq, c.Payload, c.Size, c.UploadedAt)
	if err != nil {
		r.logger.Error("Failed to insert chunk",
			logging.Err(err),
			logging.F("meeting_id", c.MeetingID),
			logging.F("seq", c.Seq))
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s/%d: %w", c.MeetingID, c.Seq, scerrors.ErrDuplicate)
	}
	return nil
}

// GetChunk returns one chunk by meeting and sequence number.
func (r *Repository) GetChunk(ctx context.Context, meetingID string, seq int64) (*meeting.AudioChunk, error) {
	query := `
		SELECT meeting_id, seq, payload, size, uploaded_at
		FROM audio_chunks WHERE meeting_id = $1 AND seq = $2
	`
	var c meeting.AudioChunk
	err := r.pool.QueryRow(ctx, query, meetingID, seq).Scan(
		&c.MeetingID, &c.Seq, &c.Payload, &c.Size, &c.UploadedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("chunk %s/%d: %w", meetingID, seq, scerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &c, nil
}

// ChunkSeqs returns all stored sequence numbers for a meeting, ascending.
func (r *Repository) ChunkSeqs(ctx context.Context, meetingID string) ([]int64, error) {
	query := `SELECT seq FROM audio_chunks WHERE meeting_id = $1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk seqs: %w", err)
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("failed to scan chunk seq: %w", err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

// AppendSegment persists a transcript segment.
func (r *Repository) AppendSegment(ctx context.Context, s *meeting.TranscriptSegment) error {
	query := `
		INSERT INTO transcript_segments (meeting_id, seq, text, failed, transcribed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (meeting_id, seq) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, s.MeetingID, s.Seq, s.Text, s.Failed, s.TranscribedAt)
	if err != nil {
		return fmt.Errorf("failed to append segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("segment %s/%d: %w", s.MeetingID, s.Seq, scerrors.ErrDuplicate)
	}
	return nil
}

// Segments returns all segments for a meeting ordered by sequence number.
func (r *Repository) Segments(ctx context.Context, meetingID string) ([]meeting.TranscriptSegment, error) {
	query := `
		SELECT meeting_id, seq, text, failed, transcribed_at
		FROM transcript_segments WHERE meeting_id = $1 ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []meeting.TranscriptSegment
	for rows.Next() {
		var s meeting.TranscriptSegment
		if err := rows.Scan(&s.MeetingID, &s.Seq, &s.Text, &s.Failed, &s.TranscribedAt); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// SaveJob upserts a summary job by ID.
func (r *Repository) SaveJob(ctx context.Context, j *meeting.SummaryJob) error {
	query := `
		INSERT INTO summary_jobs (
			id, meeting_id, state, transcript, result, attempts,
			last_error, created_at, started_at, finished_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			result = EXCLUDED.result,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		j.ID, j.MeetingID, string(j.State), j.Transcript, j.Result, j.Attempts,
		j.LastError, j.CreatedAt, j.StartedAt, j.FinishedAt, j.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to save job",
			logging.Err(err),
			logging.F("job_id", j.ID),
			logging.F("meeting_id", j.MeetingID))
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*meeting.SummaryJob, error) {
	query := `
		SELECT id, meeting_id, state, transcript, result, attempts,
		       last_error, created_at, started_at, finished_at, updated_at
		FROM summary_jobs WHERE id = $1
	`
	return r.scanJob(r.pool.QueryRow(ctx, query, id), fmt.Sprintf("job %s", id))
}

// ActiveJob returns the meeting's Queued or Processing job, if any.
func (r *Repository) ActiveJob(ctx context.Context, meetingID string) (*meeting.SummaryJob, error) {
	query := `
		SELECT id, meeting_id, state, transcript, result, attempts,
		       last_error, created_at, started_at, finished_at, updated_at
		FROM summary_jobs
		WHERE meeting_id = $1 AND state IN ('queued', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanJob(r.pool.QueryRow(ctx, query, meetingID), fmt.Sprintf("active job for meeting %s", meetingID))
}

// StaleJobs returns jobs Processing since before the cutoff.
func (r *Repository) StaleJobs(ctx context.Context, cutoff time.Time) ([]*meeting.SummaryJob, error) {
	query := `
		SELECT id, meeting_id, state, transcript, result, attempts,
		       last_error, created_at, started_at, finished_at, updated_at
		FROM summary_jobs
		WHERE state = 'processing' AND started_at < $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*meeting.SummaryJob
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// IdleMeetings returns IDs of idle meetings whose newest chunk was
// uploaded before the cutoff.
func (r *Repository) IdleMeetings(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT m.id
		FROM meetings m
		JOIN audio_chunks c ON c.meeting_id = m.id
		WHERE m.state = 'idle'
		GROUP BY m.id
		HAVING MAX(c.uploaded_at) < $1
		ORDER BY m.id ASC
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle meetings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan idle meeting id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanJob scans a single-job query result.
func (r *Repository) scanJob(row pgx.Row, desc string) (*meeting.SummaryJob, error) {
	j, err := scanJobRow(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", desc, scerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", desc, err)
	}
	return j, nil
}

// scanJobRow scans a job from any row source.
func scanJobRow(row pgx.Row) (*meeting.SummaryJob, error) {
	var j meeting.SummaryJob
	var state string
	err := row.Scan(&j.ID, &j.MeetingID, &state, &j.Transcript, &j.Result, &j.Attempts,
		&j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.State = meeting.SummaryState(state)
	return &j, nil
}

// InsertShareLink persists a new share link snapshot.
func (r *Repository) InsertShareLink(ctx context.Context, l *meeting.ShareLink) error {
	query := `
		INSERT INTO share_links (id, meeting_id, fingerprint, summary, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, l.ID, l.MeetingID, l.Fingerprint, l.Summary, l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("share link %s: %w", l.ID, scerrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert share link: %w", err)
	}
	return nil
}

// GetShareLink resolves a share link by its opaque ID.
func (r *Repository) GetShareLink(ctx context.Context, id string) (*meeting.ShareLink, error) {
	query := `
		SELECT id, meeting_id, fingerprint, summary, created_at
		FROM share_links WHERE id = $1
	`
	var l meeting.ShareLink
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.MeetingID, &l.Fingerprint, &l.Summary, &l.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("share link %s: %w", id, scerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share link: %w", err)
	}
	return &l, nil
}

// ShareLinkByFingerprint returns the meeting's link for a fingerprint.
// The unique index on (meeting_id, fingerprint) guarantees at most one.
func (r *Repository) ShareLinkByFingerprint(ctx context.Context, meetingID, fingerprint string) (*meeting.ShareLink, error) {
	query := `
		SELECT id, meeting_id, fingerprint, summary, created_at
		FROM share_links WHERE meeting_id = $1 AND fingerprint = $2
	`
	var l meeting.ShareLink
	err := r.pool.QueryRow(ctx, query, meetingID, fingerprint).Scan(
		&l.ID, &l.MeetingID, &l.Fingerprint, &l.Summary, &l.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("share link for meeting %s: %w", meetingID, scerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share link by fingerprint: %w", err)
	}
	return &l, nil
}

// Verify interface compliance
var _ meeting.Store = (*Repository)(nil)
