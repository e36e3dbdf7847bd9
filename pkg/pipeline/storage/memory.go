// Package storage provides meeting.Store implementations: a PostgreSQL
// repository for production and an in-memory store for tests and
// single-process deployments.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// chunkKey is the natural key of an audio chunk.
type chunkKey struct {
	meetingID string
	seq       int64
}

// MemoryStore is an in-memory meeting.Store. All maps are guarded by one
// RWMutex; the store never blocks on I/O, so a single lock is enough.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string]meeting.Meeting
	chunks   map[chunkKey]meeting.AudioChunk
	segments map[string][]meeting.TranscriptSegment
	jobs     map[string]meeting.SummaryJob
	shares   map[string]meeting.ShareLink
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings: make(map[string]meeting.Meeting),
		chunks:   make(map[chunkKey]meeting.AudioChunk),
		segments: make(map[string][]meeting.TranscriptSegment),
		jobs:     make(map[string]meeting.SummaryJob),
		shares:   make(map[string]meeting.ShareLink),
	}
}

// CreateMeeting inserts a new meeting.
func (s *MemoryStore) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[m.ID]; ok {
		return fmt.Errorf("meeting %s: %w", m.ID, scerrors.ErrDuplicate)
	}
	s.meetings[m.ID] = *m
	return nil
}

// GetMeeting returns the meeting with the given ID.
func (s *MemoryStore) GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meetings[id]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", id, scerrors.ErrNotFound)
	}
	out := m
	return &out, nil
}

// UpdateMeeting persists mutable meeting fields.
func (s *MemoryStore) UpdateMeeting(ctx context.Context, m *meeting.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[m.ID]; !ok {
		return fmt.Errorf("meeting %s: %w", m.ID, scerrors.ErrNotFound)
	}
	s.meetings[m.ID] = *m
	return nil
}

// InsertChunk persists an accepted chunk, first writer wins.
func (s *MemoryStore) InsertChunk(ctx context.Context, c *meeting.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := chunkKey{c.MeetingID, c.Seq}
	if _, ok := s.chunks[key]; ok {
		return fmt.Errorf("chunk %s/%d: %w", c.MeetingID, c.Seq, scerrors.ErrDuplicate)
	}
	stored := *c
	stored.Payload = append([]byte(nil), c.Payload...)
	s.chunks[key] = stored
	return nil
}

// GetChunk returns one chunk by meeting and sequence number.
func (s *MemoryStore) GetChunk(ctx context.Context, meetingID string, seq int64) (*meeting.AudioChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[chunkKey{meetingID, seq}]
	if !ok {
		return nil, fmt.Errorf("chunk %s/%d: %w", meetingID, seq, scerrors.ErrNotFound)
	}
	out := c
	out.Payload = append([]byte(nil), c.Payload...)
	return &out, nil
}

// ChunkSeqs returns all stored sequence numbers for a meeting, ascending.
func (s *MemoryStore) ChunkSeqs(ctx context.Context, meetingID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seqs []int64
	for key := range s.chunks {
		if key.meetingID == meetingID {
			seqs = append(seqs, key.seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// AppendSegment persists a transcript segment.
func (s *MemoryStore) AppendSegment(ctx context.Context, seg *meeting.TranscriptSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.segments[seg.MeetingID] {
		if existing.Seq == seg.Seq {
			return fmt.Errorf("segment %s/%d: %w", seg.MeetingID, seg.Seq, scerrors.ErrDuplicate)
		}
	}
	s.segments[seg.MeetingID] = append(s.segments[seg.MeetingID], *seg)
	return nil
}

// Segments returns all segments for a meeting ordered by sequence number.
func (s *MemoryStore) Segments(ctx context.Context, meetingID string) ([]meeting.TranscriptSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]meeting.TranscriptSegment(nil), s.segments[meetingID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// SaveJob upserts a summary job by ID.
func (s *MemoryStore) SaveJob(ctx context.Context, j *meeting.SummaryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[j.ID] = *j
	return nil
}

// GetJob returns the job with the given ID.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*meeting.SummaryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, scerrors.ErrNotFound)
	}
	out := j
	return &out, nil
}

// ActiveJob returns the meeting's Queued or Processing job, if any.
func (s *MemoryStore) ActiveJob(ctx context.Context, meetingID string) (*meeting.SummaryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, j := range s.jobs {
		if j.MeetingID == meetingID && j.State.Active() {
			out := j
			return &out, nil
		}
	}
	return nil, fmt.Errorf("active job for meeting %s: %w", meetingID, scerrors.ErrNotFound)
}

// StaleJobs returns jobs Processing since before the cutoff.
func (s *MemoryStore) StaleJobs(ctx context.Context, cutoff time.Time) ([]*meeting.SummaryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*meeting.SummaryJob
	for _, j := range s.jobs {
		if j.State == meeting.StateProcessing && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			out := j
			stale = append(stale, &out)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

// IdleMeetings returns IDs of idle meetings whose newest chunk was
// uploaded before the cutoff.
func (s *MemoryStore) IdleMeetings(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]time.Time)
	for key, c := range s.chunks {
		if c.UploadedAt.After(latest[key.meetingID]) {
			latest[key.meetingID] = c.UploadedAt
		}
	}

	var ids []string
	for id, m := range s.meetings {
		if m.State != meeting.StateIdle {
			continue
		}
		if last, ok := latest[id]; ok && last.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// InsertShareLink persists a new share link snapshot.
func (s *MemoryStore) InsertShareLink(ctx context.Context, l *meeting.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shares[l.ID]; ok {
		return fmt.Errorf("share link %s: %w", l.ID, scerrors.ErrDuplicate)
	}
	s.shares[l.ID] = *l
	return nil
}

// GetShareLink resolves a share link by its opaque ID.
func (s *MemoryStore) GetShareLink(ctx context.Context, id string) (*meeting.ShareLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.shares[id]
	if !ok {
		return nil, fmt.Errorf("share link %s: %w", id, scerrors.ErrNotFound)
	}
	out := l
	return &out, nil
}

// ShareLinkByFingerprint returns the meeting's link for a fingerprint.
func (s *MemoryStore) ShareLinkByFingerprint(ctx context.Context, meetingID, fingerprint string) (*meeting.ShareLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.shares {
		if l.MeetingID == meetingID && l.Fingerprint == fingerprint {
			out := l
			return &out, nil
		}
	}
	return nil, fmt.Errorf("share link for meeting %s: %w", meetingID, scerrors.ErrNotFound)
}

// Verify interface compliance
var _ meeting.Store = (*MemoryStore)(nil)
