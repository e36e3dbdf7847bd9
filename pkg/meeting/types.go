// Package meeting defines the domain model for the scribe processing
// pipeline: meetings, audio chunks, transcript segments, summary jobs and
// share links.
package meeting

import (
	"time"
)

// SummaryState represents the state of a meeting's summarization.
type SummaryState string

const (
	// StateIdle means no summarization has been requested.
	StateIdle SummaryState = "idle"
	// StateQueued means a job is waiting for a worker.
	StateQueued SummaryState = "queued"
	// StateProcessing means a worker is calling the summarizer.
	StateProcessing SummaryState = "processing"
	// StateCompleted means the latest job produced a summary.
	StateCompleted SummaryState = "completed"
	// StateFailed means the latest job exhausted retries, hit a
	// non-retryable error, or was cancelled.
	StateFailed SummaryState = "failed"
)

// Terminal reports whether the state admits no further transitions
// without a new trigger.
func (s SummaryState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Active reports whether a job in this state occupies the meeting's
// single non-terminal job slot.
func (s SummaryState) Active() bool {
	return s == StateQueued || s == StateProcessing
}

// Meeting is the aggregate root for one recording session. It is created
// on the first chunk upload or an explicit start call, and never deleted
// by the pipeline.
type Meeting struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"` // opaque identity supplied by the auth collaborator
	Title     string       `json:"title,omitempty"`
	State     SummaryState `json:"state"`
	Summary   string       `json:"summary,omitempty"` // latest completed summary text, empty until first completion
	JobID     string       `json:"job_id,omitempty"`  // latest summary job, empty until first trigger
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// AudioChunk is one uploaded piece of meeting audio. Immutable once
// accepted; sequence numbers are unique per meeting.
type AudioChunk struct {
	MeetingID  string
	Seq        int64
	Payload    []byte
	Size       int64
	UploadedAt time.Time
}

// TranscriptSegment is the transcription of one chunk. Segments are
// appended in sequence order only; a Failed segment holds empty text but
// still occupies its sequence slot so the watermark can advance.
type TranscriptSegment struct {
	MeetingID     string
	Seq           int64
	Text          string
	Failed        bool
	TranscribedAt time.Time
}

// SummaryJob tracks one summarization attempt series for a meeting.
// At most one job per meeting may be in a non-terminal state.
type SummaryJob struct {
	ID         string       `json:"id"`
	MeetingID  string       `json:"meeting_id"`
	State      SummaryState `json:"state"`
	Transcript string       `json:"-"` // snapshot taken at trigger time
	Result     string       `json:"result,omitempty"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"last_error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// ShareLink maps an opaque public identifier to an immutable snapshot of
// a meeting's summary at creation time. Regenerating the summary never
// mutates existing links.
type ShareLink struct {
	ID          string    `json:"id"`
	MeetingID   string    `json:"meeting_id"`
	Fingerprint string    `json:"-"` // deterministic hash of the snapshot text
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusSnapshot is the read-only projection served to pollers.
type StatusSnapshot struct {
	MeetingID string       `json:"meeting_id"`
	JobID     string       `json:"job_id,omitempty"`
	State     SummaryState `json:"state"`
	Watermark int64        `json:"watermark"`
	Attempts  int          `json:"attempts,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}
