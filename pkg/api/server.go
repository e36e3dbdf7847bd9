// Package api exposes the pipeline over HTTP. Chunk intake, summary
// control, status reads, and public share resolution map onto a small
// JSON API; status changes additionally stream over SSE.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/minuteworks/scribe/pkg/buildinfo"
	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/pipeline"
	"github.com/minuteworks/scribe/pkg/share"
	"github.com/minuteworks/scribe/pkg/status"
)

// HealthChecker reports backend liveness for the health endpoint.
type HealthChecker func(r *http.Request) error

// Server routes HTTP requests to the pipeline engine.
type Server struct {
	engine   *pipeline.Engine
	shares   *share.Registry
	statuses *status.Publisher
	health   HealthChecker
	logger   logging.Logger
}

// NewServer creates the API server. health may be nil, in which case
// the health endpoint always reports ok.
func NewServer(engine *pipeline.Engine, shares *share.Registry, statuses *status.Publisher, health HealthChecker, logger logging.Logger) *Server {
	return &Server{
		engine:   engine,
		shares:   shares,
		statuses: statuses,
		health:   health,
		logger:   logger.With(logging.F("component", "api")),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/meetings", s.handleCreateMeeting)
	mux.HandleFunc("PUT /api/meetings/{id}/chunks/{seq}", s.handleSubmitChunk)
	mux.HandleFunc("GET /api/meetings/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/meetings/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/meetings/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("POST /api/meetings/{id}/summary", s.handleTriggerSummary)
	mux.HandleFunc("DELETE /api/meetings/{id}/summary", s.handleCancelSummary)
	mux.HandleFunc("POST /api/meetings/{id}/share", s.handleCreateShare)

	// Public read, no meeting scope.
	mux.HandleFunc("GET /api/shared/{shareID}", s.handleResolveShare)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /version", buildinfo.Handler("scribe"))

	return mux
}

type createMeetingRequest struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("decoding request body: %w", scerrors.ErrInvalidInput))
		return
	}

	m, err := s.engine.CreateMeeting(r.Context(), req.OwnerID, req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleSubmitChunk(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	seq, err := strconv.ParseInt(r.PathValue("seq"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("sequence number must be an integer: %w", scerrors.ErrInvalidInput))
		return
	}

	// Cap the body at the transport so oversize uploads are rejected
	// without buffering them whole.
	if limit := s.engine.MaxChunkBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, fmt.Errorf("chunk exceeds %d bytes: %w", tooBig.Limit, scerrors.ErrInvalidInput))
			return
		}
		s.writeError(w, fmt.Errorf("reading chunk payload: %w", scerrors.ErrInvalidInput))
		return
	}

	if err := s.engine.SubmitChunk(r.Context(), meetingID, seq, payload); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"meeting_id": meetingID,
		"seq":        seq,
		"accepted":   true,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	transcript, err := s.engine.AssembledTranscript(r.Context(), meetingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	failed, err := s.engine.FailedSegments(r.Context(), meetingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"meeting_id":  meetingID,
		"transcript":  transcript,
		"failed_seqs": failed,
	})
}

func (s *Server) handleTriggerSummary(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.TriggerSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleCancelSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CancelSummary(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	link, err := s.shares.Create(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	link, err := s.shares.Resolve(r.Context(), r.PathValue("shareID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The shared view exposes the snapshot only, never the owner.
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":         link.ID,
		"summary":    link.Summary,
		"created_at": link.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", logging.Err(err))
	}
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case scerrors.IsInvalidInput(err):
		code = http.StatusBadRequest
	case scerrors.IsNotFound(err):
		code = http.StatusNotFound
	case scerrors.IsDuplicate(err):
		code = http.StatusConflict
	case scerrors.IsNotReady(err):
		code = http.StatusConflict
	case scerrors.IsInvalidState(err):
		code = http.StatusConflict
	case scerrors.IsRateLimited(err):
		code = http.StatusTooManyRequests
	case scerrors.IsUnavailable(err):
		code = http.StatusServiceUnavailable
	case scerrors.IsCancelled(err):
		code = http.StatusConflict
	}

	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", logging.Err(err))
	}

	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
