package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// handleEvents streams status snapshots for one meeting over SSE.
// Subscription happens before the initial snapshot read so a transition
// landing between the two is never lost.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")

	if _, err := s.engine.GetMeeting(r.Context(), meetingID); err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.statuses.Subscribe(meetingID)
	defer s.statuses.Unsubscribe(meetingID, ch)

	if snap, ok := s.statuses.Latest(meetingID); ok {
		s.writeEvent(w, snap)
	} else if snap, err := s.engine.Status(r.Context(), meetingID); err == nil {
		s.writeEvent(w, *snap)
	}
	flusher.Flush()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			s.writeEvent(w, snap)
			flusher.Flush()
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", logging.F("meeting_id", meetingID))
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, snap meeting.StatusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("Failed to marshal status event", logging.Err(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
