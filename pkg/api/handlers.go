package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/types"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// EventRequest is one UI event reported by a browser
type EventRequest struct {
	Variant types.Variant   `json:"variant"`
	Kind    types.EventKind `json:"kind"`
	Value   float64         `json:"value,omitempty"`
}

// RecordEventsRequest is the body of POST /v1/events
type RecordEventsRequest struct {
	Events []EventRequest `json:"events"`
}

// RecordEventsResponse reports how many events were recorded
type RecordEventsResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// ReasonRequest is the body of rollback and clear-hold requests
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// AdvanceResponse is returned by a successful advance
type AdvanceResponse struct {
	Phase types.RolloutPhase `json:"phase"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error    string          `json:"error"`
	Reasons  []string        `json:"reasons,omitempty"`
	Verdicts []types.Verdict `json:"verdicts,omitempty"`
}

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Assign(r.URL.Query().Get("segment")))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req RecordEventsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no events in request"))
		return
	}

	var resp RecordEventsResponse
	for i, ev := range req.Events {
		if err := s.engine.RecordEvent(ev.Variant, ev.Kind, ev.Value); err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, fmt.Sprintf("event %d: %v", i, err))
			continue
		}
		resp.Accepted++
	}

	status := http.StatusOK
	if resp.Accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetDashboardSnapshot())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.engine.Alerts(limit))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	phase, err := s.engine.Advance(types.SourceManual)
	if err == nil {
		writeJSON(w, http.StatusOK, AdvanceResponse{Phase: phase})
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	var nr *rollout.NotReadyError
	if errors.As(err, &nr) {
		resp.Reasons = nr.Reasons
		resp.Verdicts = nr.Verdicts
	}

	switch {
	case errors.Is(err, rollout.ErrNotReady), errors.Is(err, rollout.ErrFinalPhase), errors.Is(err, rollout.ErrHeld):
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	req, ok := s.reason(w, r, "manual rollback")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Rollback(req.Reason, types.SourceManual))
}

func (s *Server) handleClearHold(w http.ResponseWriter, r *http.Request) {
	req, ok := s.reason(w, r, "hold cleared")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.ClearHold(req.Reason))
}

// reason decodes an optional ReasonRequest body, substituting def for an
// empty reason
func (s *Server) reason(w http.ResponseWriter, r *http.Request, def string) (ReasonRequest, bool) {
	var req ReasonRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return req, false
		}
	}
	if req.Reason == "" {
		req.Reason = def
	}
	return req, true
}

// handleEventStream streams planner and monitor events as server-sent events
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	broker := s.engine.Events()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	// The server write timeout would otherwise end the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
