package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evantohost/tesseract/internal/model"
	"github.com/evantohost/tesseract/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 64 << 20 // recognize payloads carry inline images
)

// submitJobRequest is the JSON body for POST /v1/jobs.
type submitJobRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// submitJobResponse wraps the terminal response of a synchronously dispatched
// job.
type submitJobResponse struct {
	JobID    string         `json:"job_id"`
	Response model.Response `json:"response"`
}

// listJobsResponse wraps the paginated journal listing.
type listJobsResponse struct {
	Jobs   []*model.JobRecord `json:"jobs"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// handleSubmitJob dispatches one job and returns its terminal response. The
// dispatcher serializes jobs, so concurrent submissions queue behind the one
// in flight.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Action == "" {
		s.writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if !model.KnownAction(req.Action) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	job := model.Job{
		WorkerID: middleware.GetReqID(r.Context()),
		JobID:    model.NewID(),
		Action:   req.Action,
		Payload:  req.Payload,
	}

	var terminal model.Response
	s.dispatcher.Dispatch(r.Context(), job, func(resp model.Response) {
		if resp.Status != model.StatusProgress {
			terminal = resp
		}
	})

	status := http.StatusOK
	if terminal.Status == model.StatusReject {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, submitJobResponse{JobID: job.JobID, Response: terminal})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.store.ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*model.JobRecord{}
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// handleStreamEvents streams a job's progress trail as SSE. Finished jobs
// replay the persisted trail; running jobs stream live events until the
// terminal response.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	flusher, canFlush := w.(http.Flusher)

	if rec.Status == model.JobResolved || rec.Status == model.JobRejected {
		w.WriteHeader(http.StatusOK)
		events, err := s.store.GetEvents(r.Context(), id)
		if err != nil {
			s.logger.Error("get job events", "error", err)
			return
		}
		for _, ev := range events {
			if err := writeSSEProgress(w, model.Progress{
				JobID:    ev.JobID,
				Status:   ev.Status,
				Progress: ev.Progress,
			}); err != nil {
				return
			}
		}
		_ = writeSSEEvent(w, "done", "stream complete")
		if canFlush {
			flusher.Flush()
		}
		return
	}

	// Job still in flight: stream live. If the topic closed between the
	// status check and this call, Subscribe returns a closed channel and the
	// loop exits immediately with a done event.
	ch, unsub := s.dispatcher.Broker().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case p, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEProgress(w, p); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEProgress writes one progress event as an SSE data line.
func writeSSEProgress(w http.ResponseWriter, p model.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

// writeJSON writes v as a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
