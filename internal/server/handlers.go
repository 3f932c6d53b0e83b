package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"prospect/internal/core"
	"prospect/internal/logger"
)

type researchRequest struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

type errorResponse struct {
	Error string         `json:"error"`
	Kind  core.ErrorKind `json:"kind,omitempty"`
}

// similarEntry pairs a persisted edge with its resolved company profile.
type similarEntry struct {
	Company *core.Company     `json:"company"`
	Score   float64           `json:"score"`
	Methods core.MethodScores `json:"methods"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, core.E(core.KindInvalidCompanyName, "request body must be JSON with a name field", err))
		return
	}

	jobID, err := s.backend.Research(r.Context(), req.Name, req.Website)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.backend.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.backend.Status(jobID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	status := "already_terminal"
	if s.backend.Cancel(jobID) {
		status = "cancelled"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.backend.GetCompany(chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	if _, err := s.backend.GetCompany(companyID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	edges, err := s.edges.Edges(r.Context(), companyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	entries := make([]similarEntry, 0, len(edges))
	for _, edge := range edges {
		company, err := s.backend.GetCompany(edge.TargetID)
		if err != nil {
			logger.Warn("similar edge points at missing profile", "source", companyID, "target", edge.TargetID)
			continue
		}
		entries = append(entries, similarEntry{Company: company, Score: edge.Score, Methods: edge.Methods})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	result, err := s.segmenter.Segment(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEvents streams the job's progress bus as server-sent events until
// the terminal event closes the subscription or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.backend.Status(jobID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming is not supported"))
		return
	}

	// Subscribe before the first flush so no event published between the
	// client seeing headers and the loop starting is lost.
	events := s.backend.Subscribe(r.Context(), jobID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: core.KindOf(err)})
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindInvalidCompanyName, core.KindInvalidURL:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
