package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stockbot/internal/task"
	"stockbot/internal/transport"
)

type CommandRequest struct {
	Text string `json:"text"`
	// From is an optional caller name, used in logs only.
	From string `json:"from,omitempty"`
}

type LinesResponse struct {
	Lines []string `json:"lines"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type TaskView struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

type TasksResponse struct {
	Running []TaskView `json:"running"`
	Recent  []TaskView `json:"recent"`
}

const maxBody = 16 << 10

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleHelp(w http.ResponseWriter, _ *http.Request) {
	var lines []string
	if s.help != nil {
		lines = s.help.Help()
	}
	respondJSON(w, http.StatusOK, LinesResponse{Lines: nonNil(lines)})
}

// handleCommand handles POST /v1/sessions/{id}/commands.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	msg := transport.Message{
		Target:       transport.Target{Channel: transport.ChannelHTTP, ID: id},
		FromUsername: req.From,
		Text:         req.Text,
	}
	lines := s.router.Route(r.Context(), msg)
	respondJSON(w, http.StatusOK, LinesResponse{Lines: nonNil(lines)})
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, LinesResponse{Lines: nonNil(s.drain(id))})
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	resp := TasksResponse{Running: []TaskView{}, Recent: []TaskView{}}
	if s.tasks != nil {
		resp.Running = views(s.tasks.Running())
		resp.Recent = views(s.tasks.Recent())
	}
	respondJSON(w, http.StatusOK, resp)
}

func views(in []task.Info) []TaskView {
	out := make([]TaskView, 0, len(in))
	for _, i := range in {
		out = append(out, TaskView{
			ID:        i.ID,
			Key:       i.Key,
			Status:    string(i.Status),
			StartedAt: i.StartedAt,
			EndedAt:   i.EndedAt,
			Error:     i.Err,
		})
	}
	return out
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
