package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

const (
	maxBodyBytes     = 1 << 20
	defaultRunsLimit = 50
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type workflowRequest struct {
	Name       string             `json:"name"`
	Definition *domain.Definition `json:"json_definition"`
	IsActive   *bool              `json:"is_active"`
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.service.ListWorkflows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflow, err := s.service.GetWorkflow(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workflow)
}

func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req workflowRequest
	if err := xjson.Unmarshal(body, &req); err != nil {
		s.writeError(w, domain.NewConfigError("body", err))
		return
	}
	if req.Definition == nil {
		s.writeError(w, domain.NewConfigError("json_definition", domain.ErrInvalidInput))
		return
	}
	if err := req.Definition.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	workflow := &domain.Workflow{
		ID:         chi.URLParam(r, "workflowID"),
		Name:       req.Name,
		Definition: req.Definition,
		IsActive:   req.IsActive == nil || *req.IsActive,
	}
	if err := s.service.SaveWorkflow(r.Context(), workflow); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workflow)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteWorkflow(r.Context(), chi.URLParam(r, "workflowID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, ports.RunOptions{TriggerType: domain.TriggerManual})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	if s.limiter != nil && !s.limiter.Allow("webhook:"+workflowID) {
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
		return
	}

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	payload := map[string]interface{}{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := xjson.Unmarshal(body, &payload); err != nil {
			s.writeError(w, domain.NewConfigError("body", err))
			return
		}
	}

	s.execute(w, r, ports.RunOptions{TriggerType: domain.TriggerWebhook, TriggerPayload: payload})
}

// execute runs detached from the request so a disconnecting client cannot
// abandon a run between on-chain steps.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, opts ports.RunOptions) {
	ctx := context.WithoutCancel(r.Context())

	result, err := s.service.ExecuteStored(ctx, chi.URLParam(r, "workflowID"), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, result)
}

func (s *Server) handleTestWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	def, err := domain.ParseDefinition(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := def.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeResult(w, s.service.TestWorkflow(context.WithoutCancel(r.Context()), def))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, domain.NewConfigError("limit", domain.ErrInvalidInput))
			return
		}
		limit = n
	}

	runs, err := s.service.ListRuns(r.Context(), chi.URLParam(r, "workflowID"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.GetRunDetail(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewConfigError("body", err)
	}
	return body, nil
}

func (s *Server) writeResult(w http.ResponseWriter, result domain.RunResult) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, result)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err.Error())
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDraining):
		return http.StatusServiceUnavailable
	case domain.IsConfiguration(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := xjson.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
