package rest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/engine"
	"github.com/flowcore/chatflow/internal/validator"
)

// executeRequest is the wire shape of POST /api/v1/executions, covering all
// three of engine.Request's graph-resolution variants (spec.md §4.7).
type executeRequest struct {
	UserID         string                   `json:"user_id"`
	ConversationID string                   `json:"conversation_id"`
	InputMessage   string                   `json:"input_message"`
	TemplateID     string                   `json:"template_id,omitempty"`
	Params         map[string]any           `json:"params,omitempty"`
	DefinitionID   string                   `json:"definition_id,omitempty"`
	Nodes          []domain.NodeSpec        `json:"nodes,omitempty"`
	Edges          []domain.EdgeSpec        `json:"edges,omitempty"`
	Capabilities   capability.CapabilitySet `json:"capabilities,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TemplateID == "" && req.DefinitionID == "" && len(req.Nodes) == 0 {
		s.respondError(w, "one of template_id, definition_id, or nodes is required", http.StatusBadRequest)
		return
	}

	caller := s.callerFromRequest(r)

	result, err := s.engine.Execute(r.Context(), engine.Request{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		InputMessage:   req.InputMessage,
		TemplateID:     req.TemplateID,
		Params:         req.Params,
		DefinitionID:   req.DefinitionID,
		Nodes:          req.Nodes,
		Edges:          req.Edges,
		Capabilities:   req.Capabilities,
		Caller:         caller,
	})
	if err != nil {
		// A failed/cancelled run is still a well-formed ExecutionResult
		// (spec.md §6) — report it as 200 with the error embedded rather
		// than a transport-level 500, reserving 500 for handler bugs.
		s.logger.Warn().Err(err).Str("execution_id", result.ExecutionID).Msg("execution did not complete")
	}
	s.respondJSON(w, result, http.StatusOK)
}

// callerFromRequest decodes a validator.Caller from a bearer JWT when both
// a token and CallerSecret are present. Otherwise, and when the token does
// not verify, it returns an empty Caller: no user id and no allowed tools.
func (s *Server) callerFromRequest(r *http.Request) validator.Caller {
	auth := r.Header.Get("Authorization")
	if s.cfg.CallerSecret == "" || !strings.HasPrefix(auth, "Bearer ") {
		return validator.Caller{}
	}
	caller, err := validator.DecodeCaller(strings.TrimPrefix(auth, "Bearer "), s.cfg.CallerSecret)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejecting invalid caller token")
		return validator.Caller{}
	}
	return caller
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondJSON(w, []domain.WorkflowTemplate{}, http.StatusOK)
		return
	}
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list templates")
		s.respondError(w, "failed to list templates", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, templates, http.StatusOK)
}

func (s *Server) respondJSON(w http.ResponseWriter, v any, status int) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	s.respondJSON(w, map[string]string{"error": message}, status)
}
