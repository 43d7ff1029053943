package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

// AgentHandler serves agent and session CRUD.
type AgentHandler struct {
	repo     store.Repository
	maxBytes int64
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(repo store.Repository, maxBodyBytes int64) *AgentHandler {
	return &AgentHandler{repo: repo, maxBytes: maxBodyBytes}
}

// RegisterRoutes registers agent and session routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.ListAgents)
	r.Post("/agents", h.CreateAgent)
	r.Get("/agents/{agentID}", h.GetAgent)
	r.Put("/agents/{agentID}", h.UpdateAgent)
	r.Patch("/agents/{agentID}", h.UpdateAgent)
	r.Delete("/agents/{agentID}", h.DeleteAgent)

	r.Get("/agents/{agentID}/sessions", h.ListSessions)
	r.Post("/agents/{agentID}/sessions", h.CreateSession)
	r.Get("/agents/sessions/{sessionID}", h.GetSession)
	r.Delete("/agents/sessions/{sessionID}", h.DeleteSession)
}

type createAgentRequest struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	VoiceID string `json:"voice_id"`
}

// ListAgents handles GET /agents.
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgents(r.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to list agents")
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	JSON(w, http.StatusOK, agents)
}

// CreateAgent handles POST /agents.
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(w, r, h.maxBytes, &req); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	agent := &domain.Agent{
		Name:    strings.TrimSpace(req.Name),
		Prompt:  req.Prompt,
		VoiceID: strings.TrimSpace(req.VoiceID),
	}
	if msg := validateAgent(agent); msg != "" {
		Error(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		slog.Error("Failed to create agent", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create agent")
		return
	}
	slog.Info("Agent created", "agent_id", agent.ID, "name", agent.Name)
	JSON(w, http.StatusCreated, agent)
}

// GetAgent handles GET /agents/{agentID}.
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, agent)
}

// UpdateAgent handles PUT and PATCH /agents/{agentID}. Omitted fields keep
// their current values.
func (h *AgentHandler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}

	var patch domain.AgentPatch
	if err := decodeJSON(w, r, h.maxBytes, &patch); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	patch.Apply(agent)
	if msg := validateAgent(agent); msg != "" {
		Error(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if err := h.repo.UpdateAgent(r.Context(), agent); err != nil {
		slog.Error("Failed to update agent", "agent_id", agent.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to update agent")
		return
	}
	JSON(w, http.StatusOK, agent)
}

// DeleteAgent handles DELETE /agents/{agentID}.
func (h *AgentHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "agentID")
	if !ok {
		Error(w, http.StatusUnprocessableEntity, "Invalid agent id")
		return
	}
	deleted, err := h.repo.DeleteAgent(r.Context(), id)
	if err != nil {
		slog.Error("Failed to delete agent", "agent_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to delete agent")
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "Agent not found")
		return
	}
	slog.Info("Agent deleted", "agent_id", id)
	JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ListSessions handles GET /agents/{agentID}/sessions.
func (h *AgentHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	sessions, err := h.repo.ListSessions(r.Context(), agent.ID)
	if err != nil {
		slog.Error("Failed to list sessions", "agent_id", agent.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, sessions)
}

// CreateSession handles POST /agents/{agentID}/sessions.
func (h *AgentHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	sess := &domain.Session{AgentID: agent.ID}
	if err := h.repo.CreateSession(r.Context(), sess); err != nil {
		slog.Error("Failed to create session", "agent_id", agent.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	slog.Info("Session created", "agent_id", agent.ID, "session_id", sess.ID)
	JSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /agents/sessions/{sessionID}.
func (h *AgentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		Error(w, http.StatusUnprocessableEntity, "Invalid session id")
		return
	}
	sess, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	JSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /agents/sessions/{sessionID}.
func (h *AgentHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionID")
	if !ok {
		Error(w, http.StatusUnprocessableEntity, "Invalid session id")
		return
	}
	deleted, err := h.repo.DeleteSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to delete session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// loadAgent resolves {agentID}, writing the error response itself.
func (h *AgentHandler) loadAgent(w http.ResponseWriter, r *http.Request) (*domain.Agent, bool) {
	id, ok := pathID(r, "agentID")
	if !ok {
		Error(w, http.StatusUnprocessableEntity, "Invalid agent id")
		return nil, false
	}
	agent, err := h.repo.GetAgent(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get agent", "agent_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load agent")
		return nil, false
	}
	if agent == nil {
		Error(w, http.StatusNotFound, "Agent not found")
		return nil, false
	}
	return agent, true
}

func validateAgent(a *domain.Agent) string {
	switch {
	case a.Name == "":
		return "name is required"
	case strings.TrimSpace(a.Prompt) == "":
		return "prompt is required"
	}
	return ""
}
