package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/realtime"
	"github.com/helixmesh/orchestrator/internal/templates"
	"github.com/helixmesh/orchestrator/internal/workflow"
)

// WorkflowHandler exposes the workflow control API.
type WorkflowHandler struct {
	sched     *workflow.Scheduler
	engine    *realtime.Engine
	templates *templates.Registry
	logger    *zap.Logger
}

// NewWorkflowHandler creates a new handler. templates may be nil when no
// template directory is configured.
func NewWorkflowHandler(sched *workflow.Scheduler, engine *realtime.Engine, reg *templates.Registry, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{sched: sched, engine: engine, templates: reg, logger: logger}
}

// RegisterRoutes registers workflow routes on the provided mux.
func (h *WorkflowHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/workflows", h.handleCollection)
	mux.HandleFunc("/workflows/", h.handleItem)
	mux.HandleFunc("/workflows/from-template", h.handleFromTemplate)
	mux.HandleFunc("/stats", h.handleStats)
}

type createWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
}

func (h *WorkflowHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"workflows": h.sched.List()})
	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (h *WorkflowHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var def workflow.Definition
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		h.logger.Warn("workflow decode error", zap.Error(err))
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	h.create(w, def, r.Header.Get("X-Client-ID"))
}

type fromTemplateRequest struct {
	Template   string         `json:"template"`
	Name       string         `json:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (h *WorkflowHandler) handleFromTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if h.templates == nil {
		http.Error(w, `{"error":"no workflow templates configured"}`, http.StatusNotFound)
		return
	}
	var req fromTemplateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Template == "" {
		http.Error(w, `{"error":"template is required"}`, http.StatusBadRequest)
		return
	}
	def, err := h.templates.Definition(req.Template, req.Parameters)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			http.Error(w, `{"error":"unknown template"}`, http.StatusNotFound)
			return
		}
		h.logger.Warn("template expansion failed", zap.String("template", req.Template), zap.Error(err))
		http.Error(w, `{"error":"template expansion failed"}`, http.StatusUnprocessableEntity)
		return
	}
	if req.Name != "" {
		def.Name = req.Name
	}
	h.create(w, def, r.Header.Get("X-Client-ID"))
}

func (h *WorkflowHandler) create(w http.ResponseWriter, def workflow.Definition, createdBy string) {
	id, err := h.sched.Create(def, createdBy)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrCycleDetected), errors.Is(err, workflow.ErrDanglingDependency):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		case errors.Is(err, workflow.ErrTooManyWorkflows):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusCreated, createWorkflowResponse{WorkflowID: id})
}

// handleItem routes /workflows/{id}, /workflows/{id}/start,
// /workflows/{id}/cancel and /workflows/{id}/tasks.
func (h *WorkflowHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/workflows/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.Error(w, `{"error":"workflow id required"}`, http.StatusBadRequest)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		v, err := h.sched.Get(id)
		if err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case "start":
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		if err := h.sched.Start(id); err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": id, "status": "running"})
	case "cancel":
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		if err := h.sched.Cancel(id); err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": id, "status": "cancelled"})
	case "tasks":
		if r.Method != http.MethodGet {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		tasks, err := h.sched.Tasks(id)
		if err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflow_id": id, "tasks": tasks})
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (h *WorkflowHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *WorkflowHandler) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workflow not found"})
	case errors.Is(err, workflow.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("workflow request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
