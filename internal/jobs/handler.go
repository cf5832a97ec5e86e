package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/consertaja/backend/internal/httpx"
	"github.com/consertaja/backend/internal/middleware"
)

// Handler serves the job lifecycle endpoints the payment subsystem owns:
// status transitions and completion approval.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

// Get handles GET /v1/jobs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := h.Svc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "job not found")
			return
		}
		h.Logger.Error("get job", "job_id", id, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

// ApproveCompletion handles POST /v1/jobs/{id}/approve-completion. The
// job's client (or an admin) confirms the work, which completes the job
// and releases the escrowed professional share.
func (h *Handler) ApproveCompletion(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.Svc.ApproveCompletion(r.Context(), id, actor.ID, actor.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "job not found")
		case errors.Is(err, ErrNotJobClient):
			httpx.Error(w, http.StatusForbidden, "only the job client may approve completion")
		case errors.Is(err, ErrInvalidTransition):
			httpx.Error(w, http.StatusConflict, err.Error())
		default:
			h.Logger.Error("approve completion", "job_id", id, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// Transition handles POST /v1/jobs/{id}/transition for status changes that
// carry no payment side effects.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid job id")
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Status == "" {
		httpx.Error(w, http.StatusBadRequest, "status is required")
		return
	}

	job, err := h.Svc.Transition(r.Context(), id, req.Status, actor.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "job not found")
		case errors.Is(err, ErrInvalidTransition):
			httpx.Error(w, http.StatusConflict, err.Error())
		default:
			h.Logger.Error("transition job", "job_id", id, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}
