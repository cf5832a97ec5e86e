package withdrawals

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/consertaja/backend/internal/httpx"
	"github.com/consertaja/backend/internal/ledger"
	"github.com/consertaja/backend/internal/middleware"
	"github.com/consertaja/backend/internal/models"
)

// Handler serves the withdrawal endpoints.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

type requestWithdrawalRequest struct {
	Amount int64  `json:"amount"`
	PixKey string `json:"pix_key"`
}

// Request handles POST /v1/withdrawals. Professionals only; the amount is
// reserved from their available balance.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProfessional {
		httpx.Error(w, http.StatusForbidden, "only professionals may request withdrawals")
		return
	}

	var req requestWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	wd, err := h.Svc.Request(r.Context(), actor.ID, req.Amount, req.PixKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrPixKeyRequired):
			httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ledger.ErrInsufficientBalance):
			httpx.Error(w, http.StatusUnprocessableEntity, "insufficient available balance")
		default:
			h.Logger.Error("request withdrawal", "professional_id", actor.ID, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, wd)
}

type decideWithdrawalRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// Decide handles POST /v1/withdrawals/{id}/decision. Admin only.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleAdmin {
		httpx.Error(w, http.StatusForbidden, "admin only")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid withdrawal id")
		return
	}

	var req decideWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Approve && req.Reason == "" {
		httpx.Error(w, http.StatusBadRequest, "a rejection requires a reason")
		return
	}

	wd, err := h.Svc.Decide(r.Context(), id, actor.ID, req.Approve, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "withdrawal not found")
		case errors.Is(err, ErrNotPending):
			httpx.Error(w, http.StatusConflict, err.Error())
		default:
			h.Logger.Error("decide withdrawal", "withdrawal_id", id, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wd)
}

// Get handles GET /v1/withdrawals/{id}. The owner or an admin may look.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid withdrawal id")
		return
	}
	wd, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "withdrawal not found")
			return
		}
		h.Logger.Error("get withdrawal", "withdrawal_id", id, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if actor.Role != models.RoleAdmin && wd.ProfessionalID != actor.ID {
		httpx.Error(w, http.StatusForbidden, "not your withdrawal")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wd)
}

// List handles GET /v1/withdrawals for the calling professional.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProfessional {
		httpx.Error(w, http.StatusForbidden, "only professionals have withdrawals")
		return
	}
	list, err := h.Svc.List(r.Context(), actor.ID, 0)
	if err != nil {
		h.Logger.Error("list withdrawals", "professional_id", actor.ID, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*models.Withdrawal{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}
