package refunds

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/consertaja/backend/internal/httpx"
	"github.com/consertaja/backend/internal/middleware"
	"github.com/consertaja/backend/internal/models"
)

// Handler serves the refund endpoints.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

type requestRefundRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// Request handles POST /v1/refunds.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req requestRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid payment_id")
		return
	}
	if req.Amount <= 0 {
		httpx.Error(w, http.StatusBadRequest, "amount must be > 0")
		return
	}

	ref, err := h.Svc.Request(r.Context(), paymentID, req.Amount, req.Reason, actor.ID, actor.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			httpx.Error(w, http.StatusNotFound, "payment not found")
		case errors.Is(err, ErrForbidden):
			httpx.Error(w, http.StatusForbidden, "you may not refund this payment")
		case errors.Is(err, ErrNotRefundable), errors.Is(err, ErrExceedsPayment):
			httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.Logger.Error("request refund", "payment_id", paymentID, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, ref)
}

// Approve handles POST /v1/refunds/{id}/approve. Admin only.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleAdmin {
		httpx.Error(w, http.StatusForbidden, "admin only")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid refund id")
		return
	}

	ref, err := h.Svc.Approve(r.Context(), id, actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "refund not found")
		case errors.Is(err, ErrNotPending):
			httpx.Error(w, http.StatusConflict, err.Error())
		default:
			h.Logger.Error("approve refund", "refund_id", id, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ref)
}

// Get handles GET /v1/refunds/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid refund id")
		return
	}
	ref, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "refund not found")
			return
		}
		h.Logger.Error("get refund", "refund_id", id, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if actor.Role != models.RoleAdmin && ref.RequestedByID != actor.ID {
		httpx.Error(w, http.StatusForbidden, "not your refund")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ref)
}

// ListByPayment handles GET /v1/payments/{id}/refunds. Admin only.
func (h *Handler) ListByPayment(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleAdmin {
		httpx.Error(w, http.StatusForbidden, "admin only")
		return
	}
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid payment id")
		return
	}
	list, err := h.Svc.ListByPayment(r.Context(), paymentID)
	if err != nil {
		h.Logger.Error("list refunds", "payment_id", paymentID, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*models.Refund{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}
