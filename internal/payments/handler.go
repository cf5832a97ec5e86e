package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/consertaja/backend/internal/httpx"
	"github.com/consertaja/backend/internal/jobs"
	"github.com/consertaja/backend/internal/middleware"
	"github.com/consertaja/backend/internal/models"
)

// Handler serves the payment endpoints, plus the unauthenticated gateway
// webhook.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

type createPaymentRequest struct {
	JobID        string `json:"job_id"`
	Method       string `json:"method"`
	Installments int    `json:"installments"`
}

// Create handles POST /v1/payments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid job_id")
		return
	}
	switch req.Method {
	case models.PaymentMethodPix, models.PaymentMethodCreditCard, models.PaymentMethodDebitCard, models.PaymentMethodBoleto:
	default:
		httpx.Error(w, http.StatusBadRequest, "invalid method")
		return
	}

	p, err := h.Svc.CreatePayment(r.Context(), jobID, req.Method, actor.ID, req.Installments)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "job not found")
		case errors.Is(err, ErrNotJobClient):
			httpx.Error(w, http.StatusForbidden, "only the job client may pay")
		case errors.Is(err, ErrPaymentExists):
			httpx.Error(w, http.StatusConflict, "job already has a payment")
		case errors.Is(err, ErrJobNotPayable):
			httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.Logger.Error("create payment", "job_id", jobID, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, p)
}

// Get handles GET /v1/payments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid payment id")
		return
	}
	p, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "payment not found")
			return
		}
		h.Logger.Error("get payment", "payment_id", id, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// GetByJob handles GET /v1/jobs/{id}/payment.
func (h *Handler) GetByJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid job id")
		return
	}
	p, err := h.Svc.GetByJobID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "payment not found")
			return
		}
		h.Logger.Error("get payment by job", "job_id", jobID, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

type webhookRequest struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// Webhook handles POST /v1/webhooks/payments. The gateway is the caller, so
// the endpoint is unauthenticated and answers 200 even for payments we don't
// know about; anything else would make the gateway retry forever.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PaymentID == "" || req.Status == "" {
		httpx.Error(w, http.StatusBadRequest, "payment_id and status are required")
		return
	}

	if err := h.Svc.ApplyWebhook(r.Context(), req.PaymentID, req.Status); err != nil {
		h.Logger.Error("apply webhook", "gateway_payment_id", req.PaymentID, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
