package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/consertaja/backend/internal/httpx"
	"github.com/consertaja/backend/internal/middleware"
	"github.com/consertaja/backend/internal/models"
)

// Handler serves the professional's balance and transaction history.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

// Balance handles GET /v1/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProfessional {
		httpx.Error(w, http.StatusForbidden, "only professionals have balances")
		return
	}
	b, err := h.Svc.Balance(r.Context(), actor.ID)
	if err != nil {
		h.Logger.Error("get balance", "user_id", actor.ID, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// Transactions handles GET /v1/balance/transactions?limit=n.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProfessional {
		httpx.Error(w, http.StatusForbidden, "only professionals have transactions")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Svc.History(r.Context(), actor.ID, limit)
	if err != nil {
		h.Logger.Error("list transactions", "user_id", actor.ID, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}
