package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"banking-settlement/internal/domain"
	"banking-settlement/internal/usecase/transaction"
	"banking-settlement/internal/xerrors"
	"banking-settlement/pkg/response"
)

type TransactionHandler struct {
	svc *transaction.Service
}

func NewTransactionHandler(svc *transaction.Service) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

type initiateRequest struct {
	FromAccount string `json:"fromAccount"`
	ToAccount   string `json:"toAccount"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Initiate handles POST /transactions. The amount travels as a decimal
// string so client float formatting can never corrupt it.
func (h *TransactionHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid amount")
		return
	}

	t, err := h.svc.Initiate(r.Context(), req.FromAccount, req.ToAccount, amount, req.Description)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, t)
}

func (h *TransactionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.History(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *TransactionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Pending(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

// UpdateStatus handles PUT /transactions/{id}/status?status=SUCCESS|FAILED.
// Kept as an operator escape hatch; the normal finalization path is the
// wallet.updated consumer.
func (h *TransactionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseTransactionStatus(r.URL.Query().Get("status"))
	if err != nil {
		response.FromError(w, xerrors.ErrInvalidStatus)
		return
	}

	t, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, t)
}
