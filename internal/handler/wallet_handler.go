package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"banking-settlement/internal/usecase/ledger"
	"banking-settlement/pkg/response"
)

type WalletHandler struct {
	svc *ledger.Service
}

func NewWalletHandler(svc *ledger.Service) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// Create handles POST /wallets/create?accountNumber=...&initialBalance=...
// Both parameters are optional: a missing account number gets a generated
// one, a missing balance opens the wallet empty.
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountNumber := r.URL.Query().Get("accountNumber")

	initialBalance := decimal.Zero
	if raw := r.URL.Query().Get("initialBalance"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "invalid initialBalance")
			return
		}
		initialBalance = parsed
	}

	wallet, err := h.svc.CreateWallet(r.Context(), accountNumber, initialBalance)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, wallet)
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.svc.GetWallet(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, wallet)
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.svc.GetWallet(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"accountNumber": wallet.AccountNumber,
		"balance":       wallet.Balance.StringFixed(2),
		"currency":      wallet.Currency,
	})
}

func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.svc.ListWallets(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, wallets)
}
