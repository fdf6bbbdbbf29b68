package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"banking-settlement/internal/usecase/fraud"
	"banking-settlement/pkg/response"
)

type FraudHandler struct {
	engine *fraud.Engine
}

func NewFraudHandler(engine *fraud.Engine) *FraudHandler {
	return &FraudHandler{engine: engine}
}

func (h *FraudHandler) Flagged(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Flagged(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *FraudHandler) ByAccount(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ByAccount(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *FraudHandler) All(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.All(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}
