package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"banking-settlement/internal/usecase/notification"
	"banking-settlement/pkg/response"
)

type NotificationHandler struct {
	svc *notification.Service
}

func NewNotificationHandler(svc *notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) ByRecipient(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ByRecipient(r.Context(), chi.URLParam(r, "recipient"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) ByTransaction(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ByTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) All(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.All(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}
