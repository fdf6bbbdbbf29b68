package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"banking-settlement/internal/xerrors"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: "success", Data: data})
}

func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: "error", Message: msg})
}

// FromError maps the error taxonomy onto HTTP statuses at the synchronous
// boundary: validation 400, unknown resource 404, conflicts 409, exhausted
// event delivery 502, everything else 500.
func FromError(w http.ResponseWriter, err error) {
	switch {
	case xerrors.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	case xerrors.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case xerrors.IsDuplicate(err):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, xerrors.ErrTerminalStatus):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, xerrors.ErrDeliveryFailed):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
	}
}
