package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/resistance-client/internal/game"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, ErrorResponse{Code: errCode, Message: msg})
}

// writeActionError maps a rejected or undeliverable action to a response.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrActionNotPermitted):
		writeError(w, http.StatusForbidden, game.RejectCode(err), err.Error())
	case errors.Is(err, game.ErrInvalidTeamSize):
		writeError(w, http.StatusUnprocessableEntity, game.RejectCode(err), err.Error())
	case errors.Is(err, game.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, game.RejectCode(err), err.Error())
	case errors.Is(err, game.ErrNotConnected):
		writeError(w, http.StatusBadGateway, game.RejectCode(err), err.Error())
	default:
		writeError(w, http.StatusBadGateway, "transport_error", err.Error())
	}
}
