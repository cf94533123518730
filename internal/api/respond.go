package api

import (
	"encoding/json"
	"net/http"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  int32  `json:"code"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("write response failed", "error", err)
	}
}

// WriteError maps err to its code and status and writes it.
func WriteError(w http.ResponseWriter, err error) {
	code := errors.ErrorToCode(err)
	writeCode(w, code, err.Error())
}

func writeCode(w http.ResponseWriter, code int32, msg string) {
	WriteJSON(w, errors.HTTPStatus(code), ErrorResponse{
		Error: msg,
		Kind:  errors.CodeName(code),
		Code:  code,
	})
}
