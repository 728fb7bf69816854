// internal/api/respond.go
package api

import (
	"errors"
	"log"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"libraledger/internal/ledger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorResponse struct {
	Error string `json:"error"`
}

// WriteJSON serializes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// WriteError maps the ledger error taxonomy onto HTTP statuses: lookup
// failures are 404, business-rule violations 422, lock contention 503,
// anything else a 500 with the detail kept out of the response body.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case ledger.IsNotFound(err):
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case ledger.IsPreconditionFailed(err):
		WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrBusy):
		WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// DecodeJSON decodes a request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
