package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/position-scanner/internal/errors"
)

// ErrorBody is the JSON shape of an API error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError maps a categorized error onto the wire format.
func respondError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	respondJSON(w, catErr.StatusCode, ErrorResponse{
		Error: ErrorBody{
			Code:    catErr.Code,
			Message: catErr.Message,
		},
	})
}
