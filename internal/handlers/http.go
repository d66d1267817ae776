package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
)

// APIError represents an error with an HTTP status code
type APIError struct {
	Message string `json:"error"`
	Status  int    `json:"status"`
}

func (e *APIError) Error() string {
	return e.Message
}

// BadRequest creates a 400 error with custom message
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

// NotFound creates a 404 error with custom message
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: message}
}

// ToAPIError maps error kinds to HTTP statuses. Internal details of
// unexpected errors are logged, not returned.
func ToAPIError(log logger.Logger, err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		switch appErr.Kind {
		case errors.ErrNotFound:
			return NotFound(appErr.Message)
		case errors.ErrUser:
			return BadRequest(appErr.Message)
		case errors.ErrForbidden:
			return &APIError{Status: http.StatusForbidden, Message: appErr.Message}
		case errors.ErrUnauthorized:
			return &APIError{Status: http.StatusUnauthorized, Message: "Unauthorized"}
		}
	}

	log.Error("internal error", "error", err)
	return &APIError{Status: http.StatusInternalServerError, Message: "Internal server error"}
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondOK writes a 200 OK JSON response
func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, data)
}

// respondEmpty writes the empty object mutating endpoints answer with
func respondEmpty(w http.ResponseWriter) {
	respondOK(w, struct{}{})
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	apiErr := ToAPIError(h.Log, err)
	respondJSON(w, apiErr.Status, apiErr)
}

// decodeJSON decodes JSON from request body into the target
func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if err == io.EOF {
			return BadRequest("Request body is empty")
		}
		return BadRequest("Invalid JSON: " + err.Error())
	}
	return nil
}
