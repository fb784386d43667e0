package response

import (
	"encoding/json"
	"net/http"

	apperr "github.com/fleetadmin/fleetadmin/domain/error"
)

// ErrorEnvelope is the body of every failed API response.
type ErrorEnvelope struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(body)
}

func Error(w http.ResponseWriter, statusCode int, message string, code apperr.ErrorCode) {
	WriteJSON(w, statusCode, ErrorEnvelope{
		Success: false,
		Error:   message,
		Code:    string(code),
	})
}

// AppError writes err with the status from the error catalog. Internal
// details and causes never reach the client.
func AppError(w http.ResponseWriter, err *apperr.AppError) {
	WriteJSON(w, apperr.GetHTTPStatusCode(err), ErrorEnvelope{
		Success:    false,
		Error:      err.Message,
		Code:       string(err.Code),
		RetryAfter: err.RetryAfter,
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message, apperr.ErrCodeValidation)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message, "")
}

func MethodNotAllowed(w http.ResponseWriter) {
	Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}

func InternalServerError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "Internal server error. Please try again.", apperr.ErrCodeInternal)
}
