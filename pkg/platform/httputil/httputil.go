package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in ErrorResponse.Error.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeCSRFInvalid        = "CSRF_INVALID"
	CodeInvalidContentType = "INVALID_CONTENT_TYPE"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeDomainNotAllowed   = "DOMAIN_NOT_ALLOWED"
	CodeUserExists         = "USER_EXISTS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeServerError        = "SERVER_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError writes the error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}
