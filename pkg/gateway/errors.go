package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeResourceNotFound = "RESOURCE_NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

const ContentTypeJSON = "application/json"

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(&Response{Success: true, Data: data})
}

func writeJSONError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

// writeDomainError maps service errors to HTTP statuses: missing resources to
// 404, invalid input to 400, state-machine conflicts to 409.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound),
		errors.Is(err, remediation.ErrActionNotFound),
		errors.Is(err, fleet.ErrServerNotFound):
		writeJSONError(w, http.StatusNotFound, ErrCodeResourceNotFound, err.Error())

	case errors.Is(err, alerting.ErrInvalidAlertID),
		errors.Is(err, alerting.ErrInvalidSeverity),
		errors.Is(err, remediation.ErrInvalidActionID),
		errors.Is(err, remediation.ErrUnknownActionType),
		errors.Is(err, remediation.ErrServiceRequired),
		errors.Is(err, remediation.ErrReasonRequired),
		errors.Is(err, service.ErrServerIDRequired):
		writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

	case errors.Is(err, alerting.ErrNotOpen),
		errors.Is(err, alerting.ErrAlreadyResolved),
		errors.Is(err, remediation.ErrNotPending),
		errors.Is(err, remediation.ErrNotExecuting):
		writeJSONError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	default:
		writeJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
