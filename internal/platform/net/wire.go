package net

import (
	"net/http"

	perr "detention/internal/platform/errors"
)

// Failure is the error body written when a request is rejected before or outside a handler
type Failure struct {
	StatusCode int            `json:"status_code"`
	Status     string         `json:"status"`
	Code       perr.ErrorCode `json:"code"`
	Kind       string         `json:"kind"`
	Error      string         `json:"error"`
	Field      string         `json:"field,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// FailureOf maps err to its http status and body
func FailureOf(err error, reqID string) (int, Failure) {
	status := perr.HTTPStatus(err)
	w := perr.WireFrom(err)
	return status, Failure{
		StatusCode: status,
		Status:     http.StatusText(status),
		Code:       w.Code,
		Kind:       w.Kind,
		Error:      w.Message,
		Field:      w.Field,
		RequestID:  reqID,
	}
}
