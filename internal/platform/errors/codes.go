package errors

import "net/http"

// ErrorCode classifies failures across the transport, pipeline and batch layers.
// Values are persisted in report rows: append only
type ErrorCode uint16

const (
	ErrorCodeUnknown          ErrorCode = iota // unclassified
	ErrorCodePanic                             // recovered panic
	ErrorCodeNetwork                           // connection level failure or upstream 5xx
	ErrorCodeTimeout                           // upstream call exceeded its budget
	ErrorCodeTooManyRequests                   // upstream rate limit
	ErrorCodeUnavailable                       // transient backend outage
	ErrorCodeUnauthorized                      // expired or rejected token
	ErrorCodeNotFound                          // missing resource
	ErrorCodeConflict                          // version conflict or business rejection
	ErrorCodeInvalidArgument                   // malformed parameter
	ErrorCodeValidation                        // input failed validation
	ErrorCodeJSON                              // unparsable request or response body
	ErrorCodeCircuitOpen                       // breaker rejected the call untried
	ErrorCodeContractStore                     // contract missing, disabled or incomplete
	ErrorCodeInvalidState                      // not allowed in the current run state
	ErrorCodeDB                                // database failure
	ErrorCodeMethodNotAllowed                  // route exists, method does not
)

var codeNames = [...]string{
	ErrorCodeUnknown:          "unknown",
	ErrorCodePanic:            "panic",
	ErrorCodeNetwork:          "network",
	ErrorCodeTimeout:          "timeout",
	ErrorCodeTooManyRequests:  "rate_limited",
	ErrorCodeUnavailable:      "unavailable",
	ErrorCodeUnauthorized:     "auth",
	ErrorCodeNotFound:         "not_found",
	ErrorCodeConflict:         "conflict",
	ErrorCodeInvalidArgument:  "invalid_argument",
	ErrorCodeValidation:       "validation",
	ErrorCodeJSON:             "parse",
	ErrorCodeCircuitOpen:      "circuit_open",
	ErrorCodeContractStore:    "contract_store",
	ErrorCodeInvalidState:     "invalid_state",
	ErrorCodeDB:               "db",
	ErrorCodeMethodNotAllowed: "method_not_allowed",
}

// String returns the short label used in logs, metrics and report rows
func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return codeNames[ErrorCodeUnknown]
}

var statusByCode = map[ErrorCode]int{
	ErrorCodeNotFound:         http.StatusNotFound,
	ErrorCodeInvalidArgument:  http.StatusUnprocessableEntity,
	ErrorCodeConflict:         http.StatusConflict,
	ErrorCodeInvalidState:     http.StatusConflict,
	ErrorCodeValidation:       http.StatusBadRequest,
	ErrorCodeJSON:             http.StatusBadRequest,
	ErrorCodeUnauthorized:     http.StatusUnauthorized,
	ErrorCodeTooManyRequests:  http.StatusTooManyRequests,
	ErrorCodeUnavailable:      http.StatusServiceUnavailable,
	ErrorCodeCircuitOpen:      http.StatusServiceUnavailable,
	ErrorCodeNetwork:          http.StatusServiceUnavailable,
	ErrorCodeTimeout:          http.StatusGatewayTimeout,
	ErrorCodeContractStore:    http.StatusFailedDependency,
	ErrorCodeMethodNotAllowed: http.StatusMethodNotAllowed,
}

// HTTPStatusCode maps a code to the status the API answers with; unmapped codes are 500
func HTTPStatusCode(c ErrorCode) int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsTransient reports whether the code is one of the retried transport classes:
// network, timeout and rate limit
func IsTransient(code ErrorCode) bool {
	switch code {
	case ErrorCodeNetwork, ErrorCodeTimeout, ErrorCodeTooManyRequests:
		return true
	}
	return false
}
