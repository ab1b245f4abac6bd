// Package jsonerror defines the Matrix-standard error response shapes the
// widget driver's error actions and HTTP shim surface (spec §7).
package jsonerror

import (
	"fmt"

	"github.com/matrix-org/util"
)

// MatrixError represents the "standard error response" in Matrix.
// http://matrix.org/docs/spec/client_server/r0.2.0.html#api-standards
type MatrixError struct {
	ErrCode string `json:"errcode"`
	Err     string `json:"error"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Err)
}

// InternalServerError returns a 500 Internal Server Error in a matrix-compliant
// format, used by the capability-UI HTTP shim.
func InternalServerError() util.JSONResponse {
	return util.JSONResponse{
		Code: 500,
		JSON: Unknown("Internal Server Error"),
	}
}

// Unknown is an uncategorized failure during action dispatch (spec §7,
// M_UNKNOWN).
func Unknown(msg string) *MatrixError {
	return &MatrixError{"M_UNKNOWN", msg}
}

// Forbidden covers a missing capability or a crypto event in send_event/
// send_to_device (spec §7, M_FORBIDDEN).
func Forbidden(msg string) *MatrixError {
	return &MatrixError{"M_FORBIDDEN", msg}
}

// InvalidRequest covers malformed JSON bodies or missing fields (spec §7,
// M_INVALID_REQUEST).
func InvalidRequest(msg string) *MatrixError {
	return &MatrixError{"M_INVALID_REQUEST", msg}
}

// NotFound is a read of an absent event or state (spec §7, M_NOT_FOUND).
func NotFound(msg string) *MatrixError {
	return &MatrixError{"M_NOT_FOUND", msg}
}

// Timeout is a best-effort response to a pending-request expiry (spec §7,
// M_TIMEOUT).
func Timeout(msg string) *MatrixError {
	return &MatrixError{"M_TIMEOUT", msg}
}

// TransportError marks a faulted transport, retriable (spec §7,
// M_TRANSPORT_ERROR).
func TransportError(msg string) *MatrixError {
	return &MatrixError{"M_TRANSPORT_ERROR", msg}
}

// InvalidState marks an operation attempted at the wrong capability state
// (spec §7, M_INVALID_STATE).
func InvalidState(msg string) *MatrixError {
	return &MatrixError{"M_INVALID_STATE", msg}
}

// Unrecognized marks an unknown action or unsupported feature (spec §7,
// M_UNRECOGNIZED).
func Unrecognized(msg string) *MatrixError {
	return &MatrixError{"M_UNRECOGNIZED", msg}
}

// LimitExceededError is a rate-limiting error.
type LimitExceededError struct {
	MatrixError
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
}

// LimitExceeded is an error when the pending registry is at capacity (spec
// §7, M_LIMIT_EXCEEDED / TooManyPending).
func LimitExceeded(msg string, retryAfterMS int64) *LimitExceededError {
	return &LimitExceededError{
		MatrixError:  MatrixError{"M_LIMIT_EXCEEDED", msg},
		RetryAfterMS: retryAfterMS,
	}
}
