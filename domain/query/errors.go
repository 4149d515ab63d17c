package query

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Code is a stable, machine-readable error kind.
type Code string

// Error codes surfaced to callers.
const (
	CodeValidation         Code = "QUERY_VALIDATION_ERROR"
	CodeDatabaseNotAllowed Code = "DATABASE_NOT_ALLOWED"
	CodeInvalidTimeRange   Code = "INVALID_TIME_RANGE"
	CodeMaxPointsExceeded  Code = "MAX_POINTS_EXCEEDED"
	CodeRateLimited        Code = "RATE_LIMIT_ERROR"
	CodeTimeout            Code = "TIMEOUT_ERROR"
	CodeConnection         Code = "CONNECTION_ERROR"
	CodeDatabaseNotFound   Code = "DATABASE_NOT_FOUND"
	CodeHTTP               Code = "HTTP_ERROR"
	CodeExecution          Code = "QUERY_EXECUTION_ERROR"
	CodeInvalidCursor      Code = "INVALID_CURSOR"
)

// Error is a structured pipeline error carrying a stable code and details.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
// This lets the exported sentinels be used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons. They match any *Error with the same code.
var (
	ErrValidation         = &Error{Code: CodeValidation}
	ErrDatabaseNotAllowed = &Error{Code: CodeDatabaseNotAllowed}
	ErrInvalidTimeRange   = &Error{Code: CodeInvalidTimeRange}
	ErrMaxPointsExceeded  = &Error{Code: CodeMaxPointsExceeded}
	ErrRateLimited        = &Error{Code: CodeRateLimited}
	ErrTimeout            = &Error{Code: CodeTimeout}
	ErrConnection         = &Error{Code: CodeConnection}
	ErrDatabaseNotFound   = &Error{Code: CodeDatabaseNotFound}
	ErrHTTP               = &Error{Code: CodeHTTP}
	ErrExecution          = &Error{Code: CodeExecution}
	ErrInvalidCursor      = &Error{Code: CodeInvalidCursor}
)

// NewValidationError reports unsafe or malformed query text or identifiers.
func NewValidationError(msg string, details map[string]any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// NewDatabaseNotAllowedError reports a database outside the allow-list.
func NewDatabaseNotAllowedError(db string) *Error {
	return &Error{
		Code:    CodeDatabaseNotAllowed,
		Message: fmt.Sprintf("database %q is not in the allowed list", db),
		Details: map[string]any{"database": db},
	}
}

// NewInvalidTimeRangeError reports a malformed, inverted or oversized range.
func NewInvalidTimeRangeError(msg string, details map[string]any) *Error {
	return &Error{Code: CodeInvalidTimeRange, Message: msg, Details: details}
}

// NewMaxPointsExceededError reports a plan whose estimate trips the final guard.
func NewMaxPointsExceededError(estimated, maxAllowed int64) *Error {
	msg := fmt.Sprintf("query would return approximately %d points, exceeding maximum of %d; use aggregation or narrow the time range",
		estimated, maxAllowed)
	return &Error{
		Code:    CodeMaxPointsExceeded,
		Message: msg,
		Details: map[string]any{"estimated": estimated, "max_allowed": maxAllowed},
	}
}

// NewRateLimitError reports token exhaustion with a retry hint.
func NewRateLimitError(retryAfter time.Duration) *Error {
	return &Error{
		Code:    CodeRateLimited,
		Message: fmt.Sprintf("rate limit exceeded, retry after %dms", retryAfter.Milliseconds()),
		Details: map[string]any{"retry_after_ms": retryAfter.Milliseconds()},
	}
}

// NewTimeoutError reports a collaborator timeout.
func NewTimeoutError(timeout time.Duration, cause error) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("query timed out after %dms", timeout.Milliseconds()),
		Details: map[string]any{"timeout_ms": timeout.Milliseconds()},
		Err:     cause,
	}
}

// NewConnectionError reports a transport failure reaching the database.
func NewConnectionError(host string, port int, cause error) *Error {
	msg := fmt.Sprintf("failed to connect to InfluxDB at %s:%d", host, port)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &Error{
		Code:    CodeConnection,
		Message: msg,
		Details: map[string]any{"host": host, "port": port},
		Err:     cause,
	}
}

// NewHTTPError reports a non-success HTTP status from the database.
func NewHTTPError(status int, cause error) *Error {
	return &Error{
		Code:    CodeHTTP,
		Message: fmt.Sprintf("InfluxDB returned HTTP %d", status),
		Details: map[string]any{"status": status},
		Err:     cause,
	}
}

// NewExecutionError reports an error returned inside a query result.
func NewExecutionError(msg string) *Error {
	return &Error{Code: CodeExecution, Message: msg}
}

// NewDatabaseNotFoundError reports a database the server does not know.
func NewDatabaseNotFoundError(db, msg string) *Error {
	return &Error{
		Code:    CodeDatabaseNotFound,
		Message: msg,
		Details: map[string]any{"database": db},
	}
}

// NewInvalidCursorError reports an undecodable or stale cursor.
func NewInvalidCursorError(msg string) *Error {
	return &Error{Code: CodeInvalidCursor, Message: msg}
}

// CodeOf returns the code of err, or the empty code when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var retryableHTTPStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(status int) bool {
	return retryableHTTPStatus[status]
}

var transientMessage = regexp.MustCompile(`(?i)timeout|econnrefused|econnreset|etimedout|connection refused|connection reset`)

// IsRetryable classifies an error as transient. Validation, permission and
// planning errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case CodeTimeout, CodeConnection:
			return true
		case CodeHTTP:
			status, _ := e.Details["status"].(int)
			return IsRetryableStatus(status)
		default:
			return false
		}
	}
	return transientMessage.MatchString(err.Error())
}
