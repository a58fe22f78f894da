package service

import "errors"

// ErrorCode classifies failures so the HTTP layer can map them to statuses
// without string-matching messages.
type ErrorCode string

const (
	CodeNotFound     ErrorCode = "not_found"
	CodeConflict     ErrorCode = "conflict"
	CodeForbidden    ErrorCode = "forbidden"
	CodeExpired      ErrorCode = "expired"
	CodeUpstream     ErrorCode = "upstream"
	CodeUnauthorized ErrorCode = "unauthorized"
)

// Error is a client-facing failure with a stable code and a human message.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func notFoundError(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }
func conflictError(msg string) *Error     { return &Error{Code: CodeConflict, Message: msg} }
func forbiddenError(msg string) *Error    { return &Error{Code: CodeForbidden, Message: msg} }
func expiredError(msg string) *Error      { return &Error{Code: CodeExpired, Message: msg} }
func upstreamError(msg string) *Error     { return &Error{Code: CodeUpstream, Message: msg} }
func unauthorizedError(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }

// CodeOf extracts the error code when err (or anything it wraps) is a
// service error.
func CodeOf(err error) (ErrorCode, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code, true
	}
	return "", false
}
