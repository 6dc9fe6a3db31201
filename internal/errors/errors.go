package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeDataFormat  Code = 14
	CodeNotFound    Code = 15
	CodeBlocked     Code = 16
	CodeTimeout     Code = 17
)

// Taxonomy tags carried in response envelopes. They are plain strings so they
// survive process and service boundaries unchanged.
const (
	TagAPIError      = "API_ERROR"
	TagDataFormat    = "DATA_FORMAT_ERROR"
	TagInvalidParams = "INVALID_PARAMS"
	TagNotFound      = "NOT_FOUND"
	TagInternal      = "INTERNAL_ERROR"
)

// Tag maps a code onto the envelope taxonomy.
func (c Code) Tag() string {
	switch c {
	case CodeAuth, CodeRateLimited, CodeUnavailable, CodeTimeout:
		return TagAPIError
	case CodeDataFormat:
		return TagDataFormat
	case CodeUsage, CodeUnsupported, CodeBlocked:
		return TagInvalidParams
	case CodeNotFound:
		return TagNotFound
	default:
		return TagInternal
	}
}

// CodeForTag is the inverse of Tag, used when a response crossed a boundary
// as a plain tag and needs an exit code again.
func CodeForTag(tag string) Code {
	switch tag {
	case "":
		return CodeSuccess
	case TagAPIError:
		return CodeUnavailable
	case TagDataFormat:
		return CodeDataFormat
	case TagInvalidParams:
		return CodeUsage
	case TagNotFound:
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// TagOf returns the taxonomy tag for any error. Untyped errors coming back
// from a collaborator are treated as API failures.
func TagOf(err error) string {
	if err == nil {
		return ""
	}
	if cErr, ok := As(err); ok {
		return cErr.Code.Tag()
	}
	return TagAPIError
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
