package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes shared by every document processing operation.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION"
	CodeConflict     = "CONFLICT"
	CodeStorage      = "STORAGE"
	CodeInvalidState = "INVALID_STATE"
	CodeInternal     = "INTERNAL"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so callers can write errors.Is(err, apperrors.ErrConflict).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail attaches a key/value pair rendered alongside the error message.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrNotFound     = &AppError{Code: CodeNotFound, Message: "resource not found"}
	ErrValidation   = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrConflict     = &AppError{Code: CodeConflict, Message: "version conflict"}
	ErrStorage      = &AppError{Code: CodeStorage, Message: "storage failure"}
	ErrInvalidState = &AppError{Code: CodeInvalidState, Message: "invalid state"}
	ErrInternal     = &AppError{Code: CodeInternal, Message: "internal error"}
)

func NotFound(format string, args ...interface{}) *AppError {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...interface{}) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) *AppError {
	return New(CodeConflict, fmt.Sprintf(format, args...))
}

func InvalidState(format string, args ...interface{}) *AppError {
	return New(CodeInvalidState, fmt.Sprintf(format, args...))
}

func Storage(cause error, format string, args ...interface{}) *AppError {
	return New(CodeStorage, fmt.Sprintf(format, args...), cause)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code string) bool {
	return GetCode(err) == code
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// HTTPStatus maps an error to the status code the API surfaces it with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeStorage:
		return http.StatusBadGateway
	case CodeInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
