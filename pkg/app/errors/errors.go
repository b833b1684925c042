// Package errors classifies service errors so transports can map them to
// status codes without knowing the domain.
package errors

import (
	"errors"
	"net/http"
)

// Category is the class of a service error.
type Category int

const (
	CategoryNoError Category = iota
	// CategoryDataError is invalid input: a bad amount, address or limit.
	CategoryDataError
	// CategoryUnauthorized is a caller that may not perform the operation.
	CategoryUnauthorized
	// CategoryForbidden is a request that failed authentication.
	CategoryForbidden
	CategoryResourceNotFound
	// CategoryNotSupported is a token or route the service does not serve.
	CategoryNotSupported
	// CategoryDataConflict is a write that collides with existing state.
	CategoryDataConflict
	// CategoryLocked is a resource that is paused.
	CategoryLocked
	// CategoryDependencyFailure is a failing transport, store or cache.
	CategoryDependencyFailure
	CategoryGeneralError
	CategoryRecovering
	CategoryConnectionTimeout
)

type categoryInfo struct {
	name   string
	status int
}

var categories = map[Category]categoryInfo{
	CategoryNoError:           {"CategoryNoError", http.StatusOK},
	CategoryDataError:         {"CategoryDataError", http.StatusBadRequest},
	CategoryUnauthorized:      {"CategoryUnauthorized", http.StatusUnauthorized},
	CategoryForbidden:         {"CategoryForbidden", http.StatusForbidden},
	CategoryResourceNotFound:  {"CategoryResourceNotFound", http.StatusNotFound},
	CategoryNotSupported:      {"CategoryNotSupported", http.StatusMethodNotAllowed},
	CategoryDataConflict:      {"CategoryDataConflict", http.StatusConflict},
	CategoryLocked:            {"CategoryLocked", http.StatusLocked},
	CategoryDependencyFailure: {"CategoryDependencyFailure", http.StatusBadGateway},
	CategoryRecovering:        {"CategoryRecovering", http.StatusServiceUnavailable},
	CategoryConnectionTimeout: {"CategoryConnectionTimeout", http.StatusGatewayTimeout},
}

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return "CategoryGeneralError"
}

// ServiceError carries a category, the message shown to clients and the
// underlying error that is only logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is matches another error by message.
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is reports whether err wraps a ServiceError of category cat.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsInternalError reports whether err is not a client error.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category < CategoryDependencyFailure {
		return false
	}
	return true
}

func newError(cat Category, err error, message, fallback string) error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error".
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error", "internal server error")
}

func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message, "resource not found: "+message)
}

func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message, "bad request: "+message)
}

func NotSupportedError(err error, message string) error {
	return newError(CategoryNotSupported, err, message, "not supported: "+message)
}

func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message, "request forbidden")
}

func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message, "unauthorized")
}

func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message, "conflict")
}

func LockedError(err error, message string) error {
	return newError(CategoryLocked, err, message, "locked")
}

// DependencyError reports a failing store, cache or transport.
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message, "dependency failure")
}

// StatusCode maps the category to an HTTP status.
func (err ServiceError) StatusCode() int {
	if info, ok := categories[err.Category]; ok && err.Category != CategoryNoError {
		return info.status
	}
	return http.StatusInternalServerError
}
