package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

// APPLICATION-LEVEL ERRORS (Orchestration)

type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeAuthentication = "AUTHENTICATION_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeTransport      = "TRANSPORT_FAILED"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeConflict       = "CONFLICT"
)

func NewAuthenticationError(msg string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeAuthentication,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewNotFoundError(what string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    what + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

func NewValidationError(msg string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewConflictError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeConflict,
		Message:    "Resource changed concurrently",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}

// ToHTTPStatus maps error to appropriate HTTP status code
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	switch {
	case errors.Is(err, domain.ErrLockNotFound),
		errors.Is(err, domain.ErrMintReqNotFound),
		errors.Is(err, domain.ErrMintNotFound),
		errors.Is(err, domain.ErrEndpointNotFound),
		errors.Is(err, domain.ErrAPIKeyNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrDuplicateLockID):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	var domErr *domain.DomainError
	if errors.As(err, &domErr) && domErr.Code == domain.ErrCodeMissingRequiredField {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// ToErrorCode clear error code for API responses
func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}

	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}

	switch {
	case errors.Is(err, domain.ErrLockNotFound):
		return domain.ErrCodeLockNotFound
	case errors.Is(err, domain.ErrInvalidSignature):
		return domain.ErrCodeInvalidSignature
	case errors.Is(err, domain.ErrVersionConflict):
		return domain.ErrCodeVersionConflict
	case errors.Is(err, domain.ErrDuplicateLockID):
		return domain.ErrCodeDuplicateLock
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}

	return ErrCodeInternal
}
