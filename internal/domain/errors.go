package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeLockNotFound         = "LOCK_NOT_FOUND"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeVersionConflict      = "VERSION_CONFLICT"
	ErrCodeDuplicateLock        = "DUPLICATE_LOCK"
)

// Sentinels for errors.Is checks across layers.
var (
	ErrLockNotFound     = errors.New("lock not found")
	ErrMintReqNotFound  = errors.New("mint request not found")
	ErrMintNotFound     = errors.New("completed mint not found")
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrAPIKeyNotFound   = errors.New("api key not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrVersionConflict  = errors.New("lock version conflict")
	ErrDuplicateLockID  = errors.New("lock id already exists")
)

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

func NewLockNotFoundError(lockID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeLockNotFound,
		Message: fmt.Sprintf("lock %s not found", lockID),
		Err:     ErrLockNotFound,
	}
}
