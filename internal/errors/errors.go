package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	// Pipeline conditions
	ErrCodeAuthUnavailable        ErrCode = "AUTH_UNAVAILABLE"
	ErrCodeNoArtifactAvailable    ErrCode = "NO_ARTIFACT_AVAILABLE"
	ErrCodeSubmissionFailed       ErrCode = "SUBMISSION_FAILED"
	ErrCodeConvergenceTimeout     ErrCode = "CONVERGENCE_TIMEOUT"
	ErrCodeListPageUnreachable    ErrCode = "LIST_PAGE_UNREACHABLE"
	ErrCodeEmptyPageShortfall     ErrCode = "EMPTY_PAGE_SHORTFALL"
	ErrCodeRunawayPaginationGuard ErrCode = "RUNAWAY_PAGINATION_GUARD"
	ErrCodeConfirmationFailed     ErrCode = "CONFIRMATION_FAILED"
	ErrCodeCanceled               ErrCode = "CANCELED"

	// History API
	ErrCodeNotFound   ErrCode = "NOT_FOUND"
	ErrCodeInternal   ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest ErrCode = "BAD_REQUEST"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code
func New(code ErrCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAuthUnavailableError creates an error for a credential that could not be obtained
func NewAuthUnavailableError(message string, err error) *AppError {
	return New(ErrCodeAuthUnavailable, message, err)
}

// NewNoArtifactError creates an error for a source with nothing to import
func NewNoArtifactError(message string) *AppError {
	return New(ErrCodeNoArtifactAvailable, message, nil)
}

// NewSubmissionFailedError creates an error for a failed import call
func NewSubmissionFailedError(message string, err error) *AppError {
	return New(ErrCodeSubmissionFailed, message, err)
}

// NewConvergenceTimeoutError creates an error for a poller that never settled
func NewConvergenceTimeoutError(attempts int) *AppError {
	return New(ErrCodeConvergenceTimeout, fmt.Sprintf("record count did not stabilize after %d attempts", attempts), nil)
}

// NewListPageUnreachableError creates an error for a page that could not be fetched
func NewListPageUnreachableError(page int, err error) *AppError {
	return New(ErrCodeListPageUnreachable, fmt.Sprintf("page %d unreachable", page), err)
}

// NewEmptyPageShortfallError creates an error for an empty page before the declared end
func NewEmptyPageShortfallError(page, totalPages int) *AppError {
	return New(ErrCodeEmptyPageShortfall, fmt.Sprintf("page %d of %d returned no records", page, totalPages), nil)
}

// NewRunawayPaginationError creates an error for a walk cut off by the safety cap
func NewRunawayPaginationError(limit, totalPages int) *AppError {
	return New(ErrCodeRunawayPaginationGuard, fmt.Sprintf("safety cap of %d pages reached (server declared %d)", limit, totalPages), nil)
}

// NewConfirmationFailedError creates an error for a failed confirmation call
func NewConfirmationFailedError(message string, err error) *AppError {
	return New(ErrCodeConfirmationFailed, message, err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code
func Is(err error, code ErrCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

// IsNoArtifact checks if the error reports that there is nothing to import
func IsNoArtifact(err error) bool {
	return Is(err, ErrCodeNoArtifactAvailable)
}

// IsConvergenceTimeout checks if the error is a convergence timeout
func IsConvergenceTimeout(err error) bool {
	return Is(err, ErrCodeConvergenceTimeout)
}
