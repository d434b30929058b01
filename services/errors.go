package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies a failure for retry and transport decisions.
type ErrorKind string

const (
	// ErrValidation marks malformed input, caught before any write.
	ErrValidation ErrorKind = "validation"
	// ErrConflict marks a uniqueness or invariant violation. A conflict
	// raised by a constraint race is retried once inside the service.
	ErrConflict ErrorKind = "conflict"
	// ErrState marks an illegal transition or business rejection. Never retried.
	ErrState ErrorKind = "state"
	// ErrNotFound marks an unknown id or missing reference data.
	ErrNotFound ErrorKind = "not_found"
)

// Error codes surfaced to callers.
const (
	CodeDuplicateActiveEnrollment = "DuplicateActiveEnrollment"
	CodeAlreadyProgressed         = "AlreadyProgressed"
	CodeOverAllocation            = "OverAllocation"
	CodeInvalidTransition         = "InvalidTransition"
	CodeNotEligible               = "NotEligible"
	CodePaymentNotSuccessful      = "PaymentNotSuccessful"
	CodeDueNotOutstanding         = "DueNotOutstanding"
	CodeInvalidState              = "InvalidState"
	CodeInvalidAdjustmentTarget   = "InvalidAdjustmentTarget"
	CodeNoFeeStructure            = "NoFeeStructure"
	CodeNotFound                  = "NotFound"
	CodeValidation                = "Validation"
)

// AppError is the error type returned by every service operation.
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationErr(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(code, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func stateErr(code, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrState, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(code, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsAppError unwraps err into an AppError, or nil.
func AsAppError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	ae := AsAppError(err)
	return ae != nil && ae.Code == code
}

// ErrorStatus maps a service error to an HTTP status for the controllers.
func ErrorStatus(err error) int {
	ae := AsAppError(err)
	if ae == nil {
		return fiber.StatusInternalServerError
	}
	switch ae.Kind {
	case ErrValidation:
		return fiber.StatusBadRequest
	case ErrNotFound:
		return fiber.StatusNotFound
	case ErrConflict:
		return fiber.StatusConflict
	case ErrState:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
