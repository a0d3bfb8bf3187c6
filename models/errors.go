package models

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/salon_backend/config"
)

type ErrorKind string

const (
	ErrInvalidAmount        ErrorKind = "InvalidAmount"
	ErrNoPaymentProvided    ErrorKind = "NoPaymentProvided"
	ErrInvalidState         ErrorKind = "InvalidState"
	ErrNothingToRefund      ErrorKind = "NothingToRefund"
	ErrAllocationMismatch   ErrorKind = "AllocationMismatch"
	ErrAllocationInfeasible ErrorKind = "AllocationInfeasible"
	ErrSessionAlreadyOpen   ErrorKind = "SessionAlreadyOpen"
	ErrNoOpenSession        ErrorKind = "NoOpenSession"
	ErrNotFound             ErrorKind = "NotFound"
	ErrInvalidInput         ErrorKind = "InvalidInput"
	ErrUnauthorized         ErrorKind = "Unauthorized"
)

// SettlementError carries a stable kind for callers and a human message.
type SettlementError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *SettlementError {
	return &SettlementError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a SettlementError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func errBusinessRequired() error {
	return newError(ErrUnauthorized, "business id is required")
}

// logIfUnexpected logs failures that are not part of the error taxonomy
// (driver errors, lock timeouts). Taxonomy errors are returned to the caller only.
func logIfUnexpected(funcName string, data any, err error) {
	if err == nil {
		return
	}
	if _, ok := KindOf(err); ok {
		return
	}
	config.LogError(config.GetLogger(), "models", funcName, "settlement", data, err)
}
