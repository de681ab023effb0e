// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientMargin   = errors.New("insufficient margin")
	ErrNoPrice              = errors.New("no price available")
	ErrPositionSideConflict = errors.New("position side conflict")
	ErrOrderNotFound        = errors.New("order not found")
	ErrUnknownBroker        = errors.New("unknown broker type")
	ErrBrokerNotImplemented = errors.New("broker not yet implemented")
	ErrUnsupportedOperation = errors.New("operation not supported by broker")
	ErrSnapshotInvalid      = errors.New("invalid snapshot")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrDatabaseError        = errors.New("database error")
	ErrInvalidEvent         = errors.New("invalid event")
)

// BrokerError represents an error from a broker backend.
type BrokerError struct {
	Broker  string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Broker, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Broker, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(broker, message string, err error) *BrokerError {
	return &BrokerError{
		Broker:  broker,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents an order that failed construction checks.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// FundingError is returned by a ledger primitive when not even one unit can be
// afforded. Kind is ErrInsufficientFunds or ErrInsufficientMargin.
type FundingError struct {
	Kind      error
	Ticker    string
	Required  float64
	Available float64
}

func (e *FundingError) Error() string {
	if errors.Is(e.Kind, ErrInsufficientMargin) {
		return fmt.Sprintf("Insufficient margin for short %s: need %.2f", e.Ticker, e.Required)
	}
	return fmt.Sprintf("Insufficient cash for %s: need %.2f, have %.2f", e.Ticker, e.Required, e.Available)
}

func (e *FundingError) Unwrap() error {
	return e.Kind
}

// NewFundingError creates a new FundingError.
func NewFundingError(kind error, ticker string, required, available float64) *FundingError {
	return &FundingError{
		Kind:      kind,
		Ticker:    ticker,
		Required:  required,
		Available: available,
	}
}

// SnapshotError represents a state file that could not be read or applied.
type SnapshotError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot error [%s]: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("snapshot error [%s]: %s", e.Path, e.Reason)
}

func (e *SnapshotError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSnapshotInvalid, e.Err}
	}
	return []error{ErrSnapshotInvalid}
}

// NewSnapshotError creates a new SnapshotError.
func NewSnapshotError(path, reason string, err error) *SnapshotError {
	return &SnapshotError{
		Path:   path,
		Reason: reason,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error wrapping every non-nil error in errs, or nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
