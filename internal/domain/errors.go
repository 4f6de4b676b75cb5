package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManySites signals a site collection over a hard limit.
	ErrTooManySites = errors.New("too many sites")
	// ErrMatrixTooLarge signals a disaggregation matrix over the element ceiling.
	ErrMatrixTooLarge = errors.New("disaggregation matrix too large")
	// ErrAtomicGroup signals an unsupported atomic source group.
	ErrAtomicGroup = errors.New("atomic source groups are not supported")
	// ErrDataTransfer signals an estimated data transfer over the configured ceiling.
	ErrDataTransfer = errors.New("estimated data transfer too big")
	// ErrNoDisaggregation signals that no site can be disaggregated.
	ErrNoDisaggregation = errors.New("cannot do any disaggregation")
	// ErrMissingColumn signals a rupture column absent from the store.
	ErrMissingColumn = errors.New("missing rupture column")
	// ErrUnknownColumn signals an unexpected rupture column.
	ErrUnknownColumn = errors.New("unknown rupture column")
	// ErrBadRlzCount signals more selected realizations than available.
	ErrBadRlzCount = errors.New("more realizations selected than available")
)

// MatrixTooLargeError wraps ErrMatrixTooLarge with the offending element count.
type MatrixTooLargeError struct {
	Elements int
}

func (e *MatrixTooLargeError) Error() string {
	return fmt.Sprintf(
		"the disaggregation matrix is too large (%d elements): fix the binning", e.Elements)
}

func (e *MatrixTooLargeError) Unwrap() error { return ErrMatrixTooLarge }

// NewMatrixTooLarge creates a matrix size error carrying the element count.
func NewMatrixTooLarge(elements int) error {
	return &MatrixTooLargeError{Elements: elements}
}

// DataTransferError wraps ErrDataTransfer with the estimated and allowed sizes.
type DataTransferError struct {
	EstimatedBytes int64
	MaxBytes       int64
}

func (e *DataTransferError) Error() string {
	return fmt.Sprintf("estimated data transfer too big: %d bytes > max_data_transfer=%d bytes",
		e.EstimatedBytes, e.MaxBytes)
}

func (e *DataTransferError) Unwrap() error { return ErrDataTransfer }

// NewDataTransfer creates a data transfer error carrying both sizes.
func NewDataTransfer(estimated, limit int64) error {
	return &DataTransferError{EstimatedBytes: estimated, MaxBytes: limit}
}
