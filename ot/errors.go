package ot

import "errors"

// Sentinel errors shared across the package. Sites wrap them with
// fmt.Errorf and %w so callers can match with errors.Is.
var (
	// ErrInvalidRange marks a range that falls outside the document or
	// has a reversed or zero extent where one is required.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidOperand marks an argument that cannot produce a valid
	// transaction, such as an attribute change on a text item.
	ErrInvalidOperand = errors.New("invalid operand")

	// ErrUnsupportedOperation marks an operation type the receiver does
	// not know how to process.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrSequencing marks changes whose positions do not line up, such
	// as rebasing against a change anchored elsewhere in the history.
	ErrSequencing = errors.New("sequencing error")
)
