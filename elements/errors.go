package elements

import "errors"

var (
	// ErrInvalidLength is returned when a fixed-size field decodes to the
	// wrong number of bytes.
	ErrInvalidLength = errors.New("elements: invalid byte length")

	// ErrNull is returned when an operation requires an explicit or
	// confidential value but the commitment is null.
	ErrNull = errors.New("elements: commitment is null")
)
