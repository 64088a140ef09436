package wire

import "errors"

// Sentinel errors for primitive decode failures. Callers should use
// errors.Is against these, since higher layers wrap them with
// positional context via fmt.Errorf("%w", ...).
var (
	// ErrShortRead is returned when fewer bytes remain in the buffer
	// than a primitive requires.
	ErrShortRead = errors.New("wire: short read")

	// ErrMalformedString is returned when a null-terminated string has
	// no terminator before the end of the buffer.
	ErrMalformedString = errors.New("wire: unterminated string")
)
