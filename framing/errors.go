package framing

import "errors"

var (
	// ErrShortRead is returned when fewer bytes than the declared remaining
	// length are available; framing never silently truncates.
	ErrShortRead = errors.New("framing: short read")
)
