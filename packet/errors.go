package packet

import "errors"

// Sentinel decode errors. Wrapped with %w at call boundaries so errors.Is
// keeps working across the reader -> processor chain.
var (
	ErrBadLength       = errors.New("packet: bad length")
	ErrBadUTF8         = errors.New("packet: invalid utf8 string")
	ErrBadPacketType   = errors.New("packet: unknown packet type")
	ErrInvalidFlagCombo = errors.New("packet: invalid flag combination")
	ErrShortRead       = errors.New("packet: short read")
	ErrTooLarge        = errors.New("packet: remaining length exceeds 255")
)
