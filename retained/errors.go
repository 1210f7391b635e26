package retained

import "errors"

var (
	ErrStoreClosed  = errors.New("retained: store closed")
	ErrInvalidRange = errors.New("retained: invalid range")
)
