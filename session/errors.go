package session

import "errors"

var (
	ErrUnknownClient  = errors.New("session: unknown client id")
	ErrRegistryClosed = errors.New("session: registry closed")
)
