package broker

import "errors"

var (
	ErrNotConnect      = errors.New("broker: first packet was not CONNECT")
	ErrAuthFailed      = errors.New("broker: authentication failed")
	ErrCredentialsFile = errors.New("broker: could not read credentials file")
	ErrPoolClosed      = errors.New("broker: worker pool closed")
)
