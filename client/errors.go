package client

import "errors"

var (
	// ErrRetryExhausted is returned by Connect when CONNACK never arrived
	// after the maximum number of CONNECT retransmissions.
	ErrRetryExhausted = errors.New("client: MAXRETRIES")
	// ErrNotConnack is returned when the first packet after a CONNECT
	// write was not a CONNACK (a protocol error on the broker's part).
	ErrNotConnack = errors.New("client: expected CONNACK")
	// ErrRejected is returned when the broker's CONNACK carried a return
	// code other than Accepted.
	ErrRejected = errors.New("client: connect rejected")
	// ErrNotConnected is not returned by any operation in this package: a
	// usable Client only exists after a successful Connect.
	ErrNotConnected = errors.New("client: not connected")
	// ErrClosed is returned when an operation is attempted on a client
	// whose reader has already terminated.
	ErrClosed = errors.New("client: closed")
)
