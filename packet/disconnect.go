package packet

import "fmt"

// Disconnect is the DISCONNECT control packet: no variable header, no
// payload.
type Disconnect struct{}

func (Disconnect) Encode() ([]byte, error) {
	fh, err := encodeFixedHeader(TypeDisconnect, 0, 0)
	if err != nil {
		return nil, err
	}
	return fh[:], nil
}

func DecodeDisconnect(body []byte) (Disconnect, error) {
	if len(body) != 0 {
		return Disconnect{}, fmt.Errorf("%w: disconnect must have no payload", ErrBadLength)
	}
	return Disconnect{}, nil
}
