package packet

import (
	"bytes"
	"fmt"
)

// SubackCode is a per-topic SUBSCRIBE return code.
type SubackCode uint16

const (
	SubackQoS0    SubackCode = 0
	SubackQoS1    SubackCode = 1
	SubackQoS2    SubackCode = 2
	SubackFailure SubackCode = 0x80
)

// Suback is the SUBACK control packet: one return code per subscribed
// topic, positionally aligned with the SUBSCRIBE's topic list.
type Suback struct {
	PacketID    uint16
	ReturnCodes []SubackCode
}

func (s Suback) Encode() ([]byte, error) {
	var vh bytes.Buffer
	writeUint16(&vh, s.PacketID)
	for _, rc := range s.ReturnCodes {
		writeUint16(&vh, uint16(rc))
	}

	fh, err := encodeFixedHeader(TypeSuback, 0, vh.Len())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+vh.Len())
	out = append(out, fh[:]...)
	out = append(out, vh.Bytes()...)
	return out, nil
}

func DecodeSuback(body []byte) (Suback, error) {
	id, err := readUint16(body)
	if err != nil {
		return Suback{}, err
	}
	body = body[2:]

	if len(body)%2 != 0 {
		return Suback{}, fmt.Errorf("%w: suback return codes must be 2-byte aligned", ErrBadLength)
	}
	codes := make([]SubackCode, 0, len(body)/2)
	for len(body) > 0 {
		v, err := readUint16(body)
		if err != nil {
			return Suback{}, err
		}
		codes = append(codes, SubackCode(v))
		body = body[2:]
	}
	return Suback{PacketID: id, ReturnCodes: codes}, nil
}
