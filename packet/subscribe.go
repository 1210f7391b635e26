package packet

import (
	"bytes"
	"fmt"
)

// SubscribeTopic is one (topic, requested qos) entry in a SUBSCRIBE payload.
type SubscribeTopic struct {
	Topic string
	QoS   byte
}

// Subscribe is the SUBSCRIBE control packet. Its fixed header reserved flag
// nibble must be 0x02 (enforced by validateFlags at decode time).
type Subscribe struct {
	PacketID uint16
	Topics   []SubscribeTopic
}

func (s Subscribe) Encode() ([]byte, error) {
	if len(s.Topics) > 0xffff {
		return nil, fmt.Errorf("%w: too many topics", ErrBadLength)
	}
	var vh bytes.Buffer
	writeUint16(&vh, s.PacketID)
	writeUint16(&vh, uint16(len(s.Topics)))
	for _, t := range s.Topics {
		if err := writeString16(&vh, t.Topic); err != nil {
			return nil, err
		}
		vh.WriteByte(t.QoS)
	}

	fh, err := encodeFixedHeader(TypeSubscribe, 0x02, vh.Len())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+vh.Len())
	out = append(out, fh[:]...)
	out = append(out, vh.Bytes()...)
	return out, nil
}

func DecodeSubscribe(body []byte) (Subscribe, error) {
	id, err := readUint16(body)
	if err != nil {
		return Subscribe{}, err
	}
	body = body[2:]

	count, err := readUint16(body)
	if err != nil {
		return Subscribe{}, err
	}
	body = body[2:]

	topics := make([]SubscribeTopic, 0, count)
	for i := 0; i < int(count); i++ {
		topic, n, err := readString16(body)
		if err != nil {
			return Subscribe{}, err
		}
		body = body[n:]
		if len(body) < 1 {
			return Subscribe{}, fmt.Errorf("%w: missing requested qos", ErrShortRead)
		}
		qos := body[0]
		body = body[1:]
		if qos == 3 {
			return Subscribe{}, fmt.Errorf("%w: qos=3", ErrInvalidFlagCombo)
		}
		topics = append(topics, SubscribeTopic{Topic: topic, QoS: qos})
	}

	return Subscribe{PacketID: id, Topics: topics}, nil
}
