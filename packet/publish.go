package packet

import (
	"bytes"
	"fmt"
)

const timestampSize = 16

// Publish is the PUBLISH control packet. Payload holds the PLAINTEXT
// application bytes; Encode encrypts them for the wire and DecodePublish
// decrypts them back. EncryptedPayload, when non-nil, holds the raw
// on-the-wire ciphertext as decoded off a frame (used for the codec
// round-trip invariant, which is defined over the encrypted bytes).
type Publish struct {
	Topic           string
	Dup             bool
	QoS             byte
	Retain          bool
	PacketID        *uint16
	Payload         []byte
	EncryptedPayload []byte
	Timestamp       Timestamp
}

// NewPublish validates and builds a Publish, enforcing the qos/packet_id
// coupling invariant: qos==0 requires no packet id, qos>0 requires one.
func NewPublish(topic string, payload []byte, qos byte, retain, dup bool, packetID *uint16, ts Timestamp) (Publish, error) {
	if qos == 3 {
		return Publish{}, fmt.Errorf("%w: qos=3", ErrInvalidFlagCombo)
	}
	if qos == 0 && packetID != nil {
		return Publish{}, fmt.Errorf("%w: qos=0 with packet id", ErrInvalidFlagCombo)
	}
	if qos > 0 && packetID == nil {
		return Publish{}, fmt.Errorf("%w: qos>0 without packet id", ErrInvalidFlagCombo)
	}
	return Publish{
		Topic:     topic,
		Dup:       dup,
		QoS:       qos,
		Retain:    retain,
		PacketID:  packetID,
		Payload:   payload,
		Timestamp: ts,
	}, nil
}

func (p Publish) Encode() ([]byte, error) {
	if p.QoS == 3 {
		return nil, fmt.Errorf("%w: qos=3", ErrInvalidFlagCombo)
	}
	if p.QoS == 0 && p.PacketID != nil {
		return nil, fmt.Errorf("%w: qos=0 with packet id", ErrInvalidFlagCombo)
	}
	if p.QoS > 0 && p.PacketID == nil {
		return nil, fmt.Errorf("%w: qos>0 without packet id", ErrInvalidFlagCombo)
	}

	cipherBytes, err := encryptPayload(p.Payload)
	if err != nil {
		return nil, err
	}
	return encodePublishFrame(p, cipherBytes)
}

// EncodeRaw serialises p using p.EncryptedPayload as-is instead of
// encrypting p.Payload. Used to re-wrap a retained.Record (already
// encrypted once, on the original publisher's side) as a wire frame for
// fanout and replay without double-encrypting it.
func (p Publish) EncodeRaw() ([]byte, error) {
	return encodePublishFrame(p, p.EncryptedPayload)
}

func encodePublishFrame(p Publish, cipherBytes []byte) ([]byte, error) {
	var vh bytes.Buffer
	if err := writeString16(&vh, p.Topic); err != nil {
		return nil, err
	}
	if p.QoS > 0 {
		writeUint16(&vh, *p.PacketID)
	}

	vh.Write(cipherBytes)
	vh.Write(p.Timestamp[:])

	var flags byte
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	fh, err := encodeFixedHeader(TypePublish, flags, vh.Len())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+vh.Len())
	out = append(out, fh[:]...)
	out = append(out, vh.Bytes()...)
	return out, nil
}

// DecodePublish decodes the variable header + payload given the fixed
// header, whose flag nibble it parses into dup/qos/retain.
func DecodePublish(fh FixedHeader, body []byte) (Publish, error) {
	dup, qos, retain := fh.PublishFlags()

	topic, n, err := readString16(body)
	if err != nil {
		return Publish{}, err
	}
	body = body[n:]

	var packetID *uint16
	if qos > 0 {
		id, err := readUint16(body)
		if err != nil {
			return Publish{}, err
		}
		packetID = &id
		body = body[2:]
	}

	if len(body) < timestampSize {
		return Publish{}, fmt.Errorf("%w: missing timestamp", ErrShortRead)
	}
	cipherBytes := body[:len(body)-timestampSize]
	var ts Timestamp
	copy(ts[:], body[len(body)-timestampSize:])

	plain, err := decryptPayload(cipherBytes)
	if err != nil {
		return Publish{}, err
	}

	return Publish{
		Topic:            topic,
		Dup:              dup,
		QoS:              qos,
		Retain:           retain,
		PacketID:         packetID,
		Payload:          plain,
		EncryptedPayload: append([]byte{}, cipherBytes...),
		Timestamp:        ts,
	}, nil
}
