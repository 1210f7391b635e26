package packet

import (
	"bytes"
	"fmt"
)

// Connect flag bits, high-to-low within the connect-flags byte.
const (
	connectFlagUsername    = 0x80
	connectFlagPassword    = 0x40
	connectFlagWillRetain  = 0x20
	connectFlagWillQoSMask = 0x18
	connectFlagWillQoSShift = 3
	connectFlagWillFlag    = 0x04
	connectFlagCleanSession = 0x02
)

const protocolLevel = 4

// Connect is the CONNECT control packet.
type Connect struct {
	ClientID     string
	CleanSession bool
	WillTopic    string
	WillMessage  []byte
	WillQoS      byte
	WillRetain   bool
	Username     string
	Password     []byte
	HasWill      bool
	HasUsername  bool
	HasPassword  bool
}

// Encode serialises c into a full wire frame (fixed header + variable
// header + payload).
func (c Connect) Encode() ([]byte, error) {
	if c.HasWill && c.WillQoS == 3 {
		return nil, fmt.Errorf("%w: will qos=3", ErrInvalidFlagCombo)
	}

	var vh bytes.Buffer
	if err := writeString8(&vh, "MQTT"); err != nil {
		return nil, err
	}
	vh.WriteByte(protocolLevel)

	var flags byte
	if c.HasUsername {
		flags |= connectFlagUsername
	}
	if c.HasPassword {
		flags |= connectFlagPassword
	}
	if c.HasWill {
		flags |= connectFlagWillFlag
		flags |= (c.WillQoS << connectFlagWillQoSShift) & connectFlagWillQoSMask
		if c.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if c.CleanSession {
		flags |= connectFlagCleanSession
	}
	vh.WriteByte(flags)

	if err := writeString8(&vh, c.ClientID); err != nil {
		return nil, err
	}
	if c.HasWill {
		if err := writeString8(&vh, c.WillTopic); err != nil {
			return nil, err
		}
		if err := writeString8(&vh, string(c.WillMessage)); err != nil {
			return nil, err
		}
	}
	if c.HasUsername {
		if err := writeString8(&vh, c.Username); err != nil {
			return nil, err
		}
	}
	if c.HasPassword {
		if err := writeString8(&vh, string(c.Password)); err != nil {
			return nil, err
		}
	}

	fh, err := encodeFixedHeader(TypeConnect, 0, vh.Len())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2+vh.Len())
	out = append(out, fh[:]...)
	out = append(out, vh.Bytes()...)
	return out, nil
}

// DecodeConnect decodes the variable header + payload of a CONNECT packet
// (the caller has already consumed the fixed header).
func DecodeConnect(body []byte) (Connect, error) {
	proto, n, err := readString8(body)
	if err != nil {
		return Connect{}, err
	}
	body = body[n:]
	if proto != "MQTT" {
		return Connect{}, fmt.Errorf("%w: protocol name %q", ErrBadLength, proto)
	}

	if len(body) < 2 {
		return Connect{}, fmt.Errorf("%w: missing protocol level/flags", ErrShortRead)
	}
	// body[0] is protocol level, currently unchecked beyond presence.
	flags := body[1]
	body = body[2:]

	c := Connect{
		CleanSession: flags&connectFlagCleanSession != 0,
		HasWill:      flags&connectFlagWillFlag != 0,
		WillQoS:      (flags & connectFlagWillQoSMask) >> connectFlagWillQoSShift,
		WillRetain:   flags&connectFlagWillRetain != 0,
		HasUsername:  flags&connectFlagUsername != 0,
		HasPassword:  flags&connectFlagPassword != 0,
	}
	if c.HasWill && c.WillQoS == 3 {
		return Connect{}, fmt.Errorf("%w: will qos=3", ErrInvalidFlagCombo)
	}

	clientID, n, err := readString8(body)
	if err != nil {
		return Connect{}, err
	}
	c.ClientID = clientID
	body = body[n:]

	if c.HasWill {
		topic, n, err := readString8(body)
		if err != nil {
			return Connect{}, err
		}
		c.WillTopic = topic
		body = body[n:]

		msg, n, err := readString8(body)
		if err != nil {
			return Connect{}, err
		}
		c.WillMessage = []byte(msg)
		body = body[n:]
	}
	if c.HasUsername {
		user, n, err := readString8(body)
		if err != nil {
			return Connect{}, err
		}
		c.Username = user
		body = body[n:]
	}
	if c.HasPassword {
		pass, n, err := readString8(body)
		if err != nil {
			return Connect{}, err
		}
		c.Password = []byte(pass)
		body = body[n:]
	}

	return c, nil
}
