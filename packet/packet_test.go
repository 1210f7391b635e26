package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRoundTrip(t *testing.T) {
	pass := []byte("s3cret")
	c := Connect{
		ClientID:     "client-1",
		CleanSession: true,
		HasWill:      true,
		WillTopic:    "status",
		WillMessage:  []byte("down"),
		WillQoS:      1,
		WillRetain:   true,
		HasUsername:  true,
		Username:     "alice",
		HasPassword:  true,
		Password:     pass,
	}

	raw, err := c.Encode()
	require.NoError(t, err)

	fh, err := ParseFixedHeaderFromBytes([2]byte{raw[0], raw[1]})
	require.NoError(t, err)
	assert.Equal(t, TypeConnect, fh.Type)

	got, err := DecodeConnect(raw[2:])
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestConnackRoundTrip(t *testing.T) {
	for _, rc := range []ConnectReturnCode{ConnectAccepted, ConnectNotAuthorized} {
		ack := Connack{SessionPresent: rc == ConnectAccepted, ReturnCode: rc}
		raw, err := ack.Encode()
		require.NoError(t, err)
		got, err := DecodeConnack(raw[2:])
		require.NoError(t, err)
		assert.Equal(t, ack, got)
	}
}

func TestPublishRoundTripEncryptedBytes(t *testing.T) {
	id := uint16(7)
	ts := NewTimestamp(123456789)
	p, err := NewPublish("T", []byte("hello"), 1, false, false, &id, ts)
	require.NoError(t, err)

	raw, err := p.Encode()
	require.NoError(t, err)

	fh, err := ParseFixedHeaderFromBytes([2]byte{raw[0], raw[1]})
	require.NoError(t, err)
	assert.Equal(t, TypePublish, fh.Type)

	got, err := DecodePublish(fh, raw[2:])
	require.NoError(t, err)

	// Invariant 1: equality holds over the encrypted payload + timestamp.
	assert.Equal(t, p.Topic, got.Topic)
	assert.Equal(t, *p.PacketID, *got.PacketID)
	assert.Equal(t, p.Timestamp, got.Timestamp)
	wantCipher, err := EncryptPayload(p.Payload)
	require.NoError(t, err)
	assert.Equal(t, wantCipher, got.EncryptedPayload)

	// And separately, the decoded application payload round-trips.
	assert.Equal(t, p.Payload, got.Payload)
}

func TestPublishQoSPacketIDCoupling(t *testing.T) {
	id := uint16(1)

	_, err := NewPublish("T", []byte("x"), 0, false, false, &id, NewTimestamp(1))
	assert.ErrorIs(t, err, ErrInvalidFlagCombo)

	_, err = NewPublish("T", []byte("x"), 1, false, false, nil, NewTimestamp(1))
	assert.ErrorIs(t, err, ErrInvalidFlagCombo)

	_, err = NewPublish("T", []byte("x"), 3, false, false, &id, NewTimestamp(1))
	assert.ErrorIs(t, err, ErrInvalidFlagCombo)
}

func TestPubackRoundTrip(t *testing.T) {
	rc := byte(0x10)
	p := Puback{PacketID: 42, ReasonCode: &rc}
	raw, err := p.Encode()
	require.NoError(t, err)
	got, err := DecodePuback(raw[2:])
	require.NoError(t, err)
	assert.Equal(t, p, got)

	p2 := Puback{PacketID: 42}
	raw2, err := p2.Encode()
	require.NoError(t, err)
	got2, err := DecodePuback(raw2[2:])
	require.NoError(t, err)
	assert.Equal(t, p2, got2)
}

func TestSubscribeSubackRoundTrip(t *testing.T) {
	sub := Subscribe{
		PacketID: 5,
		Topics: []SubscribeTopic{
			{Topic: "a", QoS: 0},
			{Topic: "b", QoS: 1},
		},
	}
	raw, err := sub.Encode()
	require.NoError(t, err)

	fh, err := ParseFixedHeaderFromBytes([2]byte{raw[0], raw[1]})
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), fh.Flags)

	got, err := DecodeSubscribe(raw[2:])
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	ack := Suback{PacketID: 5, ReturnCodes: []SubackCode{SubackQoS1, SubackQoS1}}
	rawAck, err := ack.Encode()
	require.NoError(t, err)
	gotAck, err := DecodeSuback(rawAck[2:])
	require.NoError(t, err)
	assert.Equal(t, ack, gotAck)
}

func TestDisconnectRoundTrip(t *testing.T) {
	raw, err := Disconnect{}.Encode()
	require.NoError(t, err)
	assert.Len(t, raw, 2)
	_, err = DecodeDisconnect(nil)
	assert.NoError(t, err)
}

func TestFixedHeaderRejectsBadType(t *testing.T) {
	_, err := ParseFixedHeaderFromBytes([2]byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrBadPacketType)
}

func TestFixedHeaderRejectsBadSubscribeFlags(t *testing.T) {
	_, err := ParseFixedHeaderFromBytes([2]byte{byte(TypeSubscribe) << 4, 0x00})
	assert.ErrorIs(t, err, ErrInvalidFlagCombo)
}

func TestClockStrictlyIncreasing(t *testing.T) {
	clock := NewClock()
	prev := clock.Next()
	for i := 0; i < 1000; i++ {
		next := clock.Next()
		assert.Greater(t, next.Nanos(), prev.Nanos())
		prev = next
	}
}
