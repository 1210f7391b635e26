package client

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watchtower-mqtt/vigil/framing"
	"github.com/watchtower-mqtt/vigil/packet"
)

// fakeBroker accepts exactly one connection and runs fn against it.
func fakeBroker(t *testing.T, fn func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestConnectHappyPath(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn) {
		fh, err := framing.ReadFixedHeader(conn)
		require.NoError(t, err)
		require.Equal(t, packet.TypeConnect, fh.Type)
		_, err = framing.ReadWholeMessage(conn, fh)
		require.NoError(t, err)

		ack := packet.Connack{ReturnCode: packet.ConnectAccepted}
		frame, err := ack.Encode()
		require.NoError(t, err)
		require.NoError(t, framing.WriteMessage(conn, frame))

		time.Sleep(50 * time.Millisecond)
	})

	c, err := Connect(addr, packet.Connect{ClientID: "a", CleanSession: true})
	require.NoError(t, err)
	defer c.Disconnect()
}

// TestConnectRetryBound exercises invariant 6: a broker that never
// responds forces exactly maxConnectTries CONNECT writes before
// RetryExhausted.
func TestConnectRetryBound(t *testing.T) {
	attempts := 0
	addr := fakeBroker(t, func(conn net.Conn) {
		for {
			fh, err := framing.ReadFixedHeader(conn)
			if err != nil {
				return
			}
			if _, err := framing.ReadWholeMessage(conn, fh); err != nil {
				return
			}
			attempts++
			// Never reply; let the client's read deadline expire and retry.
		}
	})

	_, err := Connect(addr, packet.Connect{ClientID: "a", CleanSession: true})
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, maxConnectTries, attempts)
}

func TestConnectRejected(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn) {
		fh, err := framing.ReadFixedHeader(conn)
		require.NoError(t, err)
		_, err = framing.ReadWholeMessage(conn, fh)
		require.NoError(t, err)

		ack := packet.Connack{ReturnCode: packet.ConnectNotAuthorized}
		frame, err := ack.Encode()
		require.NoError(t, err)
		require.NoError(t, framing.WriteMessage(conn, frame))
	})

	_, err := Connect(addr, packet.Connect{ClientID: "a", CleanSession: true})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestReaderDeliversPublishAndSendsPuback(t *testing.T) {
	pubackCh := make(chan packet.Puback, 1)
	addr := fakeBroker(t, func(conn net.Conn) {
		fh, err := framing.ReadFixedHeader(conn)
		require.NoError(t, err)
		_, err = framing.ReadWholeMessage(conn, fh)
		require.NoError(t, err)

		ack := packet.Connack{ReturnCode: packet.ConnectAccepted}
		frame, err := ack.Encode()
		require.NoError(t, err)
		require.NoError(t, framing.WriteMessage(conn, frame))

		id := uint16(7)
		pub, err := packet.NewPublish("T", []byte("hi"), 1, false, false, &id, packet.NewTimestamp(1))
		require.NoError(t, err)
		pframe, err := pub.Encode()
		require.NoError(t, err)
		require.NoError(t, framing.WriteMessage(conn, pframe))

		fh2, err := framing.ReadFixedHeader(conn)
		require.NoError(t, err)
		require.Equal(t, packet.TypePuback, fh2.Type)
		body, err := framing.ReadWholeMessage(conn, fh2)
		require.NoError(t, err)
		ackBack, err := packet.DecodePuback(body)
		require.NoError(t, err)
		pubackCh <- ackBack
	})

	c, err := Connect(addr, packet.Connect{ClientID: "a", CleanSession: true})
	require.NoError(t, err)
	defer c.Disconnect()

	select {
	case got := <-c.Messages:
		assert.Equal(t, "T", got.Topic)
		assert.Equal(t, []byte("hi"), got.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PUBLISH")
	}

	select {
	case ack := <-pubackCh:
		assert.EqualValues(t, 7, ack.PacketID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PUBACK")
	}
}

func TestPacketIDAllocatorMonotonic(t *testing.T) {
	c := &Client{nextID: 1}
	ids := make(map[uint16]bool)
	var prev uint16
	for i := 0; i < 10; i++ {
		id := c.nextPacketID()
		assert.False(t, ids[id], "packet id reused: %d", id)
		assert.Greater(t, id, prev)
		ids[id] = true
		prev = id
	}
}
