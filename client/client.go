// Package client implements the connector/reader/writer trio that mirrors
// the broker's concurrency model on the application side: one dedicated
// reader goroutine, and a synchronous writer API called directly by the
// application goroutine (see spec's "one thread is the reader, the
// application thread acts as the writer").
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/watchtower-mqtt/vigil/framing"
	"github.com/watchtower-mqtt/vigil/packet"
)

const (
	connackTimeout  = 1 * time.Second
	maxConnectTries = 6 // 1 initial + 5 retries, per the connect retry bound invariant
)

// Client is a connected MQTT-style client. Zero value is not usable; build
// one with Connect.
type Client struct {
	conn     net.Conn
	clientID string

	writeMu sync.Mutex

	idMu   sync.Mutex
	nextID uint16

	clock *packet.Clock

	// Messages delivers decoded PUBLISH records to the application. It is
	// closed when the reader goroutine terminates, for any reason.
	Messages chan packet.Publish

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect dials addr, performs the CONNECT/CONNACK handshake with bounded
// retransmission, and starts the reader goroutine on success.
func Connect(addr string, connect packet.Connect) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	frame, err := connect.Encode()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: encode connect: %w", err)
	}

	ack, err := connectWithRetry(conn, frame)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	if ack.ReturnCode != packet.ConnectAccepted {
		conn.Close()
		return nil, fmt.Errorf("%w: code=%v", ErrRejected, ack.ReturnCode)
	}

	c := &Client{
		conn:     conn,
		clientID: connect.ClientID,
		nextID:   1,
		clock:    packet.NewClock(),
		Messages: make(chan packet.Publish, 32),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// connectWithRetry writes frame, then waits up to connackTimeout for a
// CONNACK, retransmitting frame on timeout until maxConnectTries total
// attempts have been made.
func connectWithRetry(conn net.Conn, frame []byte) (packet.Connack, error) {
	for attempt := 0; attempt < maxConnectTries; attempt++ {
		if err := framing.WriteMessage(conn, frame); err != nil {
			return packet.Connack{}, fmt.Errorf("client: write connect: %w", err)
		}

		conn.SetReadDeadline(time.Now().Add(connackTimeout))
		fh, err := framing.ReadFixedHeader(conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return packet.Connack{}, fmt.Errorf("client: read connack: %w", err)
		}
		if fh.Type != packet.TypeConnack {
			return packet.Connack{}, ErrNotConnack
		}
		body, err := framing.ReadWholeMessage(conn, fh)
		if err != nil {
			return packet.Connack{}, fmt.Errorf("client: read connack body: %w", err)
		}
		return packet.DecodeConnack(body)
	}
	return packet.Connack{}, ErrRetryExhausted
}

// nextPacketID allocates a monotonically increasing, non-zero packet
// identifier. The counter is reset to 1 on every new Client instance, per
// the reference's per-instance reset behavior; callers must not reuse an
// id before its ack arrives.
func (c *Client) nextPacketID() uint16 {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	id := c.nextID
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	return id
}

func (c *Client) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	return framing.WriteMessage(c.conn, frame)
}

// Publish sends a PUBLISH with the given topic/payload/qos, allocating a
// packet id when qos > 0.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	var packetID *uint16
	if qos > 0 {
		id := c.nextPacketID()
		packetID = &id
	}
	pub, err := packet.NewPublish(topic, payload, qos, retain, false, packetID, c.clock.Next())
	if err != nil {
		return err
	}
	frame, err := pub.Encode()
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// Subscribe sends a SUBSCRIBE for the given topics, each with the
// requested QoS. The broker may grant a different QoS; its SUBACK is
// discarded by the reader goroutine, so the granted QoS is not surfaced.
func (c *Client) Subscribe(topics []packet.SubscribeTopic) error {
	sub := packet.Subscribe{PacketID: c.nextPacketID(), Topics: topics}
	frame, err := sub.Encode()
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// Disconnect sends DISCONNECT and closes the underlying connection.
func (c *Client) Disconnect() error {
	frame, err := (packet.Disconnect{}).Encode()
	if err != nil {
		return err
	}
	err = c.writeFrame(frame)
	c.shutdown()
	return err
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// readLoop is the dedicated reader goroutine: it reads fixed header then
// the rest, sends PUBACK inline for inbound PUBLISH and forwards it on
// Messages, and exits on DISCONNECT or transport error, closing Messages
// either way. CONNACK/PUBACK/SUBACK are read and discarded; the client has
// no logger, so they are not logged or surfaced to callers.
func (c *Client) readLoop() {
	defer close(c.Messages)
	defer c.shutdown()

	for {
		fh, err := framing.ReadFixedHeader(c.conn)
		if err != nil {
			return
		}
		body, err := framing.ReadWholeMessage(c.conn, fh)
		if err != nil {
			return
		}

		switch fh.Type {
		case packet.TypePublish:
			pub, err := packet.DecodePublish(fh, body)
			if err != nil {
				continue
			}
			if pub.QoS > 0 && pub.PacketID != nil {
				ack := packet.Puback{PacketID: *pub.PacketID}
				if frame, encErr := ack.Encode(); encErr == nil {
					c.writeFrame(frame)
				}
			}
			c.Messages <- pub

		case packet.TypeDisconnect:
			return

		case packet.TypeConnack, packet.TypePuback, packet.TypeSuback:
			// Acknowledgement/administrative packets arriving after the
			// handshake are discarded without further action.

		default:
			// Unexpected packet type from the broker; ignore and keep
			// reading rather than tearing down the connection.
		}
	}
}
