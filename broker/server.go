// Package broker implements the accept loop, per-connection reader/
// processor/writer trio, and the PUBLISH/SUBSCRIBE/PUBACK handling that
// together form the broker side of the protocol.
package broker

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/watchtower-mqtt/vigil/framing"
	"github.com/watchtower-mqtt/vigil/packet"
	"github.com/watchtower-mqtt/vigil/pkg/logger"
	"github.com/watchtower-mqtt/vigil/retained"
	"github.com/watchtower-mqtt/vigil/session"
)

const readCap = 32
const writeCap = 32

// Broker is a running MQTT-style broker instance.
type Broker struct {
	opts     *Options
	registry *session.Registry
	store    retained.Store
	auth     *Authenticator
	pool     *workerPool
	log      logger.Logger
	clock    *packet.Clock

	listener net.Listener
	logFile  *os.File

	quit  chan struct{}
	ready chan struct{}
}

// New builds a Broker from options but does not yet bind a listener; call
// Run to bind and serve.
func New(opts ...Option) (*Broker, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(o)
	}

	b := &Broker{
		opts:  o,
		store: o.Store,
		auth:  NewAuthenticator(),
		pool:  newWorkerPool(o.WorkerPoolSize),
		log:   o.Logger,
		clock: packet.NewClock(),
		quit:  make(chan struct{}),
		ready: make(chan struct{}),
	}
	if b.log == nil {
		b.log = logger.NewSlogLogger(0, os.Stdout)
	}
	b.registry = session.NewRegistry(b)

	if o.CredentialsPath != "" {
		if err := b.auth.LoadCredentialsFile(o.CredentialsPath); err != nil {
			return nil, err
		}
	}
	b.auth.SetAllowAnonymous(o.AllowAnonymous)

	if o.LogPath != "" {
		f, err := os.Create(o.LogPath)
		if err != nil {
			return nil, fmt.Errorf("broker: truncate log file: %w", err)
		}
		b.logFile = f
		if o.Logger == nil {
			b.log = logger.NewSlogLogger(0, io.MultiWriter(os.Stdout, f))
		}
	}

	return b, nil
}

// Run binds the listen address and serves until Close is called or the
// listener errors out. It returns nil only after a clean Close.
func (b *Broker) Run() error {
	var l net.Listener
	var err error
	if b.opts.TLSConfig != nil {
		l, err = tlsListen(b.opts.Addr, b.opts.TLSConfig)
	} else {
		l, err = net.Listen("tcp", b.opts.Addr)
	}
	if err != nil {
		return fmt.Errorf("broker: listen %s: %w", b.opts.Addr, err)
	}
	b.listener = l
	close(b.ready)
	b.log.Info("broker listening", "addr", l.Addr().String())

	retryDelay := b.opts.AcceptRetryDelay
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-b.quit:
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(retryDelay)
				if retryDelay < time.Second {
					retryDelay *= 2
				}
				continue
			}
			return fmt.Errorf("broker: accept: %w", err)
		}
		retryDelay = b.opts.AcceptRetryDelay
		if b.opts.Metrics != nil {
			b.opts.Metrics.ActiveConnections.Inc()
		}
		go b.handleConnection(conn)
	}
}

// Addr blocks until the listener is bound and returns its address. Mainly
// useful in tests that bind to ":0" and need the OS-assigned port.
func (b *Broker) Addr() net.Addr {
	<-b.ready
	return b.listener.Addr()
}

// Close stops the accept loop and closes the listener. In-flight
// connections are left to wind down on their own (EOF or DISCONNECT).
func (b *Broker) Close() error {
	close(b.quit)
	var err error
	if b.listener != nil {
		err = b.listener.Close()
	}
	b.pool.Close()
	if b.logFile != nil {
		b.logFile.Close()
	}
	return err
}

// validateConnect checks CONNECT well-formedness independent of
// credentials, mirroring original_source's split between a validator and
// an authenticator stage (see SPEC_FULL.md Â§12).
func validateConnect(c packet.Connect) error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: empty client id", ErrNotConnect)
	}
	return nil
}

func (b *Broker) handleConnection(conn net.Conn) {
	defer conn.Close()

	fh, err := framing.ReadFixedHeader(conn)
	if err != nil {
		b.log.Warn("connect: failed to read first packet", "err", err)
		return
	}
	if fh.Type != packet.TypeConnect {
		b.log.Warn("connect: first packet was not CONNECT", "type", fh.Type.String())
		return
	}
	body, err := framing.ReadWholeMessage(conn, fh)
	if err != nil {
		b.log.Warn("connect: short read", "err", err)
		return
	}
	connect, err := packet.DecodeConnect(body)
	if err != nil {
		b.log.Warn("connect: decode failed", "err", err)
		return
	}
	if err := validateConnect(connect); err != nil {
		b.log.Warn("connect: invalid", "err", err)
		return
	}

	rc := b.auth.Authenticate(connect)
	ack := packet.Connack{ReturnCode: rc}
	if frame, encErr := ack.Encode(); encErr == nil {
		framing.WriteMessage(conn, frame)
	}
	if rc != packet.ConnectAccepted {
		b.log.Warn("connect: auth rejected", "client_id", connect.ClientID, "code", rc)
		return
	}

	outcome, sess, incumbent := b.registry.ManagePossibleReconnectingOrDuplicate(connect.ClientID, conn)
	switch outcome {
	case session.OutcomeNewUser:
		sess = b.registry.AddNewUser(conn, connect.ClientID, connect)
	case session.OutcomeDuplicate:
		b.log.Info("connect: duplicate client id, evicting incumbent", "client_id", connect.ClientID)
		if d, encErr := (packet.Disconnect{}).Encode(); encErr == nil && incumbent != nil {
			incumbent.SendFrame(d)
		}
		// A duplicate is not a reconnection: the new connection gets a
		// fresh session, not the incumbent's carried-over subscriptions,
		// cursors, or will.
		sess = b.registry.AddNewUser(conn, connect.ClientID, connect)
	case session.OutcomeReconnect:
		b.log.Info("connect: reconnection", "client_id", connect.ClientID)
	}

	writeCh := make(chan []byte, writeCap)
	readCh := make(chan inboundPacket, readCap)
	sess.SetWriteCh(writeCh)

	go b.writerLoop(conn, writeCh)
	go b.processorLoop(sess, readCh, writeCh)

	if outcome == session.OutcomeReconnect {
		for _, topic := range sess.Topics() {
			b.replay(sess, topic)
		}
	}

	b.readerLoop(conn, sess, readCh)
	close(readCh)
}

type inboundPacket struct {
	fh   packet.FixedHeader
	body []byte
}

func (b *Broker) readerLoop(conn net.Conn, sess *session.Session, readCh chan<- inboundPacket) {
	clientID := sess.ClientID()
	for {
		fh, err := framing.ReadFixedHeader(conn)
		if err != nil {
			b.log.Info("reader: connection ended", "client_id", clientID, "err", err)
			b.onTerminalDisconnect(sess, false)
			return
		}
		body, err := framing.ReadWholeMessage(conn, fh)
		if err != nil {
			b.log.Warn("reader: short read, treating as disconnect", "client_id", clientID, "err", err)
			b.onTerminalDisconnect(sess, false)
			return
		}
		if b.opts.Metrics != nil {
			b.opts.Metrics.PacketsReceived.Inc()
			b.opts.Metrics.BytesReceived.Add(float64(2 + len(body)))
		}

		if fh.Type == packet.TypeDisconnect {
			b.onTerminalDisconnect(sess, true)
			return
		}

		readCh <- inboundPacket{fh: fh, body: body}
	}
}

// onTerminalDisconnect runs the will-publish + state-transition path
// shared by both EOF (unclean) and DISCONNECT (clean) termination. It
// operates on sess directly rather than re-resolving clientID through the
// registry, so a connection that has been evicted by a duplicate CONNECT
// can never clobber the session that replaced it.
func (b *Broker) onTerminalDisconnect(sess *session.Session, clean bool) {
	clientID := sess.ClientID()
	if err := b.registry.PublishUsersWillMessage(sess); err != nil {
		b.log.Warn("disconnect: will publish failed", "client_id", clientID, "err", err)
	}
	if clean {
		b.registry.RemoveUser(sess)
	} else {
		b.registry.SetTemporarilyDisconnected(sess)
	}
}

// processorLoop dispatches each decoded packet to the shared worker pool
// and owns writeCh's lifetime: it closes writeCh only after readCh has
// drained AND every job it submitted has returned, so no pool worker can
// ever send on a closed channel.
func (b *Broker) processorLoop(sess *session.Session, readCh <-chan inboundPacket, writeCh chan []byte) {
	var wg sync.WaitGroup
	for pkt := range readCh {
		pkt := pkt
		wg.Add(1)
		if err := b.pool.Submit(func() {
			defer wg.Done()
			b.handlePacket(sess, pkt)
		}); err != nil {
			b.log.Warn("processor: submit failed, dropping packet", "client_id", sess.ClientID(), "err", err)
			wg.Done()
		}
	}
	wg.Wait()
	sess.CloseWriteCh(writeCh)
}

func (b *Broker) writerLoop(conn net.Conn, writeCh <-chan []byte) {
	for frame := range writeCh {
		if err := framing.WriteMessage(conn, frame); err != nil {
			b.log.Warn("writer: write failed", "err", err)
			return
		}
		if b.opts.Metrics != nil {
			b.opts.Metrics.PacketsSent.Inc()
			b.opts.Metrics.BytesSent.Add(float64(len(frame)))
		}
	}
}

func (b *Broker) handlePacket(sess *session.Session, pkt inboundPacket) {
	switch pkt.fh.Type {
	case packet.TypePublish:
		pub, err := packet.DecodePublish(pkt.fh, pkt.body)
		if err != nil {
			b.log.Warn("publish: decode failed", "err", err)
			return
		}
		if pub.QoS > 0 && pub.PacketID != nil {
			ack := packet.Puback{PacketID: *pub.PacketID}
			if frame, encErr := ack.Encode(); encErr == nil {
				sess.SendFrame(frame)
			}
		}
		b.appendAndFanout(retained.Record{
			Topic:            pub.Topic,
			Dup:              pub.Dup,
			QoS:              pub.QoS,
			Retain:           pub.Retain,
			PacketID:         pub.PacketID,
			EncryptedPayload: pub.EncryptedPayload,
			Timestamp:        pub.Timestamp,
		})

	case packet.TypeSubscribe:
		sub, err := packet.DecodeSubscribe(pkt.body)
		if err != nil {
			b.log.Warn("subscribe: decode failed", "err", err)
			return
		}
		codes, err := b.registry.AddTopics(sess.ClientID(), sub.Topics)
		if err != nil {
			b.log.Warn("subscribe: registry error", "err", err)
			return
		}
		ack := packet.Suback{PacketID: sub.PacketID, ReturnCodes: codes}
		if frame, encErr := ack.Encode(); encErr == nil {
			sess.SendFrame(frame)
		}
		for _, t := range sub.Topics {
			b.replay(sess, t.Topic)
		}

	case packet.TypePuback:
		ack, err := packet.DecodePuback(pkt.body)
		if err != nil {
			b.log.Warn("puback: decode failed", "err", err)
			return
		}
		b.log.Debug("puback received", "client_id", sess.ClientID(), "packet_id", ack.PacketID)

	default:
		b.log.Warn("unexpected packet type from client", "type", pkt.fh.Type.String())
	}
}

// appendAndFanout appends rec to the retained log, delivers it to every
// currently-Active subscriber, advances their cursors, and runs GC if the
// topic has grown past the threshold.
func (b *Broker) appendAndFanout(rec retained.Record) {
	length, err := b.store.Append(rec.Topic, rec)
	if err != nil {
		b.log.Error("retained: append failed", "topic", rec.Topic, "err", err)
		return
	}

	frame, err := encodeRecord(rec)
	if err != nil {
		b.log.Error("retained: re-encode failed", "topic", rec.Topic, "err", err)
		return
	}

	for _, sub := range b.registry.Subscribers(rec.Topic) {
		if sub.State() != session.StateActive {
			continue
		}
		if !sub.SendFrame(frame) {
			b.log.Warn("fanout: no live write channel", "client_id", sub.ClientID())
			continue
		}
		sub.SetCursor(rec.Topic, length)
	}

	b.gcIfNeeded(rec.Topic)
}

// gcIfNeeded pops the GC'd prefix off the store and shifts every
// subscriber's cursor by the same amount, preserving the
// next-message-to-deliver invariant.
func (b *Broker) gcIfNeeded(topic string) {
	length, err := b.store.Len(topic)
	if err != nil || length <= b.opts.GCThreshold {
		return
	}

	subs := b.registry.Subscribers(topic)
	minCursor := -1
	for _, s := range subs {
		c := s.Cursor(topic)
		if minCursor == -1 || c < minCursor {
			minCursor = c
		}
	}
	if minCursor <= 0 {
		return
	}

	if err := b.store.GC(topic, minCursor); err != nil {
		b.log.Error("retained: gc failed", "topic", topic, "err", err)
		return
	}
	for _, s := range subs {
		s.ShiftCursor(topic, minCursor)
	}
	if b.opts.Metrics != nil {
		b.opts.Metrics.GCSweeps.Inc()
	}
}

// replay sends every record the session hasn't seen yet for topic,
// advancing its cursor as each is sent. Used on SUBSCRIBE and on
// reconnection.
func (b *Broker) replay(sess *session.Session, topic string) {
	cursor := sess.Cursor(topic)
	tail, err := b.store.Tail(topic, cursor)
	if err != nil {
		b.log.Warn("replay: tail failed", "topic", topic, "err", err)
		return
	}
	for _, rec := range tail {
		frame, err := encodeRecord(rec)
		if err != nil {
			b.log.Warn("replay: encode failed", "topic", topic, "err", err)
			continue
		}
		if !sess.SendFrame(frame) {
			b.log.Warn("replay: no live write channel", "client_id", sess.ClientID())
			return
		}
		cursor++
		sess.SetCursor(topic, cursor)
	}
}

// encodeRecord re-wraps a stored retained.Record as a wire PUBLISH frame
// without touching its already-encrypted payload bytes.
func encodeRecord(rec retained.Record) ([]byte, error) {
	pub := packet.Publish{
		Topic:            rec.Topic,
		Dup:              rec.Dup,
		QoS:              rec.QoS,
		Retain:           rec.Retain,
		PacketID:         rec.PacketID,
		EncryptedPayload: rec.EncryptedPayload,
		Timestamp:        rec.Timestamp,
	}
	return pub.EncodeRaw()
}

// PublishWill implements session.WillPublisher: it builds a PUBLISH from
// the stored will and feeds it into the same append+fanout path a
// client-originated PUBLISH takes.
func (b *Broker) PublishWill(clientID string, w *session.Will) error {
	var packetID *uint16
	if w.QoS > 0 {
		id := uint16(1)
		packetID = &id
	}
	cipherBytes, err := packet.EncryptPayload(w.Content)
	if err != nil {
		return fmt.Errorf("broker: encrypt will payload: %w", err)
	}
	b.appendAndFanout(retained.Record{
		Topic:            w.Topic,
		QoS:              w.QoS,
		Retain:           w.Retain,
		PacketID:         packetID,
		EncryptedPayload: cipherBytes,
		Timestamp:        b.clock.Next(),
	})
	return nil
}
