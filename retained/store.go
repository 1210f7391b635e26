// Package retained implements the broker's per-topic retained log: an
// ordered, append-only-at-the-tail sequence of PublishRecords with a
// bounded-growth GC that pops a prefix once every subscriber has already
// consumed it.
//
// The Store interface is intentionally index-relative: Tail and GC always
// operate in terms of the current slice, not an ever-increasing absolute
// sequence number. This mirrors the session registry's cursor_by_topic,
// which is likewise relative to the log's current shape and is shifted by
// exactly the GC'd prefix length (see broker.gcIfNeeded).
package retained

import "github.com/watchtower-mqtt/vigil/packet"

// Record is the unit stored in the retained log. Payload is kept encrypted
// exactly as it arrived on the wire; fanout and replay re-send those bytes
// unchanged, and decryption happens in packet.DecodePublish on whichever
// side decodes the frame.
type Record struct {
	Topic            string
	Dup              bool
	QoS              byte
	Retain           bool
	PacketID         *uint16
	EncryptedPayload []byte
	Timestamp        packet.Timestamp
}

// Store is the pluggable backend for the retained log. Implementations:
// MemoryStore (default, in-process), PebbleStore (on-disk), RedisStore
// (shared). Only MemoryStore is exercised by the broker engine's required
// invariants; the others are wired as alternate backends.
type Store interface {
	// Append adds rec to the tail of topic's log and returns the new
	// length.
	Append(topic string, rec Record) (int, error)
	// Tail returns every record at position >= from in topic's current
	// log, in order.
	Tail(topic string, from int) ([]Record, error)
	// Len returns the current length of topic's log.
	Len(topic string) (int, error)
	// GC removes the first popCount records from topic's log. Callers are
	// responsible for decrementing every subscribed session's cursor by
	// the same popCount.
	GC(topic string, popCount int) error
	// Close releases any resources held by the store.
	Close() error
}
