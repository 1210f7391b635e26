package packet

import (
	"encoding/binary"
	"sync"
	"time"
)

// Timestamp is the 128-bit big-endian nanoseconds-since-epoch field carried
// on every PUBLISH. Only the low 64 bits are populated (Go has no native
// int128 and nanosecond epoch values fit comfortably in 64 bits until the
// year 2262); the high 8 bytes are reserved/zero, matching the wire width
// the spec requires.
type Timestamp [16]byte

// NewTimestamp packs a nanosecond epoch value into the wire's 128-bit field.
func NewTimestamp(nanos uint64) Timestamp {
	var ts Timestamp
	binary.BigEndian.PutUint64(ts[8:], nanos)
	return ts
}

// Nanos extracts the low 64 bits back out.
func (t Timestamp) Nanos() uint64 {
	return binary.BigEndian.Uint64(t[8:])
}

// Clock assigns strictly increasing timestamps for a single publisher.
// Encoding happens on the publishing side; the broker treats the field as
// opaque. A publisher may emit two PUBLISH packets within the same
// nanosecond, so Next guards against a non-increasing wall-clock read by
// bumping the previous value by one.
type Clock struct {
	mu   sync.Mutex
	last uint64
}

// NewClock returns a Clock ready to assign timestamps for one publisher.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next timestamp for this publisher, guaranteed strictly
// greater than every previous value returned by this Clock.
func (c *Clock) Next() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := uint64(time.Now().UnixNano())
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return NewTimestamp(now)
}
