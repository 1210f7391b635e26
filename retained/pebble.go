package retained

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleStore is an on-disk retained-log backend. Each topic's log is
// stored as a run of CBOR-encoded records keyed by an ever-increasing
// absolute sequence number; a per-topic base offset (the count of popped
// records) translates the Store interface's slice-relative indices into
// absolute keys. The per-topic sequence counters and base offsets are held
// in memory only: a newly opened store reports every topic as empty and
// does not read back records written by an earlier process, and new
// appends reuse keys from sequence 0.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
	base   map[string]int
	count  map[string]int
}

type PebbleStoreConfig struct {
	Path string
	Opts *pebble.Options
}

func NewPebbleStore(cfg PebbleStoreConfig) (*PebbleStore, error) {
	opts := cfg.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}
	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{
		db:    db,
		base:  make(map[string]int),
		count: make(map[string]int),
	}, nil
}

func recordKey(topic string, seq int) []byte {
	return []byte(fmt.Sprintf("retained:%s:%020d", topic, seq))
}

func (p *PebbleStore) Append(topic string, rec Record) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrStoreClosed
	}

	seq := p.count[topic]
	data, err := cbor.Marshal(rec)
	if err != nil {
		return 0, err
	}
	if err := p.db.Set(recordKey(topic, seq), data, pebble.Sync); err != nil {
		return 0, err
	}
	p.count[topic] = seq + 1
	return p.count[topic] - p.base[topic], nil
}

func (p *PebbleStore) Tail(topic string, from int) ([]Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrStoreClosed
	}
	length := p.count[topic] - p.base[topic]
	if from < 0 || from > length {
		return nil, ErrInvalidRange
	}

	out := make([]Record, 0, length-from)
	for seq := p.base[topic] + from; seq < p.count[topic]; seq++ {
		data, closer, err := p.db.Get(recordKey(topic, seq))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var rec Record
		err = cbor.Unmarshal(data, &rec)
		closer.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *PebbleStore) Len(topic string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrStoreClosed
	}
	return p.count[topic] - p.base[topic], nil
}

func (p *PebbleStore) GC(topic string, popCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStoreClosed
	}
	length := p.count[topic] - p.base[topic]
	if popCount < 0 || popCount > length {
		return ErrInvalidRange
	}
	base := p.base[topic]
	for seq := base; seq < base+popCount; seq++ {
		if err := p.db.Delete(recordKey(topic, seq), pebble.Sync); err != nil {
			return err
		}
	}
	p.base[topic] = base + popCount
	return nil
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStoreClosed
	}
	p.closed = true
	return p.db.Close()
}
