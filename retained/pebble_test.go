package retained

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(PebbleStoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPebbleStoreAppendTailLen(t *testing.T) {
	s := newTestPebbleStore(t)
	appendN(t, s, "T", 3)

	l, err := s.Len("T")
	require.NoError(t, err)
	assert.Equal(t, 3, l)

	tail, err := s.Tail("T", 1)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

func TestPebbleStoreRoundTripsRecordFields(t *testing.T) {
	s := newTestPebbleStore(t)
	id := uint16(7)
	rec := Record{
		Topic:            "T",
		Dup:              true,
		QoS:              1,
		Retain:           true,
		PacketID:         &id,
		EncryptedPayload: []byte("cipher-bytes"),
		Timestamp:        ts(42),
	}
	_, err := s.Append("T", rec)
	require.NoError(t, err)

	got, err := s.Tail("T", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.Topic, got[0].Topic)
	assert.Equal(t, rec.Dup, got[0].Dup)
	assert.Equal(t, rec.QoS, got[0].QoS)
	assert.Equal(t, rec.Retain, got[0].Retain)
	require.NotNil(t, got[0].PacketID)
	assert.Equal(t, *rec.PacketID, *got[0].PacketID)
	assert.Equal(t, rec.EncryptedPayload, got[0].EncryptedPayload)
	assert.Equal(t, rec.Timestamp, got[0].Timestamp)
}

func TestPebbleStoreGC(t *testing.T) {
	s := newTestPebbleStore(t)
	for i := 0; i < 12; i++ {
		_, err := s.Append("T", Record{Topic: "T", Timestamp: ts(i)})
		require.NoError(t, err)
	}

	before, err := s.Tail("T", 5)
	require.NoError(t, err)

	require.NoError(t, s.GC("T", 5))

	l, err := s.Len("T")
	require.NoError(t, err)
	assert.Equal(t, 7, l)

	after, err := s.Tail("T", 0)
	require.NoError(t, err)
	assert.Equal(t, before[0], after[0])
}

func TestPebbleStoreGCRejectsOutOfRangePop(t *testing.T) {
	s := newTestPebbleStore(t)
	appendN(t, s, "T", 2)
	assert.ErrorIs(t, s.GC("T", 3), ErrInvalidRange)
}

func TestPebbleStoreTailRejectsOutOfRange(t *testing.T) {
	s := newTestPebbleStore(t)
	appendN(t, s, "T", 2)
	_, err := s.Tail("T", 5)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPebbleStoreRejectsUseAfterClose(t *testing.T) {
	s, err := NewPebbleStore(PebbleStoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Append("T", Record{Topic: "T"})
	assert.ErrorIs(t, err, ErrStoreClosed)

	assert.ErrorIs(t, s.Close(), ErrStoreClosed)
}
