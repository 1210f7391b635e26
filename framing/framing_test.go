package framing

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watchtower-mqtt/vigil/packet"
)

func TestReadFixedHeaderEOFOnCleanClose(t *testing.T) {
	_, err := ReadFixedHeader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFixedHeaderShortRead(t *testing.T) {
	_, err := ReadFixedHeader(bytes.NewReader([]byte{0x10}))
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReadWholeMessageRoundTrip(t *testing.T) {
	d := packet.Disconnect{}
	frame, err := d.Encode()
	require.NoError(t, err)

	c := packet.Connack{ReturnCode: packet.ConnectAccepted}
	cframe, err := c.Encode()
	require.NoError(t, err)

	stream := bytes.NewBuffer(append(append([]byte{}, frame...), cframe...))

	fh, err := ReadFixedHeader(stream)
	require.NoError(t, err)
	body, err := ReadWholeMessage(stream, fh)
	require.NoError(t, err)
	assert.Empty(t, body)

	fh2, err := ReadFixedHeader(stream)
	require.NoError(t, err)
	body2, err := ReadWholeMessage(stream, fh2)
	require.NoError(t, err)
	assert.Len(t, body2, 2)
}

func TestReadWholeMessageShortRead(t *testing.T) {
	fh := packet.FixedHeader{Type: packet.TypeConnack, RemainingLength: 2}
	_, err := ReadWholeMessage(bytes.NewReader([]byte{0x01}), fh)
	assert.ErrorIs(t, err, ErrShortRead)
}

type sliceWriter struct {
	max   int
	total []byte
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	n := len(p)
	if s.max > 0 && n > s.max {
		n = s.max
	}
	s.total = append(s.total, p[:n]...)
	return n, nil
}

func TestWriteMessageRetriesPartialWrites(t *testing.T) {
	w := &sliceWriter{max: 1}
	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, WriteMessage(w, payload))
	assert.Equal(t, payload, w.total)
}
