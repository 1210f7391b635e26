// Package framing wraps the raw stream read/write path around a
// packet.FixedHeader: reading exactly two header bytes, then exactly the
// declared remaining-length bytes, and writing a frame with retry-to-
// completion semantics on partial writes.
package framing

import (
	"errors"
	"io"

	"github.com/watchtower-mqtt/vigil/packet"
)

// ReadFixedHeader reads exactly two bytes from r and parses them. It
// returns io.EOF unmodified when the peer closed cleanly before any bytes
// were read (the "None" case in the spec); any other short read is
// reported as ErrShortRead.
func ReadFixedHeader(r io.Reader) (packet.FixedHeader, error) {
	var b [2]byte
	n, err := io.ReadFull(r, b[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return packet.FixedHeader{}, io.EOF
		}
		return packet.FixedHeader{}, errors.Join(ErrShortRead, err)
	}
	return packet.ParseFixedHeaderFromBytes(b)
}

// ReadWholeMessage reads exactly fh.RemainingLength further bytes. If the
// stream yields fewer bytes it returns ErrShortRead rather than a
// truncated slice.
func ReadWholeMessage(r io.Reader, fh packet.FixedHeader) ([]byte, error) {
	if fh.RemainingLength == 0 {
		return nil, nil
	}
	buf := make([]byte, fh.RemainingLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Join(ErrShortRead, err)
	}
	return buf, nil
}

// WriteMessage writes the whole frame to w, retrying partial writes to
// completion.
func WriteMessage(w io.Writer, frame []byte) error {
	for len(frame) > 0 {
		n, err := w.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}
