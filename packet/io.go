package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// writeString8 writes a single-byte length prefix followed by s, as used by
// the CONNECT payload fields.
func writeString8(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("%w: string %q exceeds 255 bytes", ErrBadLength, s)
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

// readString8 reads a single-byte length-prefixed string from b, returning
// the decoded string and the number of bytes consumed.
func readString8(b []byte) (string, int, error) {
	if len(b) < 1 {
		return "", 0, fmt.Errorf("%w: missing length byte", ErrShortRead)
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", 0, fmt.Errorf("%w: want %d bytes, have %d", ErrShortRead, n, len(b)-1)
	}
	s := string(b[1 : 1+n])
	if !utf8.ValidString(s) {
		return "", 0, ErrBadUTF8
	}
	return s, 1 + n, nil
}

// writeString16 writes a two-byte big-endian length prefix followed by s,
// as used by the PUBLISH topic and SUBSCRIBE topic entries.
func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > 0xffff {
		return fmt.Errorf("%w: string %q exceeds 65535 bytes", ErrBadLength, s)
	}
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(s)))
	buf.Write(lb[:])
	buf.WriteString(s)
	return nil
}

func readString16(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, fmt.Errorf("%w: missing length prefix", ErrShortRead)
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) < 2+n {
		return "", 0, fmt.Errorf("%w: want %d bytes, have %d", ErrShortRead, n, len(b)-2)
	}
	s := string(b[2 : 2+n])
	if !utf8.ValidString(s) {
		return "", 0, ErrBadUTF8
	}
	return s, 2 + n, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: need 2 bytes", ErrShortRead)
	}
	return binary.BigEndian.Uint16(b[:2]), nil
}
