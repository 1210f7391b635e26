package packet

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"fmt"
)

// payloadKey and payloadIV are the compile-time fixed 3DES key/IV used to
// obscure PUBLISH payloads on the wire. This is a known-weak, reused-IV
// construction kept only for wire compatibility with the reference
// implementation; see SPEC_FULL.md §9 for the acknowledgement.
var (
	payloadKey = [24]byte{0x3a, 0x91, 0xc4, 0x5e, 0x0d, 0x7b, 0x22, 0xf8,
		0x64, 0x1a, 0xae, 0x90, 0x5c, 0xd3, 0x48, 0x17,
		0xb2, 0x6f, 0x99, 0x03, 0xe1, 0x8a, 0x4c, 0x56}
	payloadIV = [8]byte{0x1f, 0x4b, 0x8e, 0xa2, 0x07, 0x3d, 0x9c, 0x60}
)

func newTripleDESCBC() (cipher.Block, error) {
	return des.NewTripleDESCipher(payloadKey[:])
}

// EncryptPayload encrypts plaintext with 3DES-CBC-PKCS7 using the fixed
// key/IV, exported so callers outside this package (e.g. the broker's
// will-message path) can produce a PUBLISH-compatible ciphertext without
// round-tripping through a full Publish.
func EncryptPayload(plaintext []byte) ([]byte, error) {
	return encryptPayload(plaintext)
}

// DecryptPayload reverses EncryptPayload.
func DecryptPayload(ciphertext []byte) ([]byte, error) {
	return decryptPayload(ciphertext)
}

// encryptPayload encrypts plaintext with 3DES-CBC-PKCS7 using the fixed
// key/IV, as specified for the PUBLISH payload on the wire.
func encryptPayload(plaintext []byte) ([]byte, error) {
	block, err := newTripleDESCBC()
	if err != nil {
		return nil, fmt.Errorf("packet: build cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, payloadIV[:])
	cbc.CryptBlocks(out, padded)
	return out, nil
}

// decryptPayload reverses encryptPayload. Called from DecodePublish, which
// returns the application payload bytes to callers, and from
// DecryptPayload.
func decryptPayload(ciphertext []byte) ([]byte, error) {
	block, err := newTripleDESCBC()
	if err != nil {
		return nil, fmt.Errorf("packet: build cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrBadLength)
	}
	out := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, payloadIV[:])
	cbc.CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty padded data", ErrBadLength)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n {
		return nil, fmt.Errorf("%w: invalid pkcs7 padding", ErrBadLength)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid pkcs7 padding", ErrBadLength)
		}
	}
	return data[:n-padLen], nil
}
