package immutable

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// EnvelopeKeySize is the length of a caller-supplied envelope key.
	EnvelopeKeySize = 32

	envelopeNonceSize = 24
)

// EnvelopeKey is the symmetric key for the optional envelope around a
// serialised data map. Confidentiality of stored data is only guaranteed
// when a key is supplied.
type EnvelopeKey [EnvelopeKeySize]byte

// NewEnvelopeKey builds a key from raw bytes.
func NewEnvelopeKey(b []byte) (*EnvelopeKey, error) {
	if len(b) != EnvelopeKeySize {
		return nil, fmt.Errorf("envelope key must be %d bytes, got %d", EnvelopeKeySize, len(b))
	}
	var k EnvelopeKey
	copy(k[:], b)
	return &k, nil
}

// GenerateEnvelopeKey creates a fresh random key.
func GenerateEnvelopeKey() (*EnvelopeKey, error) {
	var k EnvelopeKey
	if _, err := rand.Read(k[:]); err != nil {
		return nil, fmt.Errorf("failed to generate envelope key: %w", err)
	}
	return &k, nil
}

// sealEnvelope wraps plain in an authenticated secretbox. The nonce is a
// keyed hash of the plaintext, so sealing the same bytes under the same key
// is deterministic; content addresses of keyed writes depend on this. The
// nonce is carried in front of the box.
func sealEnvelope(plain []byte, key *EnvelopeKey) ([]byte, error) {
	h, err := blake2b.New256(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	h.Write(plain)
	sum := h.Sum(nil)

	var nonce [envelopeNonceSize]byte
	copy(nonce[:], sum[:envelopeNonceSize])

	out := make([]byte, envelopeNonceSize, envelopeNonceSize+len(plain)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plain, &nonce, (*[EnvelopeKeySize]byte)(key)), nil
}

// openEnvelope authenticates and unwraps a sealed envelope. A wrong key, a
// truncated blob or a blob that was never sealed all fail the same way.
func openEnvelope(data []byte, key *EnvelopeKey) ([]byte, error) {
	if len(data) < envelopeNonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: envelope too short", ErrCrypto)
	}

	var nonce [envelopeNonceSize]byte
	copy(nonce[:], data[:envelopeNonceSize])

	plain, ok := secretbox.Open(nil, data[envelopeNonceSize:], &nonce, (*[EnvelopeKeySize]byte)(key))
	if !ok {
		return nil, fmt.Errorf("%w: envelope authentication failed", ErrCrypto)
	}
	return plain, nil
}
