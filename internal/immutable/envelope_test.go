package immutable

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(seed byte) *EnvelopeKey {
	var k EnvelopeKey
	for i := range k {
		k[i] = seed + byte(i)
	}
	return &k
}

func TestEnvelope_SealOpen(t *testing.T) {
	key := testKey(1)
	plain := []byte("serialised data map bytes")

	sealed, err := sealEnvelope(plain, key)
	if err != nil {
		t.Fatalf("sealEnvelope failed: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("sealed envelope contains the plaintext")
	}

	opened, err := openEnvelope(sealed, key)
	if err != nil {
		t.Fatalf("openEnvelope failed: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Error("opened envelope differs from original")
	}
}

func TestEnvelope_SealDeterministic(t *testing.T) {
	key := testKey(2)
	plain := []byte("same bytes every time")

	first, err := sealEnvelope(plain, key)
	if err != nil {
		t.Fatalf("sealEnvelope failed: %v", err)
	}
	second, err := sealEnvelope(plain, key)
	if err != nil {
		t.Fatalf("sealEnvelope failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("sealing the same bytes twice produced different envelopes")
	}
}

func TestEnvelope_WrongKey(t *testing.T) {
	sealed, err := sealEnvelope([]byte("secret"), testKey(3))
	if err != nil {
		t.Fatalf("sealEnvelope failed: %v", err)
	}

	_, err = openEnvelope(sealed, testKey(4))
	if !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

func TestEnvelope_Tampered(t *testing.T) {
	key := testKey(5)
	sealed, err := sealEnvelope([]byte("secret"), key)
	if err != nil {
		t.Fatalf("sealEnvelope failed: %v", err)
	}

	sealed[len(sealed)-1] ^= 0x01
	if _, err := openEnvelope(sealed, key); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

func TestEnvelope_TooShort(t *testing.T) {
	if _, err := openEnvelope([]byte("short"), testKey(6)); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

func TestNewEnvelopeKey(t *testing.T) {
	if _, err := NewEnvelopeKey(make([]byte, EnvelopeKeySize)); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if _, err := NewEnvelopeKey(make([]byte, 16)); err == nil {
		t.Error("expected error for short key")
	}
}

func TestGenerateEnvelopeKey(t *testing.T) {
	k1, err := GenerateEnvelopeKey()
	if err != nil {
		t.Fatalf("GenerateEnvelopeKey failed: %v", err)
	}
	k2, err := GenerateEnvelopeKey()
	if err != nil {
		t.Fatalf("GenerateEnvelopeKey failed: %v", err)
	}
	if *k1 == *k2 {
		t.Error("two generated keys are identical")
	}
}
