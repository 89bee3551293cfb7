package selfencrypt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kenneth/chunkvault/internal/storage"
)

func newTestEncryptor() (*Encryptor, *storage.MemoryClient) {
	client := storage.NewMemoryClient()
	return New(NewStorage(client)), client
}

func testPayload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i * 7) % 256)
	}
	return data
}

func TestEncryptor_RoundTrip(t *testing.T) {
	testSizes := []int{
		0,
		1,
		100,
		1024,             // inline, below the encryptable threshold
		minEncryptableSize - 1,
		minEncryptableSize, // smallest chunked payload
		4 * 1024,
		64 * 1024,
		maxChunkPlainSize,     // exactly one chunk of data, still split in three
		3 * maxChunkPlainSize, // exact multiple
		1024 * 1024,
	}

	for _, size := range testSizes {
		t.Run(fmt.Sprintf("Size_%d", size), func(t *testing.T) {
			enc, _ := newTestEncryptor()
			ctx := context.Background()
			payload := testPayload(size)

			m, err := enc.Encode(ctx, payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			if size < minEncryptableSize {
				if !m.IsInline() {
					t.Error("small payload should be inline")
				}
			} else {
				if m.IsInline() {
					t.Error("large payload should be chunked")
				}
				if len(m.Chunks) < minChunks {
					t.Errorf("expected at least %d chunks, got %d", minChunks, len(m.Chunks))
				}
			}
			if m.Len() != int64(size) {
				t.Errorf("map length: got %d, want %d", m.Len(), size)
			}

			got, err := enc.Decode(ctx, m)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !bytes.Equal(payload, got) {
				t.Error("decoded payload differs from original")
			}
		})
	}
}

func TestEncryptor_Deterministic(t *testing.T) {
	payload := testPayload(64 * 1024)
	ctx := context.Background()

	enc1, client1 := newTestEncryptor()
	m1, err := enc1.Encode(ctx, payload)
	if err != nil {
		t.Fatalf("first Encode failed: %v", err)
	}

	enc2, client2 := newTestEncryptor()
	m2, err := enc2.Encode(ctx, payload)
	if err != nil {
		t.Fatalf("second Encode failed: %v", err)
	}

	b1, err := EncodeDataMap(m1)
	if err != nil {
		t.Fatalf("EncodeDataMap failed: %v", err)
	}
	b2, err := EncodeDataMap(m2)
	if err != nil {
		t.Fatalf("EncodeDataMap failed: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Error("independent runs produced different data maps")
	}

	addrs1 := client1.ChunkAddresses()
	addrs2 := client2.ChunkAddresses()
	if len(addrs1) != len(addrs2) {
		t.Fatalf("independent runs stored different chunk counts: %d vs %d", len(addrs1), len(addrs2))
	}
	for i := range addrs1 {
		if addrs1[i] != addrs2[i] {
			t.Error("independent runs stored different chunk addresses")
			break
		}
	}
}

func TestEncryptor_ChunksAreObfuscated(t *testing.T) {
	enc, client := newTestEncryptor()
	ctx := context.Background()

	// A highly regular payload must not show through in any stored chunk.
	payload := bytes.Repeat([]byte{0xAA}, 64*1024)
	m, err := enc.Encode(ctx, payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for _, info := range m.Chunks {
		var addr storage.Address
		copy(addr[:], info.PostHash)
		ciphertext, err := client.GetChunk(ctx, addr)
		if err != nil {
			t.Fatalf("GetChunk failed: %v", err)
		}
		if bytes.Contains(ciphertext, payload[:info.Size]) {
			t.Fatal("stored chunk contains the plaintext")
		}
	}
}

func TestEncryptor_DecodeMissingChunk(t *testing.T) {
	enc, client := newTestEncryptor()
	ctx := context.Background()

	m, err := enc.Encode(ctx, testPayload(16*1024))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var addr storage.Address
	copy(addr[:], m.Chunks[1].PostHash)
	client.Delete(addr)

	_, err = enc.Decode(ctx, m)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEncryptor_DecodeCorruptChunk(t *testing.T) {
	enc, client := newTestEncryptor()
	ctx := context.Background()

	m, err := enc.Encode(ctx, testPayload(16*1024))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var addr storage.Address
	copy(addr[:], m.Chunks[0].PostHash)
	client.Corrupt(addr, []byte("tampered bytes"))

	_, err = enc.Decode(ctx, m)
	if !errors.Is(err, storage.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestEncryptor_DecodeTamperedDescriptor(t *testing.T) {
	enc, _ := newTestEncryptor()
	ctx := context.Background()

	m, err := enc.Encode(ctx, testPayload(16*1024))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Swapping two pre-hashes reroutes the key derivation; every affected
	// chunk must fail authentication rather than decrypt to garbage.
	m.Chunks[0].PreHash, m.Chunks[1].PreHash = m.Chunks[1].PreHash, m.Chunks[0].PreHash

	_, err = enc.Decode(ctx, m)
	if !errors.Is(err, ErrSelfEncryption) {
		t.Errorf("expected ErrSelfEncryption, got %v", err)
	}
}

func TestEncryptor_DecodeCancelled(t *testing.T) {
	enc, _ := newTestEncryptor()

	m, err := enc.Encode(context.Background(), testPayload(16*1024))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := enc.Decode(ctx, m); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		size       int
		wantChunks int
	}{
		{minEncryptableSize, 3},
		{100 * 1024, 4},
		{3 * maxChunkPlainSize, 3},
		{3*maxChunkPlainSize + 1, 4},
		{1024 * 1024, 33},
	}

	for _, tt := range tests {
		chunks := splitChunks(testPayload(tt.size))
		if len(chunks) != tt.wantChunks {
			t.Errorf("size %d: got %d chunks, want %d", tt.size, len(chunks), tt.wantChunks)
		}

		total := 0
		for _, c := range chunks {
			if len(c) > maxChunkPlainSize {
				t.Errorf("size %d: chunk exceeds plain size limit", tt.size)
			}
			total += len(c)
		}
		if total != tt.size {
			t.Errorf("size %d: chunks sum to %d", tt.size, total)
		}
	}
}
