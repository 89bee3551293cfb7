package selfencrypt

import (
	"encoding/json"
	"fmt"

	"github.com/kenneth/chunkvault/internal/storage"
)

// ChunkInfo describes one chunk of a self-encrypted payload.
//
// PreHash is the hash of the plaintext chunk and doubles as the key material
// for its neighbours; PostHash is the content address of the ciphertext
// actually written to the store; Size is the plaintext length.
type ChunkInfo struct {
	PreHash  []byte `json:"pre"`
	PostHash []byte `json:"post"`
	Size     int    `json:"size"`
}

// DataMap is the metadata a self-encryption pass produces: either the
// payload inlined verbatim (payloads below the encryptable threshold,
// including the empty payload), or an ordered list of chunk descriptors plus
// the total plaintext length. Exactly one of the two forms is populated.
//
// The JSON form is the wire format. It must stay byte-stable across runs and
// platforms because content addresses are computed over it.
type DataMap struct {
	Content []byte      `json:"content,omitempty"`
	Chunks  []ChunkInfo `json:"chunks,omitempty"`
	Size    int64       `json:"size,omitempty"`
}

// IsInline reports whether the map carries the payload inline.
func (m *DataMap) IsInline() bool {
	return len(m.Chunks) == 0
}

// Len returns the total plaintext length the map describes.
func (m *DataMap) Len() int64 {
	if m.IsInline() {
		return int64(len(m.Content))
	}
	return m.Size
}

// Validate checks the structural invariants of the map.
func (m *DataMap) Validate() error {
	if len(m.Content) > 0 && len(m.Chunks) > 0 {
		return fmt.Errorf("%w: data map has both inline content and chunks", ErrSelfEncryption)
	}
	if m.IsInline() {
		return nil
	}

	if len(m.Chunks) < minChunks {
		return fmt.Errorf("%w: data map has %d chunks, need at least %d", ErrSelfEncryption, len(m.Chunks), minChunks)
	}

	var total int64
	for i, c := range m.Chunks {
		if len(c.PreHash) != storage.AddressSize || len(c.PostHash) != storage.AddressSize {
			return fmt.Errorf("%w: chunk %d has malformed hashes", ErrSelfEncryption, i)
		}
		if c.Size <= 0 {
			return fmt.Errorf("%w: chunk %d has invalid size %d", ErrSelfEncryption, i, c.Size)
		}
		total += int64(c.Size)
	}
	if total != m.Size {
		return fmt.Errorf("%w: chunk sizes sum to %d, map says %d", ErrSelfEncryption, total, m.Size)
	}
	return nil
}

// EncodeDataMap serialises a data map to its canonical wire form.
func EncodeDataMap(m *DataMap) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data map: %w", err)
	}
	return data, nil
}

// DecodeDataMap parses and validates the wire form of a data map.
func DecodeDataMap(data []byte) (*DataMap, error) {
	var m DataMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse data map: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
