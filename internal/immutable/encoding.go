package immutable

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kenneth/chunkvault/internal/selfencrypt"
)

var (
	// ErrDecode indicates a blob did not parse as the expected encoding.
	// On read this almost always means a wrong key, or a foreign blob.
	ErrDecode = errors.New("decode failure")

	// ErrCrypto indicates envelope decryption failed authentication. Callers
	// may treat it identically to ErrDecode.
	ErrCrypto = errors.New("crypto failure")

	// ErrSizeInvariant indicates an object that should be root-sized exceeds
	// the chunk size limit.
	ErrSizeInvariant = errors.New("size invariant violated")
)

const (
	encodingSerialised = "serialised"
	encodingDataMap    = "datamap"
)

// dataTypeEncoding is the tagged union carried by every immutable data
// object: either the (optionally enveloped) payload bytes themselves, or a
// data map whose reassembled chunks yield the next-outer encoding.
//
// The tag is visible in plaintext; the envelope only ever covers the data
// map payload inside the "serialised" arm.
type dataTypeEncoding struct {
	Type string               `json:"type"`
	Data []byte               `json:"data,omitempty"`
	Map  *selfencrypt.DataMap `json:"map,omitempty"`
}

func encodeEncoding(e *dataTypeEncoding) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data type encoding: %w", err)
	}
	return data, nil
}

func decodeEncoding(data []byte) (*dataTypeEncoding, error) {
	var e dataTypeEncoding
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: not a data type encoding: %v", ErrDecode, err)
	}

	switch e.Type {
	case encodingSerialised:
		if e.Map != nil {
			return nil, fmt.Errorf("%w: serialised encoding carries a data map", ErrDecode)
		}
	case encodingDataMap:
		if e.Map == nil {
			return nil, fmt.Errorf("%w: datamap encoding carries no data map", ErrDecode)
		}
		if e.Data != nil {
			return nil, fmt.Errorf("%w: datamap encoding carries raw data", ErrDecode)
		}
	default:
		return nil, fmt.Errorf("%w: unknown encoding tag %q", ErrDecode, e.Type)
	}
	return &e, nil
}

// idataWire is the serialised form of an immutable data object when it is
// fed back through self-encryption by the packing engine.
type idataWire struct {
	Value []byte `json:"value"`
}
