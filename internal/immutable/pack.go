package immutable

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kenneth/chunkvault/internal/selfencrypt"
	"github.com/kenneth/chunkvault/internal/storage"
)

// maxPackLevels bounds the number of re-encoding passes. Two levels cover
// any realistic payload; anything deeper on read is treated as corruption.
const maxPackLevels = 4

func encodeIData(data *storage.ImmutableData) ([]byte, error) {
	b, err := json.Marshal(idataWire{Value: data.Value()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode immutable data: %w", err)
	}
	return b, nil
}

func decodeIData(b []byte) (*storage.ImmutableData, error) {
	var w idataWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: not an immutable data object: %v", ErrDecode, err)
	}
	if w.Value == nil {
		return nil, fmt.Errorf("%w: immutable data object carries no value", ErrDecode)
	}
	return storage.NewImmutableData(w.Value), nil
}

// pack reduces value to an immutable data object that fits a single network
// chunk. Oversized candidates are serialised and run back through
// self-encryption, each pass shrinking the payload to its data map, until
// the encoding fits. Intermediate chunks are stored as a side effect; the
// returned root is not.
func pack(ctx context.Context, client storage.Client, value []byte) (*storage.ImmutableData, error) {
	for level := 0; ; level++ {
		data := storage.NewImmutableData(value)
		if data.ValidateSize() {
			recordPackLevels(level)
			return data, nil
		}
		if level >= maxPackLevels {
			return nil, fmt.Errorf("%w: payload still oversized after %d packing levels", selfencrypt.ErrSelfEncryption, level)
		}

		serialised, err := encodeIData(data)
		if err != nil {
			return nil, err
		}

		m, err := newEncryptor(client).Encode(ctx, serialised)
		if err != nil {
			return nil, err
		}

		value, err = encodeEncoding(&dataTypeEncoding{Type: encodingDataMap, Map: m})
		if err != nil {
			return nil, err
		}
	}
}

// unpack reverses pack: it peels datamap layers by reassembling each inner
// immutable data object until the terminal serialised arm is reached. The
// level bound doubles as a corruption check on read.
func unpack(ctx context.Context, client storage.Client, data *storage.ImmutableData) ([]byte, error) {
	for level := 0; ; level++ {
		if level > maxPackLevels {
			return nil, fmt.Errorf("%w: more than %d packing levels on read", selfencrypt.ErrSelfEncryption, maxPackLevels)
		}

		encoded, err := decodeEncoding(data.Value())
		if err != nil {
			return nil, err
		}

		switch encoded.Type {
		case encodingSerialised:
			return encoded.Data, nil
		case encodingDataMap:
			reassembled, err := newEncryptor(client).Decode(ctx, encoded.Map)
			if err != nil {
				return nil, err
			}
			data, err = decodeIData(reassembled)
			if err != nil {
				return nil, err
			}
		}
	}
}
