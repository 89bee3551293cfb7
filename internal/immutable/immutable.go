// Package immutable implements the content-addressed immutable-data layer
// of the chunkvault client: it converts a byte payload of arbitrary size
// into a network-stored, chunked, content-addressed, optionally-encrypted
// object graph, and retrieves the original bytes back.
package immutable

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/chunkvault/internal/metrics"
	"github.com/kenneth/chunkvault/internal/selfencrypt"
	"github.com/kenneth/chunkvault/internal/storage"
)

var log = logrus.WithField("component", "immutable")

var (
	metricsMu  sync.RWMutex
	opsMetrics *metrics.Metrics
)

// SetMetrics attaches a metrics instance to all subsequent operations in
// this package. Pass nil to detach.
func SetMetrics(m *metrics.Metrics) {
	metricsMu.Lock()
	opsMetrics = m
	metricsMu.Unlock()
}

func currentMetrics() *metrics.Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return opsMetrics
}

func recordPackLevels(levels int) {
	if m := currentMetrics(); m != nil {
		m.RecordPackLevels(levels)
	}
}

// newEncryptor builds a fresh self-encryptor over the client. Each packing
// level constructs its own; the client handle is the only shared state.
func newEncryptor(client storage.Client) *selfencrypt.Encryptor {
	store := selfencrypt.NewStorage(client)
	if m := currentMetrics(); m != nil {
		store = store.WithMetrics(m)
	}
	return selfencrypt.New(store)
}

// Create converts value into a root immutable data object: a self-encryption
// pass stores the payload's chunks, the resulting data map is serialised
// (and sealed in an envelope when key is non-nil), and the encoding is
// packed until it fits a single network chunk.
//
// The root itself is NOT stored; returning it hands that responsibility to
// the caller, who typically issues client.PutIData(root). All intermediate
// chunks are stored as a side effect. For a fixed value (and key) the root
// is byte-identical across runs.
func Create(ctx context.Context, client storage.Client, value []byte, key *EnvelopeKey) (*storage.ImmutableData, error) {
	log.WithFields(logrus.Fields{
		"size":      len(value),
		"encrypted": key != nil,
	}).Debug("Creating conformant immutable data")

	m, err := newEncryptor(client).Encode(ctx, value)
	if err != nil {
		return nil, err
	}

	serialisedMap, err := selfencrypt.EncodeDataMap(m)
	if err != nil {
		return nil, err
	}

	payload := serialisedMap
	if key != nil {
		payload, err = sealEnvelope(serialisedMap, key)
		if err != nil {
			return nil, err
		}
	}

	encoded, err := encodeEncoding(&dataTypeEncoding{Type: encodingSerialised, Data: payload})
	if err != nil {
		return nil, err
	}

	return pack(ctx, client, encoded)
}

// ExtractValue recovers the payload bytes from an immutable data object
// created by Create. The key must match the one used on write: reading an
// enveloped blob without it, or a plain blob with one, fails with
// ErrDecode/ErrCrypto rather than returning garbage.
func ExtractValue(ctx context.Context, client storage.Client, data *storage.ImmutableData, key *EnvelopeKey) ([]byte, error) {
	if !data.ValidateSize() {
		return nil, fmt.Errorf("%w: root object is %d bytes", ErrSizeInvariant, len(data.Value()))
	}

	value, err := unpack(ctx, client, data)
	if err != nil {
		return nil, err
	}

	if key != nil {
		value, err = openEnvelope(value, key)
		if err != nil {
			return nil, err
		}
	}

	m, err := selfencrypt.DecodeDataMap(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return newEncryptor(client).Decode(ctx, m)
}

// GetValue fetches the root by address and extracts its value. It combines
// Client.GetIData and ExtractValue into one call.
func GetValue(ctx context.Context, client storage.Client, name storage.Address, key *EnvelopeKey) ([]byte, error) {
	data, err := client.GetIData(ctx, name)
	if err != nil {
		return nil, err
	}
	if data.Name() != name {
		return nil, fmt.Errorf("%w: %s", storage.ErrCorrupt, name)
	}
	return ExtractValue(ctx, client, data, key)
}
