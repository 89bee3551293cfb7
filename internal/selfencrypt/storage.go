package selfencrypt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/chunkvault/internal/metrics"
	"github.com/kenneth/chunkvault/internal/storage"
)

// Storage adapts a storage.Client to the chunk put/get operations the
// self-encryptor needs, adding content verification on reads. Operations are
// independent and may be issued in parallel; the adapter imposes no ordering.
type Storage struct {
	client  storage.Client
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewStorage creates a chunk store adapter over the given client.
func NewStorage(client storage.Client) *Storage {
	return &Storage{
		client: client,
		log:    logrus.WithField("component", "selfencrypt.storage"),
	}
}

// WithMetrics attaches a metrics instance to the adapter and returns it.
func (s *Storage) WithMetrics(m *metrics.Metrics) *Storage {
	s.metrics = m
	return s
}

// Client returns the underlying network client.
func (s *Storage) Client() storage.Client {
	return s.client
}

// Put hashes the bytes to obtain their address and forwards them to the
// store. Putting identical bytes twice is a no-op at the store and yields
// the same address.
func (s *Storage) Put(ctx context.Context, data []byte) (storage.Address, error) {
	addr := storage.AddressOf(data)
	start := time.Now()

	stored, err := s.client.PutChunk(ctx, data)
	if err != nil {
		s.recordError(ctx, "put", err)
		return storage.Address{}, err
	}
	if stored != addr {
		s.recordError(ctx, "put", storage.ErrCorrupt)
		return storage.Address{}, fmt.Errorf("%w: store acknowledged %s for chunk %s", storage.ErrCorrupt, stored, addr)
	}

	if s.metrics != nil {
		s.metrics.RecordChunkOperation(ctx, "put", time.Since(start), int64(len(data)))
	}
	s.log.WithFields(logrus.Fields{
		"address": addr.Hex(),
		"size":    len(data),
	}).Debug("Chunk stored")
	return addr, nil
}

// Get fetches the chunk at addr and verifies the returned bytes hash to it.
func (s *Storage) Get(ctx context.Context, addr storage.Address) ([]byte, error) {
	start := time.Now()

	data, err := s.client.GetChunk(ctx, addr)
	if err != nil {
		s.recordError(ctx, "get", err)
		return nil, err
	}
	if storage.AddressOf(data) != addr {
		s.recordError(ctx, "get", storage.ErrCorrupt)
		return nil, fmt.Errorf("%w: %s", storage.ErrCorrupt, addr)
	}

	if s.metrics != nil {
		s.metrics.RecordChunkOperation(ctx, "get", time.Since(start), int64(len(data)))
	}
	return data, nil
}

func (s *Storage) recordError(ctx context.Context, operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordChunkError(ctx, operation, errorType(err))
}

// errorType maps a store error onto a low-cardinality metric label.
func errorType(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrCorrupt):
		return "corrupt"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "network"
	}
}
