package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryClient is an in-memory Client used by tests and local development.
// It mirrors the store contract exactly: content addressing, idempotent
// puts, ErrNotFound on absent blobs.
type MemoryClient struct {
	mu     sync.RWMutex
	chunks map[Address][]byte
	idata  map[Address][]byte
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		chunks: make(map[Address][]byte),
		idata:  make(map[Address][]byte),
	}
}

// PutChunk stores a blob under its content address.
func (c *MemoryClient) PutChunk(ctx context.Context, data []byte) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}

	addr := AddressOf(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chunks[addr]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		c.chunks[addr] = stored
	}
	return addr, nil
}

// GetChunk fetches a blob by content address.
func (c *MemoryClient) GetChunk(ctx context.Context, addr Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.chunks[addr]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PutIData stores an immutable data object under its name.
func (c *MemoryClient) PutIData(ctx context.Context, data *ImmutableData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := data.Name()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.idata[name]; !ok {
		stored := make([]byte, len(data.Value()))
		copy(stored, data.Value())
		c.idata[name] = stored
	}
	return nil
}

// GetIData fetches an immutable data object by name.
func (c *MemoryClient) GetIData(ctx context.Context, addr Address) (*ImmutableData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.idata[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return NewImmutableData(value), nil
}

// ChunkCount returns the number of stored chunks.
func (c *MemoryClient) ChunkCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// ChunkAddresses returns the addresses of all stored chunks in a stable
// order, so tests can compare the store contents of independent runs.
func (c *MemoryClient) ChunkAddresses() []Address {
	c.mu.RLock()
	defer c.mu.RUnlock()

	addrs := make([]Address, 0, len(c.chunks))
	for a := range c.chunks {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Hex() < addrs[j].Hex()
	})
	return addrs
}

// Corrupt overwrites the blob stored at addr, preserving its key. Tests use
// it to exercise the hash-verification path.
func (c *MemoryClient) Corrupt(addr Address, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	c.chunks[addr] = stored
}

// Delete removes the blob stored at addr. Tests use it to exercise the
// missing-chunk path.
func (c *MemoryClient) Delete(addr Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chunks, addr)
}
