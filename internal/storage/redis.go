package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/chunkvault/internal/config"
)

// RedisClient is a Client backed by a Redis-compatible store. Chunks and
// immutable data are stored as raw bytes under hex-address keys, separated
// by a key prefix per kind. Fetched bytes are verified against the requested
// address before being returned.
type RedisClient struct {
	rdb       *redis.Client
	keyPrefix string
	log       *logrus.Entry
}

// NewRedisClient creates a Redis-backed client from configuration.
func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chunkvault"
	}

	return &RedisClient{
		rdb:       rdb,
		keyPrefix: prefix,
		log:       logrus.WithField("component", "storage.redis"),
	}, nil
}

// Ping verifies connectivity to the backend.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrNetwork, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func (c *RedisClient) chunkKey(addr Address) string {
	return c.keyPrefix + ":chunk:" + addr.Hex()
}

func (c *RedisClient) idataKey(addr Address) string {
	return c.keyPrefix + ":idata:" + addr.Hex()
}

// PutChunk stores a blob under its content address. SetNX keeps the put
// idempotent without rewriting identical bytes.
func (c *RedisClient) PutChunk(ctx context.Context, data []byte) (Address, error) {
	addr := AddressOf(data)

	if err := c.rdb.SetNX(ctx, c.chunkKey(addr), data, 0).Err(); err != nil {
		return Address{}, fmt.Errorf("%w: failed to put chunk %s: %v", ErrNetwork, addr, err)
	}

	c.log.WithFields(logrus.Fields{
		"address": addr.Hex(),
		"size":    len(data),
	}).Debug("Stored chunk")
	return addr, nil
}

// GetChunk fetches a blob by content address and verifies it.
func (c *RedisClient) GetChunk(ctx context.Context, addr Address) ([]byte, error) {
	data, err := c.rdb.Get(ctx, c.chunkKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
		return nil, fmt.Errorf("%w: failed to get chunk %s: %v", ErrNetwork, addr, err)
	}

	if AddressOf(data) != addr {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, addr)
	}
	return data, nil
}

// PutIData stores an immutable data object under its name.
func (c *RedisClient) PutIData(ctx context.Context, data *ImmutableData) error {
	name := data.Name()
	if err := c.rdb.SetNX(ctx, c.idataKey(name), data.Value(), 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to put immutable data %s: %v", ErrNetwork, name, err)
	}
	return nil
}

// GetIData fetches an immutable data object by name and verifies it.
func (c *RedisClient) GetIData(ctx context.Context, addr Address) (*ImmutableData, error) {
	value, err := c.rdb.Get(ctx, c.idataKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
		return nil, fmt.Errorf("%w: failed to get immutable data %s: %v", ErrNetwork, addr, err)
	}

	data := NewImmutableData(value)
	if data.Name() != addr {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, addr)
	}
	return data, nil
}
