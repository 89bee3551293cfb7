package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// AddressSize is the length in bytes of a content address.
	AddressSize = 32

	// MaxChunkSize is the largest blob the network accepts as a single
	// object. Both ciphertext chunks and root immutable data must fit it.
	MaxChunkSize = 32 * 1024
)

var (
	// ErrNotFound indicates the store holds nothing at the requested address.
	ErrNotFound = errors.New("chunk not found")

	// ErrCorrupt indicates the store returned bytes that do not hash to the
	// requested address.
	ErrCorrupt = errors.New("chunk corrupt")

	// ErrNetwork indicates the transport to the store failed. Operations are
	// not retried; the error is surfaced to the caller.
	ErrNetwork = errors.New("network unavailable")
)

// Address is the content address of a stored blob: the BLAKE2b-256 hash of
// its bytes, used as its network name.
type Address [AddressSize]byte

// AddressOf computes the content address of a blob.
func AddressOf(data []byte) Address {
	return blake2b.Sum256(data)
}

// Hex returns the lowercase hex encoding of the address.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String implements fmt.Stringer with a shortened form for logs.
func (a Address) String() string {
	return hex.EncodeToString(a[:4]) + "…"
}

// AddressFromHex parses a full hex-encoded address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address encoding: %w", err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("invalid address length: %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ImmutableData is a single network object carrying an opaque value. Its
// name is the content address of the value; once stored it never changes.
type ImmutableData struct {
	value []byte
}

// NewImmutableData wraps value bytes in an immutable data object. The bytes
// are copied so later mutation of the caller's slice cannot change the name.
func NewImmutableData(value []byte) *ImmutableData {
	v := make([]byte, len(value))
	copy(v, value)
	return &ImmutableData{value: v}
}

// Value returns the carried bytes.
func (d *ImmutableData) Value() []byte {
	return d.value
}

// Name returns the content address of the object.
func (d *ImmutableData) Name() Address {
	return AddressOf(d.value)
}

// ValidateSize reports whether the object is small enough to be stored as a
// single network chunk, which is the requirement for a root object.
func (d *ImmutableData) ValidateSize() bool {
	return len(d.value) <= MaxChunkSize
}

// Client is the capability interface onto the network store. Implementations
// must be safe for concurrent use; the library issues chunk operations in
// parallel and imposes no ordering of its own.
//
// All puts are idempotent: storing identical bytes twice is a no-op at the
// store and yields the same address.
type Client interface {
	// PutChunk stores an opaque blob and returns its content address.
	PutChunk(ctx context.Context, data []byte) (Address, error)

	// GetChunk fetches the blob stored at addr. Returns ErrNotFound if the
	// store holds nothing there.
	GetChunk(ctx context.Context, addr Address) ([]byte, error)

	// PutIData stores an immutable data object under its name.
	PutIData(ctx context.Context, data *ImmutableData) error

	// GetIData fetches the immutable data object named addr.
	GetIData(ctx context.Context, addr Address) (*ImmutableData, error)
}
