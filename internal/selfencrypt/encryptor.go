package selfencrypt

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kenneth/chunkvault/internal/storage"
)

const (
	// MinChunkSize is the smallest plaintext chunk a pass will produce.
	MinChunkSize = 1024

	// minEncryptableSize is the threshold below which a payload is carried
	// inline in the data map instead of being chunked and encrypted.
	minEncryptableSize = minChunks * MinChunkSize

	// minChunks is the minimum number of chunks per pass. Three chunks are
	// needed so every chunk has two distinct neighbours to derive its key
	// material from.
	minChunks = 3

	// maxChunkPlainSize bounds the plaintext per chunk so the ciphertext,
	// tag included, still fits a network chunk.
	maxChunkPlainSize = storage.MaxChunkSize - chacha20poly1305.Overhead
)

// ErrSelfEncryption indicates a violated invariant inside a self-encryption
// pass: wrong chunk count, a failed hash re-check, or a chunk that does not
// decrypt under its neighbour-derived key.
var ErrSelfEncryption = errors.New("self-encryption failure")

// Encryptor transforms payload bytes into a DataMap plus stored ciphertext
// chunks, and back. Chunk keys are derived from the plaintext hashes of the
// two preceding chunks (cyclic), so the transform needs no caller key yet a
// single chunk's ciphertext is unrecoverable without its neighbours.
//
// The forward transform is deterministic: a fixed payload yields
// byte-identical ciphertext and an identical map, which content addressing
// depends on.
type Encryptor struct {
	store *Storage
	log   *logrus.Entry
}

// New creates an encryptor over the given chunk store adapter.
func New(store *Storage) *Encryptor {
	return &Encryptor{
		store: store,
		log:   logrus.WithField("component", "selfencrypt"),
	}
}

// Encode splits value into chunks, encrypts each with neighbour-derived
// keys, stores the ciphertexts and returns the data map. Chunk puts within
// the pass run concurrently; the map is only returned once every put has
// completed. Payloads below the encryptable threshold are returned inline
// without touching the store.
func (e *Encryptor) Encode(ctx context.Context, value []byte) (*DataMap, error) {
	start := time.Now()

	if len(value) < minEncryptableSize {
		content := make([]byte, len(value))
		copy(content, value)
		e.recordPass(ctx, "encode", start, int64(len(value)))
		return &DataMap{Content: content}, nil
	}

	plains := splitChunks(value)
	n := len(plains)

	preHashes := make([][]byte, n)
	for i, plain := range plains {
		h := blake2b.Sum256(plain)
		preHashes[i] = h[:]
	}

	chunks := make([]ChunkInfo, n)
	err := forEachChunk(ctx, n, func(i int) error {
		aead, nonce, err := chunkCipher(preHashes, i)
		if err != nil {
			return err
		}
		ciphertext := aead.Seal(nil, nonce, plains[i], nil)

		addr, err := e.store.Put(ctx, ciphertext)
		if err != nil {
			return err
		}
		chunks[i] = ChunkInfo{
			PreHash:  preHashes[i],
			PostHash: append([]byte(nil), addr[:]...),
			Size:     len(plains[i]),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := &DataMap{Chunks: chunks, Size: int64(len(value))}
	e.log.WithFields(logrus.Fields{
		"size":   len(value),
		"chunks": n,
	}).Debug("Self-encryption pass complete")
	e.recordPass(ctx, "encode", start, int64(len(value)))
	return m, nil
}

// Decode fetches every ciphertext chunk the map names, decrypts and
// re-verifies each against its descriptor, and reassembles the payload in
// descriptor order. Fetches run concurrently; nothing partial is ever
// returned.
func (e *Encryptor) Decode(ctx context.Context, m *DataMap) ([]byte, error) {
	start := time.Now()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	if m.IsInline() {
		out := make([]byte, len(m.Content))
		copy(out, m.Content)
		e.recordPass(ctx, "decode", start, int64(len(out)))
		return out, nil
	}

	n := len(m.Chunks)
	preHashes := make([][]byte, n)
	offsets := make([]int64, n)
	var offset int64
	for i, c := range m.Chunks {
		preHashes[i] = c.PreHash
		offsets[i] = offset
		offset += int64(c.Size)
	}

	out := make([]byte, m.Size)
	err := forEachChunk(ctx, n, func(i int) error {
		info := m.Chunks[i]

		var addr storage.Address
		copy(addr[:], info.PostHash)
		ciphertext, err := e.store.Get(ctx, addr)
		if err != nil {
			return err
		}

		aead, nonce, err := chunkCipher(preHashes, i)
		if err != nil {
			return err
		}
		plain, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return fmt.Errorf("%w: chunk %d does not decrypt", ErrSelfEncryption, i)
		}
		if len(plain) != info.Size {
			return fmt.Errorf("%w: chunk %d decrypted to %d bytes, descriptor says %d", ErrSelfEncryption, i, len(plain), info.Size)
		}
		if h := blake2b.Sum256(plain); string(h[:]) != string(info.PreHash) {
			return fmt.Errorf("%w: chunk %d plaintext hash mismatch", ErrSelfEncryption, i)
		}

		copy(out[offsets[i]:], plain)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordPass(ctx, "decode", start, int64(len(out)))
	return out, nil
}

func (e *Encryptor) recordPass(ctx context.Context, operation string, start time.Time, size int64) {
	if e.store.metrics != nil {
		e.store.metrics.RecordSelfEncryption(ctx, operation, time.Since(start), size)
	}
}

// splitChunks partitions value into at least minChunks near-equal chunks,
// none larger than maxChunkPlainSize. The split depends only on the length,
// keeping the forward transform deterministic.
func splitChunks(value []byte) [][]byte {
	size := len(value)
	n := (size + maxChunkPlainSize - 1) / maxChunkPlainSize
	if n < minChunks {
		n = minChunks
	}

	base := size / n
	rem := size % n

	chunks := make([][]byte, n)
	offset := 0
	for i := 0; i < n; i++ {
		chunkSize := base
		if i < rem {
			chunkSize++
		}
		chunks[i] = value[offset : offset+chunkSize]
		offset += chunkSize
	}
	return chunks
}

// chunkCipher derives the AEAD and nonce for chunk i from the plaintext
// hashes of its two preceding chunks (cyclic, so chunk 0 draws on the last
// two chunks).
func chunkCipher(preHashes [][]byte, i int) (cipher.AEAD, []byte, error) {
	n := len(preHashes)
	prev := preHashes[(i+n-1)%n]
	prev2 := preHashes[(i+n-2)%n]

	keyMaterial := make([]byte, 0, len(prev)+len(prev2))
	keyMaterial = append(keyMaterial, prev...)
	keyMaterial = append(keyMaterial, prev2...)
	key := blake2b.Sum256(keyMaterial)

	nonceMaterial := make([]byte, 0, len(prev)+len(prev2))
	nonceMaterial = append(nonceMaterial, prev2...)
	nonceMaterial = append(nonceMaterial, prev...)
	nonceSum := blake2b.Sum256(nonceMaterial)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSelfEncryption, err)
	}
	return aead, nonceSum[:chacha20poly1305.NonceSize], nil
}

// forEachChunk runs fn(0..n-1) on a bounded worker pool and returns the
// first error. Remaining work is skipped once an error or cancellation is
// observed; in-flight calls are left to finish.
func forEachChunk(ctx context.Context, n int, fn func(int) error) error {
	concurrency := runtime.NumCPU()
	if concurrency < 2 {
		concurrency = 2
	}
	if concurrency > n {
		concurrency = n
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for i := 0; i < n; i++ {
		if failed() {
			break
		}

		select {
		case <-ctx.Done():
			setErr(ctx.Err())
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := fn(i); err != nil {
					setErr(err)
				}
			}(i)
		}
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	return firstErr
}
