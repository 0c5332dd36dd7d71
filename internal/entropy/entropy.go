// Package entropy provides the process-wide CSPRNG used for credential
// generation. A Source is created once at startup and injected into every
// component that needs randomness; it is safe for concurrent use.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"

	dErrors "strand/pkg/domain-errors"
)

const (
	// healthSampleSize is the number of bytes drawn by Health.
	healthSampleSize = 64

	// minDistinctBytes is the minimum number of distinct byte values a
	// healthy sample must contain. A uniform 64-byte sample has ~57 on
	// average; a stuck or zeroed reader has 1.
	minDistinctBytes = 24
)

// Source wraps a cryptographically secure reader.
type Source struct {
	reader io.Reader
}

// Option configures a Source.
type Option func(*Source)

// WithReader overrides the underlying reader. Intended for tests that need to
// simulate a failing or degenerate generator.
func WithReader(r io.Reader) Option {
	return func(s *Source) {
		if r != nil {
			s.reader = r
		}
	}
}

// New creates a Source backed by crypto/rand.
func New(opts ...Option) *Source {
	s := &Source{reader: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bytes returns n random bytes.
func (s *Source) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := s.Fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Fill fills buf with random bytes.
func (s *Source) Fill(buf []byte) error {
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return dErrors.Wrap(err, dErrors.CodeEntropyUnavailable, "entropy source read failed")
	}
	return nil
}

// Health draws a sample and checks its byte diversity. It returns nil when
// the source looks healthy.
func (s *Source) Health() error {
	sample, err := s.Bytes(healthSampleSize)
	if err != nil {
		return err
	}
	var seen [256]bool
	distinct := 0
	for _, b := range sample {
		if !seen[b] {
			seen[b] = true
			distinct++
		}
	}
	if distinct < minDistinctBytes {
		return dErrors.New(dErrors.CodeEntropyUnavailable,
			fmt.Sprintf("entropy health check failed: %d distinct byte values in %d-byte sample", distinct, healthSampleSize))
	}
	return nil
}

// Stream is an isolated ChaCha20 keystream seeded from a Source. Streams are
// not safe for concurrent use; each caller takes its own.
type Stream struct {
	cipher *chacha20.Cipher
	buf    [8]byte
}

// NewStream keys a fresh ChaCha20 keystream from the source.
func (s *Source) NewStream() (*Stream, error) {
	key, err := s.Bytes(chacha20.KeySize)
	if err != nil {
		return nil, err
	}
	nonce, err := s.Bytes(chacha20.NonceSize)
	if err != nil {
		return nil, err
	}
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("init chacha20 stream: %w", err)
	}
	return &Stream{cipher: c}, nil
}

// Uint64 returns the next 64 bits of keystream.
func (st *Stream) Uint64() uint64 {
	clear(st.buf[:])
	st.cipher.XORKeyStream(st.buf[:], st.buf[:])
	return binary.BigEndian.Uint64(st.buf[:])
}

// Intn returns a uniform integer in [0, n) using rejection sampling, so the
// result carries no modulo bias. n must be positive.
func (st *Stream) Intn(n int) int {
	if n <= 0 {
		panic("entropy: Intn called with non-positive bound")
	}
	bound := uint64(n)
	limit := ^uint64(0) - (^uint64(0) % bound)
	for {
		v := st.Uint64()
		if v < limit {
			return int(v % bound)
		}
	}
}
