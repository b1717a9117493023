// Package cpblob reassembles a blob from verified chunks
// arriving in any order.
package cpblob

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
)

// ReassemblerConfig is the configuration for [NewReassembler].
type ReassemblerConfig struct {
	// The trusted root of the blob being reassembled.
	Root cpdigest.Digest

	// The chunk size the root was computed with.
	ChunkSize uint32

	// Upper bound on the blob's length in bytes.
	// When the first chunk reveals the count,
	// the shortest blob with that count is checked against this bound;
	// the final chunk is checked again once its length is known.
	MaxBlobSize uint64

	// Optional.
	Metrics *Metrics
}

// Reassembler accumulates the chunks of one blob.
// It is safe for concurrent use.
type Reassembler struct {
	log *slog.Logger

	root        cpdigest.Digest
	chunkSize   uint32
	maxBlobSize uint64

	m *Metrics

	mu sync.Mutex

	// Zero until the first chunk is accepted.
	count uint64

	have *bitset.BitSet
	buf  []byte

	// Set once the final chunk is accepted.
	size int
}

var (
	// ErrAlreadyHaveChunk is returned from [*Reassembler.AddChunk]
	// for an index that was already accepted.
	ErrAlreadyHaveChunk = errors.New("already have chunk")

	// ErrIncomplete is returned from [*Reassembler.Bytes]
	// while any chunk is still missing.
	ErrIncomplete = errors.New("blob is incomplete")
)

// BlobTooLargeError is returned from [*Reassembler.AddChunk]
// when a chunk shows that the blob cannot fit in the configured maximum blob size.
type BlobTooLargeError struct {
	Count     uint64
	ChunkSize uint32
	Max       uint64
}

func (e BlobTooLargeError) Error() string {
	return fmt.Sprintf(
		"%d chunks of up to %d bytes exceed maximum blob size %d",
		e.Count, e.ChunkSize, e.Max,
	)
}

// PieceLengthError is returned from [*Reassembler.AddChunk]
// when a verified chunk has a length that is impossible for its position.
type PieceLengthError struct {
	Index, Count uint64

	Len int
}

func (e PieceLengthError) Error() string {
	return fmt.Sprintf("chunk %d of %d has invalid length %d", e.Index, e.Count, e.Len)
}

// NewReassembler returns a new Reassembler for the blob identified by cfg.Root.
func NewReassembler(log *slog.Logger, cfg ReassemblerConfig) *Reassembler {
	if cfg.ChunkSize == 0 {
		panic(errors.New("BUG: ReassemblerConfig.ChunkSize must be positive"))
	}
	if cfg.MaxBlobSize == 0 {
		panic(errors.New("BUG: ReassemblerConfig.MaxBlobSize must be positive"))
	}

	return &Reassembler{
		log: log,

		root:        cfg.Root,
		chunkSize:   cfg.ChunkSize,
		maxBlobSize: cfg.MaxBlobSize,

		m: cfg.Metrics,
	}
}

// AddChunk verifies c against the configured root
// and, if it is valid, stores its data.
//
// Verification happens without holding the reassembler's lock,
// so many goroutines may add chunks concurrently.
func (r *Reassembler) AddChunk(c cpchunk.Chunk) error {
	// Cheap check first, so that redundant deliveries skip hashing.
	r.mu.Lock()
	dup := r.count > 0 && c.Proof.Index < r.count && r.have.Test(uint(c.Proof.Index))
	r.mu.Unlock()
	if dup {
		r.m.duplicate()
		return ErrAlreadyHaveChunk
	}

	if err := c.VerifyAgainst(r.root); err != nil {
		r.m.rejected()
		return fmt.Errorf("rejecting chunk %d: %w", c.Proof.Index, err)
	}

	index, count := c.Proof.Index, c.Proof.Count

	if err := r.checkPieceLength(index, count, len(c.Data)); err != nil {
		r.m.rejected()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		bufLen, ok := r.bufferLen(count)
		if !ok {
			r.m.rejected()
			return r.tooLarge(count)
		}

		r.count = count
		r.have = bitset.New(uint(count))
		r.buf = make([]byte, bufLen)
	}

	// The root commits to the count,
	// so every chunk that verified against it carries the same count.

	if r.have.Test(uint(index)) {
		r.m.duplicate()
		return ErrAlreadyHaveChunk
	}

	start := index * uint64(r.chunkSize)
	if start+uint64(len(c.Data)) > uint64(len(r.buf)) {
		// Only the final chunk can overrun the buffer.
		r.m.rejected()
		return r.tooLarge(count)
	}
	copy(r.buf[start:], c.Data)
	r.have.Set(uint(index))
	r.m.accepted()

	if index == count-1 {
		r.size = int(start) + len(c.Data)
	}

	if r.have.All() {
		r.m.completed()
		r.log.Debug(
			"Blob reassembly complete",
			"root", r.root,
			"chunks", r.count,
			"size", r.size,
		)
	}

	return nil
}

// bufferLen returns the buffer size for a blob of count chunks:
// count*chunkSize, capped at the maximum blob size.
// It reports false if even the shortest blob with that count,
// (count-1)*chunkSize + 1 bytes, exceeds the maximum.
func (r *Reassembler) bufferLen(count uint64) (uint64, bool) {
	hi, full := bits.Mul64(count-1, uint64(r.chunkSize))
	if hi != 0 {
		return 0, false
	}
	if count > 1 && full >= r.maxBlobSize {
		return 0, false
	}

	full, carry := bits.Add64(full, uint64(r.chunkSize), 0)
	if carry != 0 || full > r.maxBlobSize {
		return r.maxBlobSize, true
	}
	return full, true
}

func (r *Reassembler) tooLarge(count uint64) BlobTooLargeError {
	return BlobTooLargeError{Count: count, ChunkSize: r.chunkSize, Max: r.maxBlobSize}
}

func (r *Reassembler) checkPieceLength(index, count uint64, n int) error {
	switch {
	case index < count-1:
		if n == int(r.chunkSize) {
			return nil
		}
	case count == 1:
		// The only chunk may be empty, for an empty blob.
		if n <= int(r.chunkSize) {
			return nil
		}
	default:
		if n >= 1 && n <= int(r.chunkSize) {
			return nil
		}
	}
	return PieceLengthError{Index: index, Count: count, Len: n}
}

// Count returns the number of chunks in the blob,
// and false if no chunk has been accepted yet.
func (r *Reassembler) Count() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, r.count > 0
}

// Missing returns the indices not yet accepted, in ascending order.
// Before the first chunk is accepted the count is unknown,
// and Missing returns nil.
func (r *Reassembler) Missing() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	out := make([]uint64, 0, r.count-uint64(r.have.Count()))
	for i, ok := r.have.NextClear(0); ok && uint64(i) < r.count; i, ok = r.have.NextClear(i + 1) {
		out = append(out, uint64(i))
	}
	return out
}

// Complete reports whether every chunk has been accepted.
func (r *Reassembler) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count > 0 && r.have.All()
}

// Bytes returns the reassembled blob,
// or [ErrIncomplete] if any chunk is missing.
//
// The returned slice is owned by the Reassembler
// and must not be modified.
func (r *Reassembler) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 || !r.have.All() {
		return nil, ErrIncomplete
	}
	return r.buf[:r.size:r.size], nil
}
