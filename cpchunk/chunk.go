// Package cpchunk splits byte buffers into fixed-size chunks,
// packages each chunk with the indexed Merkle proof for its position,
// and verifies received chunks.
//
// A buffer of length L split at chunk size S has ceil(L/S) chunks,
// except that an empty buffer has exactly one empty chunk.
// The leaves of the Merkle tree are the digests of the chunks,
// so the root of a buffer is a function of both its bytes and the chunk size.
package cpchunk

import (
	"errors"
	"fmt"
	"iter"

	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
)

// Chunk is one piece of a larger buffer,
// together with the proof authenticating it against the buffer's root.
type Chunk struct {
	Proof cpmerkle.IndexedProof

	Data []byte
}

// Count returns the number of chunks in a buffer of dataLen bytes.
func Count(dataLen int, chunkSize uint32) uint64 {
	mustPositiveChunkSize(chunkSize)

	if dataLen == 0 {
		return 1
	}
	n := uint64(dataLen) / uint64(chunkSize)
	if uint64(dataLen)%uint64(chunkSize) != 0 {
		n++
	}
	return n
}

// Pieces yields the consecutive chunkSize-byte pieces of data.
// The final piece may be shorter.
// An empty buffer yields a single empty piece.
//
// Yielded slices alias data.
func Pieces(data []byte, chunkSize uint32) iter.Seq[[]byte] {
	mustPositiveChunkSize(chunkSize)

	return func(yield func([]byte) bool) {
		if len(data) == 0 {
			yield(data[:0:0])
			return
		}

		sz := int(chunkSize)
		for start := 0; start < len(data); start += sz {
			end := min(start+sz, len(data))
			if !yield(data[start:end:end]) {
				return
			}
		}
	}
}

// LeafDigests yields the digest of each piece from [Pieces].
func LeafDigests(data []byte, chunkSize uint32) iter.Seq[cpdigest.Digest] {
	pieces := Pieces(data, chunkSize)
	return func(yield func(cpdigest.Digest) bool) {
		for p := range pieces {
			if !yield(cpdigest.Hash(p)) {
				return
			}
		}
	}
}

// Root returns the Merkle root of data split at chunkSize.
func Root(data []byte, chunkSize uint32) cpdigest.Digest {
	return cpmerkle.RootOfSeq(LeafDigests(data, chunkSize))
}

// New returns the chunk at index of data split at chunkSize.
//
// If index is not a valid chunk index,
// New returns a [cpmerkle.IndexOutOfBoundsError]
// whose Count is the actual number of chunks.
//
// The returned Data aliases data.
// New panics if chunkSize is zero.
func New(data []byte, index uint64, chunkSize uint32) (Chunk, error) {
	mustPositiveChunkSize(chunkSize)

	proof, err := cpmerkle.BuildProofSeq(LeafDigests(data, chunkSize), index)
	if err != nil {
		return Chunk{}, err
	}

	if len(data) == 0 {
		return Chunk{Proof: proof, Data: data[:0:0]}, nil
	}

	// The proof built successfully, so index is in range.
	start := index * uint64(chunkSize)
	end := min(start+uint64(chunkSize), uint64(len(data)))

	return Chunk{
		Proof: proof,
		Data:  data[start:end:end],
	}, nil
}

// Verify reports whether c is self-consistent:
// its proof has a valid shape,
// and the digest of its data is the proof's leaf.
//
// Verify does not check the proof against any root.
// Only the caller knows which root is authoritative;
// use [Chunk.VerifyAgainst] to include that check.
func (c Chunk) Verify() bool {
	if c.Proof.Verify() != nil {
		return false
	}

	leaf, ok := c.Proof.Leaf()
	if !ok {
		return false
	}

	return cpdigest.Hash(c.Data) == leaf
}

// ErrDataMismatch is returned from [Chunk.VerifyAgainst]
// when the chunk data does not hash to the proof's leaf.
var ErrDataMismatch = errors.New("chunk data does not match proof leaf")

// RootMismatchError is returned from [Chunk.VerifyAgainst]
// when a structurally valid chunk resolves to a different root.
type RootMismatchError struct {
	Want, Got cpdigest.Digest
}

func (e RootMismatchError) Error() string {
	return fmt.Sprintf("chunk proof resolves to root %s, expected %s", e.Got, e.Want)
}

// VerifyAgainst performs the checks of [Chunk.Verify],
// and then confirms that the proof resolves to root.
//
// Errors from the structural proof check are returned as-is,
// so callers may match them with [errors.As].
func (c Chunk) VerifyAgainst(root cpdigest.Digest) error {
	if err := c.Proof.Verify(); err != nil {
		return err
	}

	leaf, ok := c.Proof.Leaf()
	if !ok || cpdigest.Hash(c.Data) != leaf {
		return ErrDataMismatch
	}

	got, err := c.Proof.Root()
	if err != nil {
		// Already verified above.
		panic(fmt.Errorf("BUG: verified proof failed to produce root: %w", err))
	}
	if got != root {
		return RootMismatchError{Want: root, Got: got}
	}
	return nil
}

func mustPositiveChunkSize(chunkSize uint32) {
	if chunkSize == 0 {
		panic(errors.New("BUG: chunk size must be positive"))
	}
}
