package cpmerkle

import (
	"iter"
	"math/bits"
	"slices"

	"github.com/gordian-engine/chunkproof/cpdigest"
)

// MaxProofLength is the largest possible number of siblings in a valid proof.
// A 64-bit count yields at most 64 levels above the leaf,
// plus the leaf itself.
const MaxProofLength = 65

// IndexedProof authenticates the leaf at Index
// within an ordered sequence of Count leaves.
//
// Siblings[0] is the authenticated leaf itself.
// The remaining entries are the sibling subtree hashes
// from the bottom of the tree upwards.
type IndexedProof struct {
	Index uint64
	Count uint64

	Siblings []cpdigest.Digest
}

// BuildProof returns the proof for the leaf at index.
//
// Over zero leaves, only index 0 is valid,
// and it produces a proof with no siblings.
// Otherwise the index must be less than len(leaves).
func BuildProof(leaves []cpdigest.Digest, index uint64) (IndexedProof, error) {
	return BuildProofSeq(slices.Values(leaves), index)
}

// BuildProofSeq is like [BuildProof] but consumes leaves from a sequence.
// On [IndexOutOfBoundsError], the Count field
// is the number of leaves the sequence actually produced.
func BuildProofSeq(leaves iter.Seq[cpdigest.Digest], index uint64) (IndexedProof, error) {
	var count uint64
	tagged := func(yield func(proofCarrier) bool) {
		for d := range leaves {
			c := proofCarrier{hash: d}
			if count == index {
				c.isProof = true
				c.siblings = make([]cpdigest.Digest, 1, 8)
				c.siblings[0] = d
			}
			count++
			if !yield(c) {
				return
			}
		}
	}

	res, ok := treeFold(tagged, combineProofCarriers)
	if !ok {
		if index != 0 {
			return IndexedProof{}, EmptyProofMustHaveIndexError{Index: index}
		}
		return IndexedProof{}, nil
	}

	if !res.isProof {
		return IndexedProof{}, IndexOutOfBoundsError{Count: count, Index: index}
	}

	return IndexedProof{
		Index:    index,
		Count:    count,
		Siblings: res.siblings,
	}, nil
}

// directionPath walks from the root towards the leaf at index
// in a tree of count leaves.
// Each step contributes one bit, most significant step first;
// a set bit means the step went to the right subtree.
// The depth is the number of steps taken,
// which is at most 64.
//
// The caller must ensure index < count.
func directionPath(count, index uint64) (path uint64, depth int) {
	n, i := count, index
	for n > 1 {
		half := uint64(1) << (63 - bits.LeadingZeros64(n-1))

		path <<= 1
		if i < half {
			n = half
		} else {
			path |= 1
			n -= half
			i -= half
		}
		depth++
	}
	return path, depth
}

// ExpectedProofLength returns the number of siblings
// that a valid proof for index among count leaves must have.
// It performs no hashing.
func ExpectedProofLength(count, index uint64) (int, error) {
	if count == 0 {
		if index != 0 {
			return 0, IndexOutOfBoundsError{Count: count, Index: index}
		}
		return 0, nil
	}
	if index >= count {
		return 0, IndexOutOfBoundsError{Count: count, Index: index}
	}

	_, depth := directionPath(count, index)
	return 1 + depth, nil
}

// Verify checks the shape of p without hashing:
// the index must be in bounds for the count,
// and the number of siblings must match [ExpectedProofLength].
//
// Verify says nothing about whether the hashes are correct.
// Compare the result of [IndexedProof.Root] with a trusted root for that.
func (p IndexedProof) Verify() error {
	exp, err := ExpectedProofLength(p.Count, p.Index)
	if err != nil {
		return err
	}
	if exp != len(p.Siblings) {
		return UnexpectedProofLengthError{
			Count: p.Count,
			Index: p.Index,

			Expected: exp,
			Actual:   len(p.Siblings),
		}
	}
	return nil
}

// Root reconstructs the Merkle root implied by p.
// It first runs [IndexedProof.Verify] and returns that error, if any.
//
// The reconstruction is iterative;
// its cost is bounded by the proof length regardless of Count.
func (p IndexedProof) Root() (cpdigest.Digest, error) {
	if err := p.Verify(); err != nil {
		return cpdigest.Digest{}, err
	}

	if p.Count == 0 {
		return bindCount(0, cpdigest.Sentinel2), nil
	}

	path, depth := directionPath(p.Count, p.Index)

	// The path was recorded top-down, but the siblings run bottom-up,
	// so the lowest path bit pairs with Siblings[1].
	acc := p.Siblings[0]
	for k := 0; k < depth; k++ {
		sib := p.Siblings[k+1]
		if (path>>k)&1 == 1 {
			acc = cpdigest.HashPair(sib[:], acc[:])
		} else {
			acc = cpdigest.HashPair(acc[:], sib[:])
		}
	}

	return bindCount(p.Count, acc), nil
}

// Leaf returns the authenticated leaf digest, Siblings[0].
// The second return value is false for an empty proof.
func (p IndexedProof) Leaf() (cpdigest.Digest, bool) {
	if len(p.Siblings) == 0 {
		return cpdigest.Digest{}, false
	}
	return p.Siblings[0], true
}
