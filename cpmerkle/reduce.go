package cpmerkle

import (
	"encoding/binary"
	"errors"
	"iter"
	"slices"

	"github.com/gordian-engine/chunkproof/cpdigest"
)

// RootOf returns the Merkle root of leaves,
// with the leaf count bound into the result.
func RootOf(leaves []cpdigest.Digest) cpdigest.Digest {
	return RootOfSeq(slices.Values(leaves))
}

// RootOfSeq is like [RootOf] but consumes leaves from a sequence,
// holding at most one pending subtree per tree level.
func RootOfSeq(leaves iter.Seq[cpdigest.Digest]) cpdigest.Digest {
	var count uint64
	counted := func(yield func(cpdigest.Digest) bool) {
		for d := range leaves {
			count++
			if !yield(d) {
				return
			}
		}
	}

	raw, ok := treeFold(counted, func(l, r cpdigest.Digest) cpdigest.Digest {
		return cpdigest.HashPair(l[:], r[:])
	})
	if !ok {
		raw = cpdigest.Sentinel2
	}

	return bindCount(count, raw)
}

// bindCount is the final step of every root:
// the little-endian leaf count hashed with the raw root.
func bindCount(count uint64, raw cpdigest.Digest) cpdigest.Digest {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], count)
	return cpdigest.HashPair(le[:], raw[:])
}

// foldEntry is one pending subtree on the treeFold stack.
// Level zero is a single leaf; level k covers 2^k leaves.
type foldEntry[T any] struct {
	level uint8
	val   T
}

// treeFold reduces seq pairwise so that the result has
// the shape described in the package documentation.
//
// Complete subtrees are merged as soon as two of the same size are adjacent.
// When the sequence ends, the remaining subtrees are merged right to left,
// so the smaller trailing subtrees combine before joining larger ones.
// The stack never holds more than one entry per level,
// which bounds it to 65 entries for any 64-bit count.
//
// The second return value is false if seq was empty.
func treeFold[T any](seq iter.Seq[T], combine func(l, r T) T) (T, bool) {
	stack := make([]foldEntry[T], 0, 8)

	for v := range seq {
		cur := foldEntry[T]{val: v}
		for len(stack) > 0 && stack[len(stack)-1].level == cur.level {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			cur = foldEntry[T]{
				level: cur.level + 1,
				val:   combine(top.val, cur.val),
			}
		}
		stack = append(stack, cur)
	}

	if len(stack) == 0 {
		var zero T
		return zero, false
	}

	acc := stack[len(stack)-1].val
	for i := len(stack) - 2; i >= 0; i-- {
		acc = combine(stack[i].val, acc)
	}
	return acc, true
}

// HashSliceRFold hashes s as a right fold terminated by [cpdigest.Sentinel1]:
//
//	HashPair(a, HashPair(b, HashPair(c, Sentinel1)))
//
// Unlike a Merkle root, this suits heterogeneous lists
// that may be extended over time.
// An empty slice hashes to Sentinel1.
func HashSliceRFold(s []cpdigest.Digest) cpdigest.Digest {
	return HashSliceWithProof(s, cpdigest.Sentinel1)
}

// HashSliceWithProof is a right fold over s that starts from proof,
// where proof stands in for the missing tail of the slice.
func HashSliceWithProof(s []cpdigest.Digest, proof cpdigest.Digest) cpdigest.Digest {
	acc := proof
	for i := len(s) - 1; i >= 0; i-- {
		acc = cpdigest.HashPair(s[i][:], acc[:])
	}
	return acc
}

// proofCarrier is the value folded by BuildProofSeq.
// A plain carrier is the hash of a subtree without the target leaf.
// A proof carrier accumulates the siblings along the target leaf's path.
type proofCarrier struct {
	hash cpdigest.Digest

	siblings []cpdigest.Digest
	isProof  bool
}

func combineProofCarriers(l, r proofCarrier) proofCarrier {
	switch {
	case !l.isProof && !r.isProof:
		return proofCarrier{hash: cpdigest.HashPair(l.hash[:], r.hash[:])}
	case l.isProof && !r.isProof:
		l.siblings = append(l.siblings, r.hash)
		return l
	case !l.isProof && r.isProof:
		r.siblings = append(r.siblings, l.hash)
		return r
	default:
		// Only one leaf is ever tagged.
		panic(errors.New("BUG: attempted to combine two proof accumulators"))
	}
}
