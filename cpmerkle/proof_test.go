package cpmerkle_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
	"github.com/stretchr/testify/require"
)

func TestRootOf_empty(t *testing.T) {
	t.Parallel()

	exp := cpdigest.HashPair(le64(0), cpdigest.Sentinel2[:])
	require.Equal(t, exp, cpmerkle.RootOf(nil))
	require.Equal(t, exp, cpmerkle.RootOf([]cpdigest.Digest{}))
}

func TestRootOf_single(t *testing.T) {
	t.Parallel()

	a := cpdigest.Hash([]byte("a"))

	// A single leaf is its own raw root.
	exp := cpdigest.HashPair(le64(1), a[:])
	require.Equal(t, exp, cpmerkle.RootOf([]cpdigest.Digest{a}))
}

func TestRootOf_explicitShapes(t *testing.T) {
	t.Parallel()

	leaves := testLeaves(7)
	a, b, c, d, e, f, g := leaves[0], leaves[1], leaves[2], leaves[3], leaves[4], leaves[5], leaves[6]

	t.Run("2 leaves", func(t *testing.T) {
		t.Parallel()

		/* Tree layout:

		ab
		a b
		*/
		raw := pair(a, b)
		require.Equal(t, bound(2, raw), cpmerkle.RootOf(leaves[:2]))
	})

	t.Run("3 leaves", func(t *testing.T) {
		t.Parallel()

		/* Tree layout:

		abc
		ab c
		a b
		*/
		raw := pair(pair(a, b), c)
		require.Equal(t, bound(3, raw), cpmerkle.RootOf(leaves[:3]))
	})

	t.Run("5 leaves", func(t *testing.T) {
		t.Parallel()

		/* Tree layout:

		abcde
		abcd e
		ab cd
		a b c d
		*/
		raw := pair(pair(pair(a, b), pair(c, d)), e)
		require.Equal(t, bound(5, raw), cpmerkle.RootOf(leaves[:5]))
	})

	t.Run("6 leaves", func(t *testing.T) {
		t.Parallel()

		/* Tree layout:

		abcdef
		abcd ef
		ab cd e f
		a b c d
		*/
		raw := pair(pair(pair(a, b), pair(c, d)), pair(e, f))
		require.Equal(t, bound(6, raw), cpmerkle.RootOf(leaves[:6]))
	})

	t.Run("7 leaves", func(t *testing.T) {
		t.Parallel()

		/* Tree layout:

		abcdefg
		abcd efg
		ab cd ef g
		a b c d e f
		*/
		raw := pair(pair(pair(a, b), pair(c, d)), pair(pair(e, f), g))
		require.Equal(t, bound(7, raw), cpmerkle.RootOf(leaves[:7]))
	})
}

func TestRootOf_matchesRecursiveReference(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 130; n++ {
		leaves := testLeaves(n)
		exp := bound(uint64(n), referenceRawRoot(leaves))
		require.Equal(t, exp, cpmerkle.RootOf(leaves), "n=%d", n)
	}
}

func TestRootOf_orderAndCountSensitive(t *testing.T) {
	t.Parallel()

	leaves := testLeaves(5)
	root := cpmerkle.RootOf(leaves)

	// Deterministic.
	require.Equal(t, root, cpmerkle.RootOf(slices.Clone(leaves)))

	// Swapping two distinct leaves changes the root.
	swapped := slices.Clone(leaves)
	swapped[1], swapped[3] = swapped[3], swapped[1]
	require.NotEqual(t, root, cpmerkle.RootOf(swapped))

	// Two leaves hash to a raw root that is also a valid single leaf,
	// but the count binding keeps the roots distinct.
	two := leaves[:2]
	single := []cpdigest.Digest{pair(two[0], two[1])}
	require.NotEqual(t, cpmerkle.RootOf(two), cpmerkle.RootOf(single))
}

func TestRootOfSeq_matchesRootOf(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 2, 9, 64, 65} {
		leaves := testLeaves(n)
		require.Equal(t, cpmerkle.RootOf(leaves), cpmerkle.RootOfSeq(slices.Values(leaves)))
	}
}

func TestBuildProof_rootAgreement(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 70; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			leaves := testLeaves(n)
			expRoot := cpmerkle.RootOf(leaves)

			for i := range n {
				p, err := cpmerkle.BuildProof(leaves, uint64(i))
				require.NoError(t, err)

				require.Equal(t, uint64(i), p.Index)
				require.Equal(t, uint64(n), p.Count)

				leaf, ok := p.Leaf()
				require.True(t, ok)
				require.Equal(t, leaves[i], leaf)

				require.NoError(t, p.Verify())

				root, err := p.Root()
				require.NoError(t, err)
				require.Equal(t, expRoot, root, "index %d", i)
			}
		})
	}
}

func TestBuildProof_matchesRecursiveReference(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 3, 4, 5, 6, 7, 8, 11, 17, 33} {
		leaves := testLeaves(n)
		for i := range n {
			p, err := cpmerkle.BuildProof(leaves, uint64(i))
			require.NoError(t, err)

			exp := referenceSiblings(leaves, i)
			if diff := cmp.Diff(exp, p.Siblings); diff != "" {
				t.Fatalf("n=%d, i=%d: siblings mismatch (-want +got):\n%s", n, i, diff)
			}
		}
	}
}

func TestBuildProofSeq_matchesBuildProof(t *testing.T) {
	t.Parallel()

	leaves := testLeaves(13)
	for i := range uint64(13) {
		want, err := cpmerkle.BuildProof(leaves, i)
		require.NoError(t, err)

		got, err := cpmerkle.BuildProofSeq(slices.Values(leaves), i)
		require.NoError(t, err)

		require.Empty(t, cmp.Diff(want, got))
	}
}

func TestBuildProof_empty(t *testing.T) {
	t.Parallel()

	p, err := cpmerkle.BuildProof(nil, 0)
	require.NoError(t, err)
	require.Zero(t, p.Count)
	require.Zero(t, p.Index)
	require.Empty(t, p.Siblings)

	require.NoError(t, p.Verify())

	_, ok := p.Leaf()
	require.False(t, ok)

	root, err := p.Root()
	require.NoError(t, err)
	require.Equal(t, cpmerkle.RootOf(nil), root)

	_, err = cpmerkle.BuildProof(nil, 1)
	var emptyErr cpmerkle.EmptyProofMustHaveIndexError
	require.ErrorAs(t, err, &emptyErr)
	require.Equal(t, uint64(1), emptyErr.Index)
}

func TestBuildProof_indexOutOfBounds(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 10} {
		leaves := testLeaves(n)

		_, err := cpmerkle.BuildProof(leaves, uint64(n))
		var oob cpmerkle.IndexOutOfBoundsError
		require.ErrorAs(t, err, &oob)
		require.Equal(t, cpmerkle.IndexOutOfBoundsError{Count: uint64(n), Index: uint64(n)}, oob)

		_, err = cpmerkle.BuildProof(leaves, math.MaxUint64)
		require.ErrorAs(t, err, &oob)
		require.Equal(t, uint64(n), oob.Count)
	}
}

func TestExpectedProofLength_matchesBuilder(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 300; n++ {
		leaves := testLeaves(n)
		for i := range n {
			p, err := cpmerkle.BuildProof(leaves, uint64(i))
			require.NoError(t, err)

			exp, err := cpmerkle.ExpectedProofLength(uint64(n), uint64(i))
			require.NoError(t, err)
			require.Equal(t, len(p.Siblings), exp, "n=%d, i=%d", n, i)
			require.LessOrEqual(t, exp, cpmerkle.MaxProofLength)
		}
	}
}

func TestExpectedProofLength_largeCounts(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		count, index uint64
		want         int
	}{
		{count: 1, index: 0, want: 1},
		{count: 2, index: 1, want: 2},
		{count: 3, index: 2, want: 2},
		{count: 1 << 62, index: 0, want: 63},
		{count: 1 << 62, index: (1 << 62) - 1, want: 63},
		{count: 1 << 63, index: 12345, want: 64},
		{count: math.MaxUint64, index: 0, want: 65},
		// The right subtree of a maximal count has 2^63-1 leaves.
		{count: math.MaxUint64, index: math.MaxUint64 - 1, want: 64},
	} {
		got, err := cpmerkle.ExpectedProofLength(tc.count, tc.index)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "count=%d, index=%d", tc.count, tc.index)
	}
}

func TestExpectedProofLength_outOfBounds(t *testing.T) {
	t.Parallel()

	_, err := cpmerkle.ExpectedProofLength(0, 1)
	require.ErrorAs(t, err, new(cpmerkle.IndexOutOfBoundsError))

	_, err = cpmerkle.ExpectedProofLength(5, 5)
	require.ErrorAs(t, err, new(cpmerkle.IndexOutOfBoundsError))

	n, err := cpmerkle.ExpectedProofLength(0, 0)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestIndexedProof_Verify_shape(t *testing.T) {
	t.Parallel()

	leaves := testLeaves(6)
	p, err := cpmerkle.BuildProof(leaves, 4)
	require.NoError(t, err)
	require.NoError(t, p.Verify())

	t.Run("too short", func(t *testing.T) {
		t.Parallel()

		short := p
		short.Siblings = p.Siblings[:len(p.Siblings)-1]

		err := short.Verify()
		var lenErr cpmerkle.UnexpectedProofLengthError
		require.ErrorAs(t, err, &lenErr)
		require.Equal(t, cpmerkle.UnexpectedProofLengthError{
			Count: 6, Index: 4,
			Expected: len(p.Siblings), Actual: len(p.Siblings) - 1,
		}, lenErr)

		_, err = short.Root()
		require.ErrorAs(t, err, &lenErr)
	})

	t.Run("too long", func(t *testing.T) {
		t.Parallel()

		long := p
		long.Siblings = append(slices.Clone(p.Siblings), leaves[0])
		require.ErrorAs(t, long.Verify(), new(cpmerkle.UnexpectedProofLengthError))
	})

	t.Run("index out of bounds", func(t *testing.T) {
		t.Parallel()

		bad := p
		bad.Index = 6
		require.ErrorAs(t, bad.Verify(), new(cpmerkle.IndexOutOfBoundsError))
	})

	t.Run("empty count with siblings", func(t *testing.T) {
		t.Parallel()

		bad := cpmerkle.IndexedProof{Siblings: leaves[:1]}
		require.ErrorAs(t, bad.Verify(), new(cpmerkle.UnexpectedProofLengthError))
	})

	t.Run("claimed count differs", func(t *testing.T) {
		t.Parallel()

		// Index 4 of 6 has three siblings, but index 4 of 8 has four.
		bad := p
		bad.Count = 8
		require.ErrorAs(t, bad.Verify(), new(cpmerkle.UnexpectedProofLengthError))
	})
}

func TestIndexedProof_Root_tamperedSibling(t *testing.T) {
	t.Parallel()

	leaves := testLeaves(11)
	root := cpmerkle.RootOf(leaves)

	for i := range uint64(11) {
		p, err := cpmerkle.BuildProof(leaves, i)
		require.NoError(t, err)

		for j := range p.Siblings {
			tampered := p
			tampered.Siblings = slices.Clone(p.Siblings)
			tampered.Siblings[j][0] ^= 0xff

			got, err := tampered.Root()
			require.NoError(t, err) // Shape is still fine.
			require.NotEqual(t, root, got, "index %d, sibling %d", i, j)
		}

		// Same siblings at a different claimed index with the same shape
		// must not resolve to the same root.
		if i > 0 {
			moved := p
			moved.Index = i - 1
			if moved.Verify() == nil {
				got, err := moved.Root()
				require.NoError(t, err)
				require.NotEqual(t, root, got)
			}
		}
	}
}

func TestIndexedProof_Root_deepProofs(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		count, index uint64
	}{
		{count: 1 << 62, index: 0},
		{count: 1 << 62, index: (1 << 62) - 1},
		{count: (1 << 62) + 3, index: (1 << 62) + 1},
		{count: math.MaxUint64, index: 0},
		{count: math.MaxUint64, index: math.MaxUint64 - 1},
	} {
		n, err := cpmerkle.ExpectedProofLength(tc.count, tc.index)
		require.NoError(t, err)

		sibs := testLeaves(n)
		p := cpmerkle.IndexedProof{Index: tc.index, Count: tc.count, Siblings: sibs}

		root, err := p.Root()
		require.NoError(t, err)

		// Recompute by hand with an explicit top-down walk.
		require.Equal(t, manualRoot(tc.count, tc.index, sibs), root)
	}
}

func TestHashSliceRFold(t *testing.T) {
	t.Parallel()

	require.Equal(t, cpdigest.Sentinel1, cpmerkle.HashSliceRFold(nil))

	leaves := testLeaves(3)
	a, b, c := leaves[0], leaves[1], leaves[2]

	exp := pair(a, pair(b, pair(c, cpdigest.Sentinel1)))
	require.Equal(t, exp, cpmerkle.HashSliceRFold(leaves))

	// The proof stands in for the tail.
	tail := cpmerkle.HashSliceRFold(leaves[1:])
	require.Equal(t, exp, cpmerkle.HashSliceWithProof(leaves[:1], tail))
}

func testLeaves(n int) []cpdigest.Digest {
	out := make([]cpdigest.Digest, n)
	for i := range out {
		out[i] = cpdigest.Hash(le64(uint64(i)))
	}
	return out
}

func le64(x uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, x)
}

func pair(l, r cpdigest.Digest) cpdigest.Digest {
	return cpdigest.HashPair(l[:], r[:])
}

func bound(count uint64, raw cpdigest.Digest) cpdigest.Digest {
	return cpdigest.HashPair(le64(count), raw[:])
}

// leftSize is the number of leaves in the left subtree of an n-leaf tree.
func leftSize(n int) int {
	return 1 << (bits.Len(uint(n-1)) - 1)
}

func referenceRawRoot(leaves []cpdigest.Digest) cpdigest.Digest {
	if len(leaves) == 1 {
		return leaves[0]
	}
	h := leftSize(len(leaves))
	return pair(referenceRawRoot(leaves[:h]), referenceRawRoot(leaves[h:]))
}

// referenceSiblings returns the expected proof siblings, bottom-up,
// with the leaf itself first.
func referenceSiblings(leaves []cpdigest.Digest, i int) []cpdigest.Digest {
	if len(leaves) == 1 {
		return []cpdigest.Digest{leaves[0]}
	}
	h := leftSize(len(leaves))
	if i < h {
		return append(referenceSiblings(leaves[:h], i), referenceRawRoot(leaves[h:]))
	}
	return append(referenceSiblings(leaves[h:], i-h), referenceRawRoot(leaves[:h]))
}

// manualRoot walks top-down collecting directions,
// then folds the siblings bottom-up.
func manualRoot(count, index uint64, sibs []cpdigest.Digest) cpdigest.Digest {
	var rights []bool
	n, i := count, index
	for n > 1 {
		h := uint64(1) << (bits.Len64(n-1) - 1)
		if i < h {
			rights = append(rights, false)
			n = h
		} else {
			rights = append(rights, true)
			n -= h
			i -= h
		}
	}

	acc := sibs[0]
	for k := 1; k < len(sibs); k++ {
		if rights[len(rights)-k] {
			acc = pair(sibs[k], acc)
		} else {
			acc = pair(acc, sibs[k])
		}
	}
	return bound(count, acc)
}
