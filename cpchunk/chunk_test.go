package cpchunk_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
	"github.com/gordian-engine/chunkproof/internal/cptest"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		dataLen   int
		chunkSize uint32
		want      uint64
	}{
		{dataLen: 0, chunkSize: 10, want: 1},
		{dataLen: 1, chunkSize: 10, want: 1},
		{dataLen: 10, chunkSize: 10, want: 1},
		{dataLen: 11, chunkSize: 10, want: 2},
		{dataLen: 25, chunkSize: 10, want: 3},
		{dataLen: 30, chunkSize: 10, want: 3},
		{dataLen: 7, chunkSize: 1, want: 7},
	} {
		require.Equalf(t, tc.want, cpchunk.Count(tc.dataLen, tc.chunkSize), "Count(%d, %d)", tc.dataLen, tc.chunkSize)
	}
}

func TestNew_threeChunks(t *testing.T) {
	t.Parallel()

	data := cptest.RandomDataForTest(t, 25)
	h0 := cpdigest.Hash(data[0:10])
	h1 := cpdigest.Hash(data[10:20])
	h2 := cpdigest.Hash(data[20:25])

	/* Tree layout:
	h0 h1 h2
	| /  /
	|/  /
	a  /
	| /
	|/
	raw
	*/
	a := cpdigest.HashPair(h0[:], h1[:])
	raw := cpdigest.HashPair(a[:], h2[:])
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], 3)
	wantRoot := cpdigest.HashPair(le[:], raw[:])

	require.Equal(t, wantRoot, cpchunk.Root(data, 10))

	c0, err := cpchunk.New(data, 0, 10)
	require.NoError(t, err)
	require.Equal(t, data[0:10], c0.Data)
	require.Equal(t, uint64(0), c0.Proof.Index)
	require.Equal(t, uint64(3), c0.Proof.Count)
	require.Equal(t, []cpdigest.Digest{h0, h1, h2}, c0.Proof.Siblings)

	c2, err := cpchunk.New(data, 2, 10)
	require.NoError(t, err)
	require.Equal(t, data[20:25], c2.Data)
	require.Equal(t, []cpdigest.Digest{h2, a}, c2.Proof.Siblings)

	for i := range uint64(3) {
		c, err := cpchunk.New(data, i, 10)
		require.NoError(t, err)
		require.True(t, c.Verify())
		require.NoError(t, c.VerifyAgainst(wantRoot))

		root, err := c.Proof.Root()
		require.NoError(t, err)
		require.Equal(t, wantRoot, root)
	}

	_, err = cpchunk.New(data, 3, 10)
	require.Equal(t, cpmerkle.IndexOutOfBoundsError{Count: 3, Index: 3}, err)
}

func TestNew_empty(t *testing.T) {
	t.Parallel()

	c, err := cpchunk.New(nil, 0, 10)
	require.NoError(t, err)
	require.Empty(t, c.Data)
	require.Equal(t, uint64(1), c.Proof.Count)
	require.Equal(t, []cpdigest.Digest{cpdigest.Hash(nil)}, c.Proof.Siblings)
	require.True(t, c.Verify())

	emptyLeaf := cpdigest.Hash(nil)
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], 1)
	want := cpdigest.HashPair(le[:], emptyLeaf[:])
	require.Equal(t, want, cpchunk.Root(nil, 10))
	require.Equal(t, want, cpchunk.Root([]byte{}, 1))
	require.NoError(t, c.VerifyAgainst(want))

	_, err = cpchunk.New([]byte{}, 1, 10)
	require.Equal(t, cpmerkle.IndexOutOfBoundsError{Count: 1, Index: 1}, err)
}

func TestNew_zeroChunkSizePanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_, _ = cpchunk.New([]byte("x"), 0, 0)
	})
}

func TestNew_allChunkCounts(t *testing.T) {
	t.Parallel()

	const chunkSize = 10

	random := cptest.RandomDataForTest(t, 31*chunkSize)
	zeros := make([]byte, 31*chunkSize)

	for _, src := range [][]byte{random, zeros} {
		for n := 0; n <= 31; n++ {
			// Lengths that are both exact multiples and one short of the chunk size.
			for _, dataLen := range []int{n * chunkSize, max(n*chunkSize-1, 0)} {
				data := src[:dataLen]
				count := cpchunk.Count(len(data), chunkSize)

				leaves := slices.Collect(cpchunk.LeafDigests(data, chunkSize))
				require.Len(t, leaves, int(count))
				root := cpmerkle.RootOf(leaves)
				require.Equal(t, root, cpchunk.Root(data, chunkSize))

				joined := make([]byte, 0, len(data))
				for i := range count {
					c, err := cpchunk.New(data, i, chunkSize)
					require.NoError(t, err)
					require.Truef(t, c.Verify(), "len=%d index=%d", dataLen, i)
					require.NoError(t, c.VerifyAgainst(root))
					joined = append(joined, c.Data...)
				}
				require.Equal(t, data, joined)

				_, err := cpchunk.New(data, count, chunkSize)
				require.Equal(t, cpmerkle.IndexOutOfBoundsError{Count: count, Index: count}, err)
			}
		}
	}
}

func TestPieces_stopsEarly(t *testing.T) {
	t.Parallel()

	data := []byte("abcdefghij")
	var got []string
	for p := range cpchunk.Pieces(data, 3) {
		got = append(got, string(p))
		if len(got) == 2 {
			break
		}
	}
	require.Equal(t, []string{"abc", "def"}, got)

	all := slices.Collect(cpchunk.Pieces(data, 3))
	require.Len(t, all, 4)
	require.Equal(t, []byte("j"), all[3])
}

func TestChunk_tampering(t *testing.T) {
	t.Parallel()

	data := cptest.RandomDataForTest(t, 95)
	root := cpchunk.Root(data, 10)

	orig, err := cpchunk.New(data, 4, 10)
	require.NoError(t, err)
	require.True(t, orig.Verify())

	t.Run("flipped data byte", func(t *testing.T) {
		t.Parallel()

		for i := range orig.Data {
			c := orig
			c.Data = slices.Clone(orig.Data)
			c.Data[i] ^= 0x01

			require.False(t, c.Verify())
			require.ErrorIs(t, c.VerifyAgainst(root), cpchunk.ErrDataMismatch)
		}
	})

	t.Run("replaced leaf", func(t *testing.T) {
		t.Parallel()

		c := orig
		c.Proof.Siblings = slices.Clone(orig.Proof.Siblings)
		c.Proof.Siblings[0] = cpdigest.Hash([]byte("something else"))

		require.False(t, c.Verify())
		require.ErrorIs(t, c.VerifyAgainst(root), cpchunk.ErrDataMismatch)
	})

	t.Run("replaced inner sibling", func(t *testing.T) {
		t.Parallel()

		c := orig
		c.Proof.Siblings = slices.Clone(orig.Proof.Siblings)
		c.Proof.Siblings[1] = cpdigest.Hash([]byte("something else"))

		// Still self-consistent, but no longer resolves to the true root.
		require.True(t, c.Verify())

		err := c.VerifyAgainst(root)
		require.ErrorAs(t, err, new(cpchunk.RootMismatchError))
	})

	t.Run("wrong count", func(t *testing.T) {
		t.Parallel()

		c := orig
		c.Proof.Count = 5

		require.False(t, c.Verify())
		require.ErrorAs(t, c.VerifyAgainst(root), new(cpmerkle.UnexpectedProofLengthError))
	})

	t.Run("appended sibling", func(t *testing.T) {
		t.Parallel()

		c := orig
		c.Proof.Siblings = append(slices.Clone(orig.Proof.Siblings), cpdigest.Sentinel0)

		require.False(t, c.Verify())
	})

	t.Run("empty proof", func(t *testing.T) {
		t.Parallel()

		c := cpchunk.Chunk{Data: orig.Data}
		require.False(t, c.Verify())
	})
}
