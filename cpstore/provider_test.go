package cpstore_test

import (
	"testing"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
	"github.com/gordian-engine/chunkproof/cpstore"
	"github.com/gordian-engine/chunkproof/internal/cptest"
	"github.com/stretchr/testify/require"
)

func TestProvider_matchesChunkNew(t *testing.T) {
	t.Parallel()

	data := cptest.RandomDataForTest(t, 333)
	const chunkSize = 16

	p := cpstore.NewProvider(cptest.NewLogger(t), cpstore.ProviderConfig{})
	root := p.Put(data, chunkSize)
	require.Equal(t, cpchunk.Root(data, chunkSize), root)

	sz, ok := p.ChunkSize(root)
	require.True(t, ok)
	require.Equal(t, uint32(chunkSize), sz)

	count := cpchunk.Count(len(data), chunkSize)
	for i := range count {
		got, err := p.Chunk(root, i)
		require.NoError(t, err)

		want, err := cpchunk.New(data, i, chunkSize)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.NoError(t, got.VerifyAgainst(root))
	}

	_, err := p.Chunk(root, count)
	require.Equal(t, cpmerkle.IndexOutOfBoundsError{Count: count, Index: count}, err)
}

func TestProvider_unknownRoot(t *testing.T) {
	t.Parallel()

	p := cpstore.NewProvider(cptest.NewLogger(t), cpstore.ProviderConfig{})
	_, err := p.Chunk(cpdigest.Sentinel0, 0)
	require.ErrorIs(t, err, cpstore.ErrUnknownRoot)

	_, ok := p.ChunkSize(cpdigest.Sentinel0)
	require.False(t, ok)
}

func TestProvider_evictedLeavesRecomputed(t *testing.T) {
	t.Parallel()

	p := cpstore.NewProvider(cptest.NewLogger(t), cpstore.ProviderConfig{
		LeafCacheSize: 1,
	})

	a := cptest.RandomDataForTest(t, 100)
	b := []byte("a second, shorter blob")
	rootA := p.Put(a, 7)
	rootB := p.Put(b, 7)

	// Storing b evicted a's leaves from the cache.
	c, err := p.Chunk(rootA, 3)
	require.NoError(t, err)
	require.NoError(t, c.VerifyAgainst(rootA))

	c, err = p.Chunk(rootB, 0)
	require.NoError(t, err)
	require.NoError(t, c.VerifyAgainst(rootB))
}

func TestProvider_emptyAndRemove(t *testing.T) {
	t.Parallel()

	p := cpstore.NewProvider(cptest.NewLogger(t), cpstore.ProviderConfig{})
	root := p.Put(nil, 8)

	c, err := p.Chunk(root, 0)
	require.NoError(t, err)
	require.Empty(t, c.Data)
	require.NoError(t, c.VerifyAgainst(root))

	p.Remove(root)
	_, err = p.Chunk(root, 0)
	require.ErrorIs(t, err, cpstore.ErrUnknownRoot)
}
