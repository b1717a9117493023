package cptest_test

import (
	"testing"

	"github.com/gordian-engine/chunkproof/internal/cptest"
	"github.com/stretchr/testify/require"
)

func TestRandomDataForTest(t *testing.T) {
	t.Parallel()

	a := cptest.RandomDataForTest(t, 64)
	require.Len(t, a, 64)
	require.Equal(t, a, cptest.RandomDataForTest(t, 64))

	// A longer request extends the same stream.
	require.Equal(t, a, cptest.RandomDataForTest(t, 128)[:64])

	t.Run("other name", func(t *testing.T) {
		t.Parallel()

		require.NotEqual(t, a, cptest.RandomDataForTest(t, 64))
	})
}
