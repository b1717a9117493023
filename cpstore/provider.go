// Package cpstore holds blobs in memory and serves their chunks by root.
package cpstore

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
	lru "github.com/hashicorp/golang-lru"
)

// ErrUnknownRoot is returned from [*Provider.Chunk]
// when no blob with the requested root has been stored.
var ErrUnknownRoot = errors.New("unknown root")

// ProviderConfig is the configuration for [NewProvider].
type ProviderConfig struct {
	// How many blobs' leaf digests to keep in memory.
	// Leaves evicted from the cache are recomputed on demand.
	// Defaults to 64 if zero.
	LeafCacheSize int
}

// Provider stores blobs keyed by their Merkle root.
// It is safe for concurrent use.
type Provider struct {
	log *slog.Logger

	mu    sync.RWMutex
	blobs map[cpdigest.Digest]blob

	// Root -> []cpdigest.Digest.
	leaves *lru.Cache
}

type blob struct {
	data      []byte
	chunkSize uint32
}

// NewProvider returns a new, empty Provider.
func NewProvider(log *slog.Logger, cfg ProviderConfig) *Provider {
	size := cfg.LeafCacheSize
	if size == 0 {
		size = 64
	}

	leaves, err := lru.New(size)
	if err != nil {
		panic(fmt.Errorf("BUG: failed to create leaf cache: %w", err))
	}

	return &Provider{
		log: log,

		blobs:  make(map[cpdigest.Digest]blob),
		leaves: leaves,
	}
}

// Put stores data split at chunkSize and returns its root.
// The provider retains data, so the caller must not modify it afterward.
func (p *Provider) Put(data []byte, chunkSize uint32) cpdigest.Digest {
	leaves := slices.Collect(cpchunk.LeafDigests(data, chunkSize))
	root := cpmerkle.RootOf(leaves)

	p.mu.Lock()
	p.blobs[root] = blob{data: data, chunkSize: chunkSize}
	p.mu.Unlock()

	p.leaves.Add(root, leaves)

	p.log.Debug(
		"Stored blob",
		"root", root,
		"size", len(data),
		"chunks", len(leaves),
	)

	return root
}

// Remove discards the blob with the given root, if present.
func (p *Provider) Remove(root cpdigest.Digest) {
	p.mu.Lock()
	delete(p.blobs, root)
	p.mu.Unlock()

	p.leaves.Remove(root)
}

// ChunkSize reports the chunk size the blob with the given root was stored with.
func (p *Provider) ChunkSize(root cpdigest.Digest) (uint32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	b, ok := p.blobs[root]
	return b.chunkSize, ok
}

// Chunk returns the chunk at index of the blob with the given root.
//
// An index beyond the blob's chunk count
// results in a [cpmerkle.IndexOutOfBoundsError].
func (p *Provider) Chunk(root cpdigest.Digest, index uint64) (cpchunk.Chunk, error) {
	p.mu.RLock()
	b, ok := p.blobs[root]
	p.mu.RUnlock()
	if !ok {
		return cpchunk.Chunk{}, ErrUnknownRoot
	}

	var leaves []cpdigest.Digest
	if v, ok := p.leaves.Get(root); ok {
		leaves = v.([]cpdigest.Digest)
	} else {
		leaves = slices.Collect(cpchunk.LeafDigests(b.data, b.chunkSize))
		p.leaves.Add(root, leaves)
	}

	proof, err := cpmerkle.BuildProof(leaves, index)
	if err != nil {
		return cpchunk.Chunk{}, err
	}

	if len(b.data) == 0 {
		return cpchunk.Chunk{Proof: proof, Data: b.data}, nil
	}

	start := index * uint64(b.chunkSize)
	end := min(start+uint64(b.chunkSize), uint64(len(b.data)))
	return cpchunk.Chunk{
		Proof: proof,
		Data:  b.data[start:end:end],
	}, nil
}
