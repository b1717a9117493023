// Package cperasure erasure-codes a blob into shards
// and authenticates every shard against a single Merkle root,
// so that any sufficient subset of verified shards recovers the blob.
//
// The root commits to all data and parity shards, in order.
// A receiver therefore rejects a corrupt shard on arrival,
// instead of discovering the corruption after reconstruction.
package cperasure

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
	"github.com/klauspost/reedsolomon"
)

// MaxShards is the largest total shard count Encode produces.
const MaxShards = 256

// EncodeConfig is the configuration for [Encode].
type EncodeConfig struct {
	// Maximum size of each shard.
	// The actual shard size may be smaller,
	// as the data is divided evenly across data shards.
	ShardSize int

	// Number of parity shards per data shard.
	// At least one parity shard is always produced.
	ParityRatio float32
}

// Encoded is an erasure-coded blob.
type Encoded struct {
	NumData, NumParity int

	// Length of the original data,
	// needed to strip padding from the final data shard.
	DataSize int

	// Size of every shard.
	ShardSize int

	// Data shards followed by parity shards.
	Shards [][]byte

	// The root over the digests of every shard.
	Root cpdigest.Digest

	leaves []cpdigest.Digest
}

// ErrEmptyData is returned from [Encode] when there is nothing to encode.
var ErrEmptyData = errors.New("cannot erasure-code empty data")

// Encode splits data into data shards no larger than cfg.ShardSize,
// adds parity shards, and computes the root over all shards.
func Encode(data []byte, cfg EncodeConfig) (Encoded, error) {
	if cfg.ShardSize <= 0 {
		panic(fmt.Errorf(
			"BUG: EncodeConfig.ShardSize must be positive (got %d)", cfg.ShardSize,
		))
	}
	if cfg.ParityRatio < 0 {
		panic(fmt.Errorf(
			"BUG: EncodeConfig.ParityRatio must not be negative (got %f)", cfg.ParityRatio,
		))
	}

	if len(data) == 0 {
		return Encoded{}, ErrEmptyData
	}

	nData := len(data) / cfg.ShardSize
	if len(data)%cfg.ShardSize > 0 {
		nData++
	}
	nParity := max(1, int(cfg.ParityRatio*float32(nData)))

	if nData+nParity > MaxShards {
		return Encoded{}, fmt.Errorf(
			"data too large: resulted in %d data and %d parity shards, but limit is %d",
			nData, nParity, MaxShards,
		)
	}

	enc, err := reedsolomon.New(
		nData, nParity,
		reedsolomon.WithAutoGoroutines(cfg.ShardSize),
	)
	if err != nil {
		return Encoded{}, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	shards, err := enc.Split(data)
	if err != nil {
		return Encoded{}, fmt.Errorf(
			"failed to split data for sharding: %w", err,
		)
	}

	if err := enc.Encode(shards); err != nil {
		return Encoded{}, fmt.Errorf(
			"failed to erasure-code data: %w", err,
		)
	}

	leaves := make([]cpdigest.Digest, len(shards))
	for i, s := range shards {
		leaves[i] = cpdigest.Hash(s)
	}

	return Encoded{
		NumData:   nData,
		NumParity: nParity,

		DataSize:  len(data),
		ShardSize: len(shards[0]),

		Shards: shards,

		Root: cpmerkle.RootOf(leaves),

		leaves: leaves,
	}, nil
}

// Chunk returns shard i packaged with its proof against e.Root.
func (e Encoded) Chunk(i int) (cpchunk.Chunk, error) {
	if i < 0 {
		return cpchunk.Chunk{}, fmt.Errorf("negative shard index %d", i)
	}

	proof, err := cpmerkle.BuildProof(e.leaves, uint64(i))
	if err != nil {
		return cpchunk.Chunk{}, err
	}
	return cpchunk.Chunk{
		Proof: proof,
		Data:  e.Shards[i],
	}, nil
}

// DecoderConfig returns the configuration
// a receiver needs to decode e.
func (e Encoded) DecoderConfig() DecoderConfig {
	return DecoderConfig{
		Root: e.Root,

		NumData:   e.NumData,
		NumParity: e.NumParity,

		DataSize:  e.DataSize,
		ShardSize: e.ShardSize,
	}
}
