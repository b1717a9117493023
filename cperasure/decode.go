package cperasure

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/klauspost/reedsolomon"
)

// DecoderConfig is the configuration for [NewDecoder].
// See [Encoded.DecoderConfig].
type DecoderConfig struct {
	Root cpdigest.Digest

	NumData, NumParity int

	DataSize  int
	ShardSize int
}

var (
	// ErrAlreadyHaveShard is returned from [*Decoder.AddShard]
	// for a shard index that was already accepted.
	ErrAlreadyHaveShard = errors.New("already have shard")

	// ErrNotEnoughShards is returned from [*Decoder.Data]
	// before NumData shards have been accepted.
	ErrNotEnoughShards = errors.New("not enough shards to reconstruct data")
)

// ShardShapeError is returned from [*Decoder.AddShard]
// when a shard that verified against the root
// does not match the decoder's configured shape.
// This indicates that the configuration does not belong to the root.
type ShardShapeError struct {
	Index uint64

	WantCount, GotCount uint64
	WantSize, GotSize   int
}

func (e ShardShapeError) Error() string {
	return fmt.Sprintf(
		"shard %d: expected %d shards of %d bytes, got %d shards of %d bytes",
		e.Index, e.WantCount, e.WantSize, e.GotCount, e.GotSize,
	)
}

// Decoder collects verified shards until the data can be reconstructed.
// It is safe for concurrent use.
type Decoder struct {
	cfg DecoderConfig
	enc reedsolomon.Encoder

	mu sync.Mutex

	shards [][]byte
	have   *bitset.BitSet

	// Set once reconstructed.
	data []byte
}

// NewDecoder returns a Decoder for the blob described by cfg.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if cfg.ShardSize <= 0 {
		return nil, fmt.Errorf("shard size must be positive (got %d)", cfg.ShardSize)
	}
	if cfg.DataSize > cfg.NumData*cfg.ShardSize {
		return nil, fmt.Errorf(
			"data size %d does not fit in %d shards of %d bytes",
			cfg.DataSize, cfg.NumData, cfg.ShardSize,
		)
	}

	enc, err := reedsolomon.New(
		cfg.NumData, cfg.NumParity,
		reedsolomon.WithAutoGoroutines(cfg.ShardSize),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	total := cfg.NumData + cfg.NumParity
	return &Decoder{
		cfg: cfg,
		enc: enc,

		shards: make([][]byte, total),
		have:   bitset.MustNew(uint(total)),
	}, nil
}

// AddShard verifies c against the configured root and stores it.
// The ready result reports whether enough shards are held
// for [*Decoder.Data] to succeed.
func (d *Decoder) AddShard(c cpchunk.Chunk) (ready bool, err error) {
	if err := c.VerifyAgainst(d.cfg.Root); err != nil {
		return false, fmt.Errorf("rejecting shard %d: %w", c.Proof.Index, err)
	}

	total := uint64(d.cfg.NumData + d.cfg.NumParity)
	if c.Proof.Count != total || len(c.Data) != d.cfg.ShardSize {
		return false, ShardShapeError{
			Index: c.Proof.Index,

			WantCount: total,
			GotCount:  c.Proof.Count,

			WantSize: d.cfg.ShardSize,
			GotSize:  len(c.Data),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := uint(c.Proof.Index)
	if d.have.Test(idx) {
		return d.have.Count() >= uint(d.cfg.NumData), ErrAlreadyHaveShard
	}

	d.shards[idx] = slices.Clone(c.Data)
	d.have.Set(idx)

	return d.have.Count() >= uint(d.cfg.NumData), nil
}

// Data reconstructs and returns the original blob.
// It returns [ErrNotEnoughShards] until enough shards have been added.
func (d *Decoder) Data() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.data != nil {
		return d.data, nil
	}

	if d.have.Count() < uint(d.cfg.NumData) {
		return nil, ErrNotEnoughShards
	}

	if err := d.enc.ReconstructData(d.shards); err != nil {
		// Every shard was verified against the root,
		// so this indicates a mismatched configuration.
		return nil, fmt.Errorf("failed to reconstruct data: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(d.cfg.DataSize)
	if err := d.enc.Join(&buf, d.shards, d.cfg.DataSize); err != nil {
		return nil, fmt.Errorf("failed to join data shards: %w", err)
	}

	d.data = buf.Bytes()
	return d.data, nil
}
