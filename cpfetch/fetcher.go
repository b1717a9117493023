package cpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gordian-engine/chunkproof/cpblob"
	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpquic"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// FetcherConfig is the configuration for [NewFetcher].
type FetcherConfig struct {
	// Largest blob FetchBlob will allocate for.
	MaxBlobSize uint64

	// Maximum concurrent chunk requests in FetchBlob.
	// Defaults to 8 if zero.
	Parallelism int

	// Optional.
	Metrics     *Metrics
	BlobMetrics *cpblob.Metrics
}

// Fetcher requests chunks from remote servers
// and verifies every chunk before returning it.
type Fetcher struct {
	log *slog.Logger

	maxBlobSize uint64
	parallelism int

	m  *Metrics
	bm *cpblob.Metrics
}

// IndexMismatchError is returned from [*Fetcher.FetchChunk]
// when the server responds with a valid chunk at a different index.
type IndexMismatchError struct {
	Want, Got uint64
}

func (e IndexMismatchError) Error() string {
	return fmt.Sprintf("requested chunk %d but received chunk %d", e.Want, e.Got)
}

// NewFetcher returns a new Fetcher.
func NewFetcher(log *slog.Logger, cfg FetcherConfig) *Fetcher {
	if cfg.MaxBlobSize == 0 {
		panic(errors.New("BUG: FetcherConfig.MaxBlobSize must be positive"))
	}

	p := cfg.Parallelism
	if p <= 0 {
		p = 8
	}

	return &Fetcher{
		log: log,

		maxBlobSize: cfg.MaxBlobSize,
		parallelism: p,

		m:  cfg.Metrics,
		bm: cfg.BlobMetrics,
	}
}

// FetchChunk requests a single chunk from conn
// and verifies it against root.
//
// The chunk size bounds the data length the response may declare.
func (f *Fetcher) FetchChunk(
	ctx context.Context,
	conn cpquic.Conn,
	root cpdigest.Digest,
	index uint64,
	chunkSize uint32,
) (cpchunk.Chunk, error) {
	c, err := f.fetchChunk(ctx, conn, root, index, chunkSize)
	if err != nil {
		f.m.fetchFailed()
		if ctx.Err() != nil {
			return cpchunk.Chunk{}, context.Cause(ctx)
		}
		return cpchunk.Chunk{}, err
	}

	f.m.fetched()
	return c, nil
}

func (f *Fetcher) fetchChunk(
	ctx context.Context,
	conn cpquic.Conn,
	root cpdigest.Digest,
	index uint64,
	chunkSize uint32,
) (cpchunk.Chunk, error) {
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return cpchunk.Chunk{}, fmt.Errorf("failed to open stream: %w", err)
	}

	// Blocked reads and writes have no context of their own.
	stop := context.AfterFunc(ctx, func() {
		st.CancelRead(codeCanceled)
		st.CancelWrite(codeCanceled)
	})
	defer stop()

	req := request{Root: root, Index: index, ChunkSize: chunkSize}
	if _, err := st.Write(req.appendTo(make([]byte, 0, requestSize))); err != nil {
		return cpchunk.Chunk{}, fmt.Errorf("failed to write request: %w", err)
	}
	if err := st.Close(); err != nil {
		return cpchunk.Chunk{}, fmt.Errorf("failed to close request side: %w", err)
	}

	var status [1]byte
	if _, err := io.ReadFull(st, status[:]); err != nil {
		return cpchunk.Chunk{}, fmt.Errorf("failed to read status: %w", err)
	}
	if s := Status(status[0]); s != StatusOK {
		return cpchunk.Chunk{}, StatusError{Status: s}
	}

	c, err := cpchunk.NewDecoder(st, chunkSize).Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return cpchunk.Chunk{}, fmt.Errorf("failed to decode chunk: %w", err)
	}

	// Nothing else is expected on this stream.
	st.CancelRead(0)

	if c.Proof.Index != index {
		return cpchunk.Chunk{}, IndexMismatchError{Want: index, Got: c.Proof.Index}
	}
	if err := c.VerifyAgainst(root); err != nil {
		return cpchunk.Chunk{}, fmt.Errorf("received invalid chunk: %w", err)
	}

	return c, nil
}

// FetchBlob retrieves and reassembles the whole blob identified by root,
// spreading requests across conns.
//
// Chunk 0 is fetched first, to learn the chunk count.
// The remaining chunks are fetched concurrently.
// A failed chunk is retried on each other connection in turn,
// and if every connection fails for some chunk,
// the returned error aggregates each connection's failure.
func (f *Fetcher) FetchBlob(
	ctx context.Context,
	conns []cpquic.Conn,
	root cpdigest.Digest,
	chunkSize uint32,
) ([]byte, error) {
	if len(conns) == 0 {
		return nil, errors.New("no connections to fetch from")
	}

	r := cpblob.NewReassembler(f.log.With("root", root.String()), cpblob.ReassemblerConfig{
		Root:        root,
		ChunkSize:   chunkSize,
		MaxBlobSize: f.maxBlobSize,
		Metrics:     f.bm,
	})

	if err := f.fetchInto(ctx, r, conns, root, 0, chunkSize); err != nil {
		return nil, err
	}

	count, ok := r.Count()
	if !ok {
		panic(errors.New("BUG: reassembler has no count after accepting first chunk"))
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i := uint64(1); i < count; i++ {
		g.Go(func() error {
			return f.fetchInto(gCtx, r, conns, root, i, chunkSize)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return r.Bytes()
}

func (f *Fetcher) fetchInto(
	ctx context.Context,
	r *cpblob.Reassembler,
	conns []cpquic.Conn,
	root cpdigest.Digest,
	index uint64,
	chunkSize uint32,
) error {
	var merr *multierror.Error

	start := int(index % uint64(len(conns)))
	for k := range len(conns) {
		conn := conns[(start+k)%len(conns)]

		c, err := f.FetchChunk(ctx, conn, root, index, chunkSize)
		if err == nil {
			err = r.AddChunk(c)
			if err == nil || errors.Is(err, cpblob.ErrAlreadyHaveChunk) {
				return nil
			}

			// The chunk verified against the root,
			// so another peer cannot supply a better one.
			return fmt.Errorf("failed to add chunk %d: %w", index, err)
		}

		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		f.log.Debug(
			"Chunk fetch failed; trying next peer",
			"index", index,
			"remote", conn.RemoteAddr().String(),
			"err", err,
		)
		merr = multierror.Append(merr, fmt.Errorf("peer %s: %w", conn.RemoteAddr(), err))
	}

	return fmt.Errorf("failed to fetch chunk %d from any peer: %w", index, merr.ErrorOrNil())
}
