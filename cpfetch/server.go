package cpfetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/chunkproof/cpchunk"
	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
	"github.com/gordian-engine/chunkproof/cpquic"
)

// ChunkSource supplies the chunks a [Server] sends.
// [*cpstore.Provider] satisfies this interface.
type ChunkSource interface {
	ChunkSize(root cpdigest.Digest) (uint32, bool)
	Chunk(root cpdigest.Digest, index uint64) (cpchunk.Chunk, error)
}

// ServerConfig is the configuration for [NewServer].
type ServerConfig struct {
	Source ChunkSource

	// Deadline for reading one request and writing its response.
	// Defaults to 10 seconds if zero.
	StreamTimeout time.Duration

	// Optional.
	Metrics *Metrics
}

// Server answers chunk requests on QUIC connections.
type Server struct {
	log *slog.Logger

	src     ChunkSource
	timeout time.Duration

	m *Metrics
}

// NewServer returns a new Server.
func NewServer(log *slog.Logger, cfg ServerConfig) *Server {
	if cfg.Source == nil {
		panic(errors.New("BUG: ServerConfig.Source must not be nil"))
	}

	timeout := cfg.StreamTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Server{
		log: log,

		src:     cfg.Source,
		timeout: timeout,

		m: cfg.Metrics,
	}
}

// Serve accepts streams on conn and answers one request per stream,
// until ctx is canceled or the connection fails.
//
// Serve returns only after every stream it accepted has been handled.
func (s *Server) Serve(ctx context.Context, conn cpquic.Conn) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	log := s.log.With("remote", conn.RemoteAddr().String())

	for {
		st, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("failed to accept stream: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(log, st)
		}()
	}
}

func (s *Server) handle(log *slog.Logger, st cpquic.Stream) {
	if err := st.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		log.Debug("Failed to set stream deadline", "err", err)
	}

	req, err := readRequest(st)
	if err != nil {
		s.m.requestFailed()
		log.Debug("Rejecting malformed request", "err", err)
		st.CancelRead(codeBadRequest)
		st.CancelWrite(codeBadRequest)
		return
	}

	status, c := s.lookup(req)
	if status != StatusOK {
		s.m.requestFailed()
		log.Debug(
			"Cannot serve chunk",
			"root", req.Root,
			"index", req.Index,
			"status", status,
		)
		if _, err := st.Write([]byte{byte(status)}); err != nil {
			log.Debug("Failed to write status", "err", err)
		}
		_ = st.Close()
		return
	}

	b := make([]byte, 1, 1+c.EncodedLen())
	b[0] = byte(StatusOK)
	b, err = c.AppendBinary(b)
	if err != nil {
		// Stored chunks always fit the encoding.
		panic(fmt.Errorf("BUG: failed to encode stored chunk: %w", err))
	}

	if _, err := st.Write(b); err != nil {
		s.m.requestFailed()
		log.Debug("Failed to write chunk", "index", req.Index, "err", err)
		st.CancelWrite(codeCanceled)
		return
	}
	if err := st.Close(); err != nil {
		log.Debug("Failed to close stream", "err", err)
		return
	}

	s.m.served()
}

func (s *Server) lookup(req request) (Status, cpchunk.Chunk) {
	sz, ok := s.src.ChunkSize(req.Root)
	if !ok {
		return StatusNotFound, cpchunk.Chunk{}
	}
	if sz != req.ChunkSize {
		return StatusBadRequest, cpchunk.Chunk{}
	}

	c, err := s.src.Chunk(req.Root, req.Index)
	if err != nil {
		if errors.As(err, new(cpmerkle.IndexOutOfBoundsError)) {
			return StatusOutOfRange, cpchunk.Chunk{}
		}

		// The blob may have been removed since the size lookup.
		return StatusNotFound, cpchunk.Chunk{}
	}
	return StatusOK, c
}
