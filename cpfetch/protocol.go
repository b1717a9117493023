// Package cpfetch serves and fetches verified chunks over QUIC streams.
//
// Each request uses its own bidirectional stream.
// The requester writes:
//
//	protocol ID  1 byte
//	root         32 bytes
//	index        u64 big-endian
//	chunk size   u32 big-endian
//
// and closes its write side.
// The server responds with a single status byte,
// followed by one encoded chunk (see [cpchunk.Chunk.AppendBinary])
// if the status is [StatusOK].
package cpfetch

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gordian-engine/chunkproof/cpdigest"
)

// ProtocolID is the first byte of every request.
const ProtocolID byte = 0xC1

const requestSize = 1 + cpdigest.Size + 8 + 4

// Status is the first byte of every response.
type Status byte

const (
	StatusOK Status = iota
	StatusNotFound
	StatusOutOfRange
	StatusBadRequest
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusOutOfRange:
		return "index out of range"
	case StatusBadRequest:
		return "bad request"
	default:
		return fmt.Sprintf("Status(%d)", byte(s))
	}
}

// StatusError is returned from [*Fetcher.FetchChunk]
// when the server responds with a status other than [StatusOK].
type StatusError struct {
	Status Status
}

func (e StatusError) Error() string {
	return "server responded: " + e.Status.String()
}

// Stream error codes sent when a stream is abandoned.
const (
	// The request was malformed.
	codeBadRequest = 0x01

	// The local context was canceled.
	codeCanceled = 0x02
)

type request struct {
	Root      cpdigest.Digest
	Index     uint64
	ChunkSize uint32
}

func (r request) appendTo(b []byte) []byte {
	b = append(b, ProtocolID)
	b = append(b, r.Root[:]...)
	b = binary.BigEndian.AppendUint64(b, r.Index)
	b = binary.BigEndian.AppendUint32(b, r.ChunkSize)
	return b
}

func readRequest(r io.Reader) (request, error) {
	var buf [requestSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return request{}, fmt.Errorf("failed to read request: %w", err)
	}

	if buf[0] != ProtocolID {
		return request{}, fmt.Errorf("unexpected protocol ID 0x%02x", buf[0])
	}

	var req request
	copy(req.Root[:], buf[1:1+cpdigest.Size])
	req.Index = binary.BigEndian.Uint64(buf[1+cpdigest.Size:])
	req.ChunkSize = binary.BigEndian.Uint32(buf[1+cpdigest.Size+8:])
	return req, nil
}
