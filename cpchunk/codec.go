package cpchunk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gordian-engine/chunkproof/cpdigest"
	"github.com/gordian-engine/chunkproof/cpmerkle"
)

// The encoded form of a chunk is:
//
//	index      u64 LE
//	count      u64 LE
//	nSiblings  u32 LE
//	siblings   nSiblings * 32 bytes
//	dataLen    u32 LE
//	data       dataLen bytes
const (
	proofHeaderSize = 8 + 8 + 4
	dataHeaderSize  = 4
)

// EncodedLen returns the number of bytes [Chunk.AppendBinary] will write.
func (c Chunk) EncodedLen() int {
	return proofHeaderSize + cpdigest.Size*len(c.Proof.Siblings) + dataHeaderSize + len(c.Data)
}

// AppendBinary appends the encoded form of c to b.
func (c Chunk) AppendBinary(b []byte) ([]byte, error) {
	if len(c.Proof.Siblings) > math.MaxUint32 {
		return b, fmt.Errorf("cannot encode %d siblings", len(c.Proof.Siblings))
	}
	if len(c.Data) > math.MaxUint32 {
		return b, fmt.Errorf("cannot encode %d data bytes", len(c.Data))
	}

	b = binary.LittleEndian.AppendUint64(b, c.Proof.Index)
	b = binary.LittleEndian.AppendUint64(b, c.Proof.Count)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(c.Proof.Siblings)))
	for _, s := range c.Proof.Siblings {
		b = append(b, s[:]...)
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(c.Data)))
	b = append(b, c.Data...)
	return b, nil
}

// MarshalBinary returns the encoded form of c.
func (c Chunk) MarshalBinary() ([]byte, error) {
	return c.AppendBinary(make([]byte, 0, c.EncodedLen()))
}

// PayloadTooLargeError is returned when decoding a chunk
// whose declared data length exceeds the decoder's limit.
type PayloadTooLargeError struct {
	Size, Max uint32
}

func (e PayloadTooLargeError) Error() string {
	return fmt.Sprintf("chunk data length %d exceeds maximum %d", e.Size, e.Max)
}

// ErrTrailingData is returned from [Unmarshal]
// when the input continues past a single encoded chunk.
var ErrTrailingData = errors.New("trailing data after encoded chunk")

// Unmarshal decodes exactly one chunk from b.
// The returned chunk does not alias b.
//
// The decoded chunk has a correctly shaped proof,
// but its data and root have not been checked;
// call [Chunk.Verify] or [Chunk.VerifyAgainst] before trusting it.
func Unmarshal(b []byte, maxChunkSize uint32) (Chunk, error) {
	r := bytes.NewReader(b)
	c, err := NewDecoder(r, maxChunkSize).Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Chunk{}, err
	}
	if r.Len() > 0 {
		return Chunk{}, ErrTrailingData
	}
	return c, nil
}

// Decoder reads a stream of encoded chunks.
//
// Every length prefix is checked against its bound
// before any buffer of that length is allocated,
// so a hostile peer cannot force large allocations.
type Decoder struct {
	r io.Reader

	maxChunkSize uint32

	hdr [proofHeaderSize]byte
}

// NewDecoder returns a Decoder reading from r
// that rejects chunks carrying more than maxChunkSize data bytes.
func NewDecoder(r io.Reader, maxChunkSize uint32) *Decoder {
	return &Decoder{r: r, maxChunkSize: maxChunkSize}
}

// Decode reads the next chunk.
//
// Decode returns [io.EOF] only if the stream ended cleanly
// before the first byte of a chunk.
// A stream ending partway through a chunk
// results in [io.ErrUnexpectedEOF].
//
// A sibling count that does not match the shape implied by
// the proof's index and count is reported as a
// [cpmerkle.UnexpectedProofLengthError];
// an index outside the count is reported as a
// [cpmerkle.IndexOutOfBoundsError].
func (d *Decoder) Decode() (Chunk, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return Chunk{}, err
	}

	index := binary.LittleEndian.Uint64(d.hdr[0:8])
	count := binary.LittleEndian.Uint64(d.hdr[8:16])
	nSiblings := binary.LittleEndian.Uint32(d.hdr[16:20])

	want, err := cpmerkle.ExpectedProofLength(count, index)
	if err != nil {
		return Chunk{}, err
	}
	if uint64(nSiblings) != uint64(want) {
		return Chunk{}, cpmerkle.UnexpectedProofLengthError{
			Count: count, Index: index,
			Expected: want,
			Actual:   int(min(nSiblings, math.MaxInt32)),
		}
	}

	// The count is bounded by cpmerkle.MaxProofLength at this point.
	siblings := make([]cpdigest.Digest, nSiblings)
	for i := range siblings {
		if _, err := io.ReadFull(d.r, siblings[i][:]); err != nil {
			return Chunk{}, unexpectedEOF(err)
		}
	}

	var lenBuf [dataHeaderSize]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return Chunk{}, unexpectedEOF(err)
	}
	dataLen := binary.LittleEndian.Uint32(lenBuf[:])
	if dataLen > d.maxChunkSize {
		return Chunk{}, PayloadTooLargeError{Size: dataLen, Max: d.maxChunkSize}
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return Chunk{}, unexpectedEOF(err)
	}

	return Chunk{
		Proof: cpmerkle.IndexedProof{
			Index:    index,
			Count:    count,
			Siblings: siblings,
		},
		Data: data,
	}, nil
}

// unexpectedEOF converts a clean EOF partway through a chunk
// into io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
