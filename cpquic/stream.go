package cpquic

import (
	"time"

	"github.com/quic-go/quic-go"
)

// StreamErrorCode is used for
// [Stream.CancelRead] and [Stream.CancelWrite],
// to inform the peer of why the stream is canceled.
type StreamErrorCode uint64

// Stream is a readable and writable QUIC stream.
type Stream interface {
	Read([]byte) (int, error)
	CancelRead(StreamErrorCode)

	Write([]byte) (int, error)
	CancelWrite(StreamErrorCode)

	// Close closes the write side of the stream.
	Close() error

	SetDeadline(time.Time) error
}

var _ Stream = StreamAdapter{}

// StreamAdapter wraps a [quic.Stream]
// to satisfy the [Stream] interface.
// Use [WrapStream] to create an instance.
type StreamAdapter struct {
	s quic.Stream
}

func WrapStream(s quic.Stream) StreamAdapter {
	return StreamAdapter{s: s}
}

func (a StreamAdapter) Read(p []byte) (int, error) {
	return a.s.Read(p)
}

func (a StreamAdapter) CancelRead(code StreamErrorCode) {
	mustFit62("stream error code", uint64(code))
	a.s.CancelRead(quic.StreamErrorCode(code))
}

func (a StreamAdapter) Write(p []byte) (int, error) {
	return a.s.Write(p)
}

func (a StreamAdapter) CancelWrite(code StreamErrorCode) {
	mustFit62("stream error code", uint64(code))
	a.s.CancelWrite(quic.StreamErrorCode(code))
}

func (a StreamAdapter) Close() error {
	return a.s.Close()
}

func (a StreamAdapter) SetDeadline(t time.Time) error {
	return a.s.SetDeadline(t)
}
