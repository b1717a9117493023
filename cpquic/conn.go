package cpquic

import (
	"context"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"
)

// ApplicationErrorCode is used for [Conn.CloseWithError].
type ApplicationErrorCode uint64

// Conn is the interface representing a QUIC connection.
//
// This is a subset of the methods on [quic.Connection],
// only referencing the methods used in chunkproof.
type Conn interface {
	AcceptStream(context.Context) (Stream, error)

	// Only the Sync variant of opening a stream is used.
	OpenStreamSync(context.Context) (Stream, error)

	CloseWithError(code ApplicationErrorCode, msg string) error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

var _ Conn = ConnAdapter{}

// ConnAdapter wraps a [quic.Connection], implementing the [Conn] interface.
//
// Create an instance with [WrapConn].
type ConnAdapter struct {
	qc quic.Connection
}

// WrapConn wraps the given connection,
// returning a value implementing [Conn].
func WrapConn(qc quic.Connection) ConnAdapter {
	return ConnAdapter{qc: qc}
}

func (c ConnAdapter) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return WrapStream(s), nil
}

func (c ConnAdapter) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return WrapStream(s), nil
}

func (c ConnAdapter) CloseWithError(code ApplicationErrorCode, msg string) error {
	mustFit62("application error code", uint64(code))
	return c.qc.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

func (c ConnAdapter) LocalAddr() net.Addr { return c.qc.LocalAddr() }

func (c ConnAdapter) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

// QUIC varints carry at most 62 bits.
func mustFit62(what string, code uint64) {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: %s must fit in 62 bits (got 0x%x)", what, code,
		))
	}
}
