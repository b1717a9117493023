package cpquic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// DefaultConfig returns the QUIC configuration used
// when callers do not provide their own.
func DefaultConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// Listener accepts incoming QUIC connections.
type Listener struct {
	ql *quic.Listener
}

// Listen starts a QUIC listener on the given UDP address.
// A nil qc uses [DefaultConfig].
func Listen(addr string, tlsConf *tls.Config, qc *quic.Config) (*Listener, error) {
	if qc == nil {
		qc = DefaultConfig()
	}

	ql, err := quic.ListenAddr(addr, tlsConf, qc)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Accept blocks until a connection arrives or ctx is canceled.
func (l *Listener) Accept(ctx context.Context) (Conn, error) {
	qc, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return WrapConn(qc), nil
}

func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

func (l *Listener) Close() error { return l.ql.Close() }

// Dial opens a QUIC connection to addr.
// A nil tlsConf uses [ClientTLSConfig],
// and a nil qc uses [DefaultConfig].
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, qc *quic.Config) (Conn, error) {
	if tlsConf == nil {
		tlsConf = ClientTLSConfig()
	}
	if qc == nil {
		qc = DefaultConfig()
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, qc)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", addr, err)
	}
	return WrapConn(conn), nil
}
