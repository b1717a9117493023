// Package cpquictest provides loopback QUIC listeners for tests.
package cpquictest

import (
	"context"
	"testing"

	"github.com/gordian-engine/chunkproof/cpquic"
	"github.com/gordian-engine/chunkproof/internal/cptest"
	"github.com/stretchr/testify/require"
)

// ListenerSet is a collection of QUIC listeners on the loopback interface,
// each with its own self-signed certificate.
type ListenerSet struct {
	Listeners []*cpquic.Listener
}

// NewListenerSet starts count listeners on 127.0.0.1.
//
// The listeners are closed as part of [*testing.T.Cleanup].
func NewListenerSet(t *testing.T, count int) *ListenerSet {
	t.Helper()

	ls := &ListenerSet{
		Listeners: make([]*cpquic.Listener, count),
	}

	t.Cleanup(func() {
		for _, l := range ls.Listeners {
			if l != nil {
				_ = l.Close()
			}
		}
	})

	for i := range count {
		tlsConf, err := cpquic.SelfSignedTLSConfig(0)
		require.NoError(t, err)

		l, err := cpquic.Listen("127.0.0.1:0", tlsConf, nil)
		require.NoError(t, err)

		ls.Listeners[i] = l
	}

	return ls
}

// Dial dials the listener at idx.
// It returns clientConn, the outgoing connection,
// and serverConn, the connection as accepted by the listener.
//
// To do this, the listener set temporarily
// accepts a connection on the destination listener.
// If there is already an attempt to accept a connection there,
// the two attempts will race and the test will be inconsistent.
func (ls *ListenerSet) Dial(t *testing.T, idx int) (clientConn, serverConn cpquic.Conn) {
	t.Helper()

	if idx < 0 || idx >= len(ls.Listeners) {
		t.Fatalf("index must be in range [0, %d]; got %d", len(ls.Listeners)-1, idx)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connAcceptedCh := make(chan cpquic.Conn, 1)

	go func() {
		acceptedConn, err := ls.Listeners[idx].Accept(ctx)
		if err != nil {
			t.Error(err)
			connAcceptedCh <- nil
			return
		}

		connAcceptedCh <- acceptedConn
	}()

	clientConn, err := cpquic.Dial(ctx, ls.Listeners[idx].Addr().String(), nil, nil)
	require.NoError(t, err)

	serverConn = cptest.ReceiveSoon(t, connAcceptedCh)
	require.NotNil(t, serverConn)

	t.Cleanup(func() {
		_ = clientConn.CloseWithError(0, "")
		_ = serverConn.CloseWithError(0, "")
	})

	return clientConn, serverConn
}
