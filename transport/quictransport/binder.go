package quictransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/logging"
	"github.com/muyun12/iceproxy/internal/reference"
)

// Binder resolves a Reference to a Handler bound to a QUIC connection,
// dialing lazily and caching connections by endpoint. It satisfies
// reference.Binder.
type Binder struct {
	tlsConfig *tls.Config

	mu    sync.Mutex
	conns map[reference.Endpoint]*quic.Conn
}

// NewBinder constructs an empty connection pool. tlsConfig is required by
// QUIC even for otherwise-insecure test deployments; callers wanting an
// unauthenticated pool should pass a config with InsecureSkipVerify set.
func NewBinder(tlsConfig *tls.Config) *Binder {
	return &Binder{tlsConfig: tlsConfig, conns: make(map[reference.Endpoint]*quic.Conn)}
}

// GetRequestHandler implements reference.Binder.
func (b *Binder) GetRequestHandler(ctx context.Context, ref *reference.Reference) (reference.RequestHandler, error) {
	endpoints := ref.Endpoints()
	if len(endpoints) == 0 {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, fmt.Errorf("reference has no direct endpoints to bind"))
	}
	endpoint := endpoints[0]

	conn, err := b.connFor(ctx, endpoint)
	if err != nil {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, err)
	}
	logging.ConnectionResolved(ref.Logger(), ref.Identity().String(), endpoint.String())
	return NewHandler(conn, endpoint), nil
}

// GetConnection implements reference.Binder.
func (b *Binder) GetConnection(ctx context.Context, ref *reference.Reference) (reference.Connection, error) {
	endpoints := ref.Endpoints()
	if len(endpoints) == 0 {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, fmt.Errorf("reference has no direct endpoints to bind"))
	}
	endpoint := endpoints[0]
	conn, err := b.connFor(ctx, endpoint)
	if err != nil {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, err)
	}
	logging.ConnectionResolved(ref.Logger(), ref.Identity().String(), endpoint.String())
	return &quicConnection{endpoint: endpoint, conn: conn}, nil
}

func (b *Binder) connFor(ctx context.Context, endpoint reference.Endpoint) (*quic.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.conns[endpoint]; ok {
		return conn, nil
	}

	conn, err := quic.DialAddr(ctx, fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port), b.tlsConfig, &quic.Config{
		EnableDatagrams: true,
	})
	if err != nil {
		return nil, err
	}
	b.conns[endpoint] = conn
	return conn, nil
}

// Close tears down every pooled connection.
func (b *Binder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for endpoint, conn := range b.conns {
		if err := conn.CloseWithError(0, ""); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.conns, endpoint)
	}
	return firstErr
}

type quicConnection struct {
	endpoint reference.Endpoint
	conn     *quic.Conn
}

func (c *quicConnection) Endpoint() reference.Endpoint { return c.endpoint }
func (c *quicConnection) IsDatagram() bool             { return true }
func (c *quicConnection) Close(ctx context.Context) error {
	return c.conn.CloseWithError(0, "")
}
