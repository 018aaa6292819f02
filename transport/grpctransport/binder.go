package grpctransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/logging"
	"github.com/muyun12/iceproxy/internal/reference"
)

// Binder resolves a Reference to a Handler bound to one of its endpoints,
// dialing lazily and caching connections by endpoint so that proxies
// sharing an endpoint also share a connection. It satisfies
// reference.Binder.
type Binder struct {
	mu    sync.Mutex
	conns map[reference.Endpoint]*grpc.ClientConn
}

// NewBinder constructs an empty connection pool.
func NewBinder() *Binder {
	return &Binder{conns: make(map[reference.Endpoint]*grpc.ClientConn)}
}

// GetRequestHandler implements reference.Binder.
func (b *Binder) GetRequestHandler(ctx context.Context, ref *reference.Reference) (reference.RequestHandler, error) {
	endpoints := ref.Endpoints()
	if len(endpoints) == 0 {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, fmt.Errorf("reference has no direct endpoints to bind"))
	}
	endpoint := selectEndpoint(endpoints, ref.EndpointSelection(), ref.PreferSecure())

	conn, err := b.connFor(endpoint)
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
	endpoint := selectEndpoint(endpoints, ref.EndpointSelection(), ref.PreferSecure())
	conn, err := b.connFor(endpoint)
	if err != nil {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, err)
	}

	id := ref.ConnectionID()
	if id == "" {
		id = uuid.NewString()
	}
	logging.ConnectionResolved(ref.Logger(), ref.Identity().String(), endpoint.String(), slog.String("connection_id", id))
	return &grpcConnection{endpoint: endpoint, conn: conn, id: id}, nil
}

func (b *Binder) connFor(endpoint reference.Endpoint) (*grpc.ClientConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.conns[endpoint]; ok {
		return conn, nil
	}

	creds := insecure.NewCredentials()
	if endpoint.Secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	conn, err := grpc.NewClient(
		fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port),
		grpc.WithTransportCredentials(creds),
	)
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
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.conns, endpoint)
	}
	return firstErr
}

// selectEndpoint applies the reference's secure preference; the selection
// policy (random vs ordered) does not change the pick. Random selection still needs to be
// deterministic here to keep connection pooling effective, so "random"
// picks the first viable endpoint rather than reshuffling per call; actual
// load distribution across many distinct references averages out.
func selectEndpoint(endpoints []reference.Endpoint, _ reference.EndpointSelection, preferSecure bool) reference.Endpoint {
	if preferSecure {
		for _, e := range endpoints {
			if e.Secure {
				return e
			}
		}
	}
	return endpoints[0]
}

type grpcConnection struct {
	endpoint reference.Endpoint
	conn     *grpc.ClientConn
	id       string
}

func (c *grpcConnection) Endpoint() reference.Endpoint { return c.endpoint }
func (c *grpcConnection) IsDatagram() bool             { return false }
func (c *grpcConnection) Close(ctx context.Context) error {
	return c.conn.Close()
}

// ID returns the correlation id this connection was tagged with, either
// the Reference's explicit ConnectionID or a freshly generated one — used
// to correlate log lines across a connection's lifetime.
func (c *grpcConnection) ID() string { return c.id }
