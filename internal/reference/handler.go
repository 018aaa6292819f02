package reference

import "context"

// InvocationDescriptor carries everything a RequestHandler needs to send one
// request: the operation name, its mode, context, and raw parameter
// encapsulation. Marshalling application parameters into Params is an
// external collaborator's job — this core only moves bytes.
type InvocationDescriptor struct {
	Operation string
	Mode      Mode
	Context   Context
	Params    []byte
	Encoding  Encoding
}

// InvocationResult is what a RequestHandler produces for a twoway request.
// Oneway, datagram, and batch requests never produce one.
type InvocationResult struct {
	OK      bool
	Results []byte
}

// RequestHandler sends one invocation over whatever connection it has
// bound and, for twoway requests, waits for the reply. Implementations are
// expected to be safe for concurrent use, since a single Reference's cached
// handler may be shared by many proxies invoking concurrently.
type RequestHandler interface {
	SendRequest(ctx context.Context, desc InvocationDescriptor) (InvocationResult, error)

	// AsBatchRequestQueue returns the queue this handler would flush batched
	// requests through, if it supports batching.
	AsBatchRequestQueue() (BatchRequestQueue, bool)
}

// BatchRequestQueue accumulates BatchOneway/BatchDatagram requests for a
// later bulk flush, mirroring Connection's own batch queue.
type BatchRequestQueue interface {
	Enqueue(desc InvocationDescriptor) error
	Flush(ctx context.Context) error
	Size() int
}

// Connection is the transport-level session a RequestHandler ultimately
// rides on. This core never opens sockets itself; it only needs enough of a
// Connection to report endpoint/liveness information back to the caller of
// Proxy.GetConnection.
type Connection interface {
	Endpoint() Endpoint
	IsDatagram() bool
	Close(ctx context.Context) error
}

// Binder resolves a Reference to a RequestHandler, establishing a
// connection if needed. Binder implementations own connection pooling,
// endpoint selection, and locator/router resolution; this package only
// depends on the contract so that Reference.GetRequestHandler stays
// transport-agnostic.
type Binder interface {
	GetRequestHandler(ctx context.Context, ref *Reference) (RequestHandler, error)
	GetConnection(ctx context.Context, ref *Reference) (Connection, error)
}
