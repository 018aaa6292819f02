// Package quictransport implements the request handler used for Datagram
// and BatchDatagram invocations, riding quic-go's unreliable datagram
// extension: no delivery or ordering guarantee, no reply, which matches
// this runtime's datagram modes exactly (they are fire-and-forget by
// definition — a datagram invocation that needs a reply is a contradiction
// this package never has to resolve).
package quictransport

import (
	"context"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/reference"
)

// DatagramConn is the subset of quic-go's connection API this transport
// needs, kept as a local interface so handlers can be exercised with a
// fake instead of a live QUIC session.
type DatagramConn interface {
	SendDatagram(payload []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
}

// Handler sends datagram requests over one QUIC connection. It satisfies
// reference.RequestHandler.
type Handler struct {
	conn     DatagramConn
	endpoint reference.Endpoint
	batch    *BatchQueue
}

// NewHandler wraps an established datagram-capable QUIC connection.
func NewHandler(conn DatagramConn, endpoint reference.Endpoint) *Handler {
	return &Handler{conn: conn, endpoint: endpoint, batch: newBatchQueue(conn)}
}

// SendRequest implements reference.RequestHandler.
func (h *Handler) SendRequest(ctx context.Context, desc reference.InvocationDescriptor) (reference.InvocationResult, error) {
	switch desc.Mode {
	case reference.Datagram:
		if err := h.conn.SendDatagram(encodeEnvelope(desc.Operation, desc.Params)); err != nil {
			return reference.InvocationResult{}, classify(err, desc.Operation)
		}
		return reference.InvocationResult{OK: true}, nil
	case reference.BatchDatagram:
		return reference.InvocationResult{}, h.batch.Enqueue(desc)
	default:
		return reference.InvocationResult{}, iceproxy.NewUsageError(iceproxy.IllegalArgument, desc.Operation, "quic transport only carries datagram modes")
	}
}

// AsBatchRequestQueue implements reference.RequestHandler.
func (h *Handler) AsBatchRequestQueue() (reference.BatchRequestQueue, bool) { return h.batch, true }

func classify(err error, operation string) error {
	if err == context.DeadlineExceeded {
		return iceproxy.NewLocalError(iceproxy.Timeout, operation, false, err)
	}
	return iceproxy.NewLocalError(iceproxy.ConnectFailed, operation, false, err)
}
