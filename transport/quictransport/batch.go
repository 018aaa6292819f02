package quictransport

import (
	"context"
	"sync"

	"github.com/muyun12/iceproxy/internal/reference"
)

// BatchQueue accumulates BatchDatagram requests and flushes them as a burst
// of individual unreliable datagrams. It satisfies
// reference.BatchRequestQueue.
type BatchQueue struct {
	conn DatagramConn

	mu      sync.Mutex
	pending []reference.InvocationDescriptor
}

func newBatchQueue(conn DatagramConn) *BatchQueue {
	return &BatchQueue{conn: conn}
}

// Enqueue implements reference.BatchRequestQueue.
func (q *BatchQueue) Enqueue(desc reference.InvocationDescriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, desc)
	return nil
}

// Size implements reference.BatchRequestQueue.
func (q *BatchQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush implements reference.BatchRequestQueue. Every queued datagram is
// sent independently; since the transport is unreliable by design, a
// partial flush (some datagrams sent, one fails) is not an error condition
// worth aborting the rest for.
func (q *BatchQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	var firstErr error
	for _, desc := range pending {
		if err := q.conn.SendDatagram(encodeEnvelope(desc.Operation, desc.Params)); err != nil && firstErr == nil {
			firstErr = classify(err, desc.Operation)
		}
	}
	return firstErr
}
