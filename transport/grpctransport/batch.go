package grpctransport

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/muyun12/iceproxy/internal/reference"
)

// BatchQueue accumulates BatchOneway requests and flushes them as a
// sequence of individual Invoke calls on the same connection. It satisfies
// reference.BatchRequestQueue.
type BatchQueue struct {
	conn grpc.ClientConnInterface

	mu      sync.Mutex
	pending []reference.InvocationDescriptor
}

func newBatchQueue(conn grpc.ClientConnInterface) *BatchQueue {
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

// Flush implements reference.BatchRequestQueue. It sends every queued
// request in enqueue order and clears the queue regardless of individual
// failures, matching the at-most-once guarantee: a batch flush either
// delivers each queued request once or not at all, but never retries one
// that may have already reached the server.
func (q *BatchQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	var firstErr error
	for _, desc := range pending {
		req := &wrapperspb.BytesValue{Value: desc.Params}
		reply := &wrapperspb.BytesValue{}
		if err := q.conn.Invoke(ctx, methodFor(desc.Operation), req, reply); err != nil && firstErr == nil {
			firstErr = classify(err, desc.Operation, true)
		}
	}
	return firstErr
}
