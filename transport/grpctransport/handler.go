// Package grpctransport implements the request handler used for Twoway,
// Oneway, and BatchOneway invocations: every operation's already-marshalled
// parameter encapsulation rides inside a wrapperspb.BytesValue over a
// single generic gRPC method, so this runtime never needs per-interface
// generated stubs or a .proto file of its own.
package grpctransport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/reference"
)

const dispatchService = "/iceproxy.Dispatch/Invoke"

// Handler sends requests over one gRPC connection bound to a single
// endpoint. It satisfies reference.RequestHandler.
type Handler struct {
	conn     grpc.ClientConnInterface
	endpoint reference.Endpoint
	batch    *BatchQueue
}

// NewHandler wraps an established connection. conn is typically a
// *grpc.ClientConn, but accepting grpc.ClientConnInterface keeps this
// handler testable against a fake.
func NewHandler(conn grpc.ClientConnInterface, endpoint reference.Endpoint) *Handler {
	return &Handler{
		conn:     conn,
		endpoint: endpoint,
		batch:    newBatchQueue(conn),
	}
}

// SendRequest implements reference.RequestHandler.
func (h *Handler) SendRequest(ctx context.Context, desc reference.InvocationDescriptor) (reference.InvocationResult, error) {
	switch desc.Mode {
	case reference.Twoway:
		return h.invoke(ctx, desc, true)
	case reference.Oneway:
		return h.invoke(ctx, desc, false)
	case reference.BatchOneway:
		return reference.InvocationResult{}, h.batch.Enqueue(desc)
	default:
		return reference.InvocationResult{}, iceproxy.NewUsageError(iceproxy.IllegalArgument, desc.Operation, "grpc transport does not carry datagram modes")
	}
}

// AsBatchRequestQueue implements reference.RequestHandler.
func (h *Handler) AsBatchRequestQueue() (reference.BatchRequestQueue, bool) { return h.batch, true }

func (h *Handler) invoke(ctx context.Context, desc reference.InvocationDescriptor, wantReply bool) (reference.InvocationResult, error) {
	req := &wrapperspb.BytesValue{Value: desc.Params}
	reply := &wrapperspb.BytesValue{}
	method := methodFor(desc.Operation)

	err := h.conn.Invoke(ctx, method, req, reply)
	if err != nil {
		return reference.InvocationResult{}, classify(err, desc.Operation, true)
	}
	if !wantReply {
		return reference.InvocationResult{OK: true}, nil
	}
	return reference.InvocationResult{OK: true, Results: reply.Value}, nil
}

func methodFor(operation string) string {
	return fmt.Sprintf("%s/%s", dispatchService, operation)
}

// classify maps a gRPC status into the error taxonomy callers match against
// with errors.As, so retry.Policy and application code never need to know
// this transport speaks gRPC underneath.
func classify(err error, operation string, sent bool) error {
	st, ok := status.FromError(err)
	if !ok {
		return iceproxy.NewLocalError(iceproxy.ConnectFailed, operation, sent, err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return iceproxy.NewLocalError(iceproxy.ConnectFailed, operation, sent, err)
	case codes.DeadlineExceeded:
		return iceproxy.NewLocalError(iceproxy.Timeout, operation, sent, err)
	case codes.Canceled:
		return iceproxy.NewLocalError(iceproxy.Cancelled, operation, sent, err)
	case codes.NotFound:
		return iceproxy.NewLocalError(iceproxy.ObjectNotExist, operation, sent, err)
	case codes.Unimplemented:
		return &iceproxy.UnknownUserException{Operation: operation, Cause: err}
	default:
		return &iceproxy.SystemError{Detail: st.Message(), Cause: err}
	}
}
