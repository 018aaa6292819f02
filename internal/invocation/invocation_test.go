package invocation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/internal/retry"
	"github.com/muyun12/iceproxy/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int32
	attempts int32
}

func (h *flakyHandler) SendRequest(ctx context.Context, desc reference.InvocationDescriptor) (reference.InvocationResult, error) {
	n := atomic.AddInt32(&h.attempts, 1)
	if n <= h.failures {
		return reference.InvocationResult{}, iceproxy.NewLocalError(iceproxy.Timeout, desc.Operation, false, nil)
	}
	return reference.InvocationResult{OK: true, Results: []byte("ok")}, nil
}

func (h *flakyHandler) AsBatchRequestQueue() (reference.BatchRequestQueue, bool) { return nil, false }

type directBinder struct{ handler reference.RequestHandler }

func (b *directBinder) GetRequestHandler(ctx context.Context, ref *reference.Reference) (reference.RequestHandler, error) {
	return b.handler, nil
}
func (b *directBinder) GetConnection(ctx context.Context, ref *reference.Reference) (reference.Connection, error) {
	return nil, nil
}

func newProxy(t *testing.T, handler reference.RequestHandler) *proxy.Proxy {
	id, err := identity.New("widget", "")
	require.NoError(t, err)
	ref, err := reference.New(id, &directBinder{handler: handler})
	require.NoError(t, err)
	return proxy.New(ref)
}

func TestInvokeRetriesUnsentFailures(t *testing.T) {
	t.Parallel()

	handler := &flakyHandler{failures: 2}
	p := newProxy(t, handler)
	policy := retry.DefaultPolicy()

	result, err := Invoke(context.Background(), p, "compute", reference.Normal, nil, policy)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&handler.attempts))
}

func TestInvokeGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	handler := &flakyHandler{failures: 100}
	p := newProxy(t, handler)
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 3

	_, err := Invoke(context.Background(), p, "compute", reference.Normal, nil, policy)
	require.Error(t, err)
	var localErr *iceproxy.LocalError
	require.True(t, errors.As(err, &localErr))
}

func TestAsyncPingRejectsOnewayImmediately(t *testing.T) {
	t.Parallel()

	p := newProxy(t, &flakyHandler{}).Oneway()
	_, err := AsyncPing(context.Background(), p)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

func TestAsyncIDWaits(t *testing.T) {
	t.Parallel()

	p := newProxy(t, &flakyHandler{})
	future, err := AsyncID(context.Background(), p)
	require.NoError(t, err)

	result, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(result.Results))
}
