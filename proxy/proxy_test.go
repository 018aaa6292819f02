package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	isA bool
}

func (h *stubHandler) SendRequest(ctx context.Context, desc reference.InvocationDescriptor) (reference.InvocationResult, error) {
	switch desc.Operation {
	case "ice_isA":
		if h.isA {
			return reference.InvocationResult{OK: true, Results: []byte{1}}, nil
		}
		return reference.InvocationResult{OK: true, Results: []byte{0}}, nil
	case "ice_id":
		return reference.InvocationResult{OK: true, Results: []byte("::Demo::Widget")}, nil
	default:
		return reference.InvocationResult{OK: true}, nil
	}
}

func (h *stubHandler) AsBatchRequestQueue() (reference.BatchRequestQueue, bool) { return nil, false }

type stubBinder struct{ handler reference.RequestHandler }

func (b *stubBinder) GetRequestHandler(ctx context.Context, ref *reference.Reference) (reference.RequestHandler, error) {
	return b.handler, nil
}

func (b *stubBinder) GetConnection(ctx context.Context, ref *reference.Reference) (reference.Connection, error) {
	return nil, nil
}

func newTestProxy(t *testing.T, name string, handler reference.RequestHandler) *Proxy {
	id, err := identity.New(name, "")
	require.NoError(t, err)
	ref, err := reference.New(id, &stubBinder{handler: handler})
	require.NoError(t, err)
	return New(ref)
}

func TestWithContextSharesWhenNoOp(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{})
	same := p.WithContext(reference.EmptyContext)
	assert.Same(t, p, same)

	changed := p.WithContext(reference.NewContext(reference.ContextEntry{Key: "a", Value: "b"}))
	assert.NotSame(t, p, changed)
	assert.False(t, p.Equal(changed))
}

func TestIdentityEqualIgnoresFacet(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{})
	a := p.WithFacet("metrics")
	b := p.WithFacet("admin")

	assert.True(t, a.IdentityEqual(b))
	assert.False(t, a.Equal(b))
}

func TestTwowayOnlyEnforcement(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{isA: true}).Oneway()

	_, err := p.IsA(context.Background(), "::Demo::Widget")
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.TwowayOnly, usageErr.Kind)

	_, err = p.ID(context.Background())
	require.Error(t, err)

	_, err = p.Ids(context.Background())
	require.Error(t, err)
}

func TestOnewayPingSucceedsWithoutAReply(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{}).Oneway()

	err := p.Ping(context.Background())
	require.NoError(t, err)
}

func TestIsAAndID(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{isA: true})

	ok, err := p.IsA(context.Background(), "::Demo::Widget")
	require.NoError(t, err)
	assert.True(t, ok)

	id, err := p.ID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "::Demo::Widget", id)
}

func TestDerivationChainSharesReferenceAcrossUnrelatedProxies(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{})
	twoway := p.Twoway()
	assert.Same(t, p, twoway)

	oneway := p.Oneway()
	assert.NotSame(t, p, oneway)
	assert.True(t, oneway.IsOneway())

	// Deriving back to twoway from oneway is a fresh Reference: the cache
	// is never shared across differing invocation modes.
	backToTwoway := oneway.Twoway()
	assert.True(t, backToTwoway.IsTwoway())
}

func TestGettersDelegateToReference(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{}).
		WithAdapterID("adapter").
		WithConnectionID("conn-1")
	p, err := p.WithInvocationTimeout(250)
	require.NoError(t, err)

	assert.Equal(t, "adapter", p.AdapterID())
	assert.Equal(t, "conn-1", p.ConnectionID())
	assert.Equal(t, 250, p.InvocationTimeout())
	assert.Equal(t, reference.TimeoutInfinite, p.Timeout())
	assert.Equal(t, reference.LocatorCacheTimeoutInfinite, p.LocatorCacheTimeout())
	assert.Equal(t, reference.Random, p.EndpointSelection())
	_, set := p.Compress()
	assert.False(t, set)
}

func TestWithInvocationTimeoutRejectsZero(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{})
	_, err := p.WithInvocationTimeout(0)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

func TestWithTimeoutRejectsZero(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{})
	_, err := p.WithTimeout(0)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

func TestWithLocatorCacheTimeoutRejectsBelowNegativeOne(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, "widget", &stubHandler{})
	_, err := p.WithLocatorCacheTimeout(-2)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

// flakyHandler fails every SendRequest up to failures times with an unsent
// LocalError (always retryable regardless of operation mode), then
// succeeds. Each failure also poisons itself so a caller that keeps
// retrying against the very same handler instance, instead of clearing
// the cache and re-resolving, will never see the eventual success.
type flakyHandler struct {
	mu       sync.Mutex
	failures int
	attempts int
	poisoned bool
}

func (h *flakyHandler) SendRequest(ctx context.Context, desc reference.InvocationDescriptor) (reference.InvocationResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
	if h.poisoned {
		return reference.InvocationResult{}, iceproxy.NewLocalError(iceproxy.ConnectFailed, desc.Operation, false, fmt.Errorf("poisoned handler reused"))
	}
	if h.attempts <= h.failures {
		h.poisoned = true
		return reference.InvocationResult{}, iceproxy.NewLocalError(iceproxy.ConnectFailed, desc.Operation, false, fmt.Errorf("transient failure %d", h.attempts))
	}
	return reference.InvocationResult{OK: true}, nil
}

func (h *flakyHandler) AsBatchRequestQueue() (reference.BatchRequestQueue, bool) { return nil, false }

// reresolvingBinder hands out a fresh handler on every resolution, so a
// caller that clears the cached handler before retrying observes a new,
// unpoisoned handler; one that does not will keep hammering the same
// poisoned handler forever.
type reresolvingBinder struct {
	mu       sync.Mutex
	handlers []*flakyHandler
	resolved int
}

func (b *reresolvingBinder) GetRequestHandler(ctx context.Context, ref *reference.Reference) (reference.RequestHandler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.handlers[b.resolved]
	if b.resolved < len(b.handlers)-1 {
		b.resolved++
	}
	return h, nil
}

func (b *reresolvingBinder) GetConnection(ctx context.Context, ref *reference.Reference) (reference.Connection, error) {
	return nil, nil
}

func TestInvokeClearsCachedHandlerBetweenRetries(t *testing.T) {
	t.Parallel()

	binder := &reresolvingBinder{handlers: []*flakyHandler{
		{failures: 1},
		{failures: 0},
	}}
	id, err := identity.New("widget", "")
	require.NoError(t, err)
	ref, err := reference.New(id, binder)
	require.NoError(t, err)
	p := New(ref)

	result, err := p.Invoke(context.Background(), "compute", reference.Nonmutating, nil, retry.DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, binder.resolved, "the cached handler must be cleared so the retry re-resolves a fresh one")
	assert.Equal(t, 1, binder.handlers[0].attempts)
	assert.Equal(t, 1, binder.handlers[1].attempts)
}

func TestPingRetriesThroughDoRetrying(t *testing.T) {
	t.Parallel()

	binder := &reresolvingBinder{handlers: []*flakyHandler{
		{failures: 1},
		{failures: 0},
	}}
	id, err := identity.New("widget", "")
	require.NoError(t, err)
	ref, err := reference.New(id, binder)
	require.NoError(t, err)
	p := New(ref)

	err = p.Ping(context.Background())
	require.NoError(t, err)
}
