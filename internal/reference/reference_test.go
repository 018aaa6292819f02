package reference

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct{ id int }

func (h *fakeHandler) SendRequest(ctx context.Context, desc InvocationDescriptor) (InvocationResult, error) {
	return InvocationResult{OK: true}, nil
}
func (h *fakeHandler) AsBatchRequestQueue() (BatchRequestQueue, bool) { return nil, false }

type fakeBinder struct {
	mu    sync.Mutex
	calls int
}

func (b *fakeBinder) GetRequestHandler(ctx context.Context, ref *Reference) (RequestHandler, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	return &fakeHandler{id: n}, nil
}

func (b *fakeBinder) GetConnection(ctx context.Context, ref *Reference) (Connection, error) {
	return nil, nil
}

func mustIdentity(t *testing.T, name string) identity.Identity {
	id, err := identity.New(name, "")
	require.NoError(t, err)
	return id
}

func TestNewRejectsEmptyIdentity(t *testing.T) {
	t.Parallel()

	_, err := New(identity.Identity{}, &fakeBinder{})
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalIdentity, usageErr.Kind)
}

func TestChangeContextSharesWhenUnchanged(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	same := r.ChangeContext(EmptyContext)
	assert.Same(t, r, same)

	withCtx := r.ChangeContext(NewContext(ContextEntry{Key: "k", Value: "v"}))
	assert.NotSame(t, r, withCtx)
	assert.True(t, r.Equal(r))
	assert.False(t, r.Equal(withCtx))
}

func TestChangeEndpointsClearsAdapterID(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	indirect := r.ChangeAdapterID("adapter1")
	assert.Equal(t, "adapter1", indirect.AdapterID())
	assert.True(t, indirect.IsIndirect())

	direct := indirect.ChangeEndpoints([]Endpoint{{Transport: "tcp", Host: "h", Port: 10000}})
	assert.Equal(t, "", direct.AdapterID())
	assert.False(t, direct.IsIndirect())
	assert.Len(t, direct.Endpoints(), 1)
}

func TestIdentityOnlyEqualityIgnoresFacet(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	facetA := r.ChangeFacet("a")
	facetB := r.ChangeFacet("b")

	assert.False(t, facetA.Equal(facetB))
	assert.True(t, facetA.Identity().Equal(facetB.Identity()))
}

func TestGetRequestHandlerCachesFirstResolution(t *testing.T) {
	t.Parallel()

	binder := &fakeBinder{}
	r, err := New(mustIdentity(t, "obj"), binder)
	require.NoError(t, err)

	h1, err := r.GetRequestHandler(context.Background())
	require.NoError(t, err)
	h2, err := r.GetRequestHandler(context.Background())
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, binder.calls)
}

func TestGetRequestHandlerWithoutCachingReresolvesEveryCall(t *testing.T) {
	t.Parallel()

	binder := &fakeBinder{}
	r, err := New(mustIdentity(t, "obj"), binder)
	require.NoError(t, err)
	r = r.ChangeCacheConnection(false)

	h1, err := r.GetRequestHandler(context.Background())
	require.NoError(t, err)
	h2, err := r.GetRequestHandler(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, 2, binder.calls)

	_, ok := r.GetCachedHandler()
	assert.False(t, ok, "no handler should ever be installed when caching is disabled")
}

func TestGetRequestHandlerConcurrentResolutionPicksOneWinner(t *testing.T) {
	t.Parallel()

	binder := &fakeBinder{}
	r, err := New(mustIdentity(t, "obj"), binder)
	require.NoError(t, err)

	const n = 20
	results := make([]RequestHandler, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			h, err := r.GetRequestHandler(context.Background())
			require.NoError(t, err)
			results[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestClearHandlerForcesReresolution(t *testing.T) {
	t.Parallel()

	binder := &fakeBinder{}
	r, err := New(mustIdentity(t, "obj"), binder)
	require.NoError(t, err)

	h1, err := r.GetRequestHandler(context.Background())
	require.NoError(t, err)

	r.ClearHandler()

	h2, err := r.GetRequestHandler(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, 2, binder.calls)
}

func TestUpdateHandlerCASLosesAgainstNewerInstall(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	stale := &fakeHandler{id: 1}
	fresh := &fakeHandler{id: 2}
	replacement := &fakeHandler{id: 3}

	assert.True(t, r.UpdateHandler(nil, stale))
	assert.True(t, r.UpdateHandler(stale, fresh))
	// losing CAS: previous no longer matches what's installed
	assert.False(t, r.UpdateHandler(stale, replacement))

	cached, ok := r.GetCachedHandler()
	require.True(t, ok)
	assert.Same(t, fresh, cached)
}

func TestCompressOverrideAndClear(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	_, set := r.Compress()
	assert.False(t, set)

	withCompress := r.ChangeCompress(true)
	val, set := withCompress.Compress()
	assert.True(t, set)
	assert.True(t, val)

	cleared := withCompress.ClearCompress()
	_, set = cleared.Compress()
	assert.False(t, set)
}

func TestStringIncludesAddressingAttributes(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	withEndpoint := r.ChangeMode(Oneway).ChangeEndpoints([]Endpoint{{Transport: "tcp", Host: "127.0.0.1", Port: 4061}})
	s := withEndpoint.String()
	assert.Contains(t, s, "obj")
	assert.Contains(t, s, "-o")
	assert.Contains(t, s, "tcp")
}

func TestChangeInvocationTimeoutRejectsZero(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	_, err = r.ChangeInvocationTimeout(0)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

func TestChangeInvocationTimeoutAcceptsSentinelsAndPositive(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)
	assert.Equal(t, InvocationTimeoutInfinite, r.InvocationTimeout())

	useConn, err := r.ChangeInvocationTimeout(InvocationTimeoutUseConnection)
	require.NoError(t, err)
	assert.Equal(t, InvocationTimeoutUseConnection, useConn.InvocationTimeout())

	bounded, err := r.ChangeInvocationTimeout(500)
	require.NoError(t, err)
	assert.Equal(t, 500, bounded.InvocationTimeout())

	same, err := r.ChangeInvocationTimeout(InvocationTimeoutInfinite)
	require.NoError(t, err)
	assert.Same(t, r, same)
}

func TestChangeTimeoutRejectsZero(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	_, err = r.ChangeTimeout(0)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

func TestChangeTimeoutAcceptsInfiniteAndPositive(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)
	assert.Equal(t, TimeoutInfinite, r.Timeout())

	bounded, err := r.ChangeTimeout(1)
	require.NoError(t, err)
	assert.Equal(t, 1, bounded.Timeout())

	infinite, err := r.ChangeTimeout(TimeoutInfinite)
	require.NoError(t, err)
	assert.Same(t, r, infinite)
}

func TestChangeLocatorCacheTimeoutRejectsBelowNegativeOne(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)

	_, err = r.ChangeLocatorCacheTimeout(-2)
	require.Error(t, err)
	var usageErr *iceproxy.UsageError
	require.True(t, errors.As(err, &usageErr))
	assert.Equal(t, iceproxy.IllegalArgument, usageErr.Kind)
}

func TestChangeLocatorCacheTimeoutAcceptsInfiniteAndNonNegative(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)
	assert.Equal(t, LocatorCacheTimeoutInfinite, r.LocatorCacheTimeout())

	bounded, err := r.ChangeLocatorCacheTimeout(0)
	require.NoError(t, err)
	assert.Equal(t, 0, bounded.LocatorCacheTimeout())

	seconds, err := r.ChangeLocatorCacheTimeout(30)
	require.NoError(t, err)
	assert.Equal(t, 30, seconds.LocatorCacheTimeout())
}

func TestSetLoggerIsNotPartOfIdentityAndNeverNil(t *testing.T) {
	t.Parallel()

	r, err := New(mustIdentity(t, "obj"), &fakeBinder{})
	require.NoError(t, err)
	require.NotNil(t, r.Logger())

	clone := r.ChangeFacet("f")
	require.NotNil(t, clone.Logger())
	assert.True(t, r.Equal(clone) == false)

	r.SetLogger(nil)
	require.NotNil(t, r.Logger())
}
