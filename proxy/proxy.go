// Package proxy implements the client handle applications hold: a thin,
// comparable wrapper around an internal/reference.Reference plus the five
// built-in operations every remote object supports regardless of its
// application-defined interface.
package proxy

import (
	"context"
	"time"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/logging"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/internal/retry"
)

// Proxy is a lightweight, copy-on-write handle to a remote object. Deriving
// a new Proxy (WithContext, WithFacet, Oneway, ...) never mutates the
// receiver; it shares the receiver's Reference verbatim whenever the
// derivation would not actually change anything, so that unrelated proxies
// keep sharing one request-handler cache instead of needlessly multiplying
// connections.
type Proxy struct {
	ref *reference.Reference
}

// New wraps a Reference in a Proxy.
func New(ref *reference.Reference) *Proxy {
	return &Proxy{ref: ref}
}

// Reference returns the underlying Reference.
func (p *Proxy) Reference() *reference.Reference { return p.ref }

// Identity returns the target object's identity.
func (p *Proxy) Identity() identity.Identity { return p.ref.Identity() }

// Facet returns the target facet, empty for the default facet.
func (p *Proxy) Facet() string { return p.ref.Facet() }

// Mode returns the invocation mode this proxy is bound to.
func (p *Proxy) Mode() reference.Mode { return p.ref.Mode() }

// IsTwoway reports whether this proxy expects replies.
func (p *Proxy) IsTwoway() bool { return p.ref.Mode().IsTwoway() }

// IsOneway reports whether this proxy is bound to Oneway mode.
func (p *Proxy) IsOneway() bool { return p.ref.Mode() == reference.Oneway }

// IsBatchOneway reports whether this proxy is bound to BatchOneway mode.
func (p *Proxy) IsBatchOneway() bool { return p.ref.Mode() == reference.BatchOneway }

// IsDatagram reports whether this proxy is bound to Datagram mode.
func (p *Proxy) IsDatagram() bool { return p.ref.Mode() == reference.Datagram }

// IsBatchDatagram reports whether this proxy is bound to BatchDatagram mode.
func (p *Proxy) IsBatchDatagram() bool { return p.ref.Mode() == reference.BatchDatagram }

// IsSecure reports whether this proxy requires a secure connection.
func (p *Proxy) IsSecure() bool { return p.ref.Secure() }

// IsCollocationOptimized reports whether this proxy may bypass the
// transport for a collocated servant.
func (p *Proxy) IsCollocationOptimized() bool { return p.ref.CollocationOptimized() }

// IsConnectionCached reports whether this proxy caches its resolved
// request handler across calls.
func (p *Proxy) IsConnectionCached() bool { return p.ref.CacheConnection() }

// Context returns the context carried on every subsequent invocation.
func (p *Proxy) Context() reference.Context { return p.ref.Context() }

// Encoding returns the protocol encoding this proxy negotiates.
func (p *Proxy) Encoding() reference.Encoding { return p.ref.Encoding() }

// EndpointSelection returns this proxy's endpoint tie-break policy.
func (p *Proxy) EndpointSelection() reference.EndpointSelection { return p.ref.EndpointSelection() }

// Endpoints returns the direct endpoints this proxy is bound to, empty for
// an indirect or well-known proxy.
func (p *Proxy) Endpoints() []reference.Endpoint { return p.ref.Endpoints() }

// AdapterID returns the adapter id this proxy resolves through indirectly,
// empty for a direct or well-known proxy.
func (p *Proxy) AdapterID() string { return p.ref.AdapterID() }

// Locator returns the LocatorInfo this proxy resolves indirect addressing
// through, nil if none is configured.
func (p *Proxy) Locator() *reference.LocatorInfo { return p.ref.LocatorInfo() }

// Router returns the RouterInfo this proxy is routed through, nil if none
// is configured.
func (p *Proxy) Router() *reference.RouterInfo { return p.ref.RouterInfo() }

// InvocationTimeout returns the per-invocation deadline in milliseconds:
// reference.InvocationTimeoutInfinite, reference.InvocationTimeoutUseConnection,
// or a positive number of milliseconds.
func (p *Proxy) InvocationTimeout() int { return p.ref.InvocationTimeout() }

// Timeout returns the connection-level timeout in milliseconds:
// reference.TimeoutInfinite or a positive number of milliseconds.
func (p *Proxy) Timeout() int { return p.ref.Timeout() }

// LocatorCacheTimeout returns how long, in seconds, an indirect resolution
// is trusted before it is treated as stale; reference.LocatorCacheTimeoutInfinite
// means never.
func (p *Proxy) LocatorCacheTimeout() int { return p.ref.LocatorCacheTimeout() }

// Compress reports the compression override this proxy carries and whether
// one is set at all; an unset override means "use the connection default".
func (p *Proxy) Compress() (bool, bool) { return p.ref.Compress() }

// ConnectionID returns the connection pool bucket this proxy is scoped to,
// empty if it shares the default bucket for its endpoint.
func (p *Proxy) ConnectionID() string { return p.ref.ConnectionID() }

// PreferSecure reports whether endpoint selection favors secure endpoints
// when both secure and insecure are viable.
func (p *Proxy) PreferSecure() bool { return p.ref.PreferSecure() }

// derive wraps a (possibly identical) Reference, sharing the Proxy itself
// when the underlying Reference did not change.
func (p *Proxy) derive(ref *reference.Reference) *Proxy {
	if ref == p.ref {
		return p
	}
	return &Proxy{ref: ref}
}

// WithContext returns a Proxy carrying ctx on every subsequent invocation.
func (p *Proxy) WithContext(ctx reference.Context) *Proxy {
	return p.derive(p.ref.ChangeContext(ctx))
}

// WithFacet returns a Proxy targeting a different facet of the same
// identity.
func (p *Proxy) WithFacet(facet string) *Proxy {
	return p.derive(p.ref.ChangeFacet(facet))
}

// Twoway returns a Proxy bound to Twoway mode.
func (p *Proxy) Twoway() *Proxy { return p.derive(p.ref.ChangeMode(reference.Twoway)) }

// Oneway returns a Proxy bound to Oneway mode.
func (p *Proxy) Oneway() *Proxy { return p.derive(p.ref.ChangeMode(reference.Oneway)) }

// BatchOneway returns a Proxy bound to BatchOneway mode.
func (p *Proxy) BatchOneway() *Proxy { return p.derive(p.ref.ChangeMode(reference.BatchOneway)) }

// Datagram returns a Proxy bound to Datagram mode.
func (p *Proxy) Datagram() *Proxy { return p.derive(p.ref.ChangeMode(reference.Datagram)) }

// BatchDatagram returns a Proxy bound to BatchDatagram mode.
func (p *Proxy) BatchDatagram() *Proxy {
	return p.derive(p.ref.ChangeMode(reference.BatchDatagram))
}

// WithSecure returns a Proxy that requires (or does not require) a secure
// connection.
func (p *Proxy) WithSecure(secure bool) *Proxy { return p.derive(p.ref.ChangeSecure(secure)) }

// WithEncoding returns a Proxy negotiating a different protocol encoding.
func (p *Proxy) WithEncoding(enc reference.Encoding) *Proxy {
	return p.derive(p.ref.ChangeEncoding(enc))
}

// WithEndpointSelection returns a Proxy using a different endpoint
// tie-break policy.
func (p *Proxy) WithEndpointSelection(sel reference.EndpointSelection) *Proxy {
	return p.derive(p.ref.ChangeEndpointSelection(sel))
}

// WithEndpoints returns a direct Proxy bound to the given endpoints.
func (p *Proxy) WithEndpoints(endpoints []reference.Endpoint) *Proxy {
	return p.derive(p.ref.ChangeEndpoints(endpoints))
}

// WithAdapterID returns an indirect Proxy resolved through adapterID.
func (p *Proxy) WithAdapterID(adapterID string) *Proxy {
	return p.derive(p.ref.ChangeAdapterID(adapterID))
}

// WithLocator returns a Proxy resolving indirect addressing through info.
func (p *Proxy) WithLocator(info *reference.LocatorInfo) *Proxy {
	return p.derive(p.ref.ChangeLocator(info))
}

// WithRouter returns a Proxy routed through info.
func (p *Proxy) WithRouter(info *reference.RouterInfo) *Proxy {
	return p.derive(p.ref.ChangeRouter(info))
}

// WithCollocationOptimized returns a Proxy that may (or may not) bypass the
// transport for a collocated servant.
func (p *Proxy) WithCollocationOptimized(optimized bool) *Proxy {
	return p.derive(p.ref.ChangeCollocationOptimized(optimized))
}

// WithConnectionCached returns a Proxy that caches its resolved request
// handler across calls (or resolves one afresh on every call).
func (p *Proxy) WithConnectionCached(cache bool) *Proxy {
	return p.derive(p.ref.ChangeCacheConnection(cache))
}

// WithPreferSecure returns a Proxy that prefers secure endpoints when both
// secure and insecure endpoints are viable.
func (p *Proxy) WithPreferSecure(prefer bool) *Proxy {
	return p.derive(p.ref.ChangePreferSecure(prefer))
}

// WithInvocationTimeout returns a Proxy whose requests time out after
// timeoutMS milliseconds. timeoutMS must be reference.InvocationTimeoutInfinite,
// reference.InvocationTimeoutUseConnection, or a positive number of
// milliseconds.
func (p *Proxy) WithInvocationTimeout(timeoutMS int) (*Proxy, error) {
	ref, err := p.ref.ChangeInvocationTimeout(timeoutMS)
	if err != nil {
		return nil, err
	}
	return p.derive(ref), nil
}

// WithTimeout returns a Proxy whose connections time out after ms
// milliseconds. ms must be reference.TimeoutInfinite or a positive number
// of milliseconds.
func (p *Proxy) WithTimeout(ms int) (*Proxy, error) {
	ref, err := p.ref.ChangeTimeout(ms)
	if err != nil {
		return nil, err
	}
	return p.derive(ref), nil
}

// WithLocatorCacheTimeout returns a Proxy whose indirect resolutions are
// treated as stale after seconds seconds. seconds must be
// reference.LocatorCacheTimeoutInfinite or non-negative.
func (p *Proxy) WithLocatorCacheTimeout(seconds int) (*Proxy, error) {
	ref, err := p.ref.ChangeLocatorCacheTimeout(seconds)
	if err != nil {
		return nil, err
	}
	return p.derive(ref), nil
}

// WithCompress returns a Proxy overriding whether requests are compressed.
func (p *Proxy) WithCompress(compress bool) *Proxy {
	return p.derive(p.ref.ChangeCompress(compress))
}

// ClearCompress returns a Proxy reverting to the connection's own
// compression default.
func (p *Proxy) ClearCompress() *Proxy {
	return p.derive(p.ref.ClearCompress())
}

// WithConnectionID returns a Proxy scoped to a specific connection pool
// bucket.
func (p *Proxy) WithConnectionID(id string) *Proxy {
	return p.derive(p.ref.ChangeConnectionID(id))
}

// IdentityEqual reports whether two proxies target the same identity,
// ignoring facet and every other attribute. Two proxies for different
// facets of the same object are IdentityEqual but not Equal.
func (p *Proxy) IdentityEqual(other *Proxy) bool {
	if other == nil {
		return false
	}
	return p.ref.Identity().Equal(other.ref.Identity())
}

// Equal reports whether two proxies carry structurally identical
// references, facet included.
func (p *Proxy) Equal(other *Proxy) bool {
	if other == nil {
		return false
	}
	return p.ref.Equal(other.ref)
}

// Less provides a total order over proxies, used for sorting or as map
// keys in deterministic contexts.
func (p *Proxy) Less(other *Proxy) bool { return p.ref.Less(other.ref) }

// String renders the proxy in stringified form.
func (p *Proxy) String() string { return p.ref.String() }

func (p *Proxy) requireTwoway(operation string) error {
	if p.ref.Mode().IsTwoway() {
		return nil
	}
	return iceproxy.NewUsageError(iceproxy.TwowayOnly, operation, "operation requires a twoway proxy")
}

// defaultRetryPolicy governs the built-in operations and generic Invoke
// when no caller-supplied policy is available; internal/invocation forwards
// a caller's own policy through to Invoke instead of using this one.
var defaultRetryPolicy = retry.DefaultPolicy()

// doRetrying runs attempt, and on failure clears whichever handler is
// cached when the failure is observed (via UpdateHandler's compare-and-swap,
// which leaves the slot alone only if it changes between that read and the
// clear; a handler another goroutine installed before the read is cleared
// too) before consulting policy for whether and when to retry, so the next
// attempt re-resolves through the binder instead of hammering the same
// failed handler. A nil policy falls back to defaultRetryPolicy.
func (p *Proxy) doRetrying(ctx context.Context, operation string, opMode reference.OperationMode, policy *retry.Policy, attempt func(context.Context) (reference.InvocationResult, error)) (reference.InvocationResult, error) {
	if policy == nil {
		policy = defaultRetryPolicy
	}
	cnt := 0
	for {
		result, err := attempt(ctx)
		if err == nil {
			return result, nil
		}
		used, _ := p.ref.GetCachedHandler()
		p.ref.UpdateHandler(used, nil)

		delay, newCnt, retryErr := policy.CheckRetry(err, opMode, cnt)
		if retryErr != nil {
			logging.InvocationFailed(p.ref.Logger(), operation, retryErr)
			return reference.InvocationResult{}, retryErr
		}
		cnt = newCnt
		logging.RetryScheduled(p.ref.Logger(), operation, cnt, delay.Milliseconds())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return reference.InvocationResult{}, ctx.Err()
		}
	}
}

// Ping verifies the target object exists and is reachable. Unlike IsA, ID,
// and Ids, ping has no two-way precondition: a oneway or datagram proxy
// pings fire-and-forget, without waiting for a reply that mode will never
// produce.
func (p *Proxy) Ping(ctx context.Context) error {
	_, err := p.doRetrying(ctx, "ice_ping", reference.Nonmutating, nil, func(ctx context.Context) (reference.InvocationResult, error) {
		handler, err := p.ref.GetRequestHandler(ctx)
		if err != nil {
			return reference.InvocationResult{}, err
		}
		return handler.SendRequest(ctx, reference.InvocationDescriptor{
			Operation: "ice_ping",
			Mode:      p.ref.Mode(),
			Context:   p.ref.Context(),
			Encoding:  p.ref.Encoding(),
		})
	})
	return err
}

// IsA reports whether the target object supports typeID.
func (p *Proxy) IsA(ctx context.Context, typeID string) (bool, error) {
	if err := p.requireTwoway("ice_isA"); err != nil {
		return false, err
	}
	result, err := p.doRetrying(ctx, "ice_isA", reference.Nonmutating, nil, func(ctx context.Context) (reference.InvocationResult, error) {
		handler, err := p.ref.GetRequestHandler(ctx)
		if err != nil {
			return reference.InvocationResult{}, err
		}
		return handler.SendRequest(ctx, reference.InvocationDescriptor{
			Operation: "ice_isA",
			Mode:      reference.Twoway,
			Context:   p.ref.Context(),
			Params:    []byte(typeID),
			Encoding:  p.ref.Encoding(),
		})
	})
	if err != nil {
		return false, err
	}
	return len(result.Results) > 0 && result.Results[0] != 0, nil
}

// ID returns the most-derived type id the target object reports.
func (p *Proxy) ID(ctx context.Context) (string, error) {
	if err := p.requireTwoway("ice_id"); err != nil {
		return "", err
	}
	result, err := p.doRetrying(ctx, "ice_id", reference.Nonmutating, nil, func(ctx context.Context) (reference.InvocationResult, error) {
		handler, err := p.ref.GetRequestHandler(ctx)
		if err != nil {
			return reference.InvocationResult{}, err
		}
		return handler.SendRequest(ctx, reference.InvocationDescriptor{
			Operation: "ice_id",
			Mode:      reference.Twoway,
			Context:   p.ref.Context(),
			Encoding:  p.ref.Encoding(),
		})
	})
	if err != nil {
		return "", err
	}
	return string(result.Results), nil
}

// Ids returns every type id the target object's most-derived type
// supports, encoded by the caller's marshalling layer.
func (p *Proxy) Ids(ctx context.Context) ([]byte, error) {
	if err := p.requireTwoway("ice_ids"); err != nil {
		return nil, err
	}
	result, err := p.doRetrying(ctx, "ice_ids", reference.Nonmutating, nil, func(ctx context.Context) (reference.InvocationResult, error) {
		handler, err := p.ref.GetRequestHandler(ctx)
		if err != nil {
			return reference.InvocationResult{}, err
		}
		return handler.SendRequest(ctx, reference.InvocationDescriptor{
			Operation: "ice_ids",
			Mode:      reference.Twoway,
			Context:   p.ref.Context(),
			Encoding:  p.ref.Encoding(),
		})
	})
	if err != nil {
		return nil, err
	}
	return result.Results, nil
}

// GetConnection resolves the connection this proxy would use through the
// Reference's Binder on every call, which may dial a new one. The proxy
// caches no connection itself, whatever cacheConnection says; pooling is up
// to the Binder.
func (p *Proxy) GetConnection(ctx context.Context) (reference.Connection, error) {
	binder := p.ref.Binder()
	if binder == nil {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, nil)
	}
	return binder.GetConnection(ctx, p.ref)
}

// FlushBatchRequests sends every request queued by a BatchOneway or
// BatchDatagram proxy sharing this proxy's Reference.
func (p *Proxy) FlushBatchRequests(ctx context.Context) error {
	queue, err := p.ref.GetBatchRequestQueue(ctx)
	if err != nil {
		return err
	}
	if err := queue.Flush(ctx); err != nil {
		p.ref.ClearHandler()
		return err
	}
	return nil
}

// Invoke performs a generic operation call with raw, already-marshalled
// parameters, the escape hatch used by callers that do not have (or do not
// want) a typed stub. opMode governs retry eligibility on failure; policy
// overrides the default retry policy when non-nil (internal/invocation
// forwards a caller-supplied one here rather than retrying twice).
func (p *Proxy) Invoke(ctx context.Context, operation string, opMode reference.OperationMode, params []byte, policy *retry.Policy) (reference.InvocationResult, error) {
	mode := p.ref.Mode()
	if mode.IsBatch() {
		queue, err := p.ref.GetBatchRequestQueue(ctx)
		if err != nil {
			return reference.InvocationResult{}, err
		}
		desc := reference.InvocationDescriptor{
			Operation: operation,
			Mode:      mode,
			Context:   p.ref.Context(),
			Params:    params,
			Encoding:  p.ref.Encoding(),
		}
		if err := queue.Enqueue(desc); err != nil {
			return reference.InvocationResult{}, err
		}
		return reference.InvocationResult{OK: true}, nil
	}

	return p.doRetrying(ctx, operation, opMode, policy, func(ctx context.Context) (reference.InvocationResult, error) {
		handler, err := p.ref.GetRequestHandler(ctx)
		if err != nil {
			return reference.InvocationResult{}, err
		}
		return handler.SendRequest(ctx, reference.InvocationDescriptor{
			Operation: operation,
			Mode:      mode,
			Context:   p.ref.Context(),
			Params:    params,
			Encoding:  p.ref.Encoding(),
		})
	})
}
