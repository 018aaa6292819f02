// Package invocation implements the sync/async invocation front-end: a
// single asynchronous submission path with a blocking wrapper for
// synchronous callers, rather than the begin_/end_ pair style the
// original API exposed — one call returns a Future, and the synchronous
// helpers here are nothing more than that Future immediately waited on.
package invocation

import (
	"context"
	"time"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/internal/retry"
	"github.com/muyun12/iceproxy/proxy"
)

// Future is the result of one asynchronous invocation, including whatever
// retries the bound Policy permitted along the way.
type Future struct {
	resultCh chan asyncOutcome
}

type asyncOutcome struct {
	result reference.InvocationResult
	err    error
}

// Wait blocks until the invocation completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (reference.InvocationResult, error) {
	select {
	case out := <-f.resultCh:
		return out.result, out.err
	case <-ctx.Done():
		return reference.InvocationResult{}, ctx.Err()
	}
}

// InvokeAsync submits operation for dispatch on p and returns immediately
// with a Future. Retries permitted by policy, and the end-to-end deadline
// p.Reference().InvocationTimeout() imposes, happen on a background
// goroutine; the caller observes only the final outcome.
func InvokeAsync(ctx context.Context, p *proxy.Proxy, operation string, opMode reference.OperationMode, params []byte, policy *retry.Policy) *Future {
	f := &Future{resultCh: make(chan asyncOutcome, 1)}
	go func() {
		deadlineCtx, cancel := deadlineFor(ctx, p)
		defer cancel()
		result, err := p.Invoke(deadlineCtx, operation, opMode, params, policy)
		f.resultCh <- asyncOutcome{result: result, err: err}
	}()
	return f
}

// Invoke is the synchronous equivalent of InvokeAsync: submit, then wait.
func Invoke(ctx context.Context, p *proxy.Proxy, operation string, opMode reference.OperationMode, params []byte, policy *retry.Policy) (reference.InvocationResult, error) {
	return InvokeAsync(ctx, p, operation, opMode, params, policy).Wait(ctx)
}

// deadlineFor derives the context an invocation attempt runs under from the
// reference's invocationTimeout: infinite imposes no deadline,
// "use connection timeout" borrows whatever connection-level timeout is
// configured instead, and a positive value bounds the whole invocation
// end-to-end regardless of how many retries it takes.
func deadlineFor(ctx context.Context, p *proxy.Proxy) (context.Context, context.CancelFunc) {
	ref := p.Reference()
	switch timeout := ref.InvocationTimeout(); timeout {
	case reference.InvocationTimeoutInfinite:
		return ctx, func() {}
	case reference.InvocationTimeoutUseConnection:
		connTimeout := ref.Timeout()
		if connTimeout == reference.TimeoutInfinite {
			return ctx, func() {}
		}
		return context.WithTimeout(ctx, time.Duration(connTimeout)*time.Millisecond)
	default:
		return context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
	}
}

// AsyncPing is the async counterpart of Proxy.Ping. The synchronous Ping
// has no two-way precondition, but the async entry point rejects a
// non-twoway proxy immediately with an IllegalArgument usage error: the caller
// explicitly asked to be handed a Future to wait on, and there is no reply
// forthcoming to put in it, which is a programmer error rather than a
// runtime condition.
func AsyncPing(ctx context.Context, p *proxy.Proxy) (*Future, error) {
	if !p.IsTwoway() {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "ice_ping", "async invocation on a non-twoway proxy cannot produce a reply")
	}
	f := &Future{resultCh: make(chan asyncOutcome, 1)}
	go func() {
		deadlineCtx, cancel := deadlineFor(ctx, p)
		defer cancel()
		err := p.Ping(deadlineCtx)
		f.resultCh <- asyncOutcome{err: err}
	}()
	return f, nil
}

// AsyncIsA is the async counterpart of Proxy.IsA.
func AsyncIsA(ctx context.Context, p *proxy.Proxy, typeID string) (*Future, error) {
	if !p.IsTwoway() {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "ice_isA", "async invocation on a non-twoway proxy cannot produce a reply")
	}
	f := &Future{resultCh: make(chan asyncOutcome, 1)}
	go func() {
		deadlineCtx, cancel := deadlineFor(ctx, p)
		defer cancel()
		ok, err := p.IsA(deadlineCtx, typeID)
		res := reference.InvocationResult{OK: true}
		if ok {
			res.Results = []byte{1}
		} else {
			res.Results = []byte{0}
		}
		f.resultCh <- asyncOutcome{result: res, err: err}
	}()
	return f, nil
}

// AsyncID is the async counterpart of Proxy.ID.
func AsyncID(ctx context.Context, p *proxy.Proxy) (*Future, error) {
	if !p.IsTwoway() {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "ice_id", "async invocation on a non-twoway proxy cannot produce a reply")
	}
	f := &Future{resultCh: make(chan asyncOutcome, 1)}
	go func() {
		deadlineCtx, cancel := deadlineFor(ctx, p)
		defer cancel()
		id, err := p.ID(deadlineCtx)
		f.resultCh <- asyncOutcome{result: reference.InvocationResult{OK: true, Results: []byte(id)}, err: err}
	}()
	return f, nil
}
