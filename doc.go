// Package iceproxy implements the client-side proxy core of a distributed
// object middleware runtime: an immutable reference descriptor, copy-on-write
// derivation of proxies, pluggable request dispatch, and an at-most-once
// retry policy.
//
// The reference model lives in internal/reference, the client handle lives
// in proxy, per-call marshalling and the sync/async invocation front-end
// live in internal/invocation, and the retry predicate lives in
// internal/retry. This root package holds only the error taxonomy shared
// across all of them.
package iceproxy
