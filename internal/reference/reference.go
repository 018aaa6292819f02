// Package reference implements the immutable reference descriptor that
// backs every proxy: identity, facet, invocation mode, endpoints (direct or
// indirect via locator/router), and the request-handler cache a proxy
// shares with every other proxy derived from the same reference.
package reference

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/logging"
)

// Reference is the immutable descriptor of how to reach a remote object.
// Every field set at construction time is read-only for the lifetime of the
// value; derivation always produces a new Reference rather than mutating
// this one. The one piece of mutable state a Reference owns is its
// request-handler cache, which every Proxy sharing this Reference observes
// through GetRequestHandler/GetCachedHandler.
type Reference struct {
	identity  identity.Identity
	ctx       Context
	facet     string
	mode      Mode
	secure    bool
	encoding  Encoding
	selection EndpointSelection
	endpoints []Endpoint
	adapterID string

	locatorInfo *LocatorInfo
	routerInfo  *RouterInfo

	collocationOptimized bool
	cacheConnection      bool
	preferSecure         bool
	invocationTimeout    int // milliseconds; see InvocationTimeoutInfinite/InvocationTimeoutUseConnection
	timeout              int // connection timeout, milliseconds; see TimeoutInfinite
	locatorCacheTimeout  int // seconds; see LocatorCacheTimeoutInfinite

	compressSet bool
	compress    bool

	connectionID string

	binder Binder
	logger *slog.Logger

	mu         sync.Mutex
	handler    RequestHandler
	batchQueue BatchRequestQueue
}

const (
	// InvocationTimeoutInfinite disables any per-invocation deadline.
	InvocationTimeoutInfinite = -1
	// InvocationTimeoutUseConnection defers to the connection-level timeout
	// configured on this Reference (Timeout, set via ChangeTimeout), rather
	// than imposing a separate one for this invocation.
	InvocationTimeoutUseConnection = -2
)

// TimeoutInfinite disables the connection-level timeout set via
// ChangeTimeout.
const TimeoutInfinite = -1

// LocatorCacheTimeoutInfinite caches indirect (adapter id) resolutions
// indefinitely, never treating them as stale.
const LocatorCacheTimeoutInfinite = -1

// New constructs a Reference with the given identity and binder, and
// defaults matching a freshly created well-known proxy: twoway, secure
// connections not required, random endpoint selection, connection caching
// enabled, no connection or invocation timeout, and indefinite locator
// caching.
func New(id identity.Identity, binder Binder) (*Reference, error) {
	if id.Empty() {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalIdentity, "", "reference requires a non-empty identity")
	}
	return &Reference{
		identity:            id,
		ctx:                 EmptyContext,
		mode:                Twoway,
		encoding:            DefaultEncoding,
		selection:           Random,
		cacheConnection:     true,
		invocationTimeout:   InvocationTimeoutInfinite,
		timeout:             TimeoutInfinite,
		locatorCacheTimeout: LocatorCacheTimeoutInfinite,
		binder:              binder,
		logger:              logging.Nop(),
	}, nil
}

func (r *Reference) Identity() identity.Identity       { return r.identity }
func (r *Reference) Context() Context                  { return r.ctx }
func (r *Reference) Facet() string                     { return r.facet }
func (r *Reference) Mode() Mode                        { return r.mode }
func (r *Reference) Secure() bool                       { return r.secure }
func (r *Reference) Encoding() Encoding                 { return r.encoding }
func (r *Reference) EndpointSelection() EndpointSelection { return r.selection }
func (r *Reference) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}
func (r *Reference) AdapterID() string                 { return r.adapterID }
func (r *Reference) LocatorInfo() *LocatorInfo          { return r.locatorInfo }
func (r *Reference) RouterInfo() *RouterInfo            { return r.routerInfo }
func (r *Reference) CollocationOptimized() bool         { return r.collocationOptimized }
func (r *Reference) CacheConnection() bool              { return r.cacheConnection }
func (r *Reference) PreferSecure() bool                 { return r.preferSecure }
func (r *Reference) InvocationTimeout() int             { return r.invocationTimeout }
func (r *Reference) Timeout() int                       { return r.timeout }
func (r *Reference) LocatorCacheTimeout() int           { return r.locatorCacheTimeout }
func (r *Reference) Compress() (bool, bool)             { return r.compress, r.compressSet }
func (r *Reference) ConnectionID() string               { return r.connectionID }
func (r *Reference) IsIndirect() bool                   { return r.adapterID != "" }
func (r *Reference) IsWellKnown() bool                  { return r.adapterID == "" && len(r.endpoints) == 0 }

// Logger returns the logger this reference and its derivations report
// handler-cache and retry diagnostics through. Never nil.
func (r *Reference) Logger() *slog.Logger { return r.logger }

// SetLogger attaches logger for handler-cache and retry diagnostics. It is
// not part of the reference's identity (Equal/Hash ignore it, and a nil
// logger is treated as a request to go back to the default no-op one), so
// it mutates the reference in place rather than going through clone.
func (r *Reference) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.Nop()
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// clone produces a detached copy with a fresh, empty handler cache: every
// derivation starts out unbound, since a changed attribute may change which
// handler is the right one to bind.
func (r *Reference) clone() *Reference {
	n := &Reference{
		identity:              r.identity,
		ctx:                   r.ctx,
		facet:                 r.facet,
		mode:                  r.mode,
		secure:                r.secure,
		encoding:              r.encoding,
		selection:             r.selection,
		adapterID:             r.adapterID,
		locatorInfo:           r.locatorInfo,
		routerInfo:            r.routerInfo,
		collocationOptimized:  r.collocationOptimized,
		cacheConnection:       r.cacheConnection,
		preferSecure:          r.preferSecure,
		invocationTimeout:     r.invocationTimeout,
		timeout:               r.timeout,
		locatorCacheTimeout:   r.locatorCacheTimeout,
		compressSet:           r.compressSet,
		compress:              r.compress,
		connectionID:          r.connectionID,
		binder:                r.binder,
		logger:                r.logger,
	}
	n.endpoints = make([]Endpoint, len(r.endpoints))
	copy(n.endpoints, r.endpoints)
	return n
}

// ChangeContext returns a Reference carrying ctx, sharing this Reference
// unchanged if ctx is already the one in effect.
func (r *Reference) ChangeContext(ctx Context) *Reference {
	if r.ctx.Equal(ctx) {
		return r
	}
	n := r.clone()
	n.ctx = ctx
	return n
}

// ChangeFacet returns a Reference targeting a different facet of the same
// identity.
func (r *Reference) ChangeFacet(facet string) *Reference {
	if r.facet == facet {
		return r
	}
	n := r.clone()
	n.facet = facet
	return n
}

// ChangeMode returns a Reference bound to a different invocation mode.
func (r *Reference) ChangeMode(mode Mode) *Reference {
	if r.mode == mode {
		return r
	}
	n := r.clone()
	n.mode = mode
	return n
}

// ChangeSecure returns a Reference requiring (or not requiring) a secure
// connection.
func (r *Reference) ChangeSecure(secure bool) *Reference {
	if r.secure == secure {
		return r
	}
	n := r.clone()
	n.secure = secure
	return n
}

// ChangeEncoding returns a Reference negotiating a different protocol
// encoding.
func (r *Reference) ChangeEncoding(enc Encoding) *Reference {
	if r.encoding.Equal(enc) {
		return r
	}
	n := r.clone()
	n.encoding = enc
	return n
}

// ChangeEndpointSelection returns a Reference using a different tie-break
// policy among its endpoints.
func (r *Reference) ChangeEndpointSelection(sel EndpointSelection) *Reference {
	if r.selection == sel {
		return r
	}
	n := r.clone()
	n.selection = sel
	return n
}

// ChangeEndpoints returns a direct Reference bound to the given endpoints,
// clearing any adapter id (direct and indirect addressing are mutually
// exclusive).
func (r *Reference) ChangeEndpoints(endpoints []Endpoint) *Reference {
	if EndpointsEqual(r.endpoints, endpoints) && r.adapterID == "" {
		return r
	}
	n := r.clone()
	n.endpoints = make([]Endpoint, len(endpoints))
	copy(n.endpoints, endpoints)
	n.adapterID = ""
	return n
}

// ChangeAdapterID returns an indirect Reference resolved through adapterID,
// clearing any direct endpoints.
func (r *Reference) ChangeAdapterID(adapterID string) *Reference {
	if r.adapterID == adapterID && len(r.endpoints) == 0 {
		return r
	}
	n := r.clone()
	n.adapterID = adapterID
	n.endpoints = nil
	return n
}

// ChangeLocator returns a Reference resolving indirect addressing through a
// different LocatorInfo.
func (r *Reference) ChangeLocator(info *LocatorInfo) *Reference {
	if r.locatorInfo.Equal(info) {
		return r
	}
	n := r.clone()
	n.locatorInfo = info
	return n
}

// ChangeRouter returns a Reference routed through a different RouterInfo.
func (r *Reference) ChangeRouter(info *RouterInfo) *Reference {
	if r.routerInfo.Equal(info) {
		return r
	}
	n := r.clone()
	n.routerInfo = info
	return n
}

// ChangeCollocationOptimized toggles whether a collocated servant may be
// invoked in-process, bypassing the transport entirely.
func (r *Reference) ChangeCollocationOptimized(optimized bool) *Reference {
	if r.collocationOptimized == optimized {
		return r
	}
	n := r.clone()
	n.collocationOptimized = optimized
	return n
}

// ChangeCacheConnection toggles whether the request handler resolved
// through the Binder is cached on the Reference and reused across calls, or
// resolved afresh on every call. Connection pooling is up to the Binder.
func (r *Reference) ChangeCacheConnection(cache bool) *Reference {
	if r.cacheConnection == cache {
		return r
	}
	n := r.clone()
	n.cacheConnection = cache
	return n
}

// ChangePreferSecure toggles whether endpoint selection should favor secure
// endpoints when both secure and insecure are viable.
func (r *Reference) ChangePreferSecure(prefer bool) *Reference {
	if r.preferSecure == prefer {
		return r
	}
	n := r.clone()
	n.preferSecure = prefer
	return n
}

// ChangeInvocationTimeout returns a Reference whose requests time out after
// timeoutMS milliseconds. timeoutMS must be InvocationTimeoutInfinite,
// InvocationTimeoutUseConnection, or a positive number of milliseconds; any
// other value (notably 0) is rejected with an IllegalArgument usage error.
func (r *Reference) ChangeInvocationTimeout(timeoutMS int) (*Reference, error) {
	if timeoutMS != InvocationTimeoutInfinite && timeoutMS != InvocationTimeoutUseConnection && timeoutMS < 1 {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "",
			fmt.Sprintf("invocation timeout must be -2, -1, or >= 1 milliseconds, got %d", timeoutMS))
	}
	if r.invocationTimeout == timeoutMS {
		return r, nil
	}
	n := r.clone()
	n.invocationTimeout = timeoutMS
	return n, nil
}

// ChangeTimeout returns a Reference whose connections time out after ms
// milliseconds. ms must be TimeoutInfinite or a positive number of
// milliseconds; any other value (notably 0) is rejected with an
// IllegalArgument usage error.
func (r *Reference) ChangeTimeout(ms int) (*Reference, error) {
	if ms != TimeoutInfinite && ms < 1 {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "",
			fmt.Sprintf("connection timeout must be -1 or >= 1 milliseconds, got %d", ms))
	}
	if r.timeout == ms {
		return r, nil
	}
	n := r.clone()
	n.timeout = ms
	return n, nil
}

// ChangeLocatorCacheTimeout returns a Reference whose indirect resolutions
// are treated as stale after seconds seconds. seconds must be
// LocatorCacheTimeoutInfinite or a non-negative number of seconds; anything
// less than -1 is rejected with an IllegalArgument usage error.
func (r *Reference) ChangeLocatorCacheTimeout(seconds int) (*Reference, error) {
	if seconds < -1 {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "",
			fmt.Sprintf("locator cache timeout must be >= -1 seconds, got %d", seconds))
	}
	if r.locatorCacheTimeout == seconds {
		return r, nil
	}
	n := r.clone()
	n.locatorCacheTimeout = seconds
	return n, nil
}

// ChangeCompress returns a Reference overriding whether requests are
// compressed. Calling ClearCompress (compress unset) restores the
// connection's own default.
func (r *Reference) ChangeCompress(compress bool) *Reference {
	if r.compressSet && r.compress == compress {
		return r
	}
	n := r.clone()
	n.compressSet = true
	n.compress = compress
	return n
}

// ClearCompress removes any compression override, reverting to the
// connection default.
func (r *Reference) ClearCompress() *Reference {
	if !r.compressSet {
		return r
	}
	n := r.clone()
	n.compressSet = false
	n.compress = false
	return n
}

// ChangeConnectionID returns a Reference scoped to a specific connection
// pool bucket, used to keep unrelated calls from sharing a connection.
func (r *Reference) ChangeConnectionID(id string) *Reference {
	if r.connectionID == id {
		return r
	}
	n := r.clone()
	n.connectionID = id
	return n
}

// Equal reports structural equality of every attribute a Reference carries.
// The request-handler cache is deliberately excluded: it is a resolution
// artifact, not part of the reference's identity.
func (r *Reference) Equal(other *Reference) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return r.identity.Equal(other.identity) &&
		r.ctx.Equal(other.ctx) &&
		r.facet == other.facet &&
		r.mode == other.mode &&
		r.secure == other.secure &&
		r.encoding.Equal(other.encoding) &&
		r.selection == other.selection &&
		EndpointsEqual(r.endpoints, other.endpoints) &&
		r.adapterID == other.adapterID &&
		r.locatorInfo.Equal(other.locatorInfo) &&
		r.routerInfo.Equal(other.routerInfo) &&
		r.collocationOptimized == other.collocationOptimized &&
		r.cacheConnection == other.cacheConnection &&
		r.preferSecure == other.preferSecure &&
		r.invocationTimeout == other.invocationTimeout &&
		r.timeout == other.timeout &&
		r.locatorCacheTimeout == other.locatorCacheTimeout &&
		r.compressSet == other.compressSet &&
		r.compress == other.compress &&
		r.connectionID == other.connectionID
}

// Less provides a total order over References, used when they are sorted
// or used as keys in an ordered collection. Identity dominates, then facet,
// then the stringified form, then the attributes the stringified form
// omits. References that differ only in their LocatorInfo or RouterInfo
// compare as neither less than the other.
func (r *Reference) Less(other *Reference) bool {
	if !r.identity.Equal(other.identity) {
		return r.identity.Less(other.identity)
	}
	if r.facet != other.facet {
		return r.facet < other.facet
	}
	if rs, os := r.String(), other.String(); rs != os {
		return rs < os
	}
	key := func(x *Reference) string {
		return fmt.Sprintf("%q|%d|%t|%t|%t|%d|%d|%d|%t|%t|%q",
			x.ctx.entries, x.selection, x.preferSecure, x.collocationOptimized, x.cacheConnection,
			x.invocationTimeout, x.timeout, x.locatorCacheTimeout, x.compressSet, x.compress, x.connectionID)
	}
	return key(r) < key(other)
}

// Hash returns a value consistent with Equal: equal References hash equal.
func (r *Reference) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(r.identity.String()))
	h.Write([]byte{0})
	h.Write([]byte(r.facet))
	h.Write([]byte{0})
	h.Write([]byte(r.ctx.String()))
	h.Write([]byte{0})
	h.Write([]byte(r.mode.String()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(r.secure)))
	h.Write([]byte{0})
	h.Write([]byte(r.encoding.String()))
	h.Write([]byte{0})
	h.Write([]byte(r.adapterID))
	h.Write([]byte{0})
	for _, e := range r.endpoints {
		h.Write([]byte(e.String()))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// String renders the reference in stringified-proxy form: identity first,
// then facet, mode, and addressing attributes in a fixed order, matching
// the contract bootstrap.Parse expects on the way back in.
func (r *Reference) String() string {
	var b strings.Builder
	b.WriteString(r.identity.String())
	if r.facet != "" {
		b.WriteString(" -f ")
		b.WriteString(r.facet)
	}
	switch r.mode {
	case Oneway:
		b.WriteString(" -o")
	case BatchOneway:
		b.WriteString(" -O")
	case Datagram:
		b.WriteString(" -d")
	case BatchDatagram:
		b.WriteString(" -D")
	}
	if r.secure {
		b.WriteString(" -s")
	}
	b.WriteString(" -e ")
	b.WriteString(r.encoding.String())
	if r.adapterID != "" {
		b.WriteString(" @ ")
		b.WriteString(r.adapterID)
	}
	for _, e := range r.endpoints {
		b.WriteString(" :")
		b.WriteString(e.String())
	}
	return b.String()
}

// GetCachedHandler returns the currently installed handler, if any, without
// attempting resolution.
func (r *Reference) GetCachedHandler() (RequestHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler, r.handler != nil
}

// GetRequestHandler returns the cached handler if one is installed,
// otherwise resolves one through the bound Binder. Multiple goroutines
// racing to resolve the same Reference concurrently all receive a handler;
// only the first one to install wins the cache slot, and every loser's
// handler is simply discarded rather than torn down here (closing
// connections is the Binder's concern).
//
// When cacheConnection is false, nothing is ever installed: every call
// re-resolves through the Binder and returns the freshly resolved handler
// verbatim, exactly as if no cache existed.
func (r *Reference) GetRequestHandler(ctx context.Context) (RequestHandler, error) {
	if r.cacheConnection {
		if cached, ok := r.GetCachedHandler(); ok {
			return cached, nil
		}
	}
	if r.binder == nil {
		return nil, iceproxy.NewLocalError(iceproxy.ConnectFailed, "", false, nil)
	}
	resolved, err := r.binder.GetRequestHandler(ctx, r)
	if err != nil {
		return nil, err
	}
	if !r.cacheConnection {
		return resolved, nil
	}
	r.mu.Lock()
	installed := false
	if r.handler == nil {
		r.handler = resolved
		installed = true
	}
	winner := r.handler
	r.mu.Unlock()
	if installed {
		logging.HandlerInstalled(r.logger, r.identity.String(), r.primaryEndpointString())
	}
	return winner, nil
}

// primaryEndpointString renders whatever this reference would bind to, for
// log lines that need something more specific than an identity.
func (r *Reference) primaryEndpointString() string {
	if len(r.endpoints) > 0 {
		return r.endpoints[0].String()
	}
	if r.adapterID != "" {
		return "@" + r.adapterID
	}
	return ""
}

// UpdateHandler installs handler as the cached one only if previous is
// still the currently installed handler, implementing a compare-and-swap so
// that a stale resolution (e.g. from a connection that has since failed)
// cannot clobber a newer one. It reports whether the install happened.
func (r *Reference) UpdateHandler(previous, handler RequestHandler) bool {
	r.mu.Lock()
	if r.handler != previous {
		r.mu.Unlock()
		return false
	}
	r.handler = handler
	r.mu.Unlock()
	if handler == nil {
		logging.HandlerCleared(r.logger, r.identity.String())
	}
	return true
}

// ClearHandler unconditionally evicts the cached handler, forcing the next
// GetRequestHandler call to resolve again.
func (r *Reference) ClearHandler() {
	r.mu.Lock()
	r.handler = nil
	r.batchQueue = nil
	r.mu.Unlock()
	logging.HandlerCleared(r.logger, r.identity.String())
}

// GetBatchRequestQueue returns the cached batch queue for this reference,
// resolving and installing one on first use.
func (r *Reference) GetBatchRequestQueue(ctx context.Context) (BatchRequestQueue, error) {
	r.mu.Lock()
	if r.batchQueue != nil {
		q := r.batchQueue
		r.mu.Unlock()
		return q, nil
	}
	r.mu.Unlock()

	handler, err := r.GetRequestHandler(ctx)
	if err != nil {
		return nil, err
	}
	q, ok := handler.AsBatchRequestQueue()
	if !ok {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "reference's bound handler does not support batching")
	}

	r.mu.Lock()
	if r.batchQueue == nil {
		r.batchQueue = q
	}
	winner := r.batchQueue
	r.mu.Unlock()
	return winner, nil
}

// Binder returns the collaborator this reference resolves handlers through.
func (r *Reference) Binder() Binder { return r.binder }
