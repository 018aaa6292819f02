package reference

import (
	"context"

	"github.com/muyun12/iceproxy/internal/identity"
)

// Locator resolves an Identity (or adapter id) to a concrete set of
// endpoints. A Reference asks a LocatorInfo for "well-known proxy"
// resolution instead of carrying endpoints itself; locating the locator's
// own endpoints, caching, and well-known-proxy lookup policy are the
// responsibility of whatever implements this interface — this package only
// needs the contract.
type Locator interface {
	// FindObjectByID resolves an object identity to endpoints.
	FindObjectByID(ctx context.Context, id identity.Identity) ([]Endpoint, error)
	// FindAdapterByID resolves an adapter id to endpoints.
	FindAdapterByID(ctx context.Context, adapterID string) ([]Endpoint, error)
}

// Router carries every request for a Reference through a fixed indirection
// point instead of resolving endpoints directly.
type Router interface {
	// ClientProxyEndpoints returns the endpoints a client should connect
	// through to reach objects routed by this Router.
	ClientProxyEndpoints(ctx context.Context) ([]Endpoint, bool, error)
}

// LocatorInfo wraps a Locator together with the adapter id used to scope
// lookups, and is what a Reference actually stores: two references sharing
// the same Locator and adapter id are expected to share the same
// LocatorInfo value so that Reference equality stays structural rather than
// requiring the Locator implementation to define ==.
type LocatorInfo struct {
	Locator   Locator
	AdapterID string
}

// Equal compares by Locator identity (not by calling into it) and adapter
// id, matching how the C++ original treats LocatorInfo as a flyweight.
func (l *LocatorInfo) Equal(other *LocatorInfo) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil {
		return false
	}
	return l.Locator == other.Locator && l.AdapterID == other.AdapterID
}

// RouterInfo wraps a Router the same way LocatorInfo wraps a Locator.
type RouterInfo struct {
	Router Router
}

// Equal compares by Router identity.
func (r *RouterInfo) Equal(other *RouterInfo) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return r.Router == other.Router
}
