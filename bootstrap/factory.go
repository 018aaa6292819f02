package bootstrap

import (
	"log/slog"

	"github.com/muyun12/iceproxy/internal/config"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/proxy"
)

// NewProxy builds a Proxy for id, bound through binder, with every default
// attribute cfg.Proxy configures already applied: encoding version,
// invocation timeout, locator-cache timeout, and endpoint-selection
// tie-break. logger is attached to the underlying Reference so every
// handler-cache and retry event the runtime logs carries through to
// whatever slog handler the caller configured; a nil logger is treated as
// discarding output.
func NewProxy(id identity.Identity, binder reference.Binder, cfg config.RuntimeConfig, logger *slog.Logger) (*proxy.Proxy, error) {
	ref, err := reference.New(id, binder)
	if err != nil {
		return nil, err
	}

	ref.SetLogger(logger)

	ref = ref.ChangeEncoding(reference.Encoding{
		Major: cfg.Proxy.EncodingMajor,
		Minor: cfg.Proxy.EncodingMinor,
	})

	selection := reference.Random
	if cfg.Proxy.EndpointSelection == "ordered" {
		selection = reference.Ordered
	}
	ref = ref.ChangeEndpointSelection(selection)

	ref, err = ref.ChangeInvocationTimeout(cfg.Proxy.InvocationTimeoutMS)
	if err != nil {
		return nil, err
	}
	ref, err = ref.ChangeLocatorCacheTimeout(cfg.Proxy.LocatorCacheTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	return proxy.New(ref), nil
}
