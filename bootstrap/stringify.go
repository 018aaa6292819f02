// Package bootstrap implements the two entry points applications actually
// use to obtain a Proxy: parsing a stringified proxy and reading/writing
// one from a wire stream. Both put the identity first. The wire form
// carries every attribute that takes part in Reference equality except the
// locator and router. The stringified form carries only the identity,
// facet, mode, secure flag, encoding, adapter id and endpoints: Parse
// leaves every other attribute (context, timeouts, caching, compression,
// connection id, ...) at its default, so Parse(Format(p)) equals p only
// when those attributes of p are at their defaults.
package bootstrap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/proxy"
)

// Format renders p in the stringified form Parse accepts back.
func Format(p *proxy.Proxy) string {
	return p.Reference().String()
}

// Parse builds a Proxy from its stringified form, binding it through
// binder. An empty or malformed string is reported as a usage error
// (IllegalIdentity for an empty identity name, IllegalArgument otherwise)
// rather than a panic, since stringified proxies routinely
// arrive from untrusted configuration or network input.
func Parse(s string, binder reference.Binder) (*proxy.Proxy, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "empty stringified proxy")
	}

	id, err := identity.Parse(tokens[0])
	if err != nil {
		return nil, err
	}

	ref, err := reference.New(id, binder)
	if err != nil {
		return nil, err
	}

	var endpoints []reference.Endpoint
	i := 1
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok == "-f":
			i++
			if i >= len(tokens) {
				return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "-f requires a facet name")
			}
			ref = ref.ChangeFacet(tokens[i])
			i++
		case tok == "-o":
			ref = ref.ChangeMode(reference.Oneway)
			i++
		case tok == "-O":
			ref = ref.ChangeMode(reference.BatchOneway)
			i++
		case tok == "-d":
			ref = ref.ChangeMode(reference.Datagram)
			i++
		case tok == "-D":
			ref = ref.ChangeMode(reference.BatchDatagram)
			i++
		case tok == "-s":
			ref = ref.ChangeSecure(true)
			i++
		case tok == "-e":
			i++
			if i >= len(tokens) {
				return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "-e requires an encoding version")
			}
			enc, err := parseEncoding(tokens[i])
			if err != nil {
				return nil, err
			}
			ref = ref.ChangeEncoding(enc)
			i++
		case tok == "@":
			i++
			if i >= len(tokens) {
				return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "@ requires an adapter id")
			}
			ref = ref.ChangeAdapterID(tokens[i])
			i++
		case strings.HasPrefix(tok, ":"):
			ep, next, err := parseEndpoint(tokens, i)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, ep)
			i = next
		default:
			return nil, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", fmt.Sprintf("unrecognized proxy attribute %q", tok))
		}
	}

	if len(endpoints) > 0 {
		ref = ref.ChangeEndpoints(endpoints)
	}

	return proxy.New(ref), nil
}

func parseEncoding(s string) (reference.Encoding, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return reference.Encoding{}, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", fmt.Sprintf("malformed encoding version %q", s))
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return reference.Encoding{}, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", fmt.Sprintf("malformed encoding major %q", parts[0]))
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return reference.Encoding{}, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", fmt.Sprintf("malformed encoding minor %q", parts[1]))
	}
	return reference.Encoding{Major: byte(major), Minor: byte(minor)}, nil
}

// parseEndpoint reads one ":transport -h host -p port" endpoint starting
// at tokens[i] (tokens[i] itself is ":transport"), returning the index of
// the first token after it.
func parseEndpoint(tokens []string, i int) (reference.Endpoint, int, error) {
	ep := reference.Endpoint{Transport: strings.TrimPrefix(tokens[i], ":")}
	i++
	for i < len(tokens) {
		switch tokens[i] {
		case "-h":
			i++
			if i >= len(tokens) {
				return reference.Endpoint{}, i, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "-h requires a host")
			}
			ep.Host = tokens[i]
			i++
		case "-p":
			i++
			if i >= len(tokens) {
				return reference.Endpoint{}, i, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", "-p requires a port")
			}
			port, err := strconv.Atoi(tokens[i])
			if err != nil {
				return reference.Endpoint{}, i, iceproxy.NewUsageError(iceproxy.IllegalArgument, "", fmt.Sprintf("malformed port %q", tokens[i]))
			}
			ep.Port = port
			i++
		case "-s":
			ep.Secure = true
			i++
		default:
			return ep, i, nil
		}
	}
	return ep, i, nil
}
