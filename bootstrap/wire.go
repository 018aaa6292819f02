package bootstrap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/proxy"
)

// WriteStream encodes p onto w in the same attribute order Format uses:
// identity first, then facet, mode, secure, encoding, addressing, followed
// by every remaining attribute that participates in Reference.Equal, so
// that ReadStream(WriteStream(p)) always reports p.Equal(parsed).
//
// locatorInfo and routerInfo are the one exception: both wrap a live
// Locator/Router collaborator interface with no general wire
// representation (a locator is a service a peer resolves against, not a
// value), so they cannot round-trip through a byte stream at all. A proxy
// carrying either loses it across the wire exactly as it would lose any
// other live Go interface value serialized this way; callers that need a
// locator/router on the far side must rebind one explicitly after
// ReadStream, the same way ReadStream's own binder argument is supplied
// out of band rather than serialized.
func WriteStream(w io.Writer, p *proxy.Proxy) error {
	ref := p.Reference()

	if err := writeString(w, ref.Identity().Name); err != nil {
		return err
	}
	if err := writeString(w, ref.Identity().Category); err != nil {
		return err
	}
	if err := writeString(w, ref.Facet()); err != nil {
		return err
	}
	if err := writeByte(w, byte(ref.Mode())); err != nil {
		return err
	}
	if err := writeBool(w, ref.Secure()); err != nil {
		return err
	}
	enc := ref.Encoding()
	if err := writeByte(w, enc.Major); err != nil {
		return err
	}
	if err := writeByte(w, enc.Minor); err != nil {
		return err
	}
	if err := writeString(w, ref.AdapterID()); err != nil {
		return err
	}

	endpoints := ref.Endpoints()
	if err := writeUint32(w, uint32(len(endpoints))); err != nil {
		return err
	}
	for _, ep := range endpoints {
		if err := writeString(w, ep.Transport); err != nil {
			return err
		}
		if err := writeString(w, ep.Host); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(ep.Port)); err != nil {
			return err
		}
		if err := writeBool(w, ep.Secure); err != nil {
			return err
		}
	}

	ctx := ref.Context()
	if err := writeUint32(w, uint32(ctx.Len())); err != nil {
		return err
	}
	for i := 0; i < ctx.Len(); i++ {
		entry := ctx.At(i)
		if err := writeString(w, entry.Key); err != nil {
			return err
		}
		if err := writeString(w, entry.Value); err != nil {
			return err
		}
	}

	if err := writeBool(w, ref.PreferSecure()); err != nil {
		return err
	}
	if err := writeBool(w, ref.CollocationOptimized()); err != nil {
		return err
	}
	if err := writeBool(w, ref.CacheConnection()); err != nil {
		return err
	}
	if err := writeByte(w, byte(ref.EndpointSelection())); err != nil {
		return err
	}
	if err := writeInt32(w, int32(ref.InvocationTimeout())); err != nil {
		return err
	}
	if err := writeInt32(w, int32(ref.Timeout())); err != nil {
		return err
	}
	if err := writeInt32(w, int32(ref.LocatorCacheTimeout())); err != nil {
		return err
	}
	if err := writeString(w, ref.ConnectionID()); err != nil {
		return err
	}
	compress, compressSet := ref.Compress()
	if err := writeBool(w, compressSet); err != nil {
		return err
	}
	return writeBool(w, compress)
}

// ReadStream decodes a Proxy from r, binding it through binder.
func ReadStream(r io.Reader, binder reference.Binder) (*proxy.Proxy, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	category, err := readString(r)
	if err != nil {
		return nil, err
	}
	id, err := identity.New(name, category)
	if err != nil {
		return nil, err
	}

	facet, err := readString(r)
	if err != nil {
		return nil, err
	}
	modeByte, err := readByte(r)
	if err != nil {
		return nil, err
	}
	secure, err := readBool(r)
	if err != nil {
		return nil, err
	}
	major, err := readByte(r)
	if err != nil {
		return nil, err
	}
	minor, err := readByte(r)
	if err != nil {
		return nil, err
	}
	adapterID, err := readString(r)
	if err != nil {
		return nil, err
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	endpoints := make([]reference.Endpoint, 0, count)
	for i := uint32(0); i < count; i++ {
		transport, err := readString(r)
		if err != nil {
			return nil, err
		}
		host, err := readString(r)
		if err != nil {
			return nil, err
		}
		port, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		epSecure, err := readBool(r)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, reference.Endpoint{
			Transport: transport,
			Host:      host,
			Port:      int(port),
			Secure:    epSecure,
		})
	}

	ctxCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	ctxEntries := make([]reference.ContextEntry, 0, ctxCount)
	for i := uint32(0); i < ctxCount; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		value, err := readString(r)
		if err != nil {
			return nil, err
		}
		ctxEntries = append(ctxEntries, reference.ContextEntry{Key: key, Value: value})
	}

	preferSecure, err := readBool(r)
	if err != nil {
		return nil, err
	}
	collocationOptimized, err := readBool(r)
	if err != nil {
		return nil, err
	}
	cacheConnection, err := readBool(r)
	if err != nil {
		return nil, err
	}
	selectionByte, err := readByte(r)
	if err != nil {
		return nil, err
	}
	invocationTimeout, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	connTimeout, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	locatorCacheTimeout, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	connectionID, err := readString(r)
	if err != nil {
		return nil, err
	}
	compressSet, err := readBool(r)
	if err != nil {
		return nil, err
	}
	compress, err := readBool(r)
	if err != nil {
		return nil, err
	}

	ref, err := reference.New(id, binder)
	if err != nil {
		return nil, err
	}
	ref = ref.ChangeFacet(facet).
		ChangeMode(reference.Mode(modeByte)).
		ChangeSecure(secure).
		ChangeEncoding(reference.Encoding{Major: major, Minor: minor}).
		ChangeContext(reference.NewContext(ctxEntries...)).
		ChangePreferSecure(preferSecure).
		ChangeCollocationOptimized(collocationOptimized).
		ChangeCacheConnection(cacheConnection).
		ChangeEndpointSelection(reference.EndpointSelection(selectionByte)).
		ChangeConnectionID(connectionID)
	if adapterID != "" {
		ref = ref.ChangeAdapterID(adapterID)
	}
	if len(endpoints) > 0 {
		ref = ref.ChangeEndpoints(endpoints)
	}
	if ref, err = ref.ChangeInvocationTimeout(int(invocationTimeout)); err != nil {
		return nil, err
	}
	if ref, err = ref.ChangeTimeout(int(connTimeout)); err != nil {
		return nil, err
	}
	if ref, err = ref.ChangeLocatorCacheTimeout(int(locatorCacheTimeout)); err != nil {
		return nil, err
	}
	if compressSet {
		ref = ref.ChangeCompress(compress)
	}

	return proxy.New(ref), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeInt32(w io.Writer, v int32) error {
	return writeUint32(w, uint32(v))
}

func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeBool(w io.Writer, b bool) error {
	if b {
		return writeByte(w, 1)
	}
	return writeByte(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	b, err := readByte(r)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("reading string of length %d: %w", n, err)
	}
	return string(buf), nil
}
