package reference

import "fmt"

// Endpoint is an opaque address descriptor. Resolving an Endpoint into an
// actual transport connection is the job of the connection-establishment
// state machine, which this core treats as an external collaborator —
// Endpoint here only carries enough information for equality, ordering,
// and stringification.
type Endpoint struct {
	Transport string // e.g. "tcp", "ssl", "quic", "grpc"
	Host      string
	Port      int
	Secure    bool
}

func (e Endpoint) String() string {
	s := fmt.Sprintf("%s -h %s -p %d", e.Transport, e.Host, e.Port)
	if e.Secure {
		s += " -s"
	}
	return s
}

// Equal reports structural equality.
func (e Endpoint) Equal(other Endpoint) bool {
	return e == other
}

// Less provides a total order used by EndpointSlice comparisons.
func (e Endpoint) Less(other Endpoint) bool {
	if e.Transport != other.Transport {
		return e.Transport < other.Transport
	}
	if e.Host != other.Host {
		return e.Host < other.Host
	}
	if e.Port != other.Port {
		return e.Port < other.Port
	}
	return !e.Secure && other.Secure
}

// EndpointsEqual compares two endpoint sequences for structural equality,
// order included: endpoint order affects Ordered endpoint selection, so it
// is part of the Reference's equality contract.
func EndpointsEqual(a, b []Endpoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Encoding is the (major, minor) protocol encoding version governing wire
// encoding of parameters (actual marshalling is an external collaborator).
type Encoding struct {
	Major byte
	Minor byte
}

// DefaultEncoding is the encoding version assumed when a Reference does
// not negotiate one explicitly.
var DefaultEncoding = Encoding{Major: 1, Minor: 1}

func (e Encoding) String() string {
	return fmt.Sprintf("%d.%d", e.Major, e.Minor)
}

func (e Encoding) Equal(other Encoding) bool { return e == other }
