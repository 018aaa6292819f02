// Package identity defines the (name, category) identity pair used to
// address a remote object, independent of how that object is reached.
package identity

import (
	"fmt"
	"strings"

	"github.com/muyun12/iceproxy"
)

// Identity names a remote object by a (name, category) pair. Name must be
// non-empty; category is a namespacing convention interpreted by whatever
// services group identities (it has no meaning to the proxy core itself).
type Identity struct {
	Name     string
	Category string
}

// New validates and constructs an Identity. An empty name is rejected with
// an IllegalIdentity usage error.
func New(name, category string) (Identity, error) {
	if name == "" {
		return Identity{}, iceproxy.NewUsageError(iceproxy.IllegalIdentity, "", "identity name must not be empty")
	}
	return Identity{Name: name, Category: category}, nil
}

// Empty reports whether this is the zero-value Identity (no constructed
// Reference ever carries one, but it is a convenient sentinel for optional
// fields such as LocatorInfo.Identity).
func (id Identity) Empty() bool {
	return id.Name == ""
}

// Equal reports structural equality.
func (id Identity) Equal(other Identity) bool {
	return id.Name == other.Name && id.Category == other.Category
}

// Less provides a total order over identities, used by Reference.Less for
// stable map-key ordering.
func (id Identity) Less(other Identity) bool {
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	return id.Category < other.Category
}

// String renders the identity in "name" or "category/name" form, the
// convention this runtime's stringified proxies and logs use.
func (id Identity) String() string {
	if id.Category == "" {
		return escape(id.Name)
	}
	return fmt.Sprintf("%s/%s", escape(id.Category), escape(id.Name))
}

// Parse parses the output of String back into an Identity.
func Parse(s string) (Identity, error) {
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '/':
			return New(unescape(s[i+1:]), unescape(s[:i]))
		}
	}
	return New(unescape(s), "")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `/`, `\/`)
}

func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
