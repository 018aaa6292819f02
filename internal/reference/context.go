package reference

import "strings"

// ContextEntry is one key/value pair of a per-invocation Context.
type ContextEntry struct {
	Key   string
	Value string
}

// Context is an ordered mapping<string,string> propagated with a request.
// Ordering is preserved so that wire encoding and stringification are
// deterministic; lookups remain O(n) which is appropriate given contexts
// are small (a handful of entries at most).
type Context struct {
	entries []ContextEntry
}

// EmptyContext is the zero-value Context: present but carrying no entries.
// It is distinct from "no context supplied" (a nil *Context upstream) —
// an explicit absence the caller chose, not one this package inferred.
var EmptyContext = Context{}

// NewContext builds a Context from ordered key/value pairs.
func NewContext(entries ...ContextEntry) Context {
	if len(entries) == 0 {
		return EmptyContext
	}
	out := make([]ContextEntry, len(entries))
	copy(out, entries)
	return Context{entries: out}
}

// Len returns the number of entries.
func (c Context) Len() int { return len(c.entries) }

// At returns the entry at index i.
func (c Context) At(i int) ContextEntry { return c.entries[i] }

// Get looks up a key, preserving first-match semantics on duplicate keys.
func (c Context) Get(key string) (string, bool) {
	for _, e := range c.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// With returns a new Context with key set to value, preserving the
// position of an existing key or appending a new one.
func (c Context) With(key, value string) Context {
	out := make([]ContextEntry, 0, len(c.entries)+1)
	replaced := false
	for _, e := range c.entries {
		if e.Key == key {
			out = append(out, ContextEntry{Key: key, Value: value})
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, ContextEntry{Key: key, Value: value})
	}
	return Context{entries: out}
}

// Equal reports whether two contexts carry the same entries in the same
// order, matching the reference's structural-equality contract.
func (c Context) Equal(other Context) bool {
	if len(c.entries) != len(other.entries) {
		return false
	}
	for i, e := range c.entries {
		if e != other.entries[i] {
			return false
		}
	}
	return true
}

// String renders the context as "k1=v1,k2=v2" in entry order, used by
// Reference.String and log lines.
func (c Context) String() string {
	if len(c.entries) == 0 {
		return ""
	}
	parts := make([]string, len(c.entries))
	for i, e := range c.entries {
		parts[i] = e.Key + "=" + e.Value
	}
	return strings.Join(parts, ",")
}
