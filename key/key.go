// Package key turns arbitrary query key values into a canonical,
// order-independent string used to index the query cache and to match keys
// by prefix.
//
// A key is always a sequence of segments. Slices and arrays are taken as the
// sequence itself; any other value becomes a one element sequence. Mapping
// members are sorted by name, sequence elements keep their order, so
//
//	key.Canonicalize([]any{"products", map[string]any{"page": 1, "q": "x"}})
//
// yields the same string as the same key built with the map members in any
// other order.
//
// NaN, ±Inf and undefined segments encode to reserved tokens that are not
// legal JSON, so they never collide with the strings "NaN" or "undefined".
// Cyclic values are not supported.
package key

import (
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Key is a normalized query key.
type Key struct {
	segments  []Value
	canonical string
}

// Default is the key used when no key is supplied.
var Default = New(Undefined)

// New normalizes v into a Key.
func New(v any) Key {
	if k, ok := v.(Key); ok {
		return k
	}
	segments := segmentsOf(v)
	return Key{
		segments:  segments,
		canonical: Sequence(segments...).String(),
	}
}

func segmentsOf(v any) []Value {
	switch t := v.(type) {
	case nil, undefined:
		return []Value{{kind: KindUndefined}}
	case []any:
		return valuesOf(t)
	case Value:
		if t.kind == KindSequence {
			return t.items
		}
		return []Value{t}
	case []byte:
		return []Value{String(string(t))}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]Value, rv.Len())
		for i := range out {
			out[i] = Of(rv.Index(i).Interface())
		}
		return out
	}
	return []Value{Of(v)}
}

func valuesOf(items []any) []Value {
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = Of(item)
	}
	return out
}

// String returns the canonical encoding.
func (k Key) String() string {
	if k.segments == nil {
		return Default.canonical
	}
	return k.canonical
}

// Segments returns the normalized segments of the key.
func (k Key) Segments() []Value {
	if k.segments == nil {
		return Default.segments
	}
	return k.segments
}

// Len returns the number of segments.
func (k Key) Len() int { return len(k.Segments()) }

// Hash returns the xxhash64 of the canonical encoding.
func (k Key) Hash() uint64 { return xxhash.Sum64String(k.String()) }

// Equal reports whether both keys encode identically.
func (k Key) Equal(o Key) bool { return k.String() == o.String() }

// HasPrefix reports whether partial is an element-wise prefix of k. When
// exact is set the lengths must match as well.
func (k Key) HasPrefix(partial Key, exact bool) bool {
	full, part := k.Segments(), partial.Segments()
	if len(part) > len(full) {
		return false
	}
	if exact && len(part) != len(full) {
		return false
	}
	for i := range part {
		if !part[i].Equal(full[i]) {
			return false
		}
	}
	return true
}

// Canonicalize returns the canonical encoding of v.
func Canonicalize(v any) string { return New(v).String() }

// MatchesPrefix reports whether partial is a prefix of full, comparing
// segments by canonical equality.
func MatchesPrefix(full, partial any, exact bool) bool {
	return New(full).HasPrefix(New(partial), exact)
}
