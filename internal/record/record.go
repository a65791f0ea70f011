// Package record provides the dynamic record type shared by collections and
// relationship joints: a string-keyed map with structured field-path access.
package record

import (
	"reflect"
	"strings"
)

// Record is an opaque mapping from field names to values. Records are
// supplied and owned by the collections that store them; joints only read
// fields and issue partial updates.
type Record map[string]interface{}

// Get resolves a structured field path like "vendor.id" against the record.
// The second return value reports whether the full path was present.
func (r Record) Get(path string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current interface{} = r
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Has reports whether the record contains a non-nil value at the given path.
func (r Record) Has(path string) bool {
	v, ok := r.Get(path)
	return ok && v != nil
}

// Set writes a value at a structured field path, creating intermediate maps
// as needed. Intermediate non-map values are replaced.
func (r Record) Set(path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := r
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = value
			return
		}
		next, ok := asMap(current[part])
		if !ok {
			next = Record{}
			current[part] = next
		}
		current = next
	}
}

// Delete removes the value at a structured field path. Missing intermediate
// segments make it a no-op.
func (r Record) Delete(path string) {
	parts := strings.Split(path, ".")
	current := r
	for i, part := range parts {
		if i == len(parts)-1 {
			delete(current, part)
			return
		}
		next, ok := asMap(current[part])
		if !ok {
			return
		}
		current = next
	}
}

// Project returns a new record containing only the requested fields. Fields
// absent from the source are passed through silently, so a projection never
// invents values.
func Project(r Record, fields []string) Record {
	out := make(Record, len(fields))
	for _, field := range fields {
		if v, ok := r.Get(field); ok {
			out.Set(field, v)
		}
	}
	return out
}

// Expand converts dotted field paths in a flat criteria record into nested
// maps, e.g. {"vendor.id": 1} becomes {"vendor": {"id": 1}}. Storage backends
// that match documents structurally (JSONB containment) need the nested form.
func Expand(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out.Set(k, v)
	}
	return out
}

// Clone creates a deep copy of a record so callers and hooks never alias
// each other's data.
func Clone(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single record value.
func CloneValue(v interface{}) interface{} {
	return cloneValue(v)
}

func cloneValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case Record:
		return Clone(val)
	case map[string]interface{}:
		return Clone(Record(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []Record:
		out := make([]Record, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = Clone(Record(item))
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		// Primitive types are copied by value.
		return v
	}
}

// Matches reports whether every field of the criteria record equals the
// corresponding field of r. Criteria keys may be structured paths; values
// compare structurally so a nested snapshot matches regardless of whether it
// was stored as Record or a plain map.
func Matches(r Record, criteria Record) bool {
	for path, want := range criteria {
		got, ok := r.Get(path)
		if !ok {
			return false
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

// Equal compares two record values structurally. Record and plain
// map[string]interface{} values are interchangeable.
func Equal(a, b interface{}) bool {
	am, aok := asMap(a)
	bm, bok := asMap(b)
	if aok != bok {
		return false
	}
	if aok {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}

	as, aok := asSlice(a)
	bs, bok := asSlice(b)
	if aok != bok {
		return false
	}
	if aok {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// IsEmpty reports whether a field value should be treated as "unset" by the
// joint protocols: nil or the empty string (records not yet synchronized
// outward carry an empty external key).
func IsEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func asMap(v interface{}) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]interface{}:
		return Record(m), true
	default:
		return nil, false
	}
}

func asSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []Record:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

// AsRecord converts a stored value to a Record if it is map-shaped.
func AsRecord(v interface{}) (Record, bool) {
	return asMap(v)
}

// AsList converts a stored value to a generic slice if it is list-shaped.
func AsList(v interface{}) ([]interface{}, bool) {
	return asSlice(v)
}
