package wire

import "strings"

// Field is a single (name, value) pair in arrival/insertion order.
type Field struct {
	Name  string
	Value string
}

// Headers is an ordered multimap: iteration preserves insertion order and
// original casing, lookups are case-insensitive. Duplicate names are kept
// as separate fields and joined with ", " on Get, per RFC 7230 §3.2.2.
type Headers struct {
	fields []Field
}

// Add appends a new field, preserving any existing field of the same name.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Get returns the comma-joined value of every field matching name
// case-insensitively, and whether any field matched.
func (h *Headers) Get(name string) (string, bool) {
	var vals []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	if vals == nil {
		return "", false
	}
	return strings.Join(vals, ", "), true
}

// Fields returns the fields in insertion order. Callers must not mutate
// the returned slice's backing array.
func (h *Headers) Fields() []Field { return h.fields }

// Len reports the number of fields, counting duplicates separately.
func (h *Headers) Len() int { return len(h.fields) }
