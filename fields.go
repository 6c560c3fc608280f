package fieldz

import (
	"bytes"
	"sort"
)

// Fields maps field names to values. A later write to the same name wins.
// Iteration and serialization follow lexicographic key order, independent
// of write order.
//
// Fields is NOT safe for concurrent use; the Registry locks each span's store.
type Fields struct {
	values map[string]Value
}

// NewFields returns an empty store.
func NewFields() *Fields {
	return &Fields{values: make(map[string]Value)}
}

// FieldsOf returns a store populated from fields, in order.
func FieldsOf(fields ...Field) *Fields {
	f := NewFields()
	f.Capture(fields...)
	return f
}

func (f *Fields) set(name string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	f.values[name] = v
}

// RecordFloat64 stores a float.
func (f *Fields) RecordFloat64(name string, v float64) { f.set(name, Float64Value(v)) }

// RecordInt64 stores a signed integer.
func (f *Fields) RecordInt64(name string, v int64) { f.set(name, Int64Value(v)) }

// RecordUint64 stores an unsigned integer.
func (f *Fields) RecordUint64(name string, v uint64) { f.set(name, Uint64Value(v)) }

// RecordInt128 stores a signed 128-bit integer.
func (f *Fields) RecordInt128(name string, v Int128) { f.set(name, Int128Value(v)) }

// RecordUint128 stores an unsigned 128-bit integer.
func (f *Fields) RecordUint128(name string, v Uint128) { f.set(name, Uint128Value(v)) }

// RecordBool stores a boolean.
func (f *Fields) RecordBool(name string, v bool) { f.set(name, BoolValue(v)) }

// RecordString stores a string.
func (f *Fields) RecordString(name string, v string) { f.set(name, StringValue(v)) }

// RecordError stores err's Error() text, never its Go-syntax form.
func (f *Fields) RecordError(name string, err error) { f.set(name, ErrorValue(err)) }

// RecordDebug stores v's Go-syntax representation.
func (f *Fields) RecordDebug(name string, v any) { f.set(name, DebugValue(v)) }

// Capture writes each field in order.
func (f *Fields) Capture(fields ...Field) {
	for _, field := range fields {
		f.set(field.Key, field.Value)
	}
}

// Merge copies every value of other into f, overwriting duplicates.
func (f *Fields) Merge(other *Fields) {
	if other == nil {
		return
	}
	for name, v := range other.values {
		f.set(name, v)
	}
}

// Get returns the value stored under name.
func (f *Fields) Get(name string) (Value, bool) {
	if f == nil {
		return Value{}, false
	}
	v, ok := f.values[name]
	return v, ok
}

// Len returns the number of distinct names.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}

// Keys returns the names in lexicographic order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for each entry in key order until fn returns false.
func (f *Fields) Range(fn func(name string, v Value) bool) {
	for _, k := range f.Keys() {
		if !fn(k, f.values[k]) {
			return
		}
	}
}

// Clone returns an independent copy.
func (f *Fields) Clone() *Fields {
	c := &Fields{values: make(map[string]Value, f.Len())}
	if f != nil {
		for k, v := range f.values {
			c.values[k] = v
		}
	}
	return c
}

// Equal reports whether both stores hold the same names and values.
func (f *Fields) Equal(other *Fields) bool {
	if f.Len() != other.Len() {
		return false
	}
	for _, k := range f.Keys() {
		ov, ok := other.Get(k)
		if !ok || ov != f.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the store as an object with sorted keys.
// A nil or empty store encodes as {}.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsonAPI.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
