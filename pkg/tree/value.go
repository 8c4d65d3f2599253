// Package tree provides the JSON value model used for configuration trees.
//
// A Value is one of Null, Bool, Number, String, *Array or *Object. Objects
// keep the insertion order of their keys so that declared field order
// survives extraction, diffing and re-encoding.
package tree

import (
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "list"
	case KindObject:
		return "dict"
	}
	return "unknown"
}

// Value is a node of a configuration tree.
type Value interface {
	Kind() Kind
}

// Null is the JSON null.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number kept in its literal form.
type Number string

// String is a JSON string.
type String string

// Array is an ordered list of values.
type Array struct {
	Items []Value
}

// Object is a string-keyed map that remembers key insertion order.
type Object struct {
	keys   []string
	fields map[string]Value
}

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Number) Kind() Kind  { return KindNumber }
func (String) Kind() Kind  { return KindString }
func (*Array) Kind() Kind  { return KindArray }
func (*Object) Kind() Kind { return KindObject }

// KindOf returns the kind of v, treating a nil interface as null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// Float64 parses the number literal.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// NumberFromFloat formats f with the shortest exact representation.
func NumberFromFloat(f float64) Number {
	return Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// NumberFromInt formats an integer.
func NumberFromInt(i int64) Number {
	return Number(strconv.FormatInt(i, 10))
}

// NewArray returns an array holding items.
func NewArray(items ...Value) *Array {
	return &Array{Items: items}
}

// Len returns the number of items.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}

// Append adds items to the end of the array.
func (a *Array) Append(items ...Value) {
	a.Items = append(a.Items, items...)
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the value stored at key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores v at key. A new key is appended to the key order; an
// existing key keeps its position.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if v == nil {
		v = Null{}
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if _, ok := o.fields[key]; !ok {
		return
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Update copies every key of other into o, in other's order.
func (o *Object) Update(other *Object) {
	for _, k := range other.keys {
		o.Set(k, other.fields[k])
	}
}

// Range calls fn for each key in order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.fields[k]) {
			return
		}
	}
}

// IsEmpty reports whether v is null or an empty container.
func IsEmpty(v Value) bool {
	switch t := v.(type) {
	case nil, Null:
		return true
	case *Array:
		return t.Len() == 0
	case *Object:
		return t.Len() == 0
	}
	return false
}

// Strings returns the string items of a list value. Non-string items make
// the conversion fail.
func Strings(v Value) ([]string, bool) {
	arr, ok := v.(*Array)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, arr.Len())
	for _, item := range arr.Items {
		s, ok := item.(String)
		if !ok {
			return nil, false
		}
		out = append(out, string(s))
	}
	return out, true
}

// Equal reports whether a and b are structurally equal. Object key order
// is ignored; numbers compare by numeric value.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return false
		}
		if av == bv {
			return true
		}
		af, errA := av.Float64()
		bf, errB := bv.Float64()
		return errA == nil && errB == nil && af == bf
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *Array:
		bv, ok := b.(*Array)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			other, ok := bv.fields[k]
			if !ok || !Equal(av.fields[k], other) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case nil:
		return Null{}
	case *Array:
		out := &Array{Items: make([]Value, len(t.Items))}
		for i, item := range t.Items {
			out.Items[i] = Clone(item)
		}
		return out
	case *Object:
		out := NewObject()
		for _, k := range t.keys {
			out.Set(k, Clone(t.fields[k]))
		}
		return out
	}
	return v
}
