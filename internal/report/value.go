package report

import (
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

//go:generate go tool stringer -type=Kind -output=kind_string.go

// Kind identifies the concrete type behind a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindSeq
	KindSet
	KindArray
	KindMap
)

// Value is a single node of a report tree. The concrete types below form a
// closed set; code that walks a report dispatches on the type once instead
// of re-inspecting leaves ad hoc.
type Value interface {
	Kind() Kind
}

// Null is the explicit placeholder for an absent value, e.g. a column
// record removed by an omission while its list position is preserved.
type Null struct{}

type Bool bool

type Int int64

type Float float64

type String string

// Seq is an ordered sequence of values.
type Seq []Value

// Set is an unordered collection of scalars. Output paths canonicalize it
// to a sorted sequence, so two profiles of the same data render the same.
type Set []Value

// Array is a numeric vector, e.g. quantiles or histogram bin edges.
type Array []float64

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Seq) Kind() Kind    { return KindSeq }
func (Set) Kind() Kind    { return KindSet }
func (Array) Kind() Kind  { return KindArray }

// Map is a string-keyed mapping that remembers insertion order. Report key
// order is part of the output contract, so plain Go maps are not used.
type Map struct {
	om *orderedmap.OrderedMap[string, Value]
}

func NewMap() *Map {
	return &Map{om: orderedmap.New[string, Value]()}
}

func (m *Map) Kind() Kind { return KindMap }

// Set stores v under key and returns m for chaining. A key that is already
// present keeps its original position.
func (m *Map) Set(key string, v Value) *Map {
	m.om.Set(key, v)
	return m
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil || m.om == nil {
		return nil, false
	}
	return m.om.Get(key)
}

func (m *Map) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil || m.om == nil {
		return nil
	}
	keys := make([]string, 0, m.om.Len())
	for p := m.om.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// seq converts the numeric vector into a sequence of Float values.
func (a Array) seq() Seq {
	out := make(Seq, len(a))
	for i, f := range a {
		out[i] = Float(f)
	}
	return out
}

// canonical returns the set's elements as a sorted sequence: numeric values
// first in numeric order, then strings in lexicographic order, then
// anything else in its original position.
func (s Set) canonical() Seq {
	out := make(Seq, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := scalarRank(out[i]), scalarRank(out[j])
		if ri != rj {
			return ri < rj
		}
		switch ri {
		case 0:
			ni, _ := numeric(out[i])
			nj, _ := numeric(out[j])
			return ni < nj
		case 1:
			return out[i].(String) < out[j].(String)
		}
		return false
	})
	return out
}

func scalarRank(v Value) int {
	if v == nil {
		return 2
	}
	switch v.Kind() {
	case KindBool, KindInt, KindFloat:
		return 0
	case KindString:
		return 1
	}
	return 2
}

// numeric reports the value of a numeric scalar. Bools count as 0 and 1.
func numeric(v Value) (float64, bool) {
	switch t := v.(type) {
	case Bool:
		if t {
			return 1, true
		}
		return 0, true
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	}
	return 0, false
}
