// Package plutus implements the structured-data format the on-chain
// validator reads: constructor-tagged sums, unbounded integers, byte strings,
// lists, and maps, serialized as canonical CBOR. Every datum and redeemer in
// the marketplace round-trips through this package.
package plutus

import (
	"bytes"
	"math/big"
)

// Data is one node of a structured-data tree.
type Data interface {
	isData()
}

// Constr is a constructor application: the variant tag of a sum type plus
// its fields in declaration order.
type Constr struct {
	Tag    uint64
	Fields []Data
}

// Int is an unbounded integer.
type Int struct {
	Value *big.Int
}

// Bytes is a byte string.
type Bytes struct {
	Value []byte
}

// List is an ordered sequence.
type List struct {
	Items []Data
}

// Pair is a single map entry.
type Pair struct {
	Key   Data
	Value Data
}

// Map is an ordered sequence of key/value pairs. Serialization sorts keys
// canonically, so logical order is not significant.
type Map struct {
	Pairs []Pair
}

func (Constr) isData() {}
func (Int) isData()    {}
func (Bytes) isData()  {}
func (List) isData()   {}
func (Map) isData()    {}

// NewConstr builds a constructor node.
func NewConstr(tag uint64, fields ...Data) Constr {
	return Constr{Tag: tag, Fields: fields}
}

// NewInt builds an integer node from an int64.
func NewInt(v int64) Int {
	return Int{Value: big.NewInt(v)}
}

// NewBytes builds a byte-string node.
func NewBytes(v []byte) Bytes {
	return Bytes{Value: v}
}

// NewList builds a list node.
func NewList(items ...Data) List {
	return List{Items: items}
}

// Equal reports deep structural equality of two data trees.
func Equal(a, b Data) bool {
	switch x := a.(type) {
	case Constr:
		y, ok := b.(Constr)
		if !ok || x.Tag != y.Tag || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if !Equal(x.Fields[i], y.Fields[i]) {
				return false
			}
		}
		return true
	case Int:
		y, ok := b.(Int)
		return ok && x.Value.Cmp(y.Value) == 0
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x.Value, y.Value)
	case List:
		y, ok := b.(List)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case Map:
		y, ok := b.(Map)
		if !ok || len(x.Pairs) != len(y.Pairs) {
			return false
		}
		for i := range x.Pairs {
			if !Equal(x.Pairs[i].Key, y.Pairs[i].Key) ||
				!Equal(x.Pairs[i].Value, y.Pairs[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
