package plutus

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Constructor tags follow the ledger's alternative encoding: alternatives
// 0..6 map to CBOR tags 121..127, alternatives 7..127 map to 1280..1400, and
// anything larger uses the general tag 102 with an explicit index.
const (
	tagConstrBase    = 121
	tagConstrBaseHi  = 1280
	tagConstrGeneral = 102
	maxCompactAlt    = 127
)

// DecodeError reports malformed or wrong-shaped datum bytes. It wraps
// domain.ErrDecode so callers can test with errors.Is.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "plutus: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return domain.ErrDecode
}

func decodeErrf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MapKeyByteString: cbor.MapKeyByteStringAllowed,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal serializes a data tree to canonical CBOR.
func Marshal(d Data) ([]byte, error) {
	v, err := toCBOR(d)
	if err != nil {
		return nil, err
	}
	out, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("plutus: marshal: %w", err)
	}
	return out, nil
}

// Unmarshal parses CBOR bytes into a data tree. Truncated, trailing, or
// structurally invalid input yields a DecodeError.
func Unmarshal(b []byte) (Data, error) {
	if len(b) == 0 {
		return nil, decodeErrf("empty input")
	}
	var v any
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, decodeErrf("unmarshal: %v", err)
	}
	return fromCBOR(v)
}

func constrTag(alt uint64) (uint64, bool) {
	switch {
	case alt <= 6:
		return tagConstrBase + alt, true
	case alt <= maxCompactAlt:
		return tagConstrBaseHi + alt - 7, true
	default:
		return 0, false
	}
}

func toCBOR(d Data) (any, error) {
	switch x := d.(type) {
	case Constr:
		fields := make([]any, len(x.Fields))
		for i, f := range x.Fields {
			v, err := toCBOR(f)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		if tag, ok := constrTag(x.Tag); ok {
			return cbor.Tag{Number: tag, Content: fields}, nil
		}
		return cbor.Tag{
			Number:  tagConstrGeneral,
			Content: []any{x.Tag, fields},
		}, nil
	case Int:
		if x.Value == nil {
			return nil, fmt.Errorf("plutus: marshal: nil integer")
		}
		if x.Value.IsInt64() {
			return x.Value.Int64(), nil
		}
		return x.Value, nil
	case Bytes:
		return x.Value, nil
	case List:
		items := make([]any, len(x.Items))
		for i, it := range x.Items {
			v, err := toCBOR(it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case Map:
		out := make(map[cbor.ByteString]any, len(x.Pairs))
		for _, p := range x.Pairs {
			key, ok := p.Key.(Bytes)
			if !ok {
				return nil, fmt.Errorf("plutus: marshal: non-bytes map key")
			}
			v, err := toCBOR(p.Value)
			if err != nil {
				return nil, err
			}
			out[cbor.ByteString(key.Value)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("plutus: marshal: unknown node %T", d)
	}
}

func fromCBOR(v any) (Data, error) {
	switch x := v.(type) {
	case cbor.Tag:
		return fromTag(x)
	case uint64:
		return Int{Value: new(big.Int).SetUint64(x)}, nil
	case int64:
		return Int{Value: big.NewInt(x)}, nil
	case big.Int:
		return Int{Value: &x}, nil
	case *big.Int:
		return Int{Value: x}, nil
	case []byte:
		return Bytes{Value: x}, nil
	case []any:
		items := make([]Data, len(x))
		for i, it := range x {
			d, err := fromCBOR(it)
			if err != nil {
				return nil, err
			}
			items[i] = d
		}
		return List{Items: items}, nil
	case map[any]any:
		return fromMap(x)
	default:
		return nil, decodeErrf("unsupported CBOR node %T", v)
	}
}

func fromTag(t cbor.Tag) (Data, error) {
	var alt uint64
	content := t.Content

	switch {
	case t.Number >= tagConstrBase && t.Number <= tagConstrBase+6:
		alt = t.Number - tagConstrBase
	case t.Number >= tagConstrBaseHi && t.Number <= tagConstrBaseHi+(maxCompactAlt-7):
		alt = t.Number - tagConstrBaseHi + 7
	case t.Number == tagConstrGeneral:
		pair, ok := t.Content.([]any)
		if !ok || len(pair) != 2 {
			return nil, decodeErrf("malformed general constructor")
		}
		switch n := pair[0].(type) {
		case uint64:
			alt = n
		case int64:
			if n < 0 {
				return nil, decodeErrf("negative constructor index")
			}
			alt = uint64(n)
		default:
			return nil, decodeErrf("malformed general constructor index %T", pair[0])
		}
		content = pair[1]
	default:
		return nil, decodeErrf("unexpected CBOR tag %d", t.Number)
	}

	raw, ok := content.([]any)
	if !ok {
		return nil, decodeErrf("constructor fields are not a list")
	}
	fields := make([]Data, len(raw))
	for i, f := range raw {
		d, err := fromCBOR(f)
		if err != nil {
			return nil, err
		}
		fields[i] = d
	}
	return Constr{Tag: alt, Fields: fields}, nil
}

func fromMap(m map[any]any) (Data, error) {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		bs, ok := k.(cbor.ByteString)
		if !ok {
			return nil, decodeErrf("unsupported map key %T", k)
		}
		val, err := fromCBOR(v)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: Bytes{Value: bs.Bytes()}, Value: val})
	}
	// Go map iteration is unordered; restore canonical key order so decoded
	// trees compare equal.
	sort.Slice(pairs, func(i, j int) bool {
		a := pairs[i].Key.(Bytes).Value
		b := pairs[j].Key.(Bytes).Value
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return string(a) < string(b)
	})
	return Map{Pairs: pairs}, nil
}
