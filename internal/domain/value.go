package domain

import (
	"encoding/hex"
	"sort"
	"strings"
)

// LovelaceUnit is the pseudo-unit for the ledger's native coin. All other
// units are the concatenation of the hex policy id and the hex asset name.
const LovelaceUnit = "lovelace"

// Unit builds an asset unit string from a hex policy id and a hex asset name.
func Unit(policyID, assetNameHex string) string {
	return strings.ToLower(policyID) + strings.ToLower(assetNameHex)
}

// SplitUnit splits a unit string into its policy id and hex asset name.
// Policy ids are blake2b-224 hashes, so the boundary is fixed at 56 hex chars.
func SplitUnit(unit string) (policyID, assetNameHex string) {
	if unit == LovelaceUnit || len(unit) < 56 {
		return "", ""
	}
	return unit[:56], unit[56:]
}

// AssetNameUTF8 decodes the hex asset name of a unit into a display string.
// Undecodable names fall back to the raw hex form.
func AssetNameUTF8(unit string) string {
	_, nameHex := SplitUnit(unit)
	raw, err := hex.DecodeString(nameHex)
	if err != nil {
		return nameHex
	}
	return string(raw)
}

// Value is an asset bundle: unit -> quantity. Lovelace lives under
// LovelaceUnit; every other key is policyHex+nameHex.
type Value map[string]int64

// NewValue builds a Value from alternating unit/quantity pairs.
func NewValue(lovelace int64) Value {
	v := Value{}
	if lovelace != 0 {
		v[LovelaceUnit] = lovelace
	}
	return v
}

// Lovelace returns the native-coin quantity of the bundle.
func (v Value) Lovelace() int64 {
	return v[LovelaceUnit]
}

// Add increases the quantity of unit by qty, dropping the entry when the
// result reaches zero.
func (v Value) Add(unit string, qty int64) Value {
	if v == nil {
		v = Value{}
	}
	n := v[unit] + qty
	if n == 0 {
		delete(v, unit)
	} else {
		v[unit] = n
	}
	return v
}

// Clone returns a deep copy of the bundle.
func (v Value) Clone() Value {
	out := make(Value, len(v))
	for unit, qty := range v {
		out[unit] = qty
	}
	return out
}

// Equal reports whether two bundles hold exactly the same quantities.
func (v Value) Equal(o Value) bool {
	if len(v) != len(o) {
		return false
	}
	for unit, qty := range v {
		if o[unit] != qty {
			return false
		}
	}
	return true
}

// Units returns the bundle's units in lexicographic order, lovelace first.
func (v Value) Units() []string {
	units := make([]string, 0, len(v))
	for unit := range v {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i] == LovelaceUnit {
			return true
		}
		if units[j] == LovelaceUnit {
			return false
		}
		return units[i] < units[j]
	})
	return units
}

// PolicyAssets returns the units under the given policy id.
func (v Value) PolicyAssets(policyID string) []string {
	var out []string
	for unit := range v {
		if unit == LovelaceUnit {
			continue
		}
		if p, _ := SplitUnit(unit); p == policyID {
			out = append(out, unit)
		}
	}
	sort.Strings(out)
	return out
}
