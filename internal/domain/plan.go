package domain

import "time"

// PlanInput is a script position the transaction will consume, together with
// the action redeemer selecting the validator branch.
type PlanInput struct {
	OutRef OutRef
	Value  Value
	Action TradeAction
}

// PlanOutput is an output the transaction will create.
type PlanOutput struct {
	Address    string // bech32
	Value      Value
	DatumBytes []byte // inline datum CBOR, empty for plain payments
}

// MintEntry mints (positive) or burns (negative) a quantity of one asset.
type MintEntry struct {
	PolicyID     string
	AssetNameHex string
	Quantity     int64
}

// Unit returns the minted asset's unit string.
func (m MintEntry) Unit() string {
	return Unit(m.PolicyID, m.AssetNameHex)
}

// TxPlan is the declarative transaction plan a transition emits. An external
// builder serializes, balances, signs, and submits it; nothing in the plan
// touches ledger state by itself.
type TxPlan struct {
	Inputs          []PlanInput
	ReferenceInputs []OutRef
	Outputs         []PlanOutput
	Mints           []MintEntry
	RequiredSigners []string // hex key hashes
	ValidFrom       *time.Time
	ScriptRefs      []OutRef // deployed-script positions attached by reference
}

// Merge appends every element of o onto p, composing two per-order plans into
// one atomic multi-input plan. Duplicate reference inputs, signers, and
// script refs are collapsed; the later validity start wins.
func (p *TxPlan) Merge(o *TxPlan) {
	p.Inputs = append(p.Inputs, o.Inputs...)
	p.Outputs = append(p.Outputs, o.Outputs...)
	p.Mints = append(p.Mints, o.Mints...)

	for _, ref := range o.ReferenceInputs {
		if !containsRef(p.ReferenceInputs, ref) {
			p.ReferenceInputs = append(p.ReferenceInputs, ref)
		}
	}
	for _, ref := range o.ScriptRefs {
		if !containsRef(p.ScriptRefs, ref) {
			p.ScriptRefs = append(p.ScriptRefs, ref)
		}
	}
	for _, s := range o.RequiredSigners {
		if !containsStr(p.RequiredSigners, s) {
			p.RequiredSigners = append(p.RequiredSigners, s)
		}
	}
	if o.ValidFrom != nil && (p.ValidFrom == nil || o.ValidFrom.After(*p.ValidFrom)) {
		p.ValidFrom = o.ValidFrom
	}
}

func containsRef(refs []OutRef, ref OutRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
