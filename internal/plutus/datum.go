package plutus

import (
	"encoding/hex"
	"math/big"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Constructor layout of the marketplace datums. The validator was compiled
// against this exact shape; field order and variant indices are frozen.
//
//	TradeDatum   = Listing [owner, requestedLovelace, privateBuyer?]   (alt 0)
//	             | Bid     [owner, bidOption]                          (alt 1)
//	BidOption    = SpecificValue [value]                               (alt 0)
//	             | SymbolWithConstraints [policy, types, traits]       (alt 1)
//	TraitFilter  = [negate, trait]                                     (alt 0)
//	PaymentDatum = [outRef]                                            (alt 0)
//	RoyaltyInfo  = [recipients, minAda]                                (alt 0)
//	Recipient    = [address, fee, fixedFee]                            (alt 0)
//	TradeAction  = Buy (alt 0) | Sell (alt 1) | Cancel (alt 2)

// EncodeTradeDatum serializes a listing or bid datum.
func EncodeTradeDatum(d domain.TradeDatum) ([]byte, error) {
	switch d.Kind {
	case domain.DatumListing:
		if d.Listing == nil {
			return nil, decodeErrf("listing variant without payload")
		}
		return Marshal(NewConstr(0,
			addressToData(d.Listing.Owner),
			NewInt(d.Listing.RequestedLovelace),
			maybeAddress(d.Listing.PrivateBuyer),
		))
	case domain.DatumBid:
		if d.Bid == nil {
			return nil, decodeErrf("bid variant without payload")
		}
		opt, err := bidOptionToData(d.Bid.Option)
		if err != nil {
			return nil, err
		}
		return Marshal(NewConstr(1, addressToData(d.Bid.Owner), opt))
	default:
		return nil, decodeErrf("unknown trade datum kind %d", d.Kind)
	}
}

// DecodeTradeDatum parses a trade datum, rejecting unknown variant tags.
func DecodeTradeDatum(b []byte) (domain.TradeDatum, error) {
	data, err := Unmarshal(b)
	if err != nil {
		return domain.TradeDatum{}, err
	}
	c, ok := data.(Constr)
	if !ok {
		return domain.TradeDatum{}, decodeErrf("trade datum is not a constructor")
	}
	switch c.Tag {
	case 0:
		if len(c.Fields) != 3 {
			return domain.TradeDatum{}, decodeErrf("listing: want 3 fields, got %d", len(c.Fields))
		}
		owner, err := addressFromData(c.Fields[0])
		if err != nil {
			return domain.TradeDatum{}, err
		}
		price, err := intFromData(c.Fields[1])
		if err != nil {
			return domain.TradeDatum{}, err
		}
		buyer, err := maybeAddressFromData(c.Fields[2])
		if err != nil {
			return domain.TradeDatum{}, err
		}
		return domain.TradeDatum{
			Kind: domain.DatumListing,
			Listing: &domain.ListingDatum{
				Owner:             owner,
				RequestedLovelace: price,
				PrivateBuyer:      buyer,
			},
		}, nil
	case 1:
		if len(c.Fields) != 2 {
			return domain.TradeDatum{}, decodeErrf("bid: want 2 fields, got %d", len(c.Fields))
		}
		owner, err := addressFromData(c.Fields[0])
		if err != nil {
			return domain.TradeDatum{}, err
		}
		opt, err := bidOptionFromData(c.Fields[1])
		if err != nil {
			return domain.TradeDatum{}, err
		}
		return domain.TradeDatum{
			Kind: domain.DatumBid,
			Bid:  &domain.BidDatum{Owner: owner, Option: opt},
		}, nil
	default:
		return domain.TradeDatum{}, decodeErrf("unknown trade datum tag %d", c.Tag)
	}
}

// EncodePaymentDatum serializes the provenance datum attached to payouts.
func EncodePaymentDatum(d domain.PaymentDatum) ([]byte, error) {
	ref, err := outRefToData(d.OutRef)
	if err != nil {
		return nil, err
	}
	return Marshal(NewConstr(0, ref))
}

// DecodePaymentDatum parses a payment datum.
func DecodePaymentDatum(b []byte) (domain.PaymentDatum, error) {
	data, err := Unmarshal(b)
	if err != nil {
		return domain.PaymentDatum{}, err
	}
	c, ok := data.(Constr)
	if !ok || c.Tag != 0 || len(c.Fields) != 1 {
		return domain.PaymentDatum{}, decodeErrf("malformed payment datum")
	}
	ref, err := outRefFromData(c.Fields[0])
	if err != nil {
		return domain.PaymentDatum{}, err
	}
	return domain.PaymentDatum{OutRef: ref}, nil
}

// EncodeRoyaltyInfo serializes a royalty schedule.
func EncodeRoyaltyInfo(info domain.RoyaltyInfo) ([]byte, error) {
	recipients := make([]Data, len(info.Recipients))
	for i, r := range info.Recipients {
		recipients[i] = NewConstr(0,
			addressToData(r.Address),
			NewInt(r.Fee),
			NewInt(r.FixedFee),
		)
	}
	return Marshal(NewConstr(0, NewList(recipients...), NewInt(info.MinAda)))
}

// DecodeRoyaltyInfo parses a royalty schedule, preserving recipient order.
func DecodeRoyaltyInfo(b []byte) (domain.RoyaltyInfo, error) {
	data, err := Unmarshal(b)
	if err != nil {
		return domain.RoyaltyInfo{}, err
	}
	c, ok := data.(Constr)
	if !ok || c.Tag != 0 || len(c.Fields) != 2 {
		return domain.RoyaltyInfo{}, decodeErrf("malformed royalty info")
	}
	list, ok := c.Fields[0].(List)
	if !ok {
		return domain.RoyaltyInfo{}, decodeErrf("royalty recipients are not a list")
	}
	recipients := make([]domain.RoyaltyRecipient, len(list.Items))
	for i, it := range list.Items {
		rc, ok := it.(Constr)
		if !ok || rc.Tag != 0 || len(rc.Fields) != 3 {
			return domain.RoyaltyInfo{}, decodeErrf("malformed royalty recipient %d", i)
		}
		addr, err := addressFromData(rc.Fields[0])
		if err != nil {
			return domain.RoyaltyInfo{}, err
		}
		fee, err := intFromData(rc.Fields[1])
		if err != nil {
			return domain.RoyaltyInfo{}, err
		}
		fixed, err := intFromData(rc.Fields[2])
		if err != nil {
			return domain.RoyaltyInfo{}, err
		}
		recipients[i] = domain.RoyaltyRecipient{Address: addr, Fee: fee, FixedFee: fixed}
	}
	minAda, err := intFromData(c.Fields[1])
	if err != nil {
		return domain.RoyaltyInfo{}, err
	}
	return domain.RoyaltyInfo{Recipients: recipients, MinAda: minAda}, nil
}

// EncodeAction serializes a spend redeemer.
func EncodeAction(a domain.TradeAction) ([]byte, error) {
	switch a {
	case domain.ActionBuy, domain.ActionSell, domain.ActionCancel:
		return Marshal(NewConstr(uint64(a)))
	default:
		return nil, decodeErrf("unknown trade action %d", a)
	}
}

// DecodeAction parses a spend redeemer.
func DecodeAction(b []byte) (domain.TradeAction, error) {
	data, err := Unmarshal(b)
	if err != nil {
		return 0, err
	}
	c, ok := data.(Constr)
	if !ok || c.Tag > 2 || len(c.Fields) != 0 {
		return 0, decodeErrf("malformed trade action")
	}
	return domain.TradeAction(c.Tag), nil
}

// ---------------------------------------------------------------------------
// CIP-68 reference metadata
// ---------------------------------------------------------------------------

// RefMetadata is the decoded descriptive payload of a CIP-68 reference token.
type RefMetadata struct {
	Name   string
	Type   string
	Traits []string
}

// EncodeRefMetadata serializes reference metadata in the CIP-68 datum shape:
// Constr 0 [metadata map, version, extra].
func EncodeRefMetadata(m RefMetadata) ([]byte, error) {
	traits := make([]Data, len(m.Traits))
	for i, t := range m.Traits {
		traits[i] = NewBytes([]byte(t))
	}
	meta := Map{Pairs: []Pair{
		{Key: NewBytes([]byte("name")), Value: NewBytes([]byte(m.Name))},
		{Key: NewBytes([]byte("type")), Value: NewBytes([]byte(m.Type))},
		{Key: NewBytes([]byte("traits")), Value: NewList(traits...)},
	}}
	return Marshal(NewConstr(0, meta, NewInt(1), NewConstr(0)))
}

// DecodeRefMetadata parses a CIP-68 reference datum, tolerating absent
// type/traits entries.
func DecodeRefMetadata(b []byte) (RefMetadata, error) {
	data, err := Unmarshal(b)
	if err != nil {
		return RefMetadata{}, err
	}
	c, ok := data.(Constr)
	if !ok || c.Tag != 0 || len(c.Fields) < 2 {
		return RefMetadata{}, decodeErrf("malformed reference metadata datum")
	}
	meta, ok := c.Fields[0].(Map)
	if !ok {
		return RefMetadata{}, decodeErrf("reference metadata is not a map")
	}

	var out RefMetadata
	for _, p := range meta.Pairs {
		key, ok := p.Key.(Bytes)
		if !ok {
			continue
		}
		switch string(key.Value) {
		case "name":
			if v, ok := p.Value.(Bytes); ok {
				out.Name = string(v.Value)
			}
		case "type":
			if v, ok := p.Value.(Bytes); ok {
				out.Type = string(v.Value)
			}
		case "traits":
			list, ok := p.Value.(List)
			if !ok {
				return RefMetadata{}, decodeErrf("traits entry is not a list")
			}
			for _, it := range list.Items {
				v, ok := it.(Bytes)
				if !ok {
					return RefMetadata{}, decodeErrf("trait entry is not bytes")
				}
				out.Traits = append(out.Traits, string(v.Value))
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// shared builders
// ---------------------------------------------------------------------------

func credentialToData(c domain.Credential) Data {
	tag := uint64(0)
	if c.IsScript {
		tag = 1
	}
	return NewConstr(tag, NewBytes(c.Hash))
}

func credentialFromData(d Data) (domain.Credential, error) {
	c, ok := d.(Constr)
	if !ok || c.Tag > 1 || len(c.Fields) != 1 {
		return domain.Credential{}, decodeErrf("malformed credential")
	}
	h, ok := c.Fields[0].(Bytes)
	if !ok {
		return domain.Credential{}, decodeErrf("credential hash is not bytes")
	}
	return domain.Credential{Hash: h.Value, IsScript: c.Tag == 1}, nil
}

func addressToData(a domain.Address) Data {
	stake := NewConstr(1) // Nothing
	if a.Stake != nil {
		// Just (StakingHash credential)
		stake = NewConstr(0, NewConstr(0, credentialToData(*a.Stake)))
	}
	return NewConstr(0, credentialToData(a.Payment), stake)
}

func addressFromData(d Data) (domain.Address, error) {
	c, ok := d.(Constr)
	if !ok || c.Tag != 0 || len(c.Fields) != 2 {
		return domain.Address{}, decodeErrf("malformed address")
	}
	payment, err := credentialFromData(c.Fields[0])
	if err != nil {
		return domain.Address{}, err
	}
	addr := domain.Address{Payment: payment}

	stake, ok := c.Fields[1].(Constr)
	if !ok {
		return domain.Address{}, decodeErrf("malformed stake part")
	}
	switch stake.Tag {
	case 0: // Just (StakingHash credential)
		if len(stake.Fields) != 1 {
			return domain.Address{}, decodeErrf("malformed stake part")
		}
		inner, ok := stake.Fields[0].(Constr)
		if !ok || inner.Tag != 0 || len(inner.Fields) != 1 {
			return domain.Address{}, decodeErrf("malformed staking hash")
		}
		cred, err := credentialFromData(inner.Fields[0])
		if err != nil {
			return domain.Address{}, err
		}
		addr.Stake = &cred
	case 1: // Nothing
		if len(stake.Fields) != 0 {
			return domain.Address{}, decodeErrf("malformed stake part")
		}
	default:
		return domain.Address{}, decodeErrf("unknown stake part tag %d", stake.Tag)
	}
	return addr, nil
}

func maybeAddress(a *domain.Address) Data {
	if a == nil {
		return NewConstr(1)
	}
	return NewConstr(0, addressToData(*a))
}

func maybeAddressFromData(d Data) (*domain.Address, error) {
	c, ok := d.(Constr)
	if !ok {
		return nil, decodeErrf("malformed optional address")
	}
	switch c.Tag {
	case 0:
		if len(c.Fields) != 1 {
			return nil, decodeErrf("malformed optional address")
		}
		addr, err := addressFromData(c.Fields[0])
		if err != nil {
			return nil, err
		}
		return &addr, nil
	case 1:
		if len(c.Fields) != 0 {
			return nil, decodeErrf("malformed optional address")
		}
		return nil, nil
	default:
		return nil, decodeErrf("unknown optional tag %d", c.Tag)
	}
}

func boolToData(b bool) Data {
	if b {
		return NewConstr(1)
	}
	return NewConstr(0)
}

func boolFromData(d Data) (bool, error) {
	c, ok := d.(Constr)
	if !ok || c.Tag > 1 || len(c.Fields) != 0 {
		return false, decodeErrf("malformed boolean")
	}
	return c.Tag == 1, nil
}

func intFromData(d Data) (int64, error) {
	i, ok := d.(Int)
	if !ok {
		return 0, decodeErrf("expected integer")
	}
	if !i.Value.IsInt64() {
		return 0, decodeErrf("integer out of range")
	}
	return i.Value.Int64(), nil
}

func outRefToData(r domain.OutRef) (Data, error) {
	txid, err := hex.DecodeString(r.TxHash)
	if err != nil {
		return nil, decodeErrf("invalid tx hash %q", r.TxHash)
	}
	return NewConstr(0,
		NewConstr(0, NewBytes(txid)),
		Int{Value: new(big.Int).SetUint64(r.Index)},
	), nil
}

func outRefFromData(d Data) (domain.OutRef, error) {
	c, ok := d.(Constr)
	if !ok || c.Tag != 0 || len(c.Fields) != 2 {
		return domain.OutRef{}, decodeErrf("malformed out ref")
	}
	idWrap, ok := c.Fields[0].(Constr)
	if !ok || idWrap.Tag != 0 || len(idWrap.Fields) != 1 {
		return domain.OutRef{}, decodeErrf("malformed tx id")
	}
	txid, ok := idWrap.Fields[0].(Bytes)
	if !ok {
		return domain.OutRef{}, decodeErrf("tx id is not bytes")
	}
	idx, err := intFromData(c.Fields[1])
	if err != nil {
		return domain.OutRef{}, err
	}
	if idx < 0 {
		return domain.OutRef{}, decodeErrf("negative output index")
	}
	return domain.OutRef{TxHash: hex.EncodeToString(txid.Value), Index: uint64(idx)}, nil
}

func valueToData(v domain.Value) (Data, error) {
	// Group units by policy; lovelace lives under the empty policy/name.
	byPolicy := map[string]map[string]int64{}
	for unit, qty := range v {
		if unit == domain.LovelaceUnit {
			inner := byPolicy[""]
			if inner == nil {
				inner = map[string]int64{}
				byPolicy[""] = inner
			}
			inner[""] = qty
			continue
		}
		policy, nameHex := domain.SplitUnit(unit)
		if policy == "" {
			return nil, decodeErrf("malformed unit %q", unit)
		}
		inner := byPolicy[policy]
		if inner == nil {
			inner = map[string]int64{}
			byPolicy[policy] = inner
		}
		inner[nameHex] = qty
	}

	outer := Map{}
	for policy, inner := range byPolicy {
		policyBytes, err := hex.DecodeString(policy)
		if err != nil {
			return nil, decodeErrf("invalid policy id %q", policy)
		}
		innerMap := Map{}
		for nameHex, qty := range inner {
			nameBytes, err := hex.DecodeString(nameHex)
			if err != nil {
				return nil, decodeErrf("invalid asset name %q", nameHex)
			}
			innerMap.Pairs = append(innerMap.Pairs, Pair{
				Key:   NewBytes(nameBytes),
				Value: NewInt(qty),
			})
		}
		outer.Pairs = append(outer.Pairs, Pair{
			Key:   NewBytes(policyBytes),
			Value: innerMap,
		})
	}
	return outer, nil
}

func valueFromData(d Data) (domain.Value, error) {
	outer, ok := d.(Map)
	if !ok {
		return nil, decodeErrf("value is not a map")
	}
	v := domain.Value{}
	for _, pp := range outer.Pairs {
		policy, ok := pp.Key.(Bytes)
		if !ok {
			return nil, decodeErrf("value policy key is not bytes")
		}
		inner, ok := pp.Value.(Map)
		if !ok {
			return nil, decodeErrf("value inner entry is not a map")
		}
		for _, np := range inner.Pairs {
			name, ok := np.Key.(Bytes)
			if !ok {
				return nil, decodeErrf("value asset key is not bytes")
			}
			qty, err := intFromData(np.Value)
			if err != nil {
				return nil, err
			}
			if len(policy.Value) == 0 {
				v[domain.LovelaceUnit] = qty
				continue
			}
			unit := domain.Unit(hex.EncodeToString(policy.Value), hex.EncodeToString(name.Value))
			v[unit] = qty
		}
	}
	return v, nil
}

func bidOptionToData(o domain.BidOption) (Data, error) {
	switch o.Kind {
	case domain.BidSpecificValue:
		val, err := valueToData(o.Bundle)
		if err != nil {
			return nil, err
		}
		return NewConstr(0, val), nil
	case domain.BidOpenConstrained:
		policy, err := hex.DecodeString(o.PolicyID)
		if err != nil {
			return nil, decodeErrf("invalid policy id %q", o.PolicyID)
		}
		types := make([]Data, len(o.Types))
		for i, t := range o.Types {
			types[i] = NewBytes([]byte(t))
		}
		traits := make([]Data, len(o.Traits))
		for i, t := range o.Traits {
			traits[i] = NewConstr(0, boolToData(t.Negate), NewBytes([]byte(t.Trait)))
		}
		return NewConstr(1, NewBytes(policy), NewList(types...), NewList(traits...)), nil
	default:
		return nil, decodeErrf("unknown bid option kind %d", o.Kind)
	}
}

func bidOptionFromData(d Data) (domain.BidOption, error) {
	c, ok := d.(Constr)
	if !ok {
		return domain.BidOption{}, decodeErrf("malformed bid option")
	}
	switch c.Tag {
	case 0:
		if len(c.Fields) != 1 {
			return domain.BidOption{}, decodeErrf("malformed specific-value option")
		}
		bundle, err := valueFromData(c.Fields[0])
		if err != nil {
			return domain.BidOption{}, err
		}
		return domain.BidOption{Kind: domain.BidSpecificValue, Bundle: bundle}, nil
	case 1:
		if len(c.Fields) != 3 {
			return domain.BidOption{}, decodeErrf("malformed constrained option")
		}
		policy, ok := c.Fields[0].(Bytes)
		if !ok {
			return domain.BidOption{}, decodeErrf("policy id is not bytes")
		}
		typesList, ok := c.Fields[1].(List)
		if !ok {
			return domain.BidOption{}, decodeErrf("types are not a list")
		}
		types := make([]string, 0, len(typesList.Items))
		for _, it := range typesList.Items {
			t, ok := it.(Bytes)
			if !ok {
				return domain.BidOption{}, decodeErrf("type label is not bytes")
			}
			types = append(types, string(t.Value))
		}
		traitsList, ok := c.Fields[2].(List)
		if !ok {
			return domain.BidOption{}, decodeErrf("traits are not a list")
		}
		traits := make([]domain.TraitFilter, 0, len(traitsList.Items))
		for _, it := range traitsList.Items {
			tc, ok := it.(Constr)
			if !ok || tc.Tag != 0 || len(tc.Fields) != 2 {
				return domain.BidOption{}, decodeErrf("malformed trait filter")
			}
			neg, err := boolFromData(tc.Fields[0])
			if err != nil {
				return domain.BidOption{}, err
			}
			trait, ok := tc.Fields[1].(Bytes)
			if !ok {
				return domain.BidOption{}, decodeErrf("trait value is not bytes")
			}
			traits = append(traits, domain.TraitFilter{Negate: neg, Trait: string(trait.Value)})
		}
		return domain.BidOption{
			Kind:     domain.BidOpenConstrained,
			PolicyID: hex.EncodeToString(policy.Value),
			Types:    types,
			Traits:   traits,
		}, nil
	default:
		return domain.BidOption{}, decodeErrf("unknown bid option tag %d", c.Tag)
	}
}
