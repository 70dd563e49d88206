package domain

// DatumKind tags the populated variant of a TradeDatum.
type DatumKind int

const (
	DatumListing DatumKind = iota
	DatumBid
)

// TradeDatum is the tagged union attached to every marketplace position.
// Exactly one of Listing/Bid is populated, matching Kind.
type TradeDatum struct {
	Kind    DatumKind
	Listing *ListingDatum
	Bid     *BidDatum
}

// ListingDatum is the datum of a listed asset.
type ListingDatum struct {
	Owner             Address
	RequestedLovelace int64
	// PrivateBuyer restricts settlement to one buyer; nil means anyone may buy.
	PrivateBuyer *Address
}

// BidOptionKind tags the demand side of a bid.
type BidOptionKind int

const (
	// BidSpecificValue demands an exact asset bundle.
	BidSpecificValue BidOptionKind = iota
	// BidOpenConstrained demands any one asset under a policy, optionally
	// filtered by type labels and trait filters.
	BidOpenConstrained
)

// TraitFilter is a single open-bid trait constraint. A non-negated filter
// requires the trait to be present on the asset's reference metadata; a
// negated filter requires it to be absent.
type TraitFilter struct {
	Negate bool
	Trait  string
}

// BidOption is the demand of a bid: either an exact bundle or an open,
// constrained demand against a single policy.
type BidOption struct {
	Kind     BidOptionKind
	Bundle   Value  // BidSpecificValue
	PolicyID string // BidOpenConstrained
	Types    []string
	Traits   []TraitFilter
}

// BidDatum is the datum of a standing bid.
type BidDatum struct {
	Owner  Address
	Option BidOption
}

// PaymentDatum binds a payment output to the position it settles so
// recipients can prove provenance.
type PaymentDatum struct {
	OutRef OutRef
}

// RoyaltyRecipient is one entry of a royalty schedule. Fee is the encoded
// reciprocal rate consumed as floor(gross*10/fee); FixedFee is paid instead
// whenever the percentage payout would not clear the MinAda threshold.
type RoyaltyRecipient struct {
	Address  Address
	Fee      int64
	FixedFee int64
}

// RoyaltyInfo is the ordered royalty schedule read on every settlement.
// Recipient order is protocol-visible: it decides who can exhaust the
// remainder first.
type RoyaltyInfo struct {
	Recipients []RoyaltyRecipient
	MinAda     int64
}

// TradeAction selects the on-chain validation branch for a spend.
type TradeAction int

const (
	ActionBuy TradeAction = iota
	ActionSell
	ActionCancel
)

// String returns the action name used in logs and audit rows.
func (a TradeAction) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}
