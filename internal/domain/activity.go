package domain

import "time"

// ActivityKind classifies a recorded marketplace event.
type ActivityKind string

const (
	ActivityListed        ActivityKind = "listed"
	ActivityListingChange ActivityKind = "listing_changed"
	ActivityListingCancel ActivityKind = "listing_cancelled"
	ActivityBought        ActivityKind = "bought"
	ActivityBidPlaced     ActivityKind = "bid_placed"
	ActivityBidChanged    ActivityKind = "bid_changed"
	ActivityBidCancelled  ActivityKind = "bid_cancelled"
	ActivitySold          ActivityKind = "sold"
	ActivityRoyaltyMinted ActivityKind = "royalty_minted"
	ActivityRoyaltyUpdate ActivityKind = "royalty_updated"
)

// Activity is one row of settlement/cancellation history, written after a
// transition's transaction was accepted for submission.
type Activity struct {
	ID        string
	Kind      ActivityKind
	TxID      string
	PolicyID  string
	Unit      string
	Lovelace  int64
	Caller    string // bech32
	CreatedAt time.Time
}

// MarketEvent is the wire form of an Activity broadcast on the event bus and
// over the websocket hub.
type MarketEvent struct {
	Kind     ActivityKind `json:"kind"`
	TxID     string       `json:"tx_id"`
	Unit     string       `json:"unit,omitempty"`
	Lovelace int64        `json:"lovelace,omitempty"`
	Caller   string       `json:"caller,omitempty"`
	At       time.Time    `json:"at"`
}

// ListingView is a decoded, query-surface listing.
type ListingView struct {
	OutRef            OutRef  `json:"out_ref"`
	Unit              string  `json:"unit"`
	OwnerKeyHash      string  `json:"owner_key_hash"`
	RequestedLovelace int64   `json:"requested_lovelace"`
	PrivateBuyer      *string `json:"private_buyer,omitempty"`
}

// BidView is a decoded, query-surface bid.
type BidView struct {
	OutRef       OutRef        `json:"out_ref"`
	OwnerKeyHash string        `json:"owner_key_hash"`
	Lovelace     int64         `json:"lovelace"`
	Open         bool          `json:"open"`
	PolicyID     string        `json:"policy_id,omitempty"`
	Unit         string        `json:"unit,omitempty"`
	Types        []string      `json:"types,omitempty"`
	Traits       []TraitFilter `json:"traits,omitempty"`
}
