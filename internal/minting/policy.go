// Package minting builds the locking-token mint and burn entries that
// accompany bids. A bid is addressable in the UTXO set through exactly one
// locking token; the validator uses that token to enforce at-most-one
// settlement per bid.
package minting

import (
	"encoding/hex"
	"time"

	"github.com/tealbay/nftmarketd/internal/domain"
)

const (
	// bidTokenPrefix tags the locking token of a specific-asset bid; the
	// target asset name is appended so each asset's bids share one name.
	bidTokenPrefix = "Bid"
	// openBidTokenName is the single shared name for open-bid locking tokens.
	openBidTokenName = "OpenBid"
)

// Policy issues and burns locking tokens under a fixed minting policy. The
// policy script only validates when the transaction is signed by the trade
// validator's script credential and starts after ReferenceTime, so tokens
// cannot be forged outside a marketplace transition.
type Policy struct {
	policyID      string
	referenceTime time.Time
}

// New creates a Policy for the given policy id and reference time.
func New(policyID string, referenceTime time.Time) *Policy {
	return &Policy{policyID: policyID, referenceTime: referenceTime}
}

// PolicyID returns the hex policy id locking tokens are minted under.
func (p *Policy) PolicyID() string {
	return p.policyID
}

// BidTokenNameHex returns the hex locking-token name for a specific bid on
// the asset with the given hex name.
func (p *Policy) BidTokenNameHex(assetNameHex string) string {
	return hex.EncodeToString([]byte(bidTokenPrefix)) + assetNameHex
}

// OpenBidTokenNameHex returns the hex shared open-bid locking-token name.
func (p *Policy) OpenBidTokenNameHex() string {
	return hex.EncodeToString([]byte(openBidTokenName))
}

// BidTokenUnit returns the full unit of a specific-bid locking token.
func (p *Policy) BidTokenUnit(assetNameHex string) string {
	return domain.Unit(p.policyID, p.BidTokenNameHex(assetNameHex))
}

// OpenBidTokenUnit returns the full unit of the open-bid locking token.
func (p *Policy) OpenBidTokenUnit() string {
	return domain.Unit(p.policyID, p.OpenBidTokenNameHex())
}

// MintBid returns the mint entry creating one specific-bid locking token.
func (p *Policy) MintBid(assetNameHex string) domain.MintEntry {
	return domain.MintEntry{
		PolicyID:     p.policyID,
		AssetNameHex: p.BidTokenNameHex(assetNameHex),
		Quantity:     1,
	}
}

// MintOpenBid returns the mint entry creating one open-bid locking token.
func (p *Policy) MintOpenBid() domain.MintEntry {
	return domain.MintEntry{
		PolicyID:     p.policyID,
		AssetNameHex: p.OpenBidTokenNameHex(),
		Quantity:     1,
	}
}

// Burn returns the burn entry consuming the locking token held by the given
// bid position, restoring the one-bid-one-token invariant on settlement or
// cancellation. The second return is false when the position holds no token
// of this policy.
func (p *Policy) Burn(bid domain.Value) (domain.MintEntry, bool) {
	units := bid.PolicyAssets(p.policyID)
	if len(units) == 0 {
		return domain.MintEntry{}, false
	}
	_, nameHex := domain.SplitUnit(units[0])
	return domain.MintEntry{
		PolicyID:     p.policyID,
		AssetNameHex: nameHex,
		Quantity:     -1,
	}, true
}

// ValidityStart returns the earliest validity start a plan carrying a mint or
// burn may declare. The policy rejects transactions that begin before its
// reference time; using now keeps the plan inside the accepted window.
func (p *Policy) ValidityStart(now time.Time) time.Time {
	if now.Before(p.referenceTime) {
		return p.referenceTime
	}
	return now
}
