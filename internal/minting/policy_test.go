package minting

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/domain"
)

var testPolicyID = strings.Repeat("ab", 28)

func TestBidTokenName(t *testing.T) {
	p := New(testPolicyID, time.Unix(0, 0))

	assetName := hex.EncodeToString([]byte("nft1"))
	got := p.BidTokenNameHex(assetName)

	want := hex.EncodeToString([]byte("Bid")) + assetName
	require.Equal(t, want, got)
	require.Equal(t, domain.Unit(testPolicyID, want), p.BidTokenUnit(assetName))
}

func TestOpenBidTokenName(t *testing.T) {
	p := New(testPolicyID, time.Unix(0, 0))

	require.Equal(t, hex.EncodeToString([]byte("OpenBid")), p.OpenBidTokenNameHex())
	require.Equal(t,
		domain.Unit(testPolicyID, p.OpenBidTokenNameHex()),
		p.OpenBidTokenUnit(),
	)
}

func TestMintEntries(t *testing.T) {
	p := New(testPolicyID, time.Unix(0, 0))

	bid := p.MintBid("6e667431")
	require.Equal(t, testPolicyID, bid.PolicyID)
	require.Equal(t, int64(1), bid.Quantity)

	open := p.MintOpenBid()
	require.Equal(t, p.OpenBidTokenNameHex(), open.AssetNameHex)
	require.Equal(t, int64(1), open.Quantity)
}

func TestBurnFindsLockingToken(t *testing.T) {
	p := New(testPolicyID, time.Unix(0, 0))

	bidValue := domain.NewValue(5_000_000).
		Add(p.BidTokenUnit("6e667431"), 1)

	entry, ok := p.Burn(bidValue)
	require.True(t, ok)
	require.Equal(t, testPolicyID, entry.PolicyID)
	require.Equal(t, p.BidTokenNameHex("6e667431"), entry.AssetNameHex)
	require.Equal(t, int64(-1), entry.Quantity)
}

func TestBurnWithoutToken(t *testing.T) {
	p := New(testPolicyID, time.Unix(0, 0))

	otherPolicy := strings.Repeat("cd", 28)
	bidValue := domain.NewValue(5_000_000).
		Add(domain.Unit(otherPolicy, "01"), 1)

	_, ok := p.Burn(bidValue)
	require.False(t, ok)
}

func TestValidityStart(t *testing.T) {
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := New(testPolicyID, ref)

	before := ref.Add(-time.Hour)
	require.Equal(t, ref, p.ValidityStart(before))

	after := ref.Add(time.Hour)
	require.Equal(t, after, p.ValidityStart(after))
}
