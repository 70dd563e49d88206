package trade

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/crypto"
	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/match"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

var (
	testScriptHash   = strings.Repeat("aa", 28)
	testMintPolicyID = strings.Repeat("bb", 28)
	collectionPolicy = strings.Repeat("cc", 28)
	royaltyPolicy    = strings.Repeat("dd", 28)
	royaltyUnit      = domain.Unit(royaltyPolicy, hex.EncodeToString([]byte("Royalty")))

	refTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
)

func hash28(b byte) []byte {
	h := make([]byte, 28)
	for i := range h {
		h[i] = b
	}
	return h
}

func keyAddr(b byte) domain.Address {
	return domain.Address{Payment: domain.Credential{Hash: hash28(b)}}
}

func outRef(b byte, idx uint64) domain.OutRef {
	return domain.OutRef{
		TxHash: strings.Repeat(fmt.Sprintf("%02x", b), 32),
		Index:  idx,
	}
}

type fakeLedger struct {
	utxos []domain.UTXO
}

func (f *fakeLedger) add(u domain.UTXO) { f.utxos = append(f.utxos, u) }

func (f *fakeLedger) UtxoByReference(_ context.Context, ref domain.OutRef) (*domain.UTXO, error) {
	for i := range f.utxos {
		if f.utxos[i].OutRef == ref {
			u := f.utxos[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNoMatchingUtxo
}

func (f *fakeLedger) UtxosAtAddressWithUnit(_ context.Context, address, unit string) ([]domain.UTXO, error) {
	var out []domain.UTXO
	for _, u := range f.utxos {
		if u.Address == address && u.Value[unit] > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeLedger) UtxosAtAddress(_ context.Context, address string) ([]domain.UTXO, error) {
	var out []domain.UTXO
	for _, u := range f.utxos {
		if u.Address == address {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeLedger) UtxoByUnit(_ context.Context, unit string) (*domain.UTXO, error) {
	for i := range f.utxos {
		if f.utxos[i].Value[unit] > 0 {
			u := f.utxos[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNoMatchingUtxo
}

type fakeWallet struct {
	addr domain.Address
	bech string
}

func (w *fakeWallet) Address() domain.Address { return w.addr }
func (w *fakeWallet) Bech32() string          { return w.bech }
func (w *fakeWallet) KeyHash() string         { return w.addr.Payment.HexHash() }

type fakeRegistry struct {
	validator domain.UTXO
	policy    domain.UTXO
	err       error
}

func (f *fakeRegistry) TradeValidator(context.Context) (*domain.UTXO, error) {
	if f.err != nil {
		return nil, f.err
	}
	u := f.validator
	return &u, nil
}

func (f *fakeRegistry) MintPolicy(context.Context) (*domain.UTXO, error) {
	if f.err != nil {
		return nil, f.err
	}
	u := f.policy
	return &u, nil
}

type fixture struct {
	t          *testing.T
	machine    *Machine
	ledger     *fakeLedger
	wallet     *fakeWallet
	registry   *fakeRegistry
	tradeAddr  string
	royaltyRef domain.OutRef
}

// newFixture wires a machine against in-memory fakes on preprod. The wallet
// key doubles as the royalty admin, and a one-recipient royalty schedule
// (2%, 1 ada fixed, 0.1 ada floor) is seeded unless withoutRoyalty trims it.
func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	cfg := Config{
		Network:              domain.NetworkPreprod,
		TradeScriptHash:      testScriptHash,
		MintPolicyID:         testMintPolicyID,
		PolicyReferenceTime:  refTime,
		RoyaltyTokenUnit:     royaltyUnit,
		RoyaltyAdminKeyHash:  keyAddr(0x01).Payment.HexHash(),
		ProtocolFundAddress:  "addr1vyfund000000000000000000000000000000000000000000000",
		ProtocolFundLovelace: 1_500_000,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	walletAddr := keyAddr(0x01)
	bech, err := crypto.EncodeAddress(cfg.Network, walletAddr)
	require.NoError(t, err)
	wallet := &fakeWallet{addr: walletAddr, bech: bech}

	ledger := &fakeLedger{}
	registry := &fakeRegistry{
		validator: domain.UTXO{OutRef: outRef(0xe1, 0)},
		policy:    domain.UTXO{OutRef: outRef(0xe2, 0)},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine, err := New(cfg, ledger, wallet, registry, logger)
	require.NoError(t, err)
	machine.now = func() time.Time { return fixedNow }

	tradeAddr, err := crypto.EncodeAddress(cfg.Network, domain.Address{
		Payment: domain.Credential{Hash: hash28(0xaa), IsScript: true},
	})
	require.NoError(t, err)

	f := &fixture{
		t:          t,
		machine:    machine,
		ledger:     ledger,
		wallet:     wallet,
		registry:   registry,
		tradeAddr:  tradeAddr,
		royaltyRef: outRef(0xf0, 0),
	}
	f.seedRoyalty(domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: keyAddr(0x03), Fee: 500, FixedFee: 1_000_000},
		},
		MinAda: 100_000,
	})
	return f
}

func (f *fixture) seedRoyalty(info domain.RoyaltyInfo) {
	f.t.Helper()
	datum, err := plutus.EncodeRoyaltyInfo(info)
	require.NoError(f.t, err)
	value := domain.Value{}
	value.Add(royaltyUnit, 1)
	f.ledger.add(domain.UTXO{
		OutRef:     f.royaltyRef,
		Address:    f.tradeAddr,
		Value:      value,
		DatumBytes: datum,
	})
}

func (f *fixture) dropRoyalty() {
	var kept []domain.UTXO
	for _, u := range f.ledger.utxos {
		if u.Value[royaltyUnit] == 0 {
			kept = append(kept, u)
		}
	}
	f.ledger.utxos = kept
}

func (f *fixture) giveWalletAsset(unit string) {
	value := domain.NewValue(5_000_000)
	value.Add(unit, 1)
	f.ledger.add(domain.UTXO{
		OutRef:  outRef(0xd0, uint64(len(f.ledger.utxos))),
		Address: f.wallet.bech,
		Value:   value,
	})
}

func (f *fixture) addListing(ref domain.OutRef, owner domain.Address, unit string, price int64, buyer *domain.Address) {
	f.t.Helper()
	datum, err := plutus.EncodeTradeDatum(domain.TradeDatum{
		Kind: domain.DatumListing,
		Listing: &domain.ListingDatum{
			Owner:             owner,
			RequestedLovelace: price,
			PrivateBuyer:      buyer,
		},
	})
	require.NoError(f.t, err)
	value := domain.NewValue(2_000_000)
	value.Add(unit, 1)
	f.ledger.add(domain.UTXO{OutRef: ref, Address: f.tradeAddr, Value: value, DatumBytes: datum})
}

func (f *fixture) addBid(ref domain.OutRef, owner domain.Address, option domain.BidOption, lovelace int64, lockUnit string) {
	f.t.Helper()
	datum, err := plutus.EncodeTradeDatum(domain.TradeDatum{
		Kind: domain.DatumBid,
		Bid:  &domain.BidDatum{Owner: owner, Option: option},
	})
	require.NoError(f.t, err)
	value := domain.NewValue(lovelace)
	if lockUnit != "" {
		value.Add(lockUnit, 1)
	}
	f.ledger.add(domain.UTXO{OutRef: ref, Address: f.tradeAddr, Value: value, DatumBytes: datum})
}

func decodePayment(t *testing.T, out domain.PlanOutput) domain.PaymentDatum {
	t.Helper()
	d, err := plutus.DecodePaymentDatum(out.DatumBytes)
	require.NoError(t, err)
	return d
}

func nft(name string) string {
	return domain.Unit(collectionPolicy, hex.EncodeToString([]byte(name)))
}

func TestListBuildsListingOutput(t *testing.T) {
	f := newFixture(t)
	unit := nft("drake1")
	f.giveWalletAsset(unit)

	plan, err := f.machine.List(context.Background(), unit, 40_000_000, nil)
	require.NoError(t, err)

	require.Empty(t, plan.Inputs)
	require.Len(t, plan.Outputs, 1)
	out := plan.Outputs[0]
	require.Equal(t, f.tradeAddr, out.Address)
	require.Equal(t, int64(1), out.Value[unit])

	datum, err := plutus.DecodeTradeDatum(out.DatumBytes)
	require.NoError(t, err)
	require.Equal(t, domain.DatumListing, datum.Kind)
	require.True(t, datum.Listing.Owner.Equal(f.wallet.addr))
	require.Equal(t, int64(40_000_000), datum.Listing.RequestedLovelace)
	require.Nil(t, datum.Listing.PrivateBuyer)
}

func TestListRequiresAssetInWallet(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.List(context.Background(), nft("ghost"), 40_000_000, nil)
	require.ErrorIs(t, err, domain.ErrNoMatchingUtxo)
}

func TestListRejectsNegativePrice(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.List(context.Background(), nft("drake1"), -1, nil)
	require.Error(t, err)
}

func TestChangeListingRebuildsPosition(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	f.addListing(ref, f.wallet.addr, nft("drake1"), 40_000_000, nil)

	buyer := keyAddr(0x04)
	plan, err := f.machine.ChangeListing(context.Background(), ref, 55_000_000, &buyer)
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 1)
	require.Equal(t, ref, plan.Inputs[0].OutRef)
	require.Equal(t, domain.ActionCancel, plan.Inputs[0].Action)
	require.Equal(t, []string{f.wallet.KeyHash()}, plan.RequiredSigners)
	require.Equal(t, []domain.OutRef{f.registry.validator.OutRef}, plan.ScriptRefs)

	require.Len(t, plan.Outputs, 1)
	require.Equal(t, f.tradeAddr, plan.Outputs[0].Address)
	datum, err := plutus.DecodeTradeDatum(plan.Outputs[0].DatumBytes)
	require.NoError(t, err)
	require.Equal(t, int64(55_000_000), datum.Listing.RequestedLovelace)
	require.NotNil(t, datum.Listing.PrivateBuyer)
	require.True(t, datum.Listing.PrivateBuyer.Equal(buyer))
}

func TestChangeListingRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	f.addListing(ref, keyAddr(0x02), nft("drake1"), 40_000_000, nil)

	_, err := f.machine.ChangeListing(context.Background(), ref, 55_000_000, nil)
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestChangeListingRejectsBidPosition(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	f.addBid(ref, f.wallet.addr, domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{nft("drake1"): 1},
	}, 10_000_000, f.machine.policy.BidTokenUnit(hex.EncodeToString([]byte("drake1"))))

	_, err := f.machine.ChangeListing(context.Background(), ref, 55_000_000, nil)
	require.ErrorIs(t, err, domain.ErrWrongVariant)
}

func TestCancelListingRefundsAsset(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	unit := nft("drake1")
	f.addListing(ref, f.wallet.addr, unit, 40_000_000, nil)

	plan, err := f.machine.CancelListing(context.Background(), ref)
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 1)
	require.Equal(t, domain.ActionCancel, plan.Inputs[0].Action)
	require.Len(t, plan.Outputs, 1)
	require.Equal(t, f.wallet.bech, plan.Outputs[0].Address)
	require.Equal(t, int64(1), plan.Outputs[0].Value[unit])
	require.Empty(t, plan.Outputs[0].DatumBytes)
}

func TestBuySplitsPriceAcrossSchedule(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	unit := nft("drake1")
	owner := keyAddr(0x02)
	f.addListing(ref, owner, unit, 100_000_000, nil)

	plan, err := f.machine.Buy(context.Background(), ref)
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 1)
	require.Equal(t, domain.ActionBuy, plan.Inputs[0].Action)
	require.Equal(t, []domain.OutRef{f.royaltyRef}, plan.ReferenceInputs)
	require.Empty(t, plan.RequiredSigners)
	require.Equal(t, []domain.OutRef{f.registry.validator.OutRef}, plan.ScriptRefs)

	// 2% royalty, owner remainder, asset to the buyer.
	require.Len(t, plan.Outputs, 3)

	royaltyOut := plan.Outputs[0]
	royaltyAddr, err := crypto.EncodeAddress(domain.NetworkPreprod, keyAddr(0x03))
	require.NoError(t, err)
	require.Equal(t, royaltyAddr, royaltyOut.Address)
	require.Equal(t, int64(2_000_000), royaltyOut.Value.Lovelace())
	require.Equal(t, ref, decodePayment(t, royaltyOut).OutRef)

	ownerOut := plan.Outputs[1]
	ownerAddr, err := crypto.EncodeAddress(domain.NetworkPreprod, owner)
	require.NoError(t, err)
	require.Equal(t, ownerAddr, ownerOut.Address)
	require.Equal(t, int64(98_000_000), ownerOut.Value.Lovelace())
	require.Equal(t, ref, decodePayment(t, ownerOut).OutRef)

	assetOut := plan.Outputs[2]
	require.Equal(t, f.wallet.bech, assetOut.Address)
	require.Equal(t, int64(1), assetOut.Value[unit])
}

func TestBuyPrivateListing(t *testing.T) {
	f := newFixture(t)
	unit := nft("drake1")

	restricted := outRef(0x10, 0)
	other := keyAddr(0x04)
	f.addListing(restricted, keyAddr(0x02), unit, 40_000_000, &other)

	_, err := f.machine.Buy(context.Background(), restricted)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	mine := outRef(0x11, 0)
	me := f.wallet.addr
	f.addListing(mine, keyAddr(0x02), unit, 40_000_000, &me)

	plan, err := f.machine.Buy(context.Background(), mine)
	require.NoError(t, err)
	require.Contains(t, plan.RequiredSigners, f.wallet.KeyHash())
}

func TestBuyRejectsBidPosition(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	f.addBid(ref, keyAddr(0x02), domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{nft("drake1"): 1},
	}, 10_000_000, f.machine.policy.OpenBidTokenUnit())

	_, err := f.machine.Buy(context.Background(), ref)
	require.ErrorIs(t, err, domain.ErrWrongVariant)
}

func TestBuyBatchMergesAndDeduplicates(t *testing.T) {
	f := newFixture(t)
	refA := outRef(0x10, 0)
	refB := outRef(0x11, 0)
	f.addListing(refA, keyAddr(0x02), nft("drake1"), 40_000_000, nil)
	f.addListing(refB, keyAddr(0x02), nft("drake2"), 60_000_000, nil)

	plan, err := f.machine.BuyBatch(context.Background(), []domain.OutRef{refA, refB})
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 2)
	// The shared royalty reference and validator ref collapse across halves.
	require.Equal(t, []domain.OutRef{f.royaltyRef}, plan.ReferenceInputs)
	require.Equal(t, []domain.OutRef{f.registry.validator.OutRef}, plan.ScriptRefs)
}

func TestBuyBatchAbortsOnFirstFailure(t *testing.T) {
	f := newFixture(t)
	refA := outRef(0x10, 0)
	f.addListing(refA, keyAddr(0x02), nft("drake1"), 40_000_000, nil)

	_, err := f.machine.BuyBatch(context.Background(), []domain.OutRef{refA, outRef(0x66, 0)})
	require.ErrorIs(t, err, domain.ErrNoMatchingUtxo)

	_, err = f.machine.BuyBatch(context.Background(), nil)
	require.Error(t, err)
}

func TestProtocolFundResolution(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	off := false
	on := true

	cases := []struct {
		name     string
		network  domain.Network
		override *bool
		want     bool
	}{
		{"mainnet default", domain.NetworkMainnet, nil, true},
		{"mainnet opt-out", domain.NetworkMainnet, &off, false},
		{"preprod default", domain.NetworkPreprod, nil, false},
		{"preprod override ignored", domain.NetworkPreprod, &on, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(Config{
				Network:             tc.network,
				TradeScriptHash:     testScriptHash,
				MintPolicyID:        testMintPolicyID,
				PolicyReferenceTime: refTime,
				FundProtocol:        tc.override,
			}, nil, nil, nil, logger)
			require.NoError(t, err)
			require.Equal(t, tc.want, m.FundProtocol())
		})
	}
}

func TestBuyOnMainnetCarriesProtocolPayout(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Network = domain.NetworkMainnet
	})
	ref := outRef(0x10, 0)
	f.addListing(ref, keyAddr(0x02), nft("drake1"), 100_000_000, nil)

	plan, err := f.machine.Buy(context.Background(), ref)
	require.NoError(t, err)

	last := plan.Outputs[len(plan.Outputs)-1]
	require.Equal(t, f.machine.cfg.ProtocolFundAddress, last.Address)
	require.Equal(t, int64(1_500_000), last.Value.Lovelace())
}

func TestBidLocksFundsAndMintsToken(t *testing.T) {
	f := newFixture(t)
	nameHex := hex.EncodeToString([]byte("drake1"))
	bundle := domain.Value{nft("drake1"): 1}

	plan, err := f.machine.Bid(context.Background(), bundle, 25_000_000)
	require.NoError(t, err)

	require.Len(t, plan.Mints, 1)
	require.Equal(t, int64(1), plan.Mints[0].Quantity)
	require.Equal(t, f.machine.policy.BidTokenNameHex(nameHex), plan.Mints[0].AssetNameHex)

	require.Len(t, plan.Outputs, 1)
	out := plan.Outputs[0]
	require.Equal(t, f.tradeAddr, out.Address)
	require.Equal(t, int64(25_000_000), out.Value.Lovelace())
	require.Equal(t, int64(1), out.Value[plan.Mints[0].Unit()])

	datum, err := plutus.DecodeTradeDatum(out.DatumBytes)
	require.NoError(t, err)
	require.Equal(t, domain.DatumBid, datum.Kind)
	require.Equal(t, domain.BidSpecificValue, datum.Bid.Option.Kind)
	require.True(t, datum.Bid.Option.Bundle.Equal(bundle))

	require.Equal(t, []domain.OutRef{f.registry.policy.OutRef}, plan.ScriptRefs)
	require.NotNil(t, plan.ValidFrom)
	require.Equal(t, fixedNow, *plan.ValidFrom)
}

func TestBidRejectsEmptyBundle(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.Bid(context.Background(), domain.NewValue(5_000_000), 25_000_000)
	require.Error(t, err)

	_, err = f.machine.Bid(context.Background(), domain.Value{nft("drake1"): 1}, 0)
	require.Error(t, err)
}

func TestBidOpenMintsSharedToken(t *testing.T) {
	f := newFixture(t)
	plan, err := f.machine.BidOpen(context.Background(), collectionPolicy,
		[]string{"Portrait"}, []domain.TraitFilter{{Trait: "Laser"}}, 30_000_000)
	require.NoError(t, err)

	require.Len(t, plan.Mints, 1)
	require.Equal(t, f.machine.policy.OpenBidTokenNameHex(), plan.Mints[0].AssetNameHex)

	datum, err := plutus.DecodeTradeDatum(plan.Outputs[0].DatumBytes)
	require.NoError(t, err)
	require.Equal(t, domain.BidOpenConstrained, datum.Bid.Option.Kind)
	require.Equal(t, collectionPolicy, datum.Bid.Option.PolicyID)
	require.Equal(t, []string{"Portrait"}, datum.Bid.Option.Types)
}

func TestChangeBidAdjustsLockedAmount(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	lock := f.machine.policy.OpenBidTokenUnit()
	f.addBid(ref, f.wallet.addr, domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: collectionPolicy,
	}, 30_000_000, lock)

	plan, err := f.machine.ChangeBid(context.Background(), ref, 45_000_000)
	require.NoError(t, err)

	require.Len(t, plan.Outputs, 1)
	require.Equal(t, int64(45_000_000), plan.Outputs[0].Value.Lovelace())
	require.Equal(t, int64(1), plan.Outputs[0].Value[lock])
	require.Empty(t, plan.Mints)

	// The datum is carried over verbatim.
	datum, err := plutus.DecodeTradeDatum(plan.Outputs[0].DatumBytes)
	require.NoError(t, err)
	require.Equal(t, domain.DatumBid, datum.Kind)
}

func TestCancelBidBurnsLockingToken(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	nameHex := hex.EncodeToString([]byte("drake1"))
	lock := f.machine.policy.BidTokenUnit(nameHex)
	f.addBid(ref, f.wallet.addr, domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{nft("drake1"): 1},
	}, 25_000_000, lock)

	plan, err := f.machine.CancelBid(context.Background(), ref)
	require.NoError(t, err)

	require.Len(t, plan.Mints, 1)
	require.Equal(t, int64(-1), plan.Mints[0].Quantity)
	require.Equal(t, f.machine.policy.BidTokenNameHex(nameHex), plan.Mints[0].AssetNameHex)

	require.Len(t, plan.Outputs, 1)
	require.Equal(t, f.wallet.bech, plan.Outputs[0].Address)
	require.Equal(t, int64(25_000_000), plan.Outputs[0].Value.Lovelace())
	require.Zero(t, plan.Outputs[0].Value[lock])
	require.NotNil(t, plan.ValidFrom)
}

func TestCancelBidWithoutLockingToken(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	f.addBid(ref, f.wallet.addr, domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{nft("drake1"): 1},
	}, 25_000_000, "")

	_, err := f.machine.CancelBid(context.Background(), ref)
	require.ErrorIs(t, err, domain.ErrNoMatchingUtxo)
}

func TestSellSettlesSpecificBid(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	unit := nft("drake1")
	nameHex := hex.EncodeToString([]byte("drake1"))
	bidOwner := keyAddr(0x02)
	f.addBid(ref, bidOwner, domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{unit: 1},
	}, 10_000_000, f.machine.policy.BidTokenUnit(nameHex))
	f.giveWalletAsset(unit)

	plan, err := f.machine.Sell(context.Background(), ref, "")
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 1)
	require.Equal(t, domain.ActionSell, plan.Inputs[0].Action)
	require.Len(t, plan.Mints, 1)
	require.Equal(t, int64(-1), plan.Mints[0].Quantity)
	require.Equal(t, []domain.OutRef{f.royaltyRef}, plan.ReferenceInputs)

	// 2% of 10 ada is 0.2 ada, above the 0.1 ada floor.
	require.Len(t, plan.Outputs, 3)
	require.Equal(t, int64(200_000), plan.Outputs[0].Value.Lovelace())
	require.Equal(t, f.wallet.bech, plan.Outputs[1].Address)
	require.Equal(t, int64(9_800_000), plan.Outputs[1].Value.Lovelace())

	ownerAddr, err := crypto.EncodeAddress(domain.NetworkPreprod, bidOwner)
	require.NoError(t, err)
	require.Equal(t, ownerAddr, plan.Outputs[2].Address)
	require.Equal(t, int64(1), plan.Outputs[2].Value[unit])
	require.Equal(t, ref, decodePayment(t, plan.Outputs[2]).OutRef)
}

func TestSellRequiresAssetInWallet(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	f.addBid(ref, keyAddr(0x02), domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{nft("drake1"): 1},
	}, 10_000_000, f.machine.policy.BidTokenUnit(hex.EncodeToString([]byte("drake1"))))

	_, err := f.machine.Sell(context.Background(), ref, "")
	require.ErrorIs(t, err, domain.ErrNoMatchingUtxo)
}

func TestSellConstrainedBidReadsProof(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	unit := nft("drake1")
	nameHex := hex.EncodeToString([]byte("drake1"))
	f.addBid(ref, keyAddr(0x02), domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: collectionPolicy,
		Types:    []string{"Portrait"},
	}, 10_000_000, f.machine.policy.OpenBidTokenUnit())
	f.giveWalletAsset(unit)

	meta, err := plutus.EncodeRefMetadata(plutus.RefMetadata{
		Name: "drake1", Type: "Portrait", Traits: []string{"Laser"},
	})
	require.NoError(t, err)
	proofRef := outRef(0x30, 0)
	refValue := domain.Value{}
	refValue.Add(match.ReferenceUnit(collectionPolicy, nameHex), 1)
	f.ledger.add(domain.UTXO{
		OutRef:     proofRef,
		Address:    f.tradeAddr,
		Value:      refValue,
		DatumBytes: meta,
	})

	plan, err := f.machine.Sell(context.Background(), ref, unit)
	require.NoError(t, err)
	require.Contains(t, plan.ReferenceInputs, proofRef)
	require.Contains(t, plan.ReferenceInputs, f.royaltyRef)
}

func TestSellConstrainedBidMissingProof(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	unit := nft("drake1")
	f.addBid(ref, keyAddr(0x02), domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: collectionPolicy,
		Types:    []string{"Portrait"},
	}, 10_000_000, f.machine.policy.OpenBidTokenUnit())
	f.giveWalletAsset(unit)

	_, err := f.machine.Sell(context.Background(), ref, unit)
	require.ErrorIs(t, err, domain.ErrReferenceNotFound)
}

func TestSellRejectsForeignPolicyAsset(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x20, 0)
	f.addBid(ref, keyAddr(0x02), domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: collectionPolicy,
	}, 10_000_000, f.machine.policy.OpenBidTokenUnit())

	foreign := domain.Unit(strings.Repeat("ee", 28), hex.EncodeToString([]byte("x")))
	_, err := f.machine.Sell(context.Background(), ref, foreign)
	require.ErrorIs(t, err, domain.ErrConstraintUnsatisfied)
}

func TestCancelListingAndSellUsesFreedAsset(t *testing.T) {
	f := newFixture(t)
	unit := nft("drake1")
	nameHex := hex.EncodeToString([]byte("drake1"))

	listingRef := outRef(0x10, 0)
	f.addListing(listingRef, f.wallet.addr, unit, 40_000_000, nil)

	bidRef := outRef(0x20, 0)
	f.addBid(bidRef, keyAddr(0x02), domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{unit: 1},
	}, 10_000_000, f.machine.policy.BidTokenUnit(nameHex))

	// The asset sits in the listing, not the wallet; the composite plan
	// frees it and settles the bid in the same transaction.
	plan, err := f.machine.CancelListingAndSell(context.Background(), listingRef, bidRef, "")
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 2)
	require.Len(t, plan.Mints, 1)
	require.Equal(t, int64(-1), plan.Mints[0].Quantity)

	// No refund output back to the wallet for the freed asset.
	for _, out := range plan.Outputs {
		if out.Address == f.wallet.bech {
			require.Zero(t, out.Value[unit])
		}
	}
}

func TestCancelBidAndBuy(t *testing.T) {
	f := newFixture(t)
	unit := nft("drake1")
	nameHex := hex.EncodeToString([]byte("drake1"))

	bidRef := outRef(0x20, 0)
	f.addBid(bidRef, f.wallet.addr, domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{unit: 1},
	}, 25_000_000, f.machine.policy.BidTokenUnit(nameHex))

	listingRef := outRef(0x10, 0)
	f.addListing(listingRef, keyAddr(0x02), unit, 20_000_000, nil)

	plan, err := f.machine.CancelBidAndBuy(context.Background(), bidRef, listingRef)
	require.NoError(t, err)
	require.Len(t, plan.Inputs, 2)
	require.Equal(t, domain.ActionCancel, plan.Inputs[0].Action)
	require.Equal(t, domain.ActionBuy, plan.Inputs[1].Action)
}

func TestMintRoyaltyOnce(t *testing.T) {
	f := newFixture(t)
	info := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{{Address: keyAddr(0x03), Fee: 500, FixedFee: 1_000_000}},
		MinAda:     1_000_000,
	}

	// The schedule position already exists.
	_, err := f.machine.MintRoyalty(context.Background(), info)
	require.Error(t, err)

	f.dropRoyalty()
	plan, err := f.machine.MintRoyalty(context.Background(), info)
	require.NoError(t, err)

	require.Len(t, plan.Mints, 1)
	require.Equal(t, royaltyPolicy, plan.Mints[0].PolicyID)
	require.Equal(t, int64(1), plan.Mints[0].Quantity)
	require.Len(t, plan.Outputs, 1)
	require.Equal(t, f.tradeAddr, plan.Outputs[0].Address)
	require.Equal(t, int64(1), plan.Outputs[0].Value[royaltyUnit])

	decoded, err := plutus.DecodeRoyaltyInfo(plan.Outputs[0].DatumBytes)
	require.NoError(t, err)
	require.Equal(t, info.MinAda, decoded.MinAda)
}

func TestUpdateRoyaltyCarriesToken(t *testing.T) {
	f := newFixture(t)
	next := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: keyAddr(0x03), Fee: 500, FixedFee: 1_000_000},
			{Address: keyAddr(0x05), Fee: 1000, FixedFee: 1_000_000},
		},
		MinAda: 1_000_000,
	}

	plan, err := f.machine.UpdateRoyalty(context.Background(), next)
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 1)
	require.Equal(t, f.royaltyRef, plan.Inputs[0].OutRef)
	require.Empty(t, plan.Mints)
	require.Equal(t, int64(1), plan.Outputs[0].Value[royaltyUnit])

	decoded, err := plutus.DecodeRoyaltyInfo(plan.Outputs[0].DatumBytes)
	require.NoError(t, err)
	require.Len(t, decoded.Recipients, 2)
}

func TestRoyaltyAdminGate(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.RoyaltyAdminKeyHash = keyAddr(0x09).Payment.HexHash()
	})

	_, err := f.machine.MintRoyalty(context.Background(), domain.RoyaltyInfo{})
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.machine.UpdateRoyalty(context.Background(), domain.RoyaltyInfo{})
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestGetListingsSortsAndSkipsJunk(t *testing.T) {
	f := newFixture(t)
	f.addListing(outRef(0x10, 0), keyAddr(0x02), nft("drake1"), 40_000_000, nil)
	f.addListing(outRef(0x11, 0), keyAddr(0x02), nft("drake2"), 90_000_000, nil)

	// Junk at the trade address must not break the query.
	f.ledger.add(domain.UTXO{
		OutRef:     outRef(0x12, 0),
		Address:    f.tradeAddr,
		Value:      domain.NewValue(1_000_000),
		DatumBytes: []byte{0xff, 0xff},
	})

	listings, err := f.machine.GetListings(context.Background(), collectionPolicy)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	require.Equal(t, int64(90_000_000), listings[0].RequestedLovelace)
	require.Equal(t, nft("drake2"), listings[0].Unit)
	require.Equal(t, keyAddr(0x02).Payment.HexHash(), listings[0].OwnerKeyHash)
}

func TestGetBidsFiltersByPolicy(t *testing.T) {
	f := newFixture(t)
	f.addBid(outRef(0x20, 0), keyAddr(0x02), domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: domain.Value{nft("drake1"): 1},
	}, 10_000_000, f.machine.policy.BidTokenUnit(hex.EncodeToString([]byte("drake1"))))
	f.addBid(outRef(0x21, 0), keyAddr(0x04), domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: collectionPolicy,
		Types:    []string{"Portrait"},
	}, 30_000_000, f.machine.policy.OpenBidTokenUnit())
	f.addBid(outRef(0x22, 0), keyAddr(0x04), domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: strings.Repeat("ee", 28),
	}, 99_000_000, f.machine.policy.OpenBidTokenUnit())

	bids, err := f.machine.GetBids(context.Background(), collectionPolicy)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, int64(30_000_000), bids[0].Lovelace)
	require.True(t, bids[0].Open)
	require.Equal(t, nft("drake1"), bids[1].Unit)
}

func TestGetListingOrBid(t *testing.T) {
	f := newFixture(t)
	ref := outRef(0x10, 0)
	f.addListing(ref, keyAddr(0x02), nft("drake1"), 40_000_000, nil)

	datum, err := f.machine.GetListingOrBid(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, datum)
	require.Equal(t, domain.DatumListing, datum.Kind)

	missing, err := f.machine.GetListingOrBid(context.Background(), outRef(0x66, 0))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestScriptsNotDeployed(t *testing.T) {
	f := newFixture(t)
	f.registry.err = domain.ErrScriptsNotDeployed
	ref := outRef(0x10, 0)
	f.addListing(ref, f.wallet.addr, nft("drake1"), 40_000_000, nil)

	_, err := f.machine.CancelListing(context.Background(), ref)
	require.ErrorIs(t, err, domain.ErrScriptsNotDeployed)
}
