package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/crypto"
	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/plutus"
	"github.com/tealbay/nftmarketd/internal/trade"
)

var (
	svcScriptHash   = strings.Repeat("aa", 28)
	svcMintPolicyID = strings.Repeat("bb", 28)
	svcCollection   = strings.Repeat("cc", 28)
	svcRoyaltyUnit  = domain.Unit(strings.Repeat("dd", 28), hex.EncodeToString([]byte("Royalty")))
)

func svcHash28(b byte) []byte {
	h := make([]byte, 28)
	for i := range h {
		h[i] = b
	}
	return h
}

func svcAddr(b byte) domain.Address {
	return domain.Address{Payment: domain.Credential{Hash: svcHash28(b)}}
}

func svcRef(b byte, idx uint64) domain.OutRef {
	return domain.OutRef{TxHash: strings.Repeat(fmt.Sprintf("%02x", b), 32), Index: idx}
}

type memLedger struct {
	utxos []domain.UTXO
	calls int
}

func (m *memLedger) UtxoByReference(_ context.Context, ref domain.OutRef) (*domain.UTXO, error) {
	m.calls++
	for i := range m.utxos {
		if m.utxos[i].OutRef == ref {
			u := m.utxos[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNoMatchingUtxo
}

func (m *memLedger) UtxosAtAddressWithUnit(_ context.Context, address, unit string) ([]domain.UTXO, error) {
	m.calls++
	var out []domain.UTXO
	for _, u := range m.utxos {
		if u.Address == address && u.Value[unit] > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memLedger) UtxosAtAddress(_ context.Context, address string) ([]domain.UTXO, error) {
	m.calls++
	var out []domain.UTXO
	for _, u := range m.utxos {
		if u.Address == address {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memLedger) UtxoByUnit(_ context.Context, unit string) (*domain.UTXO, error) {
	m.calls++
	for i := range m.utxos {
		if m.utxos[i].Value[unit] > 0 {
			u := m.utxos[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNoMatchingUtxo
}

type memWallet struct{ addr domain.Address }

func (w *memWallet) Address() domain.Address { return w.addr }
func (w *memWallet) Bech32() string          { return "addr_test1_wallet" }
func (w *memWallet) KeyHash() string         { return w.addr.Payment.HexHash() }

type memRegistry struct{}

func (memRegistry) TradeValidator(context.Context) (*domain.UTXO, error) {
	return &domain.UTXO{OutRef: svcRef(0xe1, 0)}, nil
}

func (memRegistry) MintPolicy(context.Context) (*domain.UTXO, error) {
	return &domain.UTXO{OutRef: svcRef(0xe2, 0)}, nil
}

type memBuilder struct {
	txID      string
	err       error
	submitted []*domain.TxPlan
}

func (b *memBuilder) Submit(_ context.Context, plan *domain.TxPlan) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.submitted = append(b.submitted, plan)
	return b.txID, nil
}

type memActivities struct{ rows []domain.Activity }

func (m *memActivities) Insert(_ context.Context, a domain.Activity) error {
	m.rows = append(m.rows, a)
	return nil
}
func (m *memActivities) ListRecent(context.Context, domain.ListOpts) ([]domain.Activity, error) {
	return m.rows, nil
}
func (m *memActivities) ListByPolicy(context.Context, string, domain.ListOpts) ([]domain.Activity, error) {
	return nil, nil
}
func (m *memActivities) ListBefore(context.Context, time.Time) ([]domain.Activity, error) {
	return nil, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}
func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memMarketCache struct {
	listings    map[string][]domain.ListingView
	bids        map[string][]domain.BidView
	invalidated []string
}

func newMemMarketCache() *memMarketCache {
	return &memMarketCache{
		listings: map[string][]domain.ListingView{},
		bids:     map[string][]domain.BidView{},
	}
}

func (m *memMarketCache) SetListings(_ context.Context, policyID string, l []domain.ListingView) error {
	m.listings[policyID] = l
	return nil
}

func (m *memMarketCache) GetListings(_ context.Context, policyID string) ([]domain.ListingView, error) {
	l, ok := m.listings[policyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return l, nil
}

func (m *memMarketCache) SetBids(_ context.Context, policyID string, b []domain.BidView) error {
	m.bids[policyID] = b
	return nil
}

func (m *memMarketCache) GetBids(_ context.Context, policyID string) ([]domain.BidView, error) {
	b, ok := m.bids[policyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memMarketCache) Invalidate(_ context.Context, policyID string) error {
	m.invalidated = append(m.invalidated, policyID)
	delete(m.listings, policyID)
	delete(m.bids, policyID)
	return nil
}

type memRoyaltyCache struct {
	info        map[string]domain.RoyaltyInfo
	invalidated []string
}

func (m *memRoyaltyCache) Set(_ context.Context, unit string, info domain.RoyaltyInfo) error {
	if m.info == nil {
		m.info = map[string]domain.RoyaltyInfo{}
	}
	m.info[unit] = info
	return nil
}

func (m *memRoyaltyCache) Get(_ context.Context, unit string) (domain.RoyaltyInfo, error) {
	info, ok := m.info[unit]
	if !ok {
		return domain.RoyaltyInfo{}, domain.ErrNotFound
	}
	return info, nil
}

func (m *memRoyaltyCache) Invalidate(_ context.Context, unit string) error {
	m.invalidated = append(m.invalidated, unit)
	delete(m.info, unit)
	return nil
}

type memLocks struct {
	acquired []string
	err      error
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.acquired = append(m.acquired, key)
	return func() {}, nil
}

type memBus struct {
	published [][]byte
	streamed  [][]byte
}

func (m *memBus) Publish(_ context.Context, _ string, payload []byte) error {
	m.published = append(m.published, payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (m *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	m.streamed = append(m.streamed, payload)
	return nil
}

type svcFixture struct {
	svc        *TradeService
	market     *MarketService
	tradeAddr  string
	ledger     *memLedger
	wallet     *memWallet
	builder    *memBuilder
	activities *memActivities
	audit      *memAudit
	cache      *memMarketCache
	royalties  *memRoyaltyCache
	locks      *memLocks
	bus        *memBus
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := &memLedger{}
	wallet := &memWallet{addr: svcAddr(0x01)}
	machine, err := trade.New(trade.Config{
		Network:             domain.NetworkPreprod,
		TradeScriptHash:     svcScriptHash,
		MintPolicyID:        svcMintPolicyID,
		PolicyReferenceTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RoyaltyTokenUnit:    svcRoyaltyUnit,
		RoyaltyAdminKeyHash: wallet.KeyHash(),
	}, ledger, wallet, memRegistry{}, logger)
	require.NoError(t, err)

	tradeAddr, err := crypto.EncodeAddress(domain.NetworkPreprod, domain.Address{
		Payment: domain.Credential{Hash: svcHash28(0xaa), IsScript: true},
	})
	require.NoError(t, err)

	f := &svcFixture{
		tradeAddr:  tradeAddr,
		ledger:     ledger,
		wallet:     wallet,
		builder:    &memBuilder{txID: "tx123"},
		activities: &memActivities{},
		audit:      &memAudit{},
		cache:      newMemMarketCache(),
		royalties:  &memRoyaltyCache{},
		locks:      &memLocks{},
		bus:        &memBus{},
	}
	f.svc = NewTradeService(machine, f.builder, wallet,
		f.activities, f.audit, f.cache, f.royalties, f.locks, f.bus, nil, logger)
	f.market = NewMarketService(machine, f.cache, f.royalties, f.activities, logger)
	return f
}

func (f *svcFixture) giveWalletAsset(t *testing.T, unit string) {
	t.Helper()
	value := domain.NewValue(5_000_000)
	value.Add(unit, 1)
	f.ledger.utxos = append(f.ledger.utxos, domain.UTXO{
		OutRef:  svcRef(0xd0, uint64(len(f.ledger.utxos))),
		Address: f.wallet.Bech32(),
		Value:   value,
	})
}

func svcNFT(name string) string {
	return domain.Unit(svcCollection, hex.EncodeToString([]byte(name)))
}

func TestTradeServiceListRecordsActivity(t *testing.T) {
	f := newSvcFixture(t)
	unit := svcNFT("drake1")
	f.giveWalletAsset(t, unit)

	txID, err := f.svc.List(context.Background(), unit, 40_000_000, nil)
	require.NoError(t, err)
	require.Equal(t, "tx123", txID)
	require.Len(t, f.builder.submitted, 1)

	require.Len(t, f.activities.rows, 1)
	row := f.activities.rows[0]
	require.Equal(t, domain.ActivityListed, row.Kind)
	require.Equal(t, "tx123", row.TxID)
	require.Equal(t, unit, row.Unit)
	require.Equal(t, svcCollection, row.PolicyID)
	require.Equal(t, int64(40_000_000), row.Lovelace)
	require.Equal(t, f.wallet.Bech32(), row.Caller)
	require.NotEmpty(t, row.ID)

	require.Contains(t, f.audit.events, "trade.listed")
	require.Contains(t, f.cache.invalidated, svcCollection)

	require.Len(t, f.bus.published, 1)
	require.Len(t, f.bus.streamed, 1)
	var event domain.MarketEvent
	require.NoError(t, json.Unmarshal(f.bus.published[0], &event))
	require.Equal(t, domain.ActivityListed, event.Kind)
	require.Equal(t, "tx123", event.TxID)
}

func TestTradeServiceRejectedBuildIsAudited(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.svc.List(context.Background(), svcNFT("ghost"), 40_000_000, nil)
	require.ErrorIs(t, err, domain.ErrNoMatchingUtxo)

	require.Empty(t, f.builder.submitted)
	require.Empty(t, f.activities.rows)
	require.Contains(t, f.audit.events, "trade.listed.rejected")
}

func TestTradeServiceSubmitFailure(t *testing.T) {
	f := newSvcFixture(t)
	unit := svcNFT("drake1")
	f.giveWalletAsset(t, unit)
	f.builder.err = domain.ErrSubmission

	_, err := f.svc.List(context.Background(), unit, 40_000_000, nil)
	require.ErrorIs(t, err, domain.ErrSubmission)

	require.Empty(t, f.activities.rows)
	require.Contains(t, f.audit.events, "trade.listed.failed")
}

func TestTradeServiceLocksConsumedPosition(t *testing.T) {
	f := newSvcFixture(t)
	ref := svcRef(0x10, 0)
	f.addListing(t, ref, f.wallet.addr, svcNFT("drake1"), 40_000_000)

	_, err := f.svc.CancelListing(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, []string{"plan:" + ref.String()}, f.locks.acquired)
}

func TestTradeServiceLockContention(t *testing.T) {
	f := newSvcFixture(t)
	f.locks.err = domain.ErrLockHeld

	_, err := f.svc.CancelListing(context.Background(), svcRef(0x10, 0))
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.Empty(t, f.builder.submitted)
}

func (f *svcFixture) addListing(t *testing.T, ref domain.OutRef, owner domain.Address, unit string, price int64) {
	t.Helper()
	datum, err := plutus.EncodeTradeDatum(domain.TradeDatum{
		Kind: domain.DatumListing,
		Listing: &domain.ListingDatum{
			Owner:             owner,
			RequestedLovelace: price,
		},
	})
	require.NoError(t, err)
	value := domain.NewValue(2_000_000)
	value.Add(unit, 1)
	f.ledger.utxos = append(f.ledger.utxos, domain.UTXO{
		OutRef: ref, Address: f.tradeAddr, Value: value, DatumBytes: datum,
	})
}

func TestMarketServiceListingsCache(t *testing.T) {
	f := newSvcFixture(t)
	f.addListing(t, svcRef(0x10, 0), svcAddr(0x02), svcNFT("drake1"), 40_000_000)

	listings, err := f.market.Listings(context.Background(), svcCollection)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	// Back-filled cache serves the second call without touching the ledger.
	before := f.ledger.calls
	again, err := f.market.Listings(context.Background(), svcCollection)
	require.NoError(t, err)
	require.Equal(t, listings, again)
	require.Equal(t, before, f.ledger.calls)
}

func TestMarketServiceSnapshot(t *testing.T) {
	f := newSvcFixture(t)
	f.addListing(t, svcRef(0x10, 0), svcAddr(0x02), svcNFT("drake1"), 40_000_000)

	snap, err := f.market.Snapshot(context.Background(), svcCollection)
	require.NoError(t, err)
	require.Equal(t, svcCollection, snap.PolicyID)
	require.Len(t, snap.Listings, 1)
	require.Empty(t, snap.Bids)
}

func TestMintRoyaltyInvalidatesCache(t *testing.T) {
	f := newSvcFixture(t)
	require.NoError(t, f.royalties.Set(context.Background(), svcRoyaltyUnit, domain.RoyaltyInfo{MinAda: 1}))

	_, err := f.svc.MintRoyalty(context.Background(), domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{{Address: svcAddr(0x03), Fee: 500, FixedFee: 1_000_000}},
		MinAda:     1_000_000,
	})
	require.NoError(t, err)
	require.Contains(t, f.royalties.invalidated, svcRoyaltyUnit)
}
