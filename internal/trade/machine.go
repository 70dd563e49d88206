// Package trade implements the marketplace transition engine: it decodes the
// target positions, validates ownership and variants, resolves matches,
// splits fees, and emits declarative transaction plans for an external
// builder. No transition mutates ledger state; construction is pure until
// the caller submits the plan.
package trade

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/tealbay/nftmarketd/internal/crypto"
	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/minting"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

// Config carries the deployed-contract parameters of one marketplace.
type Config struct {
	Network domain.Network

	// TradeScriptHash is the hex script hash of the trade validator; it is
	// the payment credential of every marketplace address.
	TradeScriptHash string

	// MintPolicyID is the hex policy id of the locking-token minting policy.
	MintPolicyID string

	// PolicyReferenceTime is the fixed time before which the minting policy
	// rejects all transactions.
	PolicyReferenceTime time.Time

	// RoyaltyTokenUnit identifies the long-lived royalty-info position.
	RoyaltyTokenUnit string

	// RoyaltyAdminKeyHash is the hex key hash allowed to mint and update the
	// royalty schedule.
	RoyaltyAdminKeyHash string

	// ProtocolFundAddress receives the flat protocol payout on settlements.
	ProtocolFundAddress string

	// ProtocolFundLovelace is the flat payout amount.
	ProtocolFundLovelace int64

	// FundProtocol overrides the protocol-fund flag. On mainnet nil means
	// enabled; off mainnet the flag is always false and the override is
	// ignored.
	FundProtocol *bool
}

// Machine builds transition plans against one deployed marketplace.
type Machine struct {
	cfg          Config
	ledger       domain.LedgerQuery
	wallet       domain.Wallet
	scripts      domain.ScriptRegistry
	policy       *minting.Policy
	scriptCred   domain.Credential
	fundProtocol bool
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Machine. The protocol-fund flag is resolved once here:
// enabled on mainnet unless explicitly overridden, and never enabled on any
// other network regardless of the override.
func New(
	cfg Config,
	ledger domain.LedgerQuery,
	wallet domain.Wallet,
	scripts domain.ScriptRegistry,
	logger *slog.Logger,
) (*Machine, error) {
	scriptHash, err := hex.DecodeString(cfg.TradeScriptHash)
	if err != nil {
		return nil, fmt.Errorf("trade: invalid script hash: %w", err)
	}

	fund := false
	if cfg.Network.Mainnet() {
		fund = true
		if cfg.FundProtocol != nil {
			fund = *cfg.FundProtocol
		}
	}

	return &Machine{
		cfg:          cfg,
		ledger:       ledger,
		wallet:       wallet,
		scripts:      scripts,
		policy:       minting.New(cfg.MintPolicyID, cfg.PolicyReferenceTime),
		scriptCred:   domain.Credential{Hash: scriptHash, IsScript: true},
		fundProtocol: fund,
		logger:       logger.With(slog.String("component", "trade")),
		now:          time.Now,
	}, nil
}

// FundProtocol reports whether settlements carry the protocol-fund payout.
func (m *Machine) FundProtocol() bool {
	return m.fundProtocol
}

// MintPolicy exposes the locking-token policy, mainly for queries and tests.
func (m *Machine) MintPolicy() *minting.Policy {
	return m.policy
}

// RoyaltyUnit returns the configured royalty token unit, empty when the
// marketplace runs without royalties.
func (m *Machine) RoyaltyUnit() string {
	return m.cfg.RoyaltyTokenUnit
}

// tradeAddress derives the marketplace address for the given stake part:
// the validator's script credential plus the caller's stake credential, so
// sellers keep earning stake rewards on locked value.
func (m *Machine) tradeAddress(stake *domain.Credential) (string, error) {
	addr := domain.Address{Payment: m.scriptCred, Stake: stake}
	bech, err := crypto.EncodeAddress(m.cfg.Network, addr)
	if err != nil {
		return "", fmt.Errorf("trade: derive trade address: %w", err)
	}
	return bech, nil
}

// baseTradeAddress is the stake-less marketplace address used for queries;
// the ledger surface matches positions by payment credential.
func (m *Machine) baseTradeAddress() (string, error) {
	return m.tradeAddress(nil)
}

// fetchDatum resolves a position and decodes its trade datum.
func (m *Machine) fetchDatum(ctx context.Context, ref domain.OutRef) (*domain.UTXO, domain.TradeDatum, error) {
	utxo, err := m.ledger.UtxoByReference(ctx, ref)
	if err != nil {
		return nil, domain.TradeDatum{}, fmt.Errorf("trade: resolve %s: %w", ref, err)
	}
	datum, err := plutus.DecodeTradeDatum(utxo.DatumBytes)
	if err != nil {
		return nil, domain.TradeDatum{}, fmt.Errorf("trade: decode datum at %s: %w", ref, err)
	}
	return utxo, datum, nil
}

// requireOwner aborts with ErrNotOwner unless the caller's payment
// credential matches the datum's recorded owner.
func (m *Machine) requireOwner(owner domain.Address) error {
	if !m.wallet.Address().SameOwner(owner) {
		return fmt.Errorf("trade: owner %s: %w", owner.Payment.HexHash(), domain.ErrNotOwner)
	}
	return nil
}

// royaltySchedule reads (without consuming) the royalty-info position and
// returns the decoded schedule plus its reference for the plan.
func (m *Machine) royaltySchedule(ctx context.Context) (domain.RoyaltyInfo, domain.OutRef, error) {
	utxo, err := m.ledger.UtxoByUnit(ctx, m.cfg.RoyaltyTokenUnit)
	if err != nil {
		return domain.RoyaltyInfo{}, domain.OutRef{}, fmt.Errorf("trade: royalty lookup: %w", err)
	}
	info, err := plutus.DecodeRoyaltyInfo(utxo.DatumBytes)
	if err != nil {
		return domain.RoyaltyInfo{}, domain.OutRef{}, fmt.Errorf("trade: decode royalty info: %w", err)
	}
	return info, utxo.OutRef, nil
}

// attachValidator resolves the deployed trade validator and attaches it by
// reference.
func (m *Machine) attachValidator(ctx context.Context, plan *domain.TxPlan) error {
	ref, err := m.scripts.TradeValidator(ctx)
	if err != nil {
		return fmt.Errorf("trade: validator: %w", err)
	}
	plan.ScriptRefs = append(plan.ScriptRefs, ref.OutRef)
	return nil
}

// attachMintPolicy resolves the deployed minting policy, attaches it by
// reference, and pins the plan's validity start inside the policy's window.
func (m *Machine) attachMintPolicy(ctx context.Context, plan *domain.TxPlan) error {
	ref, err := m.scripts.MintPolicy(ctx)
	if err != nil {
		return fmt.Errorf("trade: mint policy: %w", err)
	}
	plan.ScriptRefs = append(plan.ScriptRefs, ref.OutRef)
	start := m.policy.ValidityStart(m.now())
	plan.ValidFrom = &start
	return nil
}

// protocolPayout appends the flat protocol-fund output when the flag is
// active.
func (m *Machine) protocolPayout(plan *domain.TxPlan) {
	if !m.fundProtocol {
		return
	}
	plan.Outputs = append(plan.Outputs, domain.PlanOutput{
		Address: m.cfg.ProtocolFundAddress,
		Value:   domain.NewValue(m.cfg.ProtocolFundLovelace),
	})
}

// paymentTo builds a payout output carrying the provenance datum for the
// settled position.
func paymentTo(address string, value domain.Value, settles domain.OutRef) (domain.PlanOutput, error) {
	datum, err := plutus.EncodePaymentDatum(domain.PaymentDatum{OutRef: settles})
	if err != nil {
		return domain.PlanOutput{}, fmt.Errorf("trade: encode payment datum: %w", err)
	}
	return domain.PlanOutput{Address: address, Value: value, DatumBytes: datum}, nil
}

// encodeOwnerAddress renders a datum address as bech32 on this network.
func (m *Machine) encodeOwnerAddress(addr domain.Address) (string, error) {
	bech, err := crypto.EncodeAddress(m.cfg.Network, addr)
	if err != nil {
		return "", fmt.Errorf("trade: encode owner address: %w", err)
	}
	return bech, nil
}
