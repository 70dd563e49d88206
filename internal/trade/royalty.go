package trade

import (
	"context"
	"fmt"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

// MintRoyalty performs the one-shot mint of the royalty token and creates
// the long-lived royalty-info position. Only the configured royalty admin
// may run it; a second mint fails because the position already exists.
func (m *Machine) MintRoyalty(ctx context.Context, info domain.RoyaltyInfo) (*domain.TxPlan, error) {
	if err := m.requireRoyaltyAdmin(); err != nil {
		return nil, err
	}

	if _, err := m.ledger.UtxoByUnit(ctx, m.cfg.RoyaltyTokenUnit); err == nil {
		return nil, fmt.Errorf("trade: royalty token already minted")
	}

	datum, err := plutus.EncodeRoyaltyInfo(info)
	if err != nil {
		return nil, err
	}

	addr, err := m.baseTradeAddress()
	if err != nil {
		return nil, err
	}

	policy, nameHex := domain.SplitUnit(m.cfg.RoyaltyTokenUnit)
	value := domain.Value{}
	value.Add(m.cfg.RoyaltyTokenUnit, 1)

	return &domain.TxPlan{
		Outputs: []domain.PlanOutput{{
			Address:    addr,
			Value:      value,
			DatumBytes: datum,
		}},
		Mints: []domain.MintEntry{{
			PolicyID:     policy,
			AssetNameHex: nameHex,
			Quantity:     1,
		}},
		RequiredSigners: []string{m.wallet.KeyHash()},
	}, nil
}

// UpdateRoyalty consumes the royalty-info position and recreates it with a
// new schedule. The royalty token is carried over, never re-minted.
func (m *Machine) UpdateRoyalty(ctx context.Context, info domain.RoyaltyInfo) (*domain.TxPlan, error) {
	if err := m.requireRoyaltyAdmin(); err != nil {
		return nil, err
	}

	utxo, err := m.ledger.UtxoByUnit(ctx, m.cfg.RoyaltyTokenUnit)
	if err != nil {
		return nil, fmt.Errorf("trade: royalty lookup: %w", err)
	}

	datum, err := plutus.EncodeRoyaltyInfo(info)
	if err != nil {
		return nil, err
	}

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: utxo.OutRef,
			Value:  utxo.Value,
			Action: domain.ActionCancel,
		}},
		Outputs: []domain.PlanOutput{{
			Address:    utxo.Address,
			Value:      utxo.Value.Clone(),
			DatumBytes: datum,
		}},
		RequiredSigners: []string{m.wallet.KeyHash()},
	}
	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// GetRoyalty returns the current royalty schedule.
func (m *Machine) GetRoyalty(ctx context.Context) (domain.RoyaltyInfo, error) {
	info, _, err := m.royaltySchedule(ctx)
	return info, err
}

func (m *Machine) requireRoyaltyAdmin() error {
	if m.wallet.KeyHash() != m.cfg.RoyaltyAdminKeyHash {
		return fmt.Errorf("trade: royalty admin required: %w", domain.ErrNotOwner)
	}
	return nil
}
