package chainindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Registry resolves the configured script-deployment references, so
// settlement transactions attach the compiled validator and minting policy
// by reference instead of inlining their bytecode.
type Registry struct {
	ledger    domain.LedgerQuery
	validator domain.OutRef
	policy    domain.OutRef
	haveRefs  bool
}

// NewRegistry creates a Registry. haveRefs must be false when no deployment
// is configured; every lookup then fails with domain.ErrScriptsNotDeployed.
func NewRegistry(ledger domain.LedgerQuery, validator, policy domain.OutRef, haveRefs bool) *Registry {
	return &Registry{
		ledger:    ledger,
		validator: validator,
		policy:    policy,
		haveRefs:  haveRefs,
	}
}

// TradeValidator resolves the reference UTXO holding the trade validator.
func (r *Registry) TradeValidator(ctx context.Context) (*domain.UTXO, error) {
	return r.resolve(ctx, r.validator)
}

// MintPolicy resolves the reference UTXO holding the minting policy.
func (r *Registry) MintPolicy(ctx context.Context) (*domain.UTXO, error) {
	return r.resolve(ctx, r.policy)
}

func (r *Registry) resolve(ctx context.Context, ref domain.OutRef) (*domain.UTXO, error) {
	if !r.haveRefs {
		return nil, domain.ErrScriptsNotDeployed
	}
	utxo, err := r.ledger.UtxoByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatchingUtxo) {
			return nil, fmt.Errorf("chainindex: script ref %s spent or missing: %w",
				ref, domain.ErrScriptsNotDeployed)
		}
		return nil, err
	}
	return utxo, nil
}

var _ domain.ScriptRegistry = (*Registry)(nil)
