package domain

import "context"

// LedgerQuery is the read surface the trade machine requires from a chain
// index. Results include each position's asset bundle and inline datum bytes.
type LedgerQuery interface {
	// UtxoByReference resolves a single position; ErrNoMatchingUtxo when it
	// does not exist or is already spent.
	UtxoByReference(ctx context.Context, ref OutRef) (*UTXO, error)
	// UtxosAtAddressWithUnit returns unspent positions at address holding at
	// least one of unit.
	UtxosAtAddressWithUnit(ctx context.Context, address, unit string) ([]UTXO, error)
	// UtxosAtAddress returns every unspent position at address. Marketplace
	// addresses are matched by payment credential, so stake-adjusted
	// variants of the same script address are all included.
	UtxosAtAddress(ctx context.Context, address string) ([]UTXO, error)
	// UtxoByUnit resolves the unique position holding unit;
	// ErrNoMatchingUtxo when absent.
	UtxoByUnit(ctx context.Context, unit string) (*UTXO, error)
}

// TxBuilder turns a TxPlan into a balanced, signed, submitted transaction.
// Failures surface as ErrSubmission; the plan itself never mutates state.
type TxBuilder interface {
	Submit(ctx context.Context, plan *TxPlan) (string, error)
}

// Wallet exposes the caller's identity for ownership checks and stake-aware
// address derivation.
type Wallet interface {
	// Address returns the caller's full address including any stake part.
	Address() Address
	// Bech32 returns the caller's bech32 address string.
	Bech32() string
	// KeyHash returns the hex payment key hash used as a required signer.
	KeyHash() string
}

// ScriptRegistry resolves configured deployment references to the reference
// UTXOs holding the compiled scripts, so settlement transactions do not
// re-attach full bytecode. Absence is ErrScriptsNotDeployed.
type ScriptRegistry interface {
	TradeValidator(ctx context.Context) (*UTXO, error)
	MintPolicy(ctx context.Context) (*UTXO, error)
}
