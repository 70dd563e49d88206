package domain

import "fmt"

// OutRef identifies a ledger position: the transaction that created it and
// the output index within that transaction.
type OutRef struct {
	TxHash string
	Index  uint64
}

// String renders the conventional "txhash#index" form.
func (r OutRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxHash, r.Index)
}

// UTXO is an unspent ledger output: its position, holding address, asset
// bundle, and attached inline datum (raw CBOR bytes, empty when absent).
type UTXO struct {
	OutRef     OutRef
	Address    string // bech32
	Value      Value
	DatumBytes []byte
}
