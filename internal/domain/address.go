package domain

import (
	"bytes"
	"encoding/hex"
)

// Credential is a payment or stake credential: a blake2b-224 hash of either a
// verification key or a script.
type Credential struct {
	Hash     []byte
	IsScript bool
}

// Equal reports whether two credentials reference the same hash and kind.
func (c Credential) Equal(o Credential) bool {
	return c.IsScript == o.IsScript && bytes.Equal(c.Hash, o.Hash)
}

// HexHash returns the credential hash as lowercase hex.
func (c Credential) HexHash() string {
	return hex.EncodeToString(c.Hash)
}

// Address is a ledger address: a payment credential plus an optional stake
// credential.
type Address struct {
	Payment Credential
	Stake   *Credential
}

// Equal compares both the payment and stake parts.
func (a Address) Equal(o Address) bool {
	if !a.Payment.Equal(o.Payment) {
		return false
	}
	if (a.Stake == nil) != (o.Stake == nil) {
		return false
	}
	return a.Stake == nil || a.Stake.Equal(*o.Stake)
}

// SameOwner reports whether two addresses are controlled by the same payment
// credential. Ownership checks compare payment parts only: the same wallet
// may appear with or without its stake part.
func (a Address) SameOwner(o Address) bool {
	return a.Payment.Equal(o.Payment)
}

// WithStake returns a copy of the address carrying the given stake credential.
func (a Address) WithStake(stake *Credential) Address {
	return Address{Payment: a.Payment, Stake: stake}
}
