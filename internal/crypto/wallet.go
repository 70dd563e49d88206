package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Wallet is the caller identity: an ed25519 payment key plus an optional
// stake credential, bound to one network. It implements domain.Wallet.
type Wallet struct {
	network domain.Network
	priv    ed25519.PrivateKey
	addr    domain.Address
	bech32  string
	keyHash string
}

// NewWallet derives a Wallet from a hex signing seed. stakeKeyHashHex is the
// optional hex stake key hash used for stake-aware address derivation; pass
// "" for an enterprise wallet.
func NewWallet(network domain.Network, seedHex, stakeKeyHashHex string) (*Wallet, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	keyHash, err := KeyHash(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	addr := domain.Address{Payment: domain.Credential{Hash: keyHash}}
	if stakeKeyHashHex != "" {
		stakeHash, err := hex.DecodeString(stakeKeyHashHex)
		if err != nil {
			return nil, fmt.Errorf("crypto: invalid stake key hash hex: %w", err)
		}
		addr.Stake = &domain.Credential{Hash: stakeHash}
	}

	bech, err := EncodeAddress(network, addr)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		network: network,
		priv:    priv,
		addr:    addr,
		bech32:  bech,
		keyHash: hex.EncodeToString(keyHash),
	}, nil
}

// Address returns the wallet's full address including any stake part.
func (w *Wallet) Address() domain.Address {
	return w.addr
}

// Bech32 returns the wallet's bech32 address string.
func (w *Wallet) Bech32() string {
	return w.bech32
}

// KeyHash returns the hex payment key hash.
func (w *Wallet) KeyHash() string {
	return w.keyHash
}

// Sign signs a message with the wallet's payment key.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.priv, message)
}

// KeyHash computes the blake2b-224 hash of a verification key: the
// credential form every datum and signer requirement uses.
func KeyHash(pub ed25519.PublicKey) ([]byte, error) {
	h, err := blake2b.New(credentialHashLen, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: blake2b: %w", err)
	}
	h.Write(pub)
	return h.Sum(nil), nil
}

var _ domain.Wallet = (*Wallet)(nil)
