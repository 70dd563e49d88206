package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/domain"
)

func hash28(b byte) []byte {
	h := make([]byte, 28)
	for i := range h {
		h[i] = b
	}
	return h
}

func TestAddressRoundTripEnterpriseKey(t *testing.T) {
	in := domain.Address{Payment: domain.Credential{Hash: hash28(1)}}

	s, err := EncodeAddress(domain.NetworkPreprod, in)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s, "addr_test1"))

	out, network, err := DecodeAddress(s)
	require.NoError(t, err)
	require.Equal(t, domain.NetworkPreprod, network)
	require.True(t, in.Equal(out))
}

func TestAddressRoundTripScriptWithStake(t *testing.T) {
	in := domain.Address{
		Payment: domain.Credential{Hash: hash28(2), IsScript: true},
		Stake:   &domain.Credential{Hash: hash28(3)},
	}

	s, err := EncodeAddress(domain.NetworkMainnet, in)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s, "addr1"))

	out, network, err := DecodeAddress(s)
	require.NoError(t, err)
	require.Equal(t, domain.NetworkMainnet, network)
	require.True(t, out.Payment.IsScript)
	require.NotNil(t, out.Stake)
	require.False(t, out.Stake.IsScript)
	require.True(t, in.Equal(out))
}

func TestAddressRoundTripStakeScript(t *testing.T) {
	in := domain.Address{
		Payment: domain.Credential{Hash: hash28(4)},
		Stake:   &domain.Credential{Hash: hash28(5), IsScript: true},
	}

	s, err := EncodeAddress(domain.NetworkPreview, in)
	require.NoError(t, err)

	out, _, err := DecodeAddress(s)
	require.NoError(t, err)
	require.True(t, out.Stake.IsScript)
	require.True(t, in.Equal(out))
}

func TestEncodeAddressRejectsShortHash(t *testing.T) {
	in := domain.Address{Payment: domain.Credential{Hash: []byte{1, 2, 3}}}
	_, err := EncodeAddress(domain.NetworkPreprod, in)
	require.Error(t, err)
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	_, _, err := DecodeAddress("stake_test1uqehkck0lajq8gr28t9uxnuvgcqrc6070x3k9r8048z8y5gssrtvn")
	require.Error(t, err)
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, _, err := DecodeAddress("not an address")
	require.Error(t, err)
}

func TestWalletDerivation(t *testing.T) {
	seed := strings.Repeat("01", 32)

	w, err := NewWallet(domain.NetworkPreprod, seed, "")
	require.NoError(t, err)
	require.Nil(t, w.Address().Stake)
	require.Len(t, w.Address().Payment.Hash, 28)
	require.Len(t, w.KeyHash(), 56)

	// The bech32 form must decode back to the derived credentials.
	decoded, network, err := DecodeAddress(w.Bech32())
	require.NoError(t, err)
	require.Equal(t, domain.NetworkPreprod, network)
	require.True(t, w.Address().Equal(decoded))
}

func TestWalletWithStakeKeyHash(t *testing.T) {
	seed := strings.Repeat("02", 32)
	stake := strings.Repeat("ef", 28)

	w, err := NewWallet(domain.NetworkMainnet, seed, stake)
	require.NoError(t, err)
	require.NotNil(t, w.Address().Stake)
	require.Equal(t, stake, w.Address().Stake.HexHash())
}

func TestWalletRejectsBadSeed(t *testing.T) {
	_, err := NewWallet(domain.NetworkPreprod, "zz", "")
	require.Error(t, err)

	_, err = NewWallet(domain.NetworkPreprod, "aabb", "")
	require.Error(t, err)
}

func TestWalletSignVerifiesDeterministically(t *testing.T) {
	seed := strings.Repeat("03", 32)
	w1, err := NewWallet(domain.NetworkPreprod, seed, "")
	require.NoError(t, err)
	w2, err := NewWallet(domain.NetworkPreprod, seed, "")
	require.NoError(t, err)

	msg := []byte("settlement payload")
	require.Equal(t, w1.Sign(msg), w2.Sign(msg))
	require.Equal(t, w1.KeyHash(), w2.KeyHash())
}
