package fees

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/domain"
)

func addr(b byte) domain.Address {
	hash := make([]byte, 28)
	for i := range hash {
		hash[i] = b
	}
	return domain.Address{Payment: domain.Credential{Hash: hash}}
}

func TestSplitPercentagePayout(t *testing.T) {
	// 2% encoded as reciprocal: 10*10000/200 = 500.
	rate, err := EncodeRate(200)
	require.NoError(t, err)
	require.Equal(t, int64(500), rate)

	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: addr(1), Fee: rate, FixedFee: 1_000_000},
		},
		MinAda: 1_000_000,
	}

	payouts, remainder, err := Split(10_000_000, schedule)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	// 10_000_000 * 10 / 500 = 200_000 <= MinAda, so the fixed fee applies.
	require.Equal(t, int64(1_000_000), payouts[0].Lovelace)
	require.Equal(t, int64(9_000_000), remainder)
}

func TestSplitAboveThresholdUsesPercentage(t *testing.T) {
	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: addr(1), Fee: 500, FixedFee: 1_000_000},
		},
		MinAda: 1_000_000,
	}

	payouts, remainder, err := Split(100_000_000, schedule)
	require.NoError(t, err)
	// 100_000_000 * 10 / 500 = 2_000_000 > MinAda.
	require.Equal(t, int64(2_000_000), payouts[0].Lovelace)
	require.Equal(t, int64(98_000_000), remainder)
}

func TestSplitExactThresholdUsesFixedFee(t *testing.T) {
	// feeToPay == MinAda must still fall back to the fixed fee.
	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: addr(1), Fee: 10, FixedFee: 777},
		},
		MinAda: 5_000_000,
	}

	payouts, _, err := Split(5_000_000, schedule)
	require.NoError(t, err)
	require.Equal(t, int64(777), payouts[0].Lovelace)
}

func TestSplitConservation(t *testing.T) {
	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: addr(1), Fee: 500, FixedFee: 1_000_000},
			{Address: addr(2), Fee: 1000, FixedFee: 500_000},
			{Address: addr(3), Fee: 2000, FixedFee: 250_000},
		},
		MinAda: 1_000_000,
	}

	gross := int64(500_000_000)
	payouts, remainder, err := Split(gross, schedule)
	require.NoError(t, err)

	total := remainder
	for _, p := range payouts {
		total += p.Lovelace
	}
	require.Equal(t, gross, total, "payouts plus remainder must equal gross")
}

func TestSplitOrderDecidesExhaustion(t *testing.T) {
	big := domain.RoyaltyRecipient{Address: addr(1), Fee: 11, FixedFee: 0} // ~90%
	alsoBig := domain.RoyaltyRecipient{Address: addr(2), Fee: 50, FixedFee: 0}

	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{big, big, alsoBig},
		MinAda:     0,
	}

	_, _, err := Split(100_000_000, schedule)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestSplitZeroGross(t *testing.T) {
	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: addr(1), Fee: 500, FixedFee: 10},
		},
		MinAda: 100,
	}

	// Gross 0 pays the fixed fee, which exceeds the remainder.
	_, _, err := Split(0, schedule)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestSplitNegativeGross(t *testing.T) {
	_, _, err := Split(-1, domain.RoyaltyInfo{})
	require.Error(t, err)
}

func TestSplitRejectsNonPositiveRate(t *testing.T) {
	schedule := domain.RoyaltyInfo{
		Recipients: []domain.RoyaltyRecipient{
			{Address: addr(1), Fee: 0, FixedFee: 10},
		},
	}
	_, _, err := Split(1_000_000, schedule)
	require.Error(t, err)
}

func TestSplitEmptySchedule(t *testing.T) {
	payouts, remainder, err := Split(42, domain.RoyaltyInfo{})
	require.NoError(t, err)
	require.Empty(t, payouts)
	require.Equal(t, int64(42), remainder)
}

func TestEncodeRateBounds(t *testing.T) {
	_, err := EncodeRate(0)
	require.Error(t, err)

	_, err = EncodeRate(10_001)
	require.Error(t, err)

	rate, err := EncodeRate(10_000)
	require.NoError(t, err)
	require.Equal(t, int64(10), rate)

	rate, err = EncodeRate(100) // 1%
	require.NoError(t, err)
	require.Equal(t, int64(1000), rate)
}
