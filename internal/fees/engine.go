// Package fees implements the royalty fee split applied on every settlement.
// The arithmetic mirrors the on-chain validator exactly; changing any
// operation here produces transactions the validator rejects.
package fees

import (
	"fmt"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Payout is one computed recipient payment.
type Payout struct {
	Address  domain.Address
	Lovelace int64
}

// rateScale is the numerator of the encoded reciprocal rate: a recipient
// with encoded fee f receives floor(gross*10/f).
const rateScale = 10

// Split walks the royalty schedule in declared order and computes each
// recipient's payout plus the seller remainder. For each recipient the
// percentage payout is floor(gross*10/fee); when that does not clear the
// MinAda threshold the recipient gets its FixedFee instead. The remainder
// starts at gross and must stay strictly positive after every deduction,
// otherwise Split aborts with domain.ErrInsufficientFunds.
//
// Recipient order is part of the protocol: it determines which recipient can
// exhaust the remainder and trigger the failure.
func Split(gross int64, schedule domain.RoyaltyInfo) ([]Payout, int64, error) {
	if gross < 0 {
		return nil, 0, fmt.Errorf("fees: negative gross %d", gross)
	}

	remainder := gross
	payouts := make([]Payout, 0, len(schedule.Recipients))

	for i, r := range schedule.Recipients {
		if r.Fee <= 0 {
			return nil, 0, fmt.Errorf("fees: recipient %d has non-positive rate %d", i, r.Fee)
		}

		feeToPay := gross * rateScale / r.Fee
		payout := feeToPay
		if feeToPay <= schedule.MinAda {
			payout = r.FixedFee
		}

		remainder -= payout
		if remainder <= 0 {
			return nil, 0, fmt.Errorf("fees: recipient %d drains the remainder: %w",
				i, domain.ErrInsufficientFunds)
		}

		payouts = append(payouts, Payout{Address: r.Address, Lovelace: payout})
	}

	return payouts, remainder, nil
}

// EncodeRate converts a percentage expressed in basis points into the
// reciprocal representation the schedule stores: fee = 10*10000/bps.
// Only rates whose reciprocal divides evenly survive the round trip; the
// split path never converts back, so settlements stay bit-exact either way.
func EncodeRate(basisPoints int64) (int64, error) {
	if basisPoints <= 0 || basisPoints > 10_000 {
		return 0, fmt.Errorf("fees: rate %d out of range (0, 10000]", basisPoints)
	}
	return rateScale * 10_000 / basisPoints, nil
}
