// Package match decides whether a candidate asset satisfies a bid's demand
// and produces the exact output bundle the bidder is owed.
package match

import (
	"fmt"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

// cip68RefLabel is the hex-encoded CIP-68 label (100) prefixed to the asset
// name of a reference token.
const cip68RefLabel = "000643b0"

// Result is the outcome of a successful resolution.
type Result struct {
	// RequestedAssets is the exact bundle the bid owner must receive.
	RequestedAssets domain.Value
	// ReferenceUnit, when non-empty, names the CIP-68 reference token whose
	// metadata must be read (not consumed) in the settlement transaction as
	// the constraint proof.
	ReferenceUnit string
}

// ReferenceUnit derives the CIP-68 reference-token unit for an asset.
func ReferenceUnit(policyID, assetNameHex string) string {
	return domain.Unit(policyID, cip68RefLabel+assetNameHex)
}

// Resolve checks a candidate asset against a bid's demand.
//
// For a specific-value bid the bundle is returned verbatim and no proof is
// required; candidate arguments are ignored.
//
// For an open bid the candidate asset name selects exactly one unit of the
// bid's policy. When the bid carries type labels or trait filters, meta must
// hold the candidate's reference metadata (pass nil when none was found) and
// every filter must pass; otherwise Resolve fails with
// domain.ErrReferenceNotFound or domain.ErrConstraintUnsatisfied. With both
// filter sets empty no proof is demanded and any asset of the policy
// qualifies.
func Resolve(option domain.BidOption, assetNameHex string, meta *plutus.RefMetadata) (Result, error) {
	switch option.Kind {
	case domain.BidSpecificValue:
		return Result{RequestedAssets: option.Bundle.Clone()}, nil

	case domain.BidOpenConstrained:
		requested := domain.Value{}
		requested.Add(domain.Unit(option.PolicyID, assetNameHex), 1)

		if len(option.Types) == 0 && len(option.Traits) == 0 {
			return Result{RequestedAssets: requested}, nil
		}

		if meta == nil {
			return Result{}, fmt.Errorf("match: %s: %w",
				domain.Unit(option.PolicyID, assetNameHex), domain.ErrReferenceNotFound)
		}
		if err := checkConstraints(option, *meta); err != nil {
			return Result{}, err
		}
		return Result{
			RequestedAssets: requested,
			ReferenceUnit:   ReferenceUnit(option.PolicyID, assetNameHex),
		}, nil

	default:
		return Result{}, fmt.Errorf("match: unknown bid option kind %d", option.Kind)
	}
}

// NeedsProof reports whether resolving against this option requires a
// reference-metadata lookup.
func NeedsProof(option domain.BidOption) bool {
	return option.Kind == domain.BidOpenConstrained &&
		(len(option.Types) > 0 || len(option.Traits) > 0)
}

func checkConstraints(option domain.BidOption, meta plutus.RefMetadata) error {
	if len(option.Types) > 0 {
		found := false
		for _, t := range option.Types {
			if t == meta.Type {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("match: type %q not in allowed set: %w",
				meta.Type, domain.ErrConstraintUnsatisfied)
		}
	}

	for _, f := range option.Traits {
		has := hasTrait(meta.Traits, f.Trait)
		if f.Negate && has {
			return fmt.Errorf("match: trait %q present but excluded: %w",
				f.Trait, domain.ErrConstraintUnsatisfied)
		}
		if !f.Negate && !has {
			return fmt.Errorf("match: trait %q required but absent: %w",
				f.Trait, domain.ErrConstraintUnsatisfied)
		}
	}
	return nil
}

func hasTrait(traits []string, trait string) bool {
	for _, t := range traits {
		if t == trait {
			return true
		}
	}
	return false
}
