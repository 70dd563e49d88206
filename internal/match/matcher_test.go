package match

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

var testPolicy = strings.Repeat("ab", 28)

func TestResolveSpecificValue(t *testing.T) {
	bundle := domain.NewValue(0).
		Add(domain.Unit(testPolicy, "01"), 1).
		Add(domain.Unit(testPolicy, "02"), 2)

	option := domain.BidOption{Kind: domain.BidSpecificValue, Bundle: bundle}

	res, err := Resolve(option, "ffff", nil)
	require.NoError(t, err)
	require.True(t, res.RequestedAssets.Equal(bundle))
	require.Empty(t, res.ReferenceUnit, "specific bids never demand a proof")

	// The result must be a copy; mutating it must not touch the bid.
	res.RequestedAssets.Add(domain.Unit(testPolicy, "01"), 1)
	require.Equal(t, int64(1), bundle[domain.Unit(testPolicy, "01")])
}

func TestResolveOpenUnconstrained(t *testing.T) {
	option := domain.BidOption{Kind: domain.BidOpenConstrained, PolicyID: testPolicy}

	res, err := Resolve(option, "6e667431", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.RequestedAssets[domain.Unit(testPolicy, "6e667431")])
	require.Empty(t, res.ReferenceUnit)
}

func TestResolveOpenWithTypeConstraint(t *testing.T) {
	option := domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: testPolicy,
		Types:    []string{"Dragon", "Knight"},
	}
	meta := &plutus.RefMetadata{Name: "nft1", Type: "Knight"}

	res, err := Resolve(option, "6e667431", meta)
	require.NoError(t, err)
	require.Equal(t, ReferenceUnit(testPolicy, "6e667431"), res.ReferenceUnit)
}

func TestResolveOpenTypeMismatch(t *testing.T) {
	option := domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: testPolicy,
		Types:    []string{"Dragon"},
	}
	meta := &plutus.RefMetadata{Type: "Peasant"}

	_, err := Resolve(option, "6e667431", meta)
	require.ErrorIs(t, err, domain.ErrConstraintUnsatisfied)
}

func TestResolveOpenTraitFilters(t *testing.T) {
	option := domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: testPolicy,
		Traits: []domain.TraitFilter{
			{Trait: "sword"},
			{Negate: true, Trait: "cursed"},
		},
	}

	ok := &plutus.RefMetadata{Traits: []string{"sword", "shield"}}
	_, err := Resolve(option, "01", ok)
	require.NoError(t, err)

	missing := &plutus.RefMetadata{Traits: []string{"shield"}}
	_, err = Resolve(option, "01", missing)
	require.ErrorIs(t, err, domain.ErrConstraintUnsatisfied)

	excluded := &plutus.RefMetadata{Traits: []string{"sword", "cursed"}}
	_, err = Resolve(option, "01", excluded)
	require.ErrorIs(t, err, domain.ErrConstraintUnsatisfied)
}

func TestResolveConstrainedWithoutMetadata(t *testing.T) {
	option := domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: testPolicy,
		Types:    []string{"Dragon"},
	}

	_, err := Resolve(option, "01", nil)
	require.ErrorIs(t, err, domain.ErrReferenceNotFound)
}

func TestNeedsProof(t *testing.T) {
	require.False(t, NeedsProof(domain.BidOption{Kind: domain.BidSpecificValue}))
	require.False(t, NeedsProof(domain.BidOption{Kind: domain.BidOpenConstrained}))
	require.True(t, NeedsProof(domain.BidOption{
		Kind:  domain.BidOpenConstrained,
		Types: []string{"Dragon"},
	}))
	require.True(t, NeedsProof(domain.BidOption{
		Kind:   domain.BidOpenConstrained,
		Traits: []domain.TraitFilter{{Trait: "sword"}},
	}))
}

func TestReferenceUnitLabel(t *testing.T) {
	unit := ReferenceUnit(testPolicy, "6e667431")
	require.Equal(t, domain.Unit(testPolicy, "000643b06e667431"), unit)
}
