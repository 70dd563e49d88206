package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	policyA = strings.Repeat("aa", 28)
	policyB = strings.Repeat("bb", 28)
)

func TestValueAddAndRemove(t *testing.T) {
	unit := Unit(policyA, "6e6674")

	v := NewValue(2_000_000)
	v = v.Add(unit, 1)

	require.Equal(t, int64(2_000_000), v.Lovelace())
	require.Equal(t, int64(1), v[unit])

	v = v.Add(unit, -1)
	_, ok := v[unit]
	require.False(t, ok, "zero quantity entries must be dropped")
}

func TestValueAddOnNil(t *testing.T) {
	var v Value
	v = v.Add(LovelaceUnit, 5)
	require.Equal(t, int64(5), v.Lovelace())
}

func TestValueCloneIsIndependent(t *testing.T) {
	v := NewValue(10)
	c := v.Clone()
	c = c.Add(LovelaceUnit, 5)

	require.Equal(t, int64(10), v.Lovelace())
	require.Equal(t, int64(15), c.Lovelace())
}

func TestValueEqual(t *testing.T) {
	unit := Unit(policyA, "01")

	a := NewValue(100).Add(unit, 2)
	b := NewValue(100).Add(unit, 2)
	c := NewValue(100).Add(unit, 3)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(NewValue(100)))
}

func TestValueUnitsLovelaceFirst(t *testing.T) {
	v := NewValue(1).
		Add(Unit(policyB, "01"), 1).
		Add(Unit(policyA, "02"), 1)

	require.Equal(t, []string{LovelaceUnit, Unit(policyA, "02"), Unit(policyB, "01")}, v.Units())
}

func TestValuePolicyAssets(t *testing.T) {
	v := NewValue(1).
		Add(Unit(policyA, "01"), 1).
		Add(Unit(policyA, "02"), 1).
		Add(Unit(policyB, "03"), 1)

	assets := v.PolicyAssets(policyA)
	require.Equal(t, []string{Unit(policyA, "01"), Unit(policyA, "02")}, assets)
	require.Empty(t, v.PolicyAssets(strings.Repeat("cc", 28)))
}

func TestSplitUnit(t *testing.T) {
	policy, name := SplitUnit(Unit(policyA, "6e6674"))
	require.Equal(t, policyA, policy)
	require.Equal(t, "6e6674", name)

	policy, name = SplitUnit(LovelaceUnit)
	require.Equal(t, "", policy)
	require.Equal(t, "", name)
}

func TestAssetNameUTF8(t *testing.T) {
	// "6e667431" is "nft1".
	require.Equal(t, "nft1", AssetNameUTF8(Unit(policyA, "6e667431")))
}
