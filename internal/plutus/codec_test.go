package plutus

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tealbay/nftmarketd/internal/domain"
)

func roundTrip(t *testing.T, d Data) Data {
	t.Helper()
	b, err := Marshal(d)
	require.NoError(t, err)
	out, err := Unmarshal(b)
	require.NoError(t, err)
	return out
}

func TestRoundTripScalars(t *testing.T) {
	require.True(t, Equal(NewInt(0), roundTrip(t, NewInt(0))))
	require.True(t, Equal(NewInt(-42), roundTrip(t, NewInt(-42))))
	require.True(t, Equal(NewBytes([]byte{0xde, 0xad}), roundTrip(t, NewBytes([]byte{0xde, 0xad}))))
	require.True(t, Equal(NewBytes([]byte{}), roundTrip(t, NewBytes([]byte{}))))
}

func TestRoundTripBigInt(t *testing.T) {
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	in := Int{Value: huge}
	out := roundTrip(t, in)
	require.True(t, Equal(in, out))
}

func TestRoundTripCompactConstr(t *testing.T) {
	// Alternatives 0..6 use the compact 121..127 tag range.
	for alt := uint64(0); alt <= 6; alt++ {
		in := NewConstr(alt, NewInt(int64(alt)))
		out := roundTrip(t, in)
		require.True(t, Equal(in, out), "alt %d", alt)
	}
}

func TestRoundTripHighConstr(t *testing.T) {
	// Alternatives 7..127 shift into the 1280-based tag range.
	for _, alt := range []uint64{7, 50, 127} {
		in := NewConstr(alt)
		out := roundTrip(t, in)
		require.True(t, Equal(in, out), "alt %d", alt)
	}
}

func TestRoundTripGeneralConstr(t *testing.T) {
	// Alternatives above 127 need the general tag 102 envelope.
	in := NewConstr(1000, NewBytes([]byte("x")))
	out := roundTrip(t, in)
	require.True(t, Equal(in, out))
}

func TestRoundTripNested(t *testing.T) {
	in := NewConstr(1,
		NewList(NewInt(1), NewInt(2), NewConstr(0)),
		Map{Pairs: []Pair{
			{Key: NewBytes([]byte("a")), Value: NewInt(10)},
			{Key: NewBytes([]byte("b")), Value: NewList(NewBytes([]byte("c")))},
		}},
	)
	out := roundTrip(t, in)
	require.True(t, Equal(in, out))
}

func TestMarshalCanonicalMapOrder(t *testing.T) {
	a := Map{Pairs: []Pair{
		{Key: NewBytes([]byte("x")), Value: NewInt(1)},
		{Key: NewBytes([]byte("a")), Value: NewInt(2)},
	}}
	b := Map{Pairs: []Pair{
		{Key: NewBytes([]byte("a")), Value: NewInt(2)},
		{Key: NewBytes([]byte("x")), Value: NewInt(1)},
	}}

	ba, err := Marshal(a)
	require.NoError(t, err)
	bb, err := Marshal(b)
	require.NoError(t, err)
	require.Equal(t, ba, bb, "logical pair order must not affect the encoding")
}

func TestUnmarshalEmptyInput(t *testing.T) {
	_, err := Unmarshal(nil)
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestUnmarshalTruncated(t *testing.T) {
	b, err := Marshal(NewConstr(0, NewBytes([]byte("payload"))))
	require.NoError(t, err)

	_, err = Unmarshal(b[:len(b)-2])
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(NewConstr(0, NewInt(1)), NewConstr(0, NewInt(1))))
	require.False(t, Equal(NewConstr(0, NewInt(1)), NewConstr(1, NewInt(1))))
	require.False(t, Equal(NewInt(1), NewBytes([]byte{1})))
}
