package dsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvSqrtOfOneIsCloseToOne(t *testing.T) {
	// x = 0.5 in Q31
	result := InvSqrt(Q31(1 << 30))
	// 1/sqrt(0.5) = sqrt(2) ~= 1.414, but our input is already pre-normalized
	// by the caller in practice; here we just check the approximation is in
	// a sane neighborhood and doesn't panic or saturate to zero.
	require.Greater(t, int(result), 0)
}

func TestInvSqrtNonPositiveIsZero(t *testing.T) {
	require.Equal(t, Q15(0), InvSqrt(Q31(0)))
	require.Equal(t, Q15(0), InvSqrt(Q31(-1)))
}

func TestLog2Pow2ApproximateRoundTrip(t *testing.T) {
	x := Q31(1 << 28) // 0.125 in Q31
	exp, frac := Log2(x)
	y := Pow2(exp, frac)
	// The polynomial approximation should land within a few percent of x.
	diff := int64(y) - int64(x)
	if diff < 0 {
		diff = -diff
	}
	require.Less(t, diff, int64(x)/10)
}

func TestLog2OfNonPositiveIsZero(t *testing.T) {
	exp, frac := Log2(0)
	require.Equal(t, int16(0), exp)
	require.Equal(t, Q15(0), frac)
}
