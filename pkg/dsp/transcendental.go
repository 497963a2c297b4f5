package dsp

// InvSqrt computes an approximation of 1/sqrt(x) for a positive Q31 input,
// returning a Q15 result. x is normalized to [0.5, 1.0) by an even number of
// left shifts, the table lookup above seeds two Newton-Raphson iterations,
// and the result is re-scaled by the (now halved) original shift count.
//
// Rounding mode: round-half-up on the final shift-back (the reference
// truncates the intermediate Newton-Raphson products but rounds the output).
func InvSqrt(x Q31) Q15 {
	if x <= 0 {
		return 0
	}
	v := uint32(x)
	shift := 0
	for v < (1 << 30) {
		v <<= 1
		shift++
	}
	// v is now in [0.5, 1.0) scaled to 32 bits; fold the top 6 fractional
	// bits after the implicit leading 1 into a table index in [0,48].
	idx := int((v >> 24) & 0x3F)
	if idx > 48 {
		idx = 48
	}
	y := invSqrtTable[idx]

	normQ15 := Q15(v >> 16)
	for i := 0; i < 2; i++ {
		ySq := y.Mul(y)
		xy2 := normQ15.Mul(ySq)
		threeHalves := Q15(24576) // 1.5 in Q15
		term := threeHalves.Sub(xy2)
		y = y.MulRound(term)
	}

	// Each halving of the shift count multiplies the result by sqrt(2);
	// shift is even iff x needed an integer number of octave normalizations,
	// so walk shift/2 multiplications by sqrt(2) (Q15 23170).
	for i := 0; i < shift/2; i++ {
		y = y.MulRound(Q15(23170))
	}
	return y
}

// Log2 computes an approximation of log2(x) for a positive Q31 input,
// returning the integer exponent and a Q15 fractional mantissa such that
// x ≈ 2^exp * (1 + frac). x is normalized into [0.5, 1.0) and the cubic
// polynomial in log2Poly approximates log2(1+t) over that range, rounded
// half-up on the final polynomial evaluation.
func Log2(x Q31) (exp int16, frac Q15) {
	if x <= 0 {
		return 0, 0
	}
	v := uint32(x)
	e := int16(31)
	for v < (1 << 30) {
		v <<= 1
		e--
	}
	t := Q15((v >> 16) & 0x7FFF)
	frac = evalCubic(log2Poly, t)
	return e, frac
}

// Pow2 computes 2^(exp + frac) as a Q31 value, the inverse of Log2: the
// fractional part is expanded via the cubic polynomial in pow2Poly to
// approximate 2^frac - 1, added back to 1.0, then shifted by exp.
func Pow2(exp int16, frac Q15) Q31 {
	poly := evalCubic(pow2Poly, frac)
	base := Q31(1<<30).Add(Q31(int32(poly) << 15)) // 0.5 + poly/2 in Q31-ish scale
	shift := exp - 30
	if shift >= 0 {
		return clampToQ31(int64(base) << uint(shift))
	}
	return clampToQ31(int64(PShiftRight(int32(base), -int(shift))))
}

// evalCubic evaluates a cubic with Q15 coefficients (Horner's method) at a
// Q15 point in [0,1), returning a Q15 result.
func evalCubic(c [4]Q15, t Q15) Q15 {
	acc := c[0]
	for i := 1; i < len(c); i++ {
		acc = acc.MulRound(t).Add(c[i])
	}
	return acc
}
