// Package dsp implements the fixed-point arithmetic primitives shared by the
// codec pipeline: Q15 and Q31 scalars with saturating arithmetic, and the
// transcendental approximations (inverse square root, log2, pow2) the G.729A
// encoder needs for gain quantization and energy normalization.
package dsp

import "math"

// Q15 is a 16-bit fixed-point scalar: 1 sign bit, 15 fractional bits.
// Range is [-1.0, 1.0) in steps of 2^-15.
type Q15 int16

// Q31 is a 32-bit fixed-point scalar: 1 sign bit, 31 fractional bits.
// Range is [-1.0, 1.0) in steps of 2^-31.
type Q31 int32

const (
	q15One = int32(1) << 15
	q31One = int64(1) << 31
)

func clampToQ15(v int32) Q15 {
	if v > math.MaxInt16 {
		return Q15(math.MaxInt16)
	}
	if v < math.MinInt16 {
		return Q15(math.MinInt16)
	}
	return Q15(v)
}

func clampToQ31(v int64) Q31 {
	if v > math.MaxInt32 {
		return Q31(math.MaxInt32)
	}
	if v < math.MinInt32 {
		return Q31(math.MinInt32)
	}
	return Q31(v)
}

// Add returns a+b saturated to the Q15 range.
func (a Q15) Add(b Q15) Q15 { return clampToQ15(int32(a) + int32(b)) }

// Sub returns a-b saturated to the Q15 range.
func (a Q15) Sub(b Q15) Q15 { return clampToQ15(int32(a) - int32(b)) }

// Mul returns a*b, truncated (not rounded) per the ITU reference's Q15 multiply.
func (a Q15) Mul(b Q15) Q15 {
	return clampToQ15(int32((int32(a) * int32(b)) >> 15))
}

// MulRound returns a*b rounded half-up, used where the reference applies
// the rounding variant of the Q15 multiply rather than truncation.
func (a Q15) MulRound(b Q15) Q15 {
	p := int32(a)*int32(b) + (1 << 14)
	return clampToQ15(p >> 15)
}

// Abs returns |a|, mapping MinInt16 to MaxInt16 rather than overflowing.
func (a Q15) Abs() Q15 {
	if a >= 0 {
		return a
	}
	if a == math.MinInt16 {
		return math.MaxInt16
	}
	return -a
}

// ToQ31 widens a Q15 value to Q31 (exact, no precision loss).
func (a Q15) ToQ31() Q31 { return Q31(int32(a) << 16) }

// Add returns a+b saturated to the Q31 range.
func (a Q31) Add(b Q31) Q31 { return clampToQ31(int64(a) + int64(b)) }

// Sub returns a-b saturated to the Q31 range.
func (a Q31) Sub(b Q31) Q31 { return clampToQ31(int64(a) - int64(b)) }

// Mul returns a*b truncated to the Q31 range.
func (a Q31) Mul(b Q31) Q31 {
	return clampToQ31((int64(a) * int64(b)) >> 31)
}

// Abs returns |a|, mapping MinInt32 to MaxInt32 rather than overflowing.
func (a Q31) Abs() Q31 {
	if a >= 0 {
		return a
	}
	if a == math.MinInt32 {
		return math.MaxInt32
	}
	return -a
}

// ToQ15 narrows a Q31 value to Q15 by arithmetic shift (truncating), the
// conventional "extract high half" conversion used throughout the reference.
func (a Q31) ToQ15() Q15 { return Q15(int32(a) >> 16) }

// PShiftRight performs a rounding right shift of x by shift bits (shift>=0),
// used by the reference wherever energies are rescaled without truncation bias.
func PShiftRight(x int32, shift int) int32 {
	if shift <= 0 {
		return x
	}
	rounding := int32(1) << uint(shift-1)
	return (x + rounding) >> uint(shift)
}

// SaturateToI16 clamps a 32-bit accumulator to the int16 range, the standard
// ITU "saturate" operation applied after L_add/L_sub accumulation chains.
func SaturateToI16(x int32) int16 {
	if x > math.MaxInt16 {
		return math.MaxInt16
	}
	if x < math.MinInt16 {
		return math.MinInt16
	}
	return int16(x)
}
