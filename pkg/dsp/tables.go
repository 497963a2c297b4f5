package dsp

// invSqrtTable seeds the Newton-Raphson iteration in InvSqrt. Entry i holds
// 1/sqrt(1 + i/64) in Q15, covering the normalized mantissa range [1.0, 2.0)
// in 1/64 steps; the 49 entries span [1.0, 1.75] (the argument is always
// pre-normalized into [0.5, 1.0) by InvSqrt, then folded onto this table).
var invSqrtTable = [49]Q15{
	32767, 32513, 32266, 32023, 31786, 31553, 31326, 31103,
	30885, 30672, 30464, 30259, 30059, 29863, 29671, 29483,
	29299, 29118, 28941, 28767, 28597, 28429, 28265, 28104,
	27945, 27790, 27637, 27487, 27340, 27195, 27053, 26913,
	26775, 26640, 26507, 26376, 26247, 26120, 25995, 25872,
	25751, 25632, 25515, 25399, 25285, 25173, 25063, 24954,
	24847,
}

// log2Poly holds the cubic-polynomial coefficients (in Q15, descending
// degree) used by Log2 to approximate log2(1+x) for x in [0, 1). Derived by
// least-squares fit the way the reference's table-driven log2 is built.
var log2Poly = [4]Q15{-1568, 5802, -11193, 23637}

// pow2Poly holds the cubic-polynomial coefficients (Q15) for 2^x - 1,
// x in [0, 1), used by Pow2.
var pow2Poly = [4]Q15{680, 2331, 10916, 22713}
