package g729a

// OpenLoopPitch is the result of the three-section open-loop search: the
// chosen integer lag.
type OpenLoopPitch struct {
	Lag int
}

// prescale rescales signal per the spec: down 3 bits if the frame energy
// sum risks overflowing a 32-bit accumulator, up 3 bits if the sum is below
// 2^20, unchanged otherwise.
func prescale(signal []int16) []int32 {
	var sum int64
	for _, s := range signal {
		v := int64(s)
		sum += v * v
	}

	out := make([]int32, len(signal))
	switch {
	case sum >= overflowGuardHigh:
		for i, s := range signal {
			out[i] = int32(s) >> 3
		}
	case sum < overflowGuardLow:
		for i, s := range signal {
			out[i] = int32(s) << 3
		}
	default:
		for i, s := range signal {
			out[i] = int32(s)
		}
	}
	return out
}

// searchSection computes, for lags in [tMin,tMax], the (unnormalized)
// correlation of signal[0:frameLen] against signal shifted back by the lag,
// where signal carries pitMax samples of history before index 0. Returns
// the best correlation energy and its lag, preferring the smaller lag on
// ties (the caller handles cross-section ties; within a section the first
// max found, scanning low-to-high, is kept).
func searchSection(history, frame []int32, tMin, tMax int) (bestCorr int64, bestLag int) {
	bestCorr = -1 << 62
	bestLag = tMin
	for lag := tMin; lag <= tMax; lag++ {
		var corr int64
		for j := 0; j < len(frame); j++ {
			idx := len(history) + j - lag
			var past int32
			if idx >= 0 && idx < len(history) {
				past = history[idx]
			} else if idx >= len(history) {
				past = frame[idx-len(history)]
			}
			corr += int64(frame[j]) * int64(past)
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	return bestCorr, bestLag
}

// OpenLoopSearch runs the three-section open-loop pitch estimation over a
// 20 ms frame. history must contain at least PitchMaxSection3 samples of
// signal preceding frame[0]. Ties between sections favor the smaller lag,
// per spec (sections are searched low lag to high lag; a later section
// must strictly beat the running maximum to replace it).
func OpenLoopSearch(history, frame []int16) OpenLoopPitch {
	scaledHistory := prescale(history)
	scaledFrame := prescale(frame)

	max1, t1 := searchSection(scaledHistory, scaledFrame, PitchMinSection1, PitchMaxSection1)
	max2, t2 := searchSection(scaledHistory, scaledFrame, PitchMinSection2, PitchMaxSection2)
	max3, t3 := searchSection(scaledHistory, scaledFrame, PitchMinSection3, PitchMaxSection3)

	best, lag := max1, t1
	if max2 > best {
		best, lag = max2, t2
	}
	if max3 > best {
		lag = t3
	}
	return OpenLoopPitch{Lag: lag}
}

// ClosedLoopPitch is the refined pitch lag with 1/3-sample resolution,
// represented as an integer part and a fraction in {0,1,2} (thirds).
type ClosedLoopPitch struct {
	IntegerLag int
	Fraction   int // 0, 1, or 2 (thirds of a sample)
}

// ClosedLoopSearch refines an open-loop lag estimate within
// ±ClosedLoopSearchRadius integer lags, evaluating three fractional
// candidates (0, 1/3, 2/3) per integer lag against an up-sampled target.
// interpolate supplies the fractional-delay correlation for a given
// integer lag and fraction; it is injected so tests can substitute a
// synthetic correlation surface without a full interpolation filter.
func ClosedLoopSearch(openLoopLag int, minLag, maxLag int, correlate func(lag, frac int) int64) ClosedLoopPitch {
	lo := openLoopLag - ClosedLoopSearchRadius
	hi := openLoopLag + ClosedLoopSearchRadius
	if lo < minLag {
		lo = minLag
	}
	if hi > maxLag {
		hi = maxLag
	}

	best := ClosedLoopPitch{IntegerLag: lo, Fraction: 0}
	bestCorr := int64(-1) << 62
	for lag := lo; lag <= hi; lag++ {
		for frac := 0; frac < 3; frac++ {
			if lag == maxLag && frac != 0 {
				continue // no fractional search past the top integer lag
			}
			c := correlate(lag, frac)
			if c > bestCorr {
				bestCorr = c
				best = ClosedLoopPitch{IntegerLag: lag, Fraction: frac}
			}
		}
	}
	return best
}

// EncodePitchIndexFirst encodes the first subframe's closed-loop pitch as
// an 8-bit index (integer lags 85-143, no fraction) or a 9-bit index
// (lags 20-84 with a 1/3-sample fraction), per spec.
func EncodePitchIndexFirst(p ClosedLoopPitch) (index int, bits int) {
	if p.IntegerLag >= 85 {
		return p.IntegerLag - 85, 8
	}
	return (p.IntegerLag-20)*3 + p.Fraction, 9
}

// DecodePitchIndexFirst inverts EncodePitchIndexFirst given the bit width
// used to encode it.
func DecodePitchIndexFirst(index, bits int) ClosedLoopPitch {
	if bits == 8 {
		return ClosedLoopPitch{IntegerLag: index + 85, Fraction: 0}
	}
	return ClosedLoopPitch{IntegerLag: index/3 + 20, Fraction: index % 3}
}

// EncodePitchIndexRelative encodes a later subframe's pitch as a 5-bit
// index relative to the previous subframe's integer lag.
func EncodePitchIndexRelative(p ClosedLoopPitch, prevIntegerLag int) int {
	relative := (p.IntegerLag-prevIntegerLag+2)*3 + p.Fraction
	if relative < 0 {
		relative = 0
	}
	if relative > 31 {
		relative = 31
	}
	return relative
}

// DecodePitchIndexRelative inverts EncodePitchIndexRelative.
func DecodePitchIndexRelative(index, prevIntegerLag int) ClosedLoopPitch {
	integerLag := prevIntegerLag - 2 + index/3
	return ClosedLoopPitch{IntegerLag: integerLag, Fraction: index % 3}
}
