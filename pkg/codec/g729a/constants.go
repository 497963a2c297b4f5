// Package g729a implements the ITU-T G.729 Annex A encoder core: open-loop
// and closed-loop pitch analysis and algebraic (fixed) codebook search over
// 10 ms subframes, grouped into 20 ms frames. Decoding/synthesis and the
// bitstream-level LPC/LSP quantization are out of scope; this package
// produces the structured per-subframe analysis results (pitch lag, pulse
// positions) the spec's encode∘decode round-trip law is defined over.
package g729a

const (
	// SubframeSize is the number of samples in a 10 ms subframe at 8 kHz.
	SubframeSize = 80
	// FrameSize is two subframes: 20 ms at 8 kHz.
	FrameSize = 2 * SubframeSize

	PitchMinSection1 = 20
	PitchMaxSection1 = 39
	PitchMinSection2 = 40
	PitchMaxSection2 = 79
	PitchMinSection3 = 80
	PitchMaxSection3 = 143

	// ClosedLoopSearchRadius is the number of integer lags searched on
	// either side of the open-loop estimate during refinement.
	ClosedLoopSearchRadius = 3

	// overflowGuardHigh/Low bound the energy-sum prescale decision: scale
	// down 3 bits above the high guard, up 3 bits below the low guard.
	overflowGuardHigh = int64(1) << 31
	overflowGuardLow  = int64(1) << 20
)

// trackPositions lists, per track, the candidate pulse positions within a
// 40-sample subframe excitation vector, interleaved across the tracks with
// a spacing of 5. Tracks 0-2 have 8 positions spaced by 5;
// track 3 interleaves spacing-5 offsets 3 and 4 for 10 positions.
var trackPositions = [4][]int{
	{0, 5, 10, 15, 20, 25, 30, 35},
	{1, 6, 11, 16, 21, 26, 31, 36},
	{2, 7, 12, 17, 22, 27, 32, 37},
	{3, 8, 13, 18, 23, 28, 33, 38, 4, 39},
}
