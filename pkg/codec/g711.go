package codec

import "github.com/pkg/errors"

// G711Law selects the companding law a G711Codec applies.
type G711Law int

const (
	MuLaw G711Law = iota
	ALaw
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// G711Codec implements the stateless ITU-T G.711 codec. Reset is a no-op:
// there is no state to clear.
type G711Codec struct {
	law    G711Law
	config Config
}

// NewG711Codec validates config and constructs a codec for the given law.
func NewG711Codec(law G711Law, config Config) (*G711Codec, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "g711")
	}
	return &G711Codec{law: law, config: config}, nil
}

func (c *G711Codec) Config() Config { return c.config }

// Reset is a no-op; G.711 carries no codec state between frames.
func (c *G711Codec) Reset() error { return nil }

// Encode maps linear PCM samples to one companded byte each.
func (c *G711Codec) Encode(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		if c.law == MuLaw {
			out[i] = linearToMuLaw(s)
		} else {
			out[i] = linearToALaw(s)
		}
	}
	return out
}

// Decode maps companded bytes back to linear PCM samples.
func (c *G711Codec) Decode(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		if c.law == MuLaw {
			out[i] = muLawToLinear(b)
		} else {
			out[i] = aLawToLinear(b)
		}
	}
	return out
}

// absForCompand returns |sample| as a positive int16, mapping MinInt16 onto
// MaxInt16 instead of overflowing during negation (spec edge case).
func absForCompand(sample int16) int16 {
	if sample >= 0 {
		return sample
	}
	if sample == -32768 {
		return 32767
	}
	return -sample
}

func linearToMuLaw(sample int16) byte {
	sign := byte(0xFF)
	if sample < 0 {
		sign = 0x7F
	}
	mag := int32(absForCompand(sample))
	mag += mulawBias
	if mag > mulawClip {
		mag = mulawClip
	}

	exp := 7
	for seg := int32(0x4000); seg > 0x80 && exp > 0; seg >>= 1 {
		if mag >= seg {
			break
		}
		exp--
	}
	mantissa := (mag >> uint(exp+3)) & 0x0F
	muLaw := byte(exp<<4) | byte(mantissa)
	return ^muLaw & sign
}

func muLawToLinear(b byte) int16 {
	b = ^b
	sign := b&0x80 != 0
	exp := (b >> 4) & 0x07
	mantissa := b & 0x0F

	linear := (int32(mantissa) << 3) + mulawBias
	if exp != 0 {
		linear = (linear << exp) - mulawBias
	}
	if sign {
		return int16(-linear)
	}
	return int16(linear)
}

var alawSegEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func linearToALaw(sample int16) byte {
	sign := byte(0x80)
	if sample < 0 {
		sign = 0x00
	}
	mag := int32(absForCompand(sample)) >> 3
	if mag > 0xFFF {
		mag = 0xFFF
	}

	exp := 0
	for exp < 7 && mag > alawSegEnd[exp] {
		exp++
	}

	var mantissa int32
	if exp == 0 {
		mantissa = mag >> 1
	} else {
		mantissa = (mag >> uint(exp)) & 0x0F
	}

	aLaw := byte(exp<<4) | byte(mantissa) | sign
	return aLaw ^ 0x55
}

func aLawToLinear(b byte) int16 {
	b ^= 0x55
	sign := b&0x80 != 0
	exp := (b >> 4) & 0x07
	mantissa := b & 0x0F

	var linear int32
	if exp == 0 {
		linear = (int32(mantissa) << 4) + 8
	} else {
		linear = ((int32(mantissa) << 4) + 0x108) << uint(exp-1)
	}

	if !sign {
		linear = -linear
	}
	return int16(linear)
}
