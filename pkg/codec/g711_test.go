package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config { return Config{SampleRate: 8000, Channels: 1} }

func TestNewG711CodecRejectsBadConfig(t *testing.T) {
	_, err := NewG711Codec(MuLaw, Config{SampleRate: 16000, Channels: 1})
	require.Error(t, err)

	_, err = NewG711Codec(MuLaw, Config{SampleRate: 8000, Channels: 2})
	require.Error(t, err)
}

func TestG711MuLawRoundTripTolerance(t *testing.T) {
	c, err := NewG711Codec(MuLaw, validConfig())
	require.NoError(t, err)

	samples := []int16{0, 100, -100, 5000, -5000, 20000, -20000, 32000, -32000}
	encoded := c.Encode(samples)
	decoded := c.Decode(encoded)
	require.Len(t, decoded, len(samples))
	for i, s := range samples {
		diff := int(decoded[i]) - int(s)
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqualf(t, diff, 1000, "sample %d: %d -> %d", i, s, decoded[i])
	}
}

func TestG711ALawRoundTripTolerance(t *testing.T) {
	c, err := NewG711Codec(ALaw, validConfig())
	require.NoError(t, err)

	samples := []int16{0, 100, -100, 5000, -5000, 20000, -20000, 32000, -32000}
	encoded := c.Encode(samples)
	decoded := c.Decode(encoded)
	for i, s := range samples {
		diff := int(decoded[i]) - int(s)
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqualf(t, diff, 1000, "sample %d: %d -> %d", i, s, decoded[i])
	}
}

func TestG711EncodeMinInt16DoesNotPanic(t *testing.T) {
	c, err := NewG711Codec(MuLaw, validConfig())
	require.NoError(t, err)
	require.NotPanics(t, func() {
		c.Encode([]int16{-32768})
	})

	ca, err := NewG711Codec(ALaw, validConfig())
	require.NoError(t, err)
	require.NotPanics(t, func() {
		ca.Encode([]int16{-32768})
	})
}

func TestG711ResetIsNoOp(t *testing.T) {
	c, err := NewG711Codec(MuLaw, validConfig())
	require.NoError(t, err)
	require.NoError(t, c.Reset())
}
