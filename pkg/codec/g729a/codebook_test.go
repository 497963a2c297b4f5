package g729a

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeIndexRoundTrip(t *testing.T) {
	pulses := [4]Pulse{
		{Track: 0, Position: trackPositions[0][3], Sign: true},
		{Track: 1, Position: trackPositions[1][0], Sign: false},
		{Track: 2, Position: trackPositions[2][7], Sign: true},
		{Track: 3, Position: trackPositions[3][9], Sign: false},
	}
	idx := EncodeIndex(pulses)
	require.Less(t, idx, uint32(1<<17))

	decoded := DecodeIndex(idx)
	for i := range pulses {
		require.Equal(t, pulses[i].Track, decoded[i].Track)
		require.Equal(t, pulses[i].Position, decoded[i].Position)
		require.Equal(t, pulses[i].Sign, decoded[i].Sign)
	}
}

func TestSearchCodebookPicksDominantPosition(t *testing.T) {
	n := SubframeSize
	h := make([]int32, n)
	h[0] = 1 << 12
	phi := ComputePhi(h)

	target := make([]int32, n)
	target[10] = 1000 // strong positive contribution at position 10 (track 0)
	bc := BackwardCorrelation(target, h)

	pulses := SearchCodebook(bc, phi)
	require.Equal(t, 10, pulses[0].Position)
	require.True(t, pulses[0].Sign)
}

func TestBuildExcitationVectorUnitMagnitude(t *testing.T) {
	pulses := [4]Pulse{
		{Track: 0, Position: 0, Sign: true},
		{Track: 1, Position: 1, Sign: false},
		{Track: 2, Position: 2, Sign: true},
		{Track: 3, Position: 3, Sign: false},
	}
	vec := BuildExcitationVector(pulses, 40)
	require.Equal(t, int16(1), vec[0])
	require.Equal(t, int16(-1), vec[1])
	require.Equal(t, int16(1), vec[2])
	require.Equal(t, int16(-1), vec[3])
}
