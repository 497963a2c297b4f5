package rtpcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionDemuxFiresNewStreamCallback(t *testing.T) {
	d := NewSessionDemux(nil)
	var detected []uint32
	d.NewStreamDetected = func(ssrc uint32) { detected = append(detected, ssrc) }

	d.StreamFor(0xAA)
	d.StreamFor(0xAA) // second sight, no callback
	d.StreamFor(0xBB)

	require.Equal(t, []uint32{0xAA, 0xBB}, detected)
}

func TestSessionDemuxPreRegisterSuppressesCallback(t *testing.T) {
	d := NewSessionDemux(nil)
	called := false
	d.NewStreamDetected = func(uint32) { called = true }

	d.PreRegister(0xCC)
	s := d.StreamFor(0xCC)
	require.False(t, called)
	require.NotNil(t, s)
}

func TestSessionDemuxThreeInterleavedStreams(t *testing.T) {
	d := NewSessionDemux(nil)
	ssrcs := []uint32{0xAA, 0xBB, 0xCC}
	counts := map[uint32]int{0xAA: 5, 0xBB: 3, 0xCC: 7}

	total := 0
	for i := 0; i < 7; i++ {
		for _, ssrc := range ssrcs {
			if i >= counts[ssrc] {
				continue
			}
			s := d.StreamFor(ssrc)
			s.UpdateSequence(uint16(i))
			total++
		}
	}

	sum := 0
	for _, ssrc := range ssrcs {
		s, ok := d.Lookup(ssrc)
		require.True(t, ok)
		stats := s.Snapshot()
		require.Equal(t, uint64(counts[ssrc]), stats.PacketsReceived)
		sum += int(stats.PacketsReceived)
	}
	require.Equal(t, total, sum)
}
