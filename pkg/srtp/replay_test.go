package srtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplayWindowFirstPacketAlwaysAccepted(t *testing.T) {
	w := NewReplayWindow(64)
	require.True(t, w.Check(0))
	w.Accept(0)
	require.False(t, w.Check(0), "replaying index 0 must be rejected")
}

func TestReplayWindowInOrderAdvances(t *testing.T) {
	w := NewReplayWindow(64)
	for i := uint64(0); i < 10; i++ {
		require.True(t, w.Check(i))
		w.Accept(i)
	}
	require.False(t, w.Check(5))
	require.True(t, w.Check(10))
}

func TestReplayWindowAcceptsOutOfOrderWithinWindow(t *testing.T) {
	w := NewReplayWindow(64)
	w.Accept(100)
	require.True(t, w.Check(95))
	w.Accept(95)
	require.False(t, w.Check(95))
}

func TestReplayWindowRejectsTooOld(t *testing.T) {
	w := NewReplayWindow(64)
	w.Accept(1000)
	require.False(t, w.Check(1000-64))
	require.False(t, w.Check(0))
}

func TestReplayWindowDefaultsSizeOnInvalidInput(t *testing.T) {
	w := NewReplayWindow(0)
	require.Equal(t, uint64(64), w.size)
	w = NewReplayWindow(200)
	require.Equal(t, uint64(64), w.size)
}

func TestReplayWindowLargeForwardJumpResetsBitmap(t *testing.T) {
	w := NewReplayWindow(64)
	w.Accept(10)
	w.Accept(1_000_000)
	require.False(t, w.Check(10))
	require.True(t, w.Check(999_999))
}
