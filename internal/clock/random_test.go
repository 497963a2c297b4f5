package clock

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCryptoRandomBranchHasMagicCookie(t *testing.T) {
	r := CryptoRandom{}
	require.True(t, strings.HasPrefix(r.Branch(), "z9hG4bK"))
}

func TestCryptoRandomCallIDHasNoHyphens(t *testing.T) {
	r := CryptoRandom{}
	require.False(t, strings.Contains(r.CallID(), "-"))
}

func TestCryptoRandomProducesDistinctValues(t *testing.T) {
	r := CryptoRandom{}
	require.NotEqual(t, r.Branch(), r.Branch())
	require.NotEqual(t, r.Tag(), r.Tag())
}

func TestSequenceIsDeterministicAndDistinct(t *testing.T) {
	s := &Sequence{}
	b1 := s.Branch()
	b2 := s.Branch()
	require.NotEqual(t, b1, b2)
	require.True(t, strings.HasPrefix(b1, "z9hG4bK"))

	s2 := &Sequence{}
	require.Equal(t, b1, s2.Branch())
}

func TestSequenceSSRCNeverZero(t *testing.T) {
	s := &Sequence{}
	for i := 0; i < 5; i++ {
		require.NotZero(t, s.SSRC())
	}
}
