package g729a

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEncoderRejectsBadConfig(t *testing.T) {
	_, err := NewEncoder(Config{SampleRate: 16000, Channels: 1})
	require.Error(t, err)
}

func TestEncodeFrameProducesTwoSubframes(t *testing.T) {
	enc, err := NewEncoder(Config{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)

	frame := make([]int16, FrameSize)
	for i := range frame {
		frame[i] = int16((i % 50) * 20)
	}
	targets := [2][]int16{frame[:SubframeSize], frame[SubframeSize:]}

	result, err := enc.EncodeFrame(frame, targets, nil)
	require.NoError(t, err)

	for _, sf := range result.Subframes {
		require.GreaterOrEqual(t, sf.Pitch.IntegerLag, PitchMinSection1)
		require.Less(t, sf.CodebookIdx, uint32(1<<17))
		require.Len(t, sf.Excitation, SubframeSize)
	}
}

func TestEncodeFrameRejectsWrongLength(t *testing.T) {
	enc, err := NewEncoder(Config{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	_, err = enc.EncodeFrame(make([]int16, 10), [2][]int16{{}, {}}, nil)
	require.Error(t, err)
}

func TestResetClearsHistory(t *testing.T) {
	enc, err := NewEncoder(Config{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	enc.history[0] = 123
	require.NoError(t, enc.Reset())
	require.Equal(t, int16(0), enc.history[0])
	require.Equal(t, PitchMinSection1, enc.prevIntegerLag)
}
