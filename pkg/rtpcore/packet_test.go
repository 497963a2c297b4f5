package rtpcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketMarshalUnmarshalRoundTrip(t *testing.T) {
	p := NewPacket(0xAABBCCDD, 1000, 160000, 8, []byte{1, 2, 3, 4})
	p.Header.Marker = true

	buf, err := p.Marshal()
	require.NoError(t, err)

	var got Packet
	require.NoError(t, got.Unmarshal(buf))

	require.Equal(t, p.Header.SSRC, got.Header.SSRC)
	require.Equal(t, p.Header.SequenceNumber, got.Header.SequenceNumber)
	require.Equal(t, p.Header.Timestamp, got.Header.Timestamp)
	require.Equal(t, p.Header.PayloadType, got.Header.PayloadType)
	require.Equal(t, p.Header.Marker, got.Header.Marker)
	require.Equal(t, p.Payload, got.Payload)
}

func TestWithCSRCCapsAtFifteen(t *testing.T) {
	p := NewPacket(1, 1, 1, 0, nil)
	csrc := make([]uint32, 20)
	for i := range csrc {
		csrc[i] = uint32(i)
	}
	out := p.WithCSRC(csrc)
	require.Len(t, out.Header.CSRC, 15)
}
