// Package rtpcore implements the RTP transport layer: packet
// (de)serialization on top of pion/rtp, SSRC demultiplexing into
// per-stream state, jitter buffering, and CSRC conferencing-mix metadata.
package rtpcore

import (
	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

// Packet wraps a pion/rtp.Packet, the typed representation the spec's
// "RTP on the wire" boundary produces and consumes. Marshal/Unmarshal are
// exact big-endian (de)serializations per RFC 3550.
type Packet struct {
	rtp.Packet
}

// NewPacket builds a Packet with the given header fields and payload,
// ready for Marshal.
func NewPacket(ssrc uint32, seq uint16, timestamp uint32, payloadType uint8, payload []byte) *Packet {
	return &Packet{
		Packet: rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    payloadType,
				SequenceNumber: seq,
				Timestamp:      timestamp,
				SSRC:           ssrc,
			},
			Payload: payload,
		},
	}
}

// Marshal serializes the packet to wire bytes.
func (p *Packet) Marshal() ([]byte, error) {
	b, err := p.Packet.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "rtpcore: marshal packet")
	}
	return b, nil
}

// Unmarshal parses wire bytes into the packet, replacing its contents.
func (p *Packet) Unmarshal(buf []byte) error {
	if err := p.Packet.Unmarshal(buf); err != nil {
		return errors.Wrap(err, "rtpcore: unmarshal packet")
	}
	return nil
}

// WithCSRC returns a copy of the packet carrying the given contributing
// sources (capped at 15 per RFC 3550's 4-bit CC field), for mixer output.
func (p *Packet) WithCSRC(csrc []uint32) *Packet {
	if len(csrc) > 15 {
		csrc = csrc[:15]
	}
	cp := *p
	cp.Header.CSRC = append([]uint32{}, csrc...)
	return &cp
}
