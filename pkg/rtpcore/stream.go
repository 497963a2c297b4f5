package rtpcore

import (
	"sync"
	"time"
)

// MediaStream tracks per-SSRC receive state: rollover-corrected sequence
// tracking, loss/jitter statistics, and an attached jitter buffer.
type MediaStream struct {
	SSRC uint32

	mu              sync.Mutex
	initialized     bool
	highestSeq      uint16
	cycleCount      uint32 // ROC
	packetsReceived uint64
	packetsLost     int64
	baseSeq         uint32

	jitter       float64 // RFC 3550 §A.8 estimate, in timestamp units
	lastArrival  time.Time
	lastRTPTime  uint32
	haveLastRTP  bool
	transitPrior int64

	JitterBuffer *JitterBuffer
}

// NewMediaStream creates stream state for ssrc with no jitter buffer
// attached; callers needing buffering call AttachJitterBuffer.
func NewMediaStream(ssrc uint32) *MediaStream {
	return &MediaStream{SSRC: ssrc}
}

// AttachJitterBuffer installs a jitter buffer for ordered, delayed release.
func (m *MediaStream) AttachJitterBuffer(jb *JitterBuffer) {
	m.JitterBuffer = jb
}

// extendedSeqEstimate implements the RFC 3711 §3.3.1 candidate-ROC guess:
// given the current ROC and highest extended sequence number observed
// (s_l, the low 16 bits of which is highestSeq), pick whichever of
// {ROC-1, ROC, ROC+1} places the new 16-bit seq closest to the running
// extended highest sequence number.
func extendedSeqEstimate(roc uint32, highestSeq, seq uint16) uint32 {
	v := roc
	if highestSeq < 32768 {
		if int(seq)-int(highestSeq) > 32768 {
			v = roc - 1
		}
	} else {
		if int(highestSeq)-32768 > int(seq) {
			v = roc + 1
		}
	}
	return v
}

// UpdateSequence atomically folds an incoming 16-bit sequence number into
// the stream's rollover-corrected 48-bit extended sequence number,
// updating (ROC, highestSeq) per the spec's invariant that this happens
// as a single atomic step. Returns the extended sequence number of the
// packet just received and whether it advanced the stream's high-water
// mark (vs. being an out-of-order/duplicate arrival).
func (m *MediaStream) UpdateSequence(seq uint16) (extended uint64, isNew bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		m.initialized = true
		m.highestSeq = seq
		m.baseSeq = uint32(seq)
		m.packetsReceived++
		return uint64(seq), true
	}

	roc := extendedSeqEstimate(m.cycleCount, m.highestSeq, seq)
	extended = uint64(roc)<<16 | uint64(seq)
	currentHighest := uint64(m.cycleCount)<<16 | uint64(m.highestSeq)

	m.packetsReceived++
	if extended > currentHighest {
		m.cycleCount = roc
		m.highestSeq = seq
		isNew = true
	}
	return extended, isNew
}

// ExtendedHighestSeq returns the current (ROC, highestSeq) folded into a
// single monotonic counter.
func (m *MediaStream) ExtendedHighestSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(m.cycleCount)<<16 | uint64(m.highestSeq)
}

// UpdateJitter applies the RFC 3550 §A.8 EWMA estimator given the RTP
// timestamp of the arriving packet, the wall-clock arrival time, and the
// stream's clock rate (Hz), returning the updated estimate in timestamp
// units.
func (m *MediaStream) UpdateJitter(rtpTimestamp uint32, arrival time.Time, clockRateHz uint32) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.haveLastRTP {
		m.haveLastRTP = true
		m.lastRTPTime = rtpTimestamp
		m.lastArrival = arrival
		return m.jitter
	}

	arrivalUnits := arrival.Sub(m.lastArrival).Seconds() * float64(clockRateHz)
	rtpUnits := float64(int64(rtpTimestamp) - int64(m.lastRTPTime))
	d := arrivalUnits - rtpUnits
	if d < 0 {
		d = -d
	}
	m.jitter += (d - m.jitter) / 16.0

	m.lastRTPTime = rtpTimestamp
	m.lastArrival = arrival
	return m.jitter
}

// Stats is a point-in-time snapshot of a stream's receive statistics.
type Stats struct {
	SSRC            uint32
	PacketsReceived uint64
	PacketsLost     int64
	Jitter          float64
	ExtendedHighest uint64
	FractionLost    float64
	CumulativeLost  int64
}

// Snapshot returns the current statistics for this stream. PacketsLost is
// derived from the gap between the extended highest sequence number and
// the number of packets actually received since the base sequence.
func (m *MediaStream) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	extended := uint64(m.cycleCount)<<16 | uint64(m.highestSeq)
	expected := extended - uint64(m.baseSeq) + 1
	lost := int64(expected) - int64(m.packetsReceived)

	var fraction float64
	if expected > 0 {
		fraction = float64(lost) / float64(expected)
	}

	return Stats{
		SSRC:            m.SSRC,
		PacketsReceived: m.packetsReceived,
		PacketsLost:     lost,
		Jitter:          m.jitter,
		ExtendedHighest: extended,
		FractionLost:    fraction,
		CumulativeLost:  lost,
	}
}
