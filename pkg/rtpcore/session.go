package rtpcore

import (
	"log/slog"
	"sync"
)

// SessionDemux owns the SSRC -> MediaStream map for one RTP session,
// creating streams on first sight of a new SSRC (or via pre-registration
// so statistics start from zero) and invoking an optional callback when a
// previously-unknown SSRC appears.
type SessionDemux struct {
	mu      sync.RWMutex
	streams map[uint32]*MediaStream
	logger  *slog.Logger

	// NewStreamDetected is invoked synchronously, outside the internal
	// lock, the first time a packet bearing ssrc arrives without prior
	// pre-registration.
	NewStreamDetected func(ssrc uint32)
}

// NewSessionDemux constructs an empty demultiplexer. logger may be nil,
// in which case slog.Default() is used.
func NewSessionDemux(logger *slog.Logger) *SessionDemux {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionDemux{
		streams: make(map[uint32]*MediaStream),
		logger:  logger,
	}
}

// PreRegister creates a stream for ssrc ahead of any packet arrival, so its
// statistics start from zero rather than from the first observed sequence
// number.
func (d *SessionDemux) PreRegister(ssrc uint32) *MediaStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.streams[ssrc]; ok {
		return s
	}
	s := NewMediaStream(ssrc)
	d.streams[ssrc] = s
	return s
}

// StreamFor returns the MediaStream for ssrc, creating it (and invoking
// NewStreamDetected) if this is the first time ssrc has been seen.
func (d *SessionDemux) StreamFor(ssrc uint32) *MediaStream {
	d.mu.Lock()
	s, existed := d.streams[ssrc]
	if !existed {
		s = NewMediaStream(ssrc)
		d.streams[ssrc] = s
	}
	d.mu.Unlock()

	if !existed {
		d.logger.Debug("rtpcore: new SSRC detected", "ssrc", ssrc)
		if d.NewStreamDetected != nil {
			d.NewStreamDetected(ssrc)
		}
	}
	return s
}

// Lookup returns the stream for ssrc without creating it.
func (d *SessionDemux) Lookup(ssrc uint32) (*MediaStream, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.streams[ssrc]
	return s, ok
}

// Remove deletes the stream for ssrc, e.g. on session teardown.
func (d *SessionDemux) Remove(ssrc uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.streams, ssrc)
}

// Streams returns a snapshot slice of all tracked streams.
func (d *SessionDemux) Streams() []*MediaStream {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*MediaStream, 0, len(d.streams))
	for _, s := range d.streams {
		out = append(out, s)
	}
	return out
}
