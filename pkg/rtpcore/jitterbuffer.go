package rtpcore

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// JitterBufferConfig configures capacity and target playout depth.
type JitterBufferConfig struct {
	Capacity    int           // maximum buffered packets
	TargetDepth time.Duration // accumulate this much before releasing
	Window      uint64        // extended-sequence discard window
}

// DefaultJitterBufferConfig returns the spec's default target depth (40ms,
// within the documented 20-60ms range) and a 100-packet capacity.
func DefaultJitterBufferConfig() JitterBufferConfig {
	return JitterBufferConfig{
		Capacity:    100,
		TargetDepth: 40 * time.Millisecond,
		Window:      200,
	}
}

// bufferedPacket is one entry in the jitter buffer's min-heap, ordered by
// extended sequence number.
type bufferedPacket struct {
	packet       *Packet
	extendedSeq  uint64
	arrival      time.Time
	index        int
}

type packetHeap []*bufferedPacket

func (h packetHeap) Len() int            { return len(h) }
func (h packetHeap) Less(i, j int) bool  { return h[i].extendedSeq < h[j].extendedSeq }
func (h packetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *packetHeap) Push(x interface{}) {
	item := x.(*bufferedPacket)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *packetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// JitterBuffer reorders packets by extended RTP sequence number and
// releases them once the configured target depth has accumulated.
// Hot-path methods (Insert) never block or suspend, matching the spec's
// concurrency model: callers perform release and PLC decisions explicitly
// rather than via a background goroutine, keeping the buffer usable from
// a cooperative-scheduling media-receive path.
type JitterBuffer struct {
	config JitterBufferConfig

	mu                sync.Mutex
	packets           packetHeap
	highestReleased   uint64
	haveReleased      bool
	firstArrival      time.Time
	haveFirstArrival  bool
	droppedOld        uint64
	droppedCapacity   uint64
}

// NewJitterBuffer constructs an empty buffer.
func NewJitterBuffer(config JitterBufferConfig) *JitterBuffer {
	if config.Capacity <= 0 {
		config.Capacity = 100
	}
	if config.TargetDepth <= 0 {
		config.TargetDepth = 40 * time.Millisecond
	}
	if config.Window == 0 {
		config.Window = 200
	}
	jb := &JitterBuffer{config: config}
	heap.Init(&jb.packets)
	return jb
}

// Insert adds a packet at the given extended sequence number, arriving at
// the given wall-clock time. Packets older than highestReleased-window are
// dropped per spec. Capacity overflow drops the new packet (the oldest
// undelivered packets are the ones most likely to still be useful).
func (jb *JitterBuffer) Insert(packet *Packet, extendedSeq uint64, arrival time.Time) error {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if jb.haveReleased && extendedSeq+jb.config.Window < jb.highestReleased {
		jb.droppedOld++
		return errors.New("rtpcore: packet older than jitter buffer window")
	}
	if len(jb.packets) >= jb.config.Capacity {
		jb.droppedCapacity++
		return errors.New("rtpcore: jitter buffer at capacity")
	}

	if !jb.haveFirstArrival {
		jb.haveFirstArrival = true
		jb.firstArrival = arrival
	}

	heap.Push(&jb.packets, &bufferedPacket{packet: packet, extendedSeq: extendedSeq, arrival: arrival})
	jitterBufferDepth.Inc()
	return nil
}

// ReadyToRelease reports whether enough time has accumulated since the
// first buffered arrival to begin releasing in order.
func (jb *JitterBuffer) ReadyToRelease(now time.Time) bool {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	if !jb.haveFirstArrival {
		return false
	}
	return now.Sub(jb.firstArrival) >= jb.config.TargetDepth
}

// Release pops and returns the lowest extended-sequence packet, if any is
// buffered and the target depth has been reached. ok is false on
// underrun, signaling the caller to emit silence or PLC.
func (jb *JitterBuffer) Release(now time.Time) (pkt *Packet, extendedSeq uint64, ok bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if len(jb.packets) == 0 {
		return nil, 0, false
	}
	if jb.haveFirstArrival && now.Sub(jb.firstArrival) < jb.config.TargetDepth {
		return nil, 0, false
	}

	item := heap.Pop(&jb.packets).(*bufferedPacket)
	jb.haveReleased = true
	jb.highestReleased = item.extendedSeq
	jitterBufferDepth.Dec()
	return item.packet, item.extendedSeq, true
}

// Len returns the number of currently buffered packets.
func (jb *JitterBuffer) Len() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return len(jb.packets)
}

// Dropped returns the counts of packets dropped for being too old and for
// capacity exhaustion, respectively.
func (jb *JitterBuffer) Dropped() (old, capacity uint64) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.droppedOld, jb.droppedCapacity
}
