package rtpcore

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// maxContributingSources is RTP's 4-bit CC field limit.
const maxContributingSources = 15

// ContributorInfo is the metadata a CsrcMixer tracks per contributing
// source: its CNAME and an optional display name, for RTCP SDES and
// conference-roster UIs respectively.
type ContributorInfo struct {
	SSRC        uint32
	CSRC        uint32
	CNAME       string
	DisplayName string
}

// CsrcMixer maintains the original_ssrc -> csrc_value mapping used to
// stamp outgoing mixed packets with up to 15 contributing sources.
type CsrcMixer struct {
	mu           sync.RWMutex
	bySSRC       map[uint32]*ContributorInfo
}

// NewCsrcMixer returns an empty mixer.
func NewCsrcMixer() *CsrcMixer {
	return &CsrcMixer{bySSRC: make(map[uint32]*ContributorInfo)}
}

// Add registers ssrc as a contributor, assigning it csrc (the value placed
// in outgoing packets' CSRC list). Returns an error if the mixer already
// has 15 contributors and ssrc is not already one of them.
func (m *CsrcMixer) Add(ssrc, csrc uint32, cname, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySSRC[ssrc]; !exists && len(m.bySSRC) >= maxContributingSources {
		return errors.New("rtpcore: csrc mixer at capacity (15 contributors)")
	}
	m.bySSRC[ssrc] = &ContributorInfo{SSRC: ssrc, CSRC: csrc, CNAME: cname, DisplayName: displayName}
	return nil
}

// Remove drops ssrc from the contributor set.
func (m *CsrcMixer) Remove(ssrc uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bySSRC, ssrc)
}

// Lookup returns the contributor info for ssrc, if registered.
func (m *CsrcMixer) Lookup(ssrc uint32) (ContributorInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.bySSRC[ssrc]
	if !ok {
		return ContributorInfo{}, false
	}
	return *info, true
}

// CSRCList returns the current contributing-source values for stamping
// outgoing mixed packets, in ascending order so the list is stable across
// calls.
func (m *CsrcMixer) CSRCList() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint32, 0, len(m.bySSRC))
	for _, info := range m.bySSRC {
		out = append(out, info.CSRC)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered contributors.
func (m *CsrcMixer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySSRC)
}
