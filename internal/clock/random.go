package clock

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Random generates the identifiers the transaction, dialog, and session
// layers need: SIP branch parameters, tags, Call-IDs, and SSRCs. Abstracted
// so tests can supply deterministic sequences instead of raw crypto/rand
// output.
type Random interface {
	Branch() string
	Tag() string
	CallID() string
	SSRC() uint32
}

// CryptoRandom is the production Random, branches prefixed per RFC 3261
// §8.1.1.7 (z9hG4bK), Call-IDs built from google/uuid and tags from
// crypto/rand hex, for collision resistance across restarts.
type CryptoRandom struct{}

// Branch returns a magic-cookie-prefixed branch parameter.
func (CryptoRandom) Branch() string {
	return "z9hG4bK" + randomHex(8)
}

// Tag returns a From/To tag.
func (CryptoRandom) Tag() string {
	return randomHex(8)
}

// CallID returns a globally unique Call-ID, hyphens stripped since the
// Call-ID header just needs a unique token, not a formatted UUID.
func (CryptoRandom) CallID() string {
	id := uuid.New().String()
	out := make([]byte, 0, len(id))
	for _, r := range id {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// SSRC returns a random 32-bit synchronization source identifier.
func (CryptoRandom) SSRC() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Sequence is a deterministic Random for tests: each method returns
// successive, predictable values rather than cryptographic randomness.
type Sequence struct {
	n uint64
}

// Branch returns a deterministic, still-prefixed branch value.
func (s *Sequence) Branch() string {
	s.n++
	return "z9hG4bKtest" + uint64ToHex(s.n)
}

// Tag returns a deterministic tag value.
func (s *Sequence) Tag() string {
	s.n++
	return "tag" + uint64ToHex(s.n)
}

// CallID returns a deterministic Call-ID value.
func (s *Sequence) CallID() string {
	s.n++
	return "callid" + uint64ToHex(s.n)
}

// SSRC returns a deterministic, still nonzero SSRC value.
func (s *Sequence) SSRC() uint32 {
	s.n++
	return uint32(s.n)
}

func uint64ToHex(n uint64) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n%16]
		n /= 16
	}
	return string(buf[i:])
}
