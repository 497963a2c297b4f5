package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// ErrAuthenticationFailed is returned by Unprotect when the HMAC tag does
// not verify.
var ErrAuthenticationFailed = errors.New("srtp: authentication tag mismatch")

// ErrReplay is returned by Unprotect when the packet index has already
// been seen or falls outside the replay window.
var ErrReplay = errors.New("srtp: replay detected")

// Context is a per-SSRC SRTP cryptographic context: derived session keys,
// rollover tracking, and a replay window. One Context exists per incoming
// or outgoing SSRC. Protect and Unprotect hold the Context's internal
// mutex for their whole call, so the ROC and replay window are only
// mutated under it and concurrent calls on one instance are serialized.
type Context struct {
	mu sync.Mutex

	suite Suite

	masterKey  []byte
	masterSalt []byte

	sessionEncKey  []byte
	sessionAuthKey []byte
	sessionSalt    []byte
	block          cipher.Block

	rolloverCounter uint32
	highestSeq      uint16
	initialized     bool

	replay *ReplayWindow

	AuthFailures  uint64
	ReplayRejects uint64

	logger *slog.Logger
}

// SetLogger attaches a logger used to report dropped packets (failed auth,
// replay). Contexts built via NewContext log to slog.Default() until this
// is called; pass nil to silence drop logging.
func (c *Context) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// NewContext derives session keys from masterKey/masterSalt and returns a
// fresh context with ROC=0 and an empty replay window of replayWindowSize
// packets (64 when the size is outside 1..64).
func NewContext(suite Suite, masterKey, masterSalt []byte, replayWindowSize int) (*Context, error) {
	encKey, authKey, salt, err := DeriveSessionKeys(masterKey, masterSalt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Wrap(err, "srtp: session cipher")
	}

	return &Context{
		suite:          suite,
		masterKey:      append([]byte{}, masterKey...),
		masterSalt:     append([]byte{}, masterSalt...),
		sessionEncKey:  encKey,
		sessionAuthKey: authKey,
		sessionSalt:    salt,
		block:          block,
		replay:         NewReplayWindow(replayWindowSize),
		logger:         slog.Default(),
	}, nil
}

// updateRollover implements the RFC 3711 §3.3.1-adjacent ROC maintenance:
// called once per received packet with its 16-bit sequence number, using
// the same disorder-tolerant heuristic as the RTP layer's extended
// sequence reconstruction.
func (c *Context) updateRollover(seq uint16) {
	const maxDisorder = 100
	if !c.initialized {
		c.initialized = true
		c.highestSeq = seq
		return
	}
	switch {
	case seq == 0 && c.highestSeq > maxDisorder:
		c.rolloverCounter++
	case int(c.highestSeq) < maxDisorder && int(seq) > (65535-maxDisorder):
		c.rolloverCounter--
	case int(seq) < maxDisorder && int(c.highestSeq) > (65535-maxDisorder):
		c.rolloverCounter++
	}
	if seq > c.highestSeq || c.highestSeq-seq > maxDisorder {
		c.highestSeq = seq
	}
}

// packetIndex returns the 48-bit packet index for (ROC, seq) per spec:
// packet_index = ROC * 2^16 + seq.
func packetIndex(roc uint32, seq uint16) uint64 {
	return uint64(roc)<<16 | uint64(seq)
}

// iv computes the 128-bit AES-CM counter per spec:
// IV = (session_salt << 16) XOR (SSRC << 64) XOR (packet_index << 16).
func (c *Context) iv(ssrc uint32, idx uint64) []byte {
	buf := make([]byte, 16)
	copy(buf, c.sessionSalt) // salt<<16: salt occupies the top 112 bits

	var ssrcBuf [4]byte
	binary.BigEndian.PutUint32(ssrcBuf[:], ssrc)
	for i := 0; i < 4; i++ {
		buf[4+i] ^= ssrcBuf[i] // SSRC<<64: bytes[4:8]
	}

	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], idx)
	// packet_index is 48 bits; idx<<16 occupies bytes[8:14].
	for i := 0; i < 6; i++ {
		buf[8+i] ^= idxBuf[2+i]
	}

	return buf
}

func (c *Context) authTag(header, encryptedPayload []byte, roc uint32) []byte {
	mac := hmac.New(sha1.New, c.sessionAuthKey)
	mac.Write(header)
	mac.Write(encryptedPayload)
	var rocBuf [4]byte
	binary.BigEndian.PutUint32(rocBuf[:], roc)
	mac.Write(rocBuf[:])
	full := mac.Sum(nil)
	return full[:c.suite.TagLen()]
}

// Protect encrypts payload in place under the packet's (SSRC, ROC-tracked
// seq), appending the suite's authentication tag. header is the serialized
// RTP header (and any CSRC list/extension) included in the MAC but not
// encrypted.
func (c *Context) Protect(ssrc uint32, seq uint16, header, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateRollover(seq)
	idx := packetIndex(c.rolloverCounter, seq)

	encrypted := make([]byte, len(payload))
	stream := cipher.NewCTR(c.block, c.iv(ssrc, idx))
	stream.XORKeyStream(encrypted, payload)

	tag := c.authTag(header, encrypted, c.rolloverCounter)
	return append(encrypted, tag...), nil
}

// Unprotect verifies the authentication tag, checks replay, and decrypts
// the payload. On authentication failure or replay, the packet is dropped
// (an error is returned) and the corresponding counter is incremented; no
// context state is mutated for a rejected packet.
func (c *Context) Unprotect(ssrc uint32, seq uint16, header, protectedPayload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tagLen := c.suite.TagLen()
	if len(protectedPayload) < tagLen {
		return nil, errors.New("srtp: payload shorter than auth tag")
	}
	encrypted := protectedPayload[:len(protectedPayload)-tagLen]
	tag := protectedPayload[len(protectedPayload)-tagLen:]

	// ROC estimation for verification must not commit state until the
	// packet passes authentication and replay checks.
	roc := c.estimateRollover(seq)
	idx := packetIndex(roc, seq)

	if !c.replay.Check(idx) {
		c.ReplayRejects++
		replayRejectsTotal.Inc()
		if c.logger != nil {
			c.logger.Warn("srtp: dropping replayed packet", "ssrc", ssrc, "seq", seq, "roc", roc)
		}
		return nil, ErrReplay
	}

	expected := c.authTag(header, encrypted, roc)
	if !hmac.Equal(expected, tag) {
		c.AuthFailures++
		authFailuresTotal.Inc()
		if c.logger != nil {
			c.logger.Warn("srtp: dropping packet with bad auth tag", "ssrc", ssrc, "seq", seq, "roc", roc)
		}
		return nil, ErrAuthenticationFailed
	}

	c.replay.Accept(idx)
	c.updateRollover(seq)

	plaintext := make([]byte, len(encrypted))
	stream := cipher.NewCTR(c.block, c.iv(ssrc, idx))
	stream.XORKeyStream(plaintext, encrypted)
	return plaintext, nil
}

// estimateRollover previews the ROC updateRollover would compute for seq,
// without mutating context state, so Unprotect can check replay/auth
// before committing.
func (c *Context) estimateRollover(seq uint16) uint32 {
	if !c.initialized {
		return 0
	}
	const maxDisorder = 100
	roc := c.rolloverCounter
	switch {
	case seq == 0 && c.highestSeq > maxDisorder:
		roc++
	case int(c.highestSeq) < maxDisorder && int(seq) > (65535-maxDisorder):
		roc--
	case int(seq) < maxDisorder && int(c.highestSeq) > (65535-maxDisorder):
		roc++
	}
	return roc
}
