package srtp

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// CryptoLine is one parsed `a=crypto:` attribute: a tag disambiguating
// multiple offered suites, the suite itself, and the base64-encoded
// master key || master salt.
type CryptoLine struct {
	Tag      int
	Suite    Suite
	KeyParam string // base64(master_key || master_salt)
}

// Attribute renders the crypto line as an SDP attribute consumable by
// pion/sdp's media description Attributes list.
func (c CryptoLine) Attribute() sdp.Attribute {
	return sdp.Attribute{
		Key:   "crypto",
		Value: fmt.Sprintf("%d %s inline:%s", c.Tag, c.Suite, c.KeyParam),
	}
}

// ParseCryptoAttribute parses an `a=crypto:` attribute value of the form
// "<tag> <suite> inline:<base64key>".
func ParseCryptoAttribute(value string) (CryptoLine, error) {
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return CryptoLine{}, errors.Errorf("srtp: malformed crypto attribute %q", value)
	}
	tag, err := strconv.Atoi(fields[0])
	if err != nil {
		return CryptoLine{}, errors.Wrap(err, "srtp: crypto tag")
	}
	keyMethod := fields[2]
	const prefix = "inline:"
	if !strings.HasPrefix(keyMethod, prefix) {
		return CryptoLine{}, errors.Errorf("srtp: unsupported key method %q", keyMethod)
	}
	return CryptoLine{
		Tag:      tag,
		Suite:    Suite(fields[1]),
		KeyParam: strings.TrimPrefix(keyMethod, prefix),
	}, nil
}

// NewOfferLine generates a fresh random master key/salt for suite and
// returns the crypto line to place in an SDP offer, along with the
// plaintext key/salt for local context construction.
func NewOfferLine(tag int, suite Suite) (line CryptoLine, masterKey, masterSalt []byte, err error) {
	masterKey = make([]byte, MasterKeyLen)
	masterSalt = make([]byte, MasterSaltLen)
	if _, err = rand.Read(masterKey); err != nil {
		return CryptoLine{}, nil, nil, errors.Wrap(err, "srtp: generate master key")
	}
	if _, err = rand.Read(masterSalt); err != nil {
		return CryptoLine{}, nil, nil, errors.Wrap(err, "srtp: generate master salt")
	}

	combined := append(append([]byte{}, masterKey...), masterSalt...)
	line = CryptoLine{
		Tag:      tag,
		Suite:    suite,
		KeyParam: base64.StdEncoding.EncodeToString(combined),
	}
	return line, masterKey, masterSalt, nil
}

// DecodeKeyParam splits a crypto line's base64 key parameter back into
// master key and master salt.
func DecodeKeyParam(keyParam string) (masterKey, masterSalt []byte, err error) {
	combined, err := base64.StdEncoding.DecodeString(keyParam)
	if err != nil {
		return nil, nil, errors.Wrap(err, "srtp: decode key param")
	}
	if len(combined) != MasterKeyLen+MasterSaltLen {
		return nil, nil, errors.Errorf("srtp: decoded key material is %d bytes, want %d", len(combined), MasterKeyLen+MasterSaltLen)
	}
	return combined[:MasterKeyLen], combined[MasterKeyLen:], nil
}

// Offerer builds an ordered list of crypto lines in suite preference
// order, one fresh key per suite, the way an SDES offerer enumerates
// acceptable suites for the answerer to choose from.
type Offerer struct {
	Suites []Suite

	// generated keys, indexed the same as Suites/the returned lines
	keys [][]byte
	salt [][]byte
}

// BuildOffer returns the crypto lines for an offer and records the
// generated key material for later lookup by ContextForSelectedTag.
func (o *Offerer) BuildOffer() ([]CryptoLine, error) {
	lines := make([]CryptoLine, len(o.Suites))
	o.keys = make([][]byte, len(o.Suites))
	o.salt = make([][]byte, len(o.Suites))
	for i, s := range o.Suites {
		line, key, salt, err := NewOfferLine(i+1, s)
		if err != nil {
			return nil, err
		}
		lines[i] = line
		o.keys[i] = key
		o.salt[i] = salt
	}
	return lines, nil
}

// ContextForSelectedTag builds the local SRTP context for whichever tag
// the answerer selected.
func (o *Offerer) ContextForSelectedTag(tag int, replayWindowSize int) (*Context, error) {
	for i, line := range o.Suites {
		if i+1 == tag {
			return NewContext(o.Suites[i], o.keys[i], o.salt[i], replayWindowSize)
		}
		_ = line
	}
	return nil, errors.Errorf("srtp: no offered suite with tag %d", tag)
}

// SelectAnswer implements the answerer side: pick the first offered suite
// this peer supports, in the offerer's preference order, and return both
// the selected crypto line (to echo back, with the answerer's own key
// material) and a ready-to-use Context.
func SelectAnswer(offered []CryptoLine, supported []Suite, replayWindowSize int) (answer CryptoLine, ctx *Context, err error) {
	supportedSet := make(map[Suite]bool, len(supported))
	for _, s := range supported {
		supportedSet[s] = true
	}

	for _, o := range offered {
		if !supportedSet[o.Suite] {
			continue
		}
		line, key, salt, genErr := NewOfferLine(o.Tag, o.Suite)
		if genErr != nil {
			return CryptoLine{}, nil, genErr
		}
		ctx, err = NewContext(o.Suite, key, salt, replayWindowSize)
		if err != nil {
			return CryptoLine{}, nil, err
		}
		return line, ctx, nil
	}
	return CryptoLine{}, nil, errors.New("srtp: no mutually supported crypto suite")
}
