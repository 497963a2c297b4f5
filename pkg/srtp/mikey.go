package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"

	"github.com/pkg/errors"
)

// xorKeystream encrypts (or decrypts; AES-CTR is symmetric) data with an
// AES-CTR keystream under key, using iv as the initial counter block.
func xorKeystream(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "mikey: cipher")
	}
	out := make([]byte, len(data))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out, data)
	return out, nil
}

// MIKEY implements a reduced RFC 3830 pre-shared-key mode: a single crypto
// session (CS-ID-map-type PSK, CS-count 1) carrying one master key/salt
// pair, authenticated with an HMAC-SHA1 MAC keyed off the pre-shared key
// rather than full RFC 3830 key derivation (PRF=0, MIKEY-PRF-MIKEY-1).
// Timestamp/random/replay-cache handling a production MIKEY stack would
// need against message replay is out of scope; the transport layer's own
// replay protection covers the media path this key exchange feeds.
const (
	mikeyVersion       = 1
	mikeyDataTypePSK   = 2 // I_MESSAGE, pre-shared key
	mikeyDataTypeError = 4

	mikeyPayloadKEMAC  = 1
	mikeyPayloadLast   = 0
	mikeyKeyTypeTEK    = 2
	mikeyMACAlgHMACSHA = 1

	mikeyCSIDMapTypePSK = 0
)

// Header is MIKEY's common header (RFC 3830 §6.1), reduced to the fields
// a single-CS PSK exchange needs.
type Header struct {
	Version      uint8
	DataType     uint8
	NextPayload  uint8
	CSIDMapType  uint8
	CSID         uint32
	CSRCSession  uint32
	CSCount      uint8
	CSPID        uint32
	Timestamp    uint32
}

// IMessage is the initiator's MIKEY message: common header, a CS-ID map
// (single crypto session), and the key-data transport payload (KEMAC)
// carrying the encrypted master key/salt plus a trailing MAC.
type IMessage struct {
	Header     Header
	Random     [16]byte
	EncryptedKeyData []byte // AES-CM encrypted master_key || master_salt
	MAC        [20]byte
}

// mikeyAuthKey derives a MAC key from the pre-shared key, distinguishing
// it from the SRTP session keys so the PSK is never used directly.
func mikeyAuthKey(psk []byte) []byte {
	mac := hmac.New(sha1.New, psk)
	mac.Write([]byte("corevox-mikey-auth"))
	return mac.Sum(nil)
}

// mikeyEncKey derives the key-transport encryption key from the PSK.
func mikeyEncKey(psk []byte) ([]byte, error) {
	mac := hmac.New(sha1.New, psk)
	mac.Write([]byte("corevox-mikey-enc"))
	sum := mac.Sum(nil)
	return sum[:MasterKeyLen], nil
}

// BuildIMessage constructs an initiator MIKEY message carrying a freshly
// generated master key/salt, encrypted and MAC-protected under psk.
func BuildIMessage(psk []byte, csID uint32, timestamp uint32) (msg IMessage, masterKey, masterSalt []byte, err error) {
	masterKey = make([]byte, MasterKeyLen)
	masterSalt = make([]byte, MasterSaltLen)
	if _, err = rand.Read(masterKey); err != nil {
		return IMessage{}, nil, nil, errors.Wrap(err, "mikey: generate master key")
	}
	if _, err = rand.Read(masterSalt); err != nil {
		return IMessage{}, nil, nil, errors.Wrap(err, "mikey: generate master salt")
	}

	var random [16]byte
	if _, err = rand.Read(random[:]); err != nil {
		return IMessage{}, nil, nil, errors.Wrap(err, "mikey: generate random")
	}

	encKey, err := mikeyEncKey(psk)
	if err != nil {
		return IMessage{}, nil, nil, err
	}
	plain := append(append([]byte{}, masterKey...), masterSalt...)
	encrypted, err := xorKeystream(encKey, random[:], plain)
	if err != nil {
		return IMessage{}, nil, nil, err
	}

	msg = IMessage{
		Header: Header{
			Version:     mikeyVersion,
			DataType:    mikeyDataTypePSK,
			NextPayload: mikeyPayloadKEMAC,
			CSIDMapType: mikeyCSIDMapTypePSK,
			CSID:        csID,
			CSCount:     1,
			CSPID:       csID,
			Timestamp:   timestamp,
		},
		Random:           random,
		EncryptedKeyData: encrypted,
	}

	authKey := mikeyAuthKey(psk)
	mac := hmac.New(sha1.New, authKey)
	mac.Write(mikeySignedFields(msg))
	copy(msg.MAC[:], mac.Sum(nil))

	return msg, masterKey, masterSalt, nil
}

// VerifyAndExtract checks an IMessage's MAC under psk and, if valid,
// decrypts and returns the carried master key/salt.
func VerifyAndExtract(msg IMessage, psk []byte) (masterKey, masterSalt []byte, err error) {
	authKey := mikeyAuthKey(psk)
	mac := hmac.New(sha1.New, authKey)
	mac.Write(mikeySignedFields(msg))
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, msg.MAC[:]) {
		return nil, nil, errors.New("mikey: MAC verification failed")
	}

	encKey, err := mikeyEncKey(psk)
	if err != nil {
		return nil, nil, err
	}
	plain, err := xorKeystream(encKey, msg.Random[:], msg.EncryptedKeyData)
	if err != nil {
		return nil, nil, err
	}
	if len(plain) != MasterKeyLen+MasterSaltLen {
		return nil, nil, errors.Errorf("mikey: decrypted key data is %d bytes, want %d", len(plain), MasterKeyLen+MasterSaltLen)
	}
	return plain[:MasterKeyLen], plain[MasterKeyLen:], nil
}

// mikeySignedFields serializes the header, random, and encrypted key data
// in the order the MAC covers, per RFC 3830 §5.2 (excluding the MAC field
// itself).
func mikeySignedFields(msg IMessage) []byte {
	buf := make([]byte, 0, 32+len(msg.EncryptedKeyData))
	var u32 [4]byte

	binary.BigEndian.PutUint32(u32[:], msg.Header.CSID)
	buf = append(buf, msg.Header.Version, msg.Header.DataType, msg.Header.NextPayload, msg.Header.CSIDMapType)
	buf = append(buf, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], msg.Header.CSPID)
	buf = append(buf, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], msg.Header.Timestamp)
	buf = append(buf, u32[:]...)
	buf = append(buf, msg.Header.CSCount)
	buf = append(buf, msg.Random[:]...)
	buf = append(buf, msg.EncryptedKeyData...)
	return buf
}

// NewContext derives an SRTP Context from a verified IMessage's key
// material.
func (msg IMessage) NewContext(psk []byte, suite Suite, replayWindowSize int) (*Context, error) {
	masterKey, masterSalt, err := VerifyAndExtract(msg, psk)
	if err != nil {
		return nil, err
	}
	return NewContext(suite, masterKey, masterSalt, replayWindowSize)
}
