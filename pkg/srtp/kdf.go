// Package srtp implements RFC 3711 SRTP protection: key derivation,
// AES-CM encryption, HMAC-SHA1 authentication, and the replay window, plus
// key-exchange drivers (inline PSK, SDES, MIKEY-PSK, DTLS-SRTP export)
// that all produce the same master-key/salt pair Context consumes.
package srtp

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
)

const (
	labelRTPEncryption = 0x00
	labelRTPAuth       = 0x01
	labelRTPSalt       = 0x02

	MasterKeyLen  = 16
	MasterSaltLen = 14

	sessionEncKeyLen  = 16
	sessionAuthKeyLen = 20 // HMAC-SHA1 key length
	sessionSaltLen    = 14
)

// deriveSessionKey implements the RFC 3711 §4.3 KDF: with key derivation
// rate 0 (derive once, the spec's default), the "index" term is always
// zero, so the key stream input reduces to (label || zeros) XOR
// (masterSalt padded to 16 bytes), used as the AES-CM IV to generate
// length bytes of keystream under masterKey.
func deriveSessionKey(masterKey, masterSalt []byte, label byte, length int) ([]byte, error) {
	if len(masterKey) != MasterKeyLen {
		return nil, errors.Errorf("srtp: master key must be %d bytes, got %d", MasterKeyLen, len(masterKey))
	}
	if len(masterSalt) != MasterSaltLen {
		return nil, errors.Errorf("srtp: master salt must be %d bytes, got %d", MasterSaltLen, len(masterSalt))
	}

	iv := make([]byte, 16)
	copy(iv, masterSalt)
	// key_id = label || 48 zero index bits, right-aligned against the
	// 112-bit salt, puts the label at byte 7.
	iv[7] ^= label

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, errors.Wrap(err, "srtp: kdf cipher")
	}

	out := make([]byte, length)
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out, out)
	return out, nil
}

// DeriveSessionKeys derives the triple of session encryption key,
// authentication key, and salt from a master key/salt pair, per RFC 3711
// §4.3, at derivation rate 0 (derive once).
func DeriveSessionKeys(masterKey, masterSalt []byte) (encKey, authKey, salt []byte, err error) {
	encKey, err = deriveSessionKey(masterKey, masterSalt, labelRTPEncryption, sessionEncKeyLen)
	if err != nil {
		return nil, nil, nil, err
	}
	authKey, err = deriveSessionKey(masterKey, masterSalt, labelRTPAuth, sessionAuthKeyLen)
	if err != nil {
		return nil, nil, nil, err
	}
	salt, err = deriveSessionKey(masterKey, masterSalt, labelRTPSalt, sessionSaltLen)
	if err != nil {
		return nil, nil, nil, err
	}
	return encKey, authKey, salt, nil
}
