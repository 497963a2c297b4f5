package srtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSessionKeysLengthsAndDeterminism(t *testing.T) {
	masterKey := make([]byte, MasterKeyLen)
	masterSalt := make([]byte, MasterSaltLen)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	for i := range masterSalt {
		masterSalt[i] = byte(i * 3)
	}

	encKey, authKey, salt, err := DeriveSessionKeys(masterKey, masterSalt)
	require.NoError(t, err)
	require.Len(t, encKey, sessionEncKeyLen)
	require.Len(t, authKey, sessionAuthKeyLen)
	require.Len(t, salt, sessionSaltLen)

	encKey2, authKey2, salt2, err := DeriveSessionKeys(masterKey, masterSalt)
	require.NoError(t, err)
	require.Equal(t, encKey, encKey2)
	require.Equal(t, authKey, authKey2)
	require.Equal(t, salt, salt2)
}

func TestDeriveSessionKeysDifferByLabel(t *testing.T) {
	masterKey := make([]byte, MasterKeyLen)
	masterSalt := make([]byte, MasterSaltLen)
	encKey, authKey, salt, err := DeriveSessionKeys(masterKey, masterSalt)
	require.NoError(t, err)
	require.NotEqual(t, encKey, authKey[:sessionEncKeyLen])
	require.NotEqual(t, encKey, salt)
}

func TestDeriveSessionKeyRejectsBadLengths(t *testing.T) {
	_, err := deriveSessionKey(make([]byte, 8), make([]byte, MasterSaltLen), labelRTPEncryption, 16)
	require.Error(t, err)

	_, err = deriveSessionKey(make([]byte, MasterKeyLen), make([]byte, 4), labelRTPEncryption, 16)
	require.Error(t, err)
}
