package srtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineKeyingValidateRejectsBadLengths(t *testing.T) {
	k := InlineKeying{MasterKey: make([]byte, 8), MasterSalt: make([]byte, MasterSaltLen)}
	require.Error(t, k.Validate())

	k = InlineKeying{MasterKey: make([]byte, MasterKeyLen), MasterSalt: make([]byte, 2)}
	require.Error(t, k.Validate())
}

func TestInlineKeyingNewContextRoundTrip(t *testing.T) {
	key, salt := testKeyAndSalt()
	k := InlineKeying{MasterKey: key, MasterSalt: salt}
	ctx, err := k.NewContext(AES128CMHMACSHA1_80, 64)
	require.NoError(t, err)
	require.NotNil(t, ctx)
}
