package srtp

import "github.com/pkg/errors"

// InlineKeying is the simplest key-exchange variant: a preconfigured
// 16-byte key and 14-byte salt, carried out-of-band (e.g. via a trusted
// provisioning channel) rather than negotiated in-session.
type InlineKeying struct {
	MasterKey  []byte
	MasterSalt []byte
}

// Validate checks the key/salt lengths match MasterKeyLen/MasterSaltLen.
func (k InlineKeying) Validate() error {
	if len(k.MasterKey) != MasterKeyLen {
		return errors.Errorf("srtp: inline master key must be %d bytes, got %d", MasterKeyLen, len(k.MasterKey))
	}
	if len(k.MasterSalt) != MasterSaltLen {
		return errors.Errorf("srtp: inline master salt must be %d bytes, got %d", MasterSaltLen, len(k.MasterSalt))
	}
	return nil
}

// NewContext builds an SRTP Context directly from the preshared key/salt.
func (k InlineKeying) NewContext(suite Suite, replayWindowSize int) (*Context, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return NewContext(suite, k.MasterKey, k.MasterSalt, replayWindowSize)
}
