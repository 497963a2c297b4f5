package srtp

import (
	"github.com/pion/dtls/v2"
	"github.com/pkg/errors"
)

// dtlsSRTPLabel is the RFC 5764 §4.2 keying material export label.
const dtlsSRTPLabel = "EXTRACTOR-dtls_srtp"

// exportedKeyingMaterialLen is two master key/salt pairs (client write,
// server write), the quantity RFC 5764 exports in one call.
const exportedKeyingMaterialLen = 2 * (MasterKeyLen + MasterSaltLen)

// KeyingMaterialExporter is satisfied by *dtls.Conn; it is abstracted here
// so tests can supply a fake without a real handshake.
type KeyingMaterialExporter interface {
	ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error)
}

var _ KeyingMaterialExporter = (*dtls.Conn)(nil)

// ContextsFromDTLS exports SRTP keying material from an established DTLS
// connection per RFC 5764 and builds the pair of Contexts (one per
// direction) a DTLS-SRTP endpoint needs. isClient selects which half of
// the exported material is this side's write key versus its read key.
func ContextsFromDTLS(conn KeyingMaterialExporter, suite Suite, isClient bool, replayWindowSize int) (localCtx, remoteCtx *Context, err error) {
	material, err := conn.ExportKeyingMaterial(dtlsSRTPLabel, nil, exportedKeyingMaterialLen)
	if err != nil {
		return nil, nil, errors.Wrap(err, "srtp: export dtls keying material")
	}
	if len(material) != exportedKeyingMaterialLen {
		return nil, nil, errors.Errorf("srtp: exported keying material is %d bytes, want %d", len(material), exportedKeyingMaterialLen)
	}

	// RFC 5764 §4.2 layout: client_write_key, server_write_key,
	// client_write_salt, server_write_salt.
	clientKey := material[0:MasterKeyLen]
	serverKey := material[MasterKeyLen : 2*MasterKeyLen]
	clientSalt := material[2*MasterKeyLen : 2*MasterKeyLen+MasterSaltLen]
	serverSalt := material[2*MasterKeyLen+MasterSaltLen : 2*MasterKeyLen+2*MasterSaltLen]

	var localKey, localSalt, remoteKey, remoteSalt []byte
	if isClient {
		localKey, localSalt = clientKey, clientSalt
		remoteKey, remoteSalt = serverKey, serverSalt
	} else {
		localKey, localSalt = serverKey, serverSalt
		remoteKey, remoteSalt = clientKey, clientSalt
	}

	localCtx, err = NewContext(suite, localKey, localSalt, replayWindowSize)
	if err != nil {
		return nil, nil, err
	}
	remoteCtx, err = NewContext(suite, remoteKey, remoteSalt, replayWindowSize)
	if err != nil {
		return nil, nil, err
	}
	return localCtx, remoteCtx, nil
}
