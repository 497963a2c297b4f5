package srtp

// Suite identifies an SRTP crypto suite: the cipher is always AES-128-CM
// with HMAC-SHA1 authentication; suites differ only in the authentication
// tag length appended to protected packets.
type Suite string

const (
	AES128CMHMACSHA1_80 Suite = "AES_CM_128_HMAC_SHA1_80"
	AES128CMHMACSHA1_32 Suite = "AES_CM_128_HMAC_SHA1_32"
)

// TagLen returns the authentication tag length, in bytes, for the suite.
func (s Suite) TagLen() int {
	switch s {
	case AES128CMHMACSHA1_32:
		return 4
	default:
		return 10
	}
}
