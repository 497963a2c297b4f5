package transaction

import (
	"strings"

	"github.com/emiago/sipgo/sip"
)

// Key identifies a transaction for matching incoming messages, per
// RFC 3261 §17.1.3/§17.2.3: the top Via branch, the CSeq method (ACK
// matches its INVITE transaction's branch but is never itself a new
// transaction), and whether this is the client or server side.
type Key struct {
	Branch   string
	Method   string
	IsClient bool
}

// String renders the key the way log lines and map keys want it.
func (k Key) String() string {
	role := "server"
	if k.IsClient {
		role = "client"
	}
	return k.Branch + "|" + k.Method + "|" + role
}

// branchOf extracts the branch parameter from a message's top Via header.
func branchOf(via *sip.ViaHeader) (string, error) {
	if via == nil {
		return "", ErrMissingVia
	}
	branch, ok := via.Params.Get("branch")
	if !ok || branch == "" {
		return "", ErrMissingBranch
	}
	if !strings.HasPrefix(branch, "z9hG4bK") {
		return "", ErrBadBranch
	}
	return branch, nil
}

// KeyForRequest builds the matching key for an outgoing (isClient=true) or
// incoming (isClient=false) request.
func KeyForRequest(req *sip.Request, isClient bool) (Key, error) {
	branch, err := branchOf(req.Via())
	if err != nil {
		return Key{}, err
	}
	return Key{Branch: branch, Method: string(req.Method), IsClient: isClient}, nil
}

// KeyForResponse builds the client-transaction key a response should match,
// using the CSeq method (a response to CANCEL matches the CANCEL
// transaction, not the INVITE it cancels).
func KeyForResponse(resp *sip.Response) (Key, error) {
	branch, err := branchOf(resp.Via())
	if err != nil {
		return Key{}, err
	}
	cseq := resp.CSeq()
	if cseq == nil {
		return Key{}, ErrInvalidResponse
	}
	return Key{Branch: branch, Method: string(cseq.MethodName), IsClient: true}, nil
}
