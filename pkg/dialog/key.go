package dialog

// Key identifies a dialog by (call_id, local_tag, remote_tag) per RFC
// 3261 §12. Early dialogs (before the remote side has sent a to-tag) key
// on PartialKey instead and are promoted once the remote tag arrives.
type Key struct {
	CallID    string
	LocalTag  string
	RemoteTag string
}

// PartialKey identifies an early dialog whose remote tag is not yet
// known: (call_id, local_tag) alone, matched as a fallback when a full Key
// lookup misses.
type PartialKey struct {
	CallID   string
	LocalTag string
}

func (k Key) partial() PartialKey {
	return PartialKey{CallID: k.CallID, LocalTag: k.LocalTag}
}
