package dialog

import (
	"time"

	"github.com/pkg/errors"
)

// ReferState tracks a transfer subscription's NOTIFY progress, mirroring
// the status codes a transferred call passes through per RFC 3515's
// sipfrag NOTIFY body convention: 100 Trying -> 180 Ringing -> a final
// 2xx/4xx/5xx/6xx.
type ReferState int

const (
	ReferTrying ReferState = iota
	ReferRinging
	ReferSucceeded
	ReferFailed
	ReferTimedOut
)

func (s ReferState) String() string {
	switch s {
	case ReferTrying:
		return "Trying"
	case ReferRinging:
		return "Ringing"
	case ReferSucceeded:
		return "Succeeded"
	case ReferFailed:
		return "Failed"
	case ReferTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// ReferSubscription is the implicit subscription a REFER creates, keyed
// by the Event header's id parameter (refer;id=<cseq>). The dialog that
// sent the REFER emits NOTIFY bodies carrying the transferred call's
// progress until the subscription reaches a final state or its timer
// expires.
type ReferSubscription struct {
	EventID      string
	ReferTo      string
	ReplacesID   string
	Attended     bool
	State        ReferState
	CreatedAt    time.Time
	terminatedAt *time.Time
}

// ErrSubscriptionTerminated is returned by UpdateFromStatus once a
// subscription has already reached a final state.
var ErrSubscriptionTerminated = errors.New("dialog: refer subscription already terminated")

// NewReferSubscription starts tracking a transfer, referTo being the
// Refer-To target and replacesID an optional Replaces header value for
// attended transfer.
func NewReferSubscription(eventID, referTo, replacesID string, attended bool, now time.Time) *ReferSubscription {
	return &ReferSubscription{
		EventID:   eventID,
		ReferTo:   referTo,
		ReplacesID: replacesID,
		Attended:  attended,
		State:     ReferTrying,
		CreatedAt: now,
	}
}

// UpdateFromStatus advances the subscription's state from a SIP status
// code reported by the transferred call's transaction, and reports
// whether this terminates the subscription (a final NOTIFY).
func (s *ReferSubscription) UpdateFromStatus(statusCode int, now time.Time) (terminal bool, err error) {
	if s.State == ReferSucceeded || s.State == ReferFailed || s.State == ReferTimedOut {
		return true, ErrSubscriptionTerminated
	}
	switch {
	case statusCode >= 100 && statusCode < 200:
		if statusCode == 180 || statusCode == 183 {
			s.State = ReferRinging
		}
		return false, nil
	case statusCode >= 200 && statusCode < 300:
		s.State = ReferSucceeded
	case statusCode >= 300:
		s.State = ReferFailed
	}
	s.terminatedAt = &now
	return true, nil
}

// Expire marks the subscription as timed out (the configured NOTIFY
// timeout elapsed with no final status).
func (s *ReferSubscription) Expire(now time.Time) {
	if s.State == ReferSucceeded || s.State == ReferFailed || s.State == ReferTimedOut {
		return
	}
	s.State = ReferTimedOut
	s.terminatedAt = &now
}

// Terminated reports whether the subscription has reached a final state.
func (s *ReferSubscription) Terminated() bool {
	return s.terminatedAt != nil
}

// AddReferSubscription registers a new transfer subscription on d.
func (d *Dialog) AddReferSubscription(sub *ReferSubscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.referSubscriptions[sub.EventID] = sub
}

// ReferSubscription looks up a transfer subscription by event id.
func (d *Dialog) ReferSubscription(eventID string) (*ReferSubscription, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sub, ok := d.referSubscriptions[eventID]
	return sub, ok
}

// RemoveReferSubscription discards a terminated subscription.
func (d *Dialog) RemoveReferSubscription(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.referSubscriptions, eventID)
}
