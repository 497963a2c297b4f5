package dialog

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/corevox/corevox/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDialog(t *testing.T) *Dialog {
	t.Helper()
	localURI := sip.Uri{User: "alice", Host: "example.com"}
	remoteURI := sip.Uri{User: "bob", Host: "example.com"}
	invite := sip.NewRequest(sip.INVITE, remoteURI)
	mclk := clock.NewManual(time.Unix(0, 0))
	return NewUACDialog("call-1", localURI, remoteURI, "localtag1", invite, mclk, &clock.Sequence{}, testLogger())
}

func TestDialogStartsInInitial(t *testing.T) {
	d := newTestDialog(t)
	require.Equal(t, StateInitial, d.State())
	require.True(t, d.IsInitiator())
}

func TestDialogPromoteToEarlyThenConfirm(t *testing.T) {
	d := newTestDialog(t)
	target := sip.Uri{User: "bob", Host: "192.0.2.5"}

	require.NoError(t, d.PromoteToEarly("remotetag1", nil, target))
	require.Equal(t, StateEarly, d.State())
	require.Equal(t, "remotetag1", d.Key().RemoteTag)

	resp := &sip.Response{StatusCode: 200}
	require.NoError(t, d.UpdateFrom2xx(resp, "remotetag1", nil, target))
	require.Equal(t, StateConfirmed, d.State())
}

func TestDialogConfirmDirectlyFromInitial(t *testing.T) {
	d := newTestDialog(t)
	target := sip.Uri{User: "bob", Host: "192.0.2.5"}
	resp := &sip.Response{StatusCode: 200}
	require.NoError(t, d.UpdateFrom2xx(resp, "remotetag2", nil, target))
	require.Equal(t, StateConfirmed, d.State())
	require.Equal(t, "remotetag2", d.Key().RemoteTag)
}

func TestDialogCreateRequestRequiresConfirmed(t *testing.T) {
	d := newTestDialog(t)
	_, err := d.CreateRequest(sip.BYE)
	require.ErrorIs(t, err, ErrInvalidState)

	target := sip.Uri{User: "bob", Host: "192.0.2.5"}
	require.NoError(t, d.UpdateFrom2xx(&sip.Response{StatusCode: 200}, "rtag", nil, target))

	req, err := d.CreateRequest(sip.BYE)
	require.NoError(t, err)
	require.Equal(t, sip.BYE, req.Method)
	require.Equal(t, uint32(2), req.CSeq().SeqNo) // localSeq started at 1 for UAC
}

func TestDialogRecoveryRoundTrip(t *testing.T) {
	d := newTestDialog(t)
	target := sip.Uri{User: "bob", Host: "192.0.2.5"}
	require.NoError(t, d.UpdateFrom2xx(&sip.Response{StatusCode: 200}, "rtag", nil, target))

	require.NoError(t, d.EnterRecoveryMode("transport failure"))
	require.Equal(t, StateRecovering, d.State())
	require.Equal(t, "transport failure", d.RecoveryReason())

	_, err := d.CreateRequest(sip.BYE)
	require.NoError(t, err, "in-dialog requests remain buildable while recovering")

	require.NoError(t, d.CompleteRecovery())
	require.Equal(t, StateConfirmed, d.State())
	require.Empty(t, d.RecoveryReason())
}

func TestDialogCompleteRecoveryFailsWhenNotRecovering(t *testing.T) {
	d := newTestDialog(t)
	err := d.CompleteRecovery()
	require.ErrorIs(t, err, ErrNotRecovering)
}

func TestDialogRouteSetImmutableOutsideRecovery(t *testing.T) {
	d := newTestDialog(t)
	target := sip.Uri{User: "bob", Host: "192.0.2.5"}
	require.NoError(t, d.UpdateFrom2xx(&sip.Response{StatusCode: 200}, "rtag", nil, target))

	err := d.SetRouteSetDuringRecovery([]sip.Uri{{Host: "proxy.example.com"}})
	require.ErrorIs(t, err, ErrRouteSetImmutable)
}

func TestDialogObserveRemoteSeqRejectsOutOfOrder(t *testing.T) {
	d := newTestDialog(t)
	require.True(t, d.ObserveRemoteSeq(5))
	require.True(t, d.ObserveRemoteSeq(6))
	require.False(t, d.ObserveRemoteSeq(6))
	require.False(t, d.ObserveRemoteSeq(3))
}

func TestDialogTerminateFromAnyNonTerminalState(t *testing.T) {
	d := newTestDialog(t)
	require.NoError(t, d.Terminate())
	require.Equal(t, StateTerminated, d.State())
	require.NoError(t, d.Terminate(), "terminating twice is a no-op")
}

func TestRegistryPartialMatchThenPromotion(t *testing.T) {
	r := NewRegistry()
	d := newTestDialog(t)
	r.Put(d)

	_, ok := r.Get(Key{CallID: "call-1", LocalTag: "localtag1"})
	require.True(t, ok, "early dialog should be found by partial key")

	target := sip.Uri{User: "bob", Host: "192.0.2.5"}
	require.NoError(t, d.PromoteToEarly("remotetag1", nil, target))
	r.Put(d)

	full, ok := r.Get(Key{CallID: "call-1", LocalTag: "localtag1", RemoteTag: "remotetag1"})
	require.True(t, ok)
	require.Same(t, d, full)
}

func TestReferSubscriptionLifecycle(t *testing.T) {
	now := time.Unix(0, 0)
	sub := NewReferSubscription("12345", "sip:carol@example.com", "", false, now)
	require.Equal(t, ReferTrying, sub.State)

	terminal, err := sub.UpdateFromStatus(180, now)
	require.NoError(t, err)
	require.False(t, terminal)
	require.Equal(t, ReferRinging, sub.State)

	terminal, err = sub.UpdateFromStatus(200, now)
	require.NoError(t, err)
	require.True(t, terminal)
	require.Equal(t, ReferSucceeded, sub.State)
	require.True(t, sub.Terminated())

	_, err = sub.UpdateFromStatus(200, now)
	require.ErrorIs(t, err, ErrSubscriptionTerminated)
}

func TestReferSubscriptionExpire(t *testing.T) {
	now := time.Unix(0, 0)
	sub := NewReferSubscription("1", "sip:carol@example.com", "", true, now)
	sub.Expire(now.Add(time.Minute))
	require.Equal(t, ReferTimedOut, sub.State)
	require.True(t, sub.Terminated())
}

func TestDialogAddAndRemoveReferSubscription(t *testing.T) {
	d := newTestDialog(t)
	sub := NewReferSubscription("ev1", "sip:carol@example.com", "", false, time.Unix(0, 0))
	d.AddReferSubscription(sub)

	got, ok := d.ReferSubscription("ev1")
	require.True(t, ok)
	require.Same(t, sub, got)

	d.RemoveReferSubscription("ev1")
	_, ok = d.ReferSubscription("ev1")
	require.False(t, ok)
}
