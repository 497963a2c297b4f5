package transaction

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/corevox/corevox/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTransport struct {
	mu       sync.Mutex
	reliable bool
	sent     []sip.Message
}

func (f *fakeTransport) Send(ctx context.Context, destination string, msg sip.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) IsReliable() bool { return f.reliable }

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newInviteRequest(branch string) *sip.Request {
	uri := sip.Uri{User: "bob", Host: "example.com"}
	req := sip.NewRequest(sip.INVITE, uri)
	via := &sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       "UDP",
		Host:            "192.0.2.1",
		Port:            5060,
		Params:          sip.NewParams(),
	}
	via.Params.Add("branch", branch)
	req.AppendHeader(via)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	req.AppendHeader(&sip.CallIDHeader{})
	return req
}

func newNonInviteRequest(method sip.RequestMethod, branch string) *sip.Request {
	uri := sip.Uri{User: "bob", Host: "example.com"}
	req := sip.NewRequest(method, uri)
	via := &sip.ViaHeader{
		ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP",
		Host: "192.0.2.1", Port: 5060, Params: sip.NewParams(),
	}
	via.Params.Add("branch", branch)
	req.AppendHeader(via)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})
	return req
}

func responseTo(req *sip.Request, code int, reason string) *sip.Response {
	return sip.NewResponseFromRequest(req, code, reason, nil)
}

func TestICTRetransmitsOnTimerAAndStopsOnProvisional(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest1")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewICT(req, "192.0.2.1:5060", transport, mclk, testLogger())
	require.NoError(t, err)

	require.NoError(t, tx.Start(context.Background()))
	require.Equal(t, 1, transport.sentCount())

	mclk.Advance(TimerA)
	require.Equal(t, 2, transport.sentCount())

	tx.HandleResponse(responseTo(req, 180, "Ringing"))
	require.Equal(t, StateProceeding, tx.State())

	mclk.Advance(TimerA * 4)
	require.Equal(t, 2, transport.sentCount(), "Timer A must stop retransmitting once Proceeding")
}

func TestICTTerminatesImmediatelyOn2xx(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest2")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewICT(req, "dest", transport, mclk, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Start(context.Background()))

	tx.HandleResponse(responseTo(req, 200, "OK"))
	require.Equal(t, StateTerminated, tx.State())
	select {
	case <-tx.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestICTEntersCompletedOn3xxThenTerminatesAfterTimerD(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest3")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewICT(req, "dest", transport, mclk, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Start(context.Background()))

	tx.HandleResponse(responseTo(req, 302, "Moved Temporarily"))
	require.Equal(t, StateCompleted, tx.State())

	mclk.Advance(TimerD)
	require.Equal(t, StateTerminated, tx.State())
}

func TestICTTimesOutViaTimerB(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest4")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewICT(req, "dest", transport, mclk, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Start(context.Background()))

	mclk.Advance(TimerB)
	require.Equal(t, StateTerminated, tx.State())
	select {
	case err := <-tx.Errors():
		require.ErrorIs(t, err, ErrTimeout)
	default:
		t.Fatal("expected a timeout error")
	}
}

func TestICTCancelOnlyValidWhileProceeding(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest5")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewICT(req, "dest", transport, mclk, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Start(context.Background()))

	_, err = tx.Cancel(context.Background())
	require.ErrorIs(t, err, ErrCannotCancel)

	tx.HandleResponse(responseTo(req, 180, "Ringing"))
	cancel, err := tx.Cancel(context.Background())
	require.NoError(t, err)
	require.Equal(t, sip.CANCEL, cancel.Method)
}

func TestISTCompletedRetransmitsUntilAck(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest6")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewIST(req, transport, mclk, testLogger())
	require.NoError(t, err)

	resp := responseTo(req, 486, "Busy Here")
	require.NoError(t, tx.SendResponse(context.Background(), "dest", resp))
	require.Equal(t, StateCompleted, tx.State())
	sentAfterFirst := transport.sentCount()

	mclk.Advance(TimerG)
	require.Greater(t, transport.sentCount(), sentAfterFirst)

	ack := newNonInviteRequest(sip.ACK, "z9hG4bKtest6")
	tx.HandleAck(ack)
	require.Equal(t, StateConfirmed, tx.State())

	mclk.Advance(TimerI)
	require.Equal(t, StateTerminated, tx.State())
}

func TestISTSendResponseRejectsSecondFinalWhileCompleted(t *testing.T) {
	req := newInviteRequest("z9hG4bKtest7")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewIST(req, transport, mclk, testLogger())
	require.NoError(t, err)

	require.NoError(t, tx.SendResponse(context.Background(), "dest", responseTo(req, 500, "Server Error")))
	err = tx.SendResponse(context.Background(), "dest", responseTo(req, 500, "Server Error"))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestNICTCompletesOnFinalResponseAndTerminatesAfterTimerK(t *testing.T) {
	req := newNonInviteRequest(sip.REGISTER, "z9hG4bKtest8")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewNICT(req, "dest", transport, mclk, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Start(context.Background()))

	tx.HandleResponse(responseTo(req, 200, "OK"))
	require.Equal(t, StateCompleted, tx.State())

	mclk.Advance(TimerK)
	require.Equal(t, StateTerminated, tx.State())
}

func TestNICTRetransmitsViaTimerE(t *testing.T) {
	req := newNonInviteRequest(sip.REGISTER, "z9hG4bKtest9")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewNICT(req, "dest", transport, mclk, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Start(context.Background()))
	require.Equal(t, 1, transport.sentCount())

	mclk.Advance(TimerE)
	require.Equal(t, 2, transport.sentCount())
}

func TestNISTAbsorbsRetransmittedRequestWhileCompleted(t *testing.T) {
	req := newNonInviteRequest(sip.REGISTER, "z9hG4bKtestA")
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	tx, err := NewNIST(req, transport, mclk)
	require.NoError(t, err)

	require.NoError(t, tx.SendResponse(context.Background(), "dest", responseTo(req, 200, "OK")))
	require.Equal(t, StateCompleted, tx.State())

	before := transport.sentCount()
	require.NoError(t, tx.HandleRetransmittedRequest(context.Background(), "dest"))
	require.Equal(t, before+1, transport.sentCount())

	mclk.Advance(TimerJ)
	require.Equal(t, StateTerminated, tx.State())
}

func TestManagerRoutesResponseToRegisteredICT(t *testing.T) {
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	mgr := NewManager(transport, mclk, testLogger())

	req := newInviteRequest("z9hG4bKtestB")
	tx, err := mgr.NewClientInvite(context.Background(), req, "dest")
	require.NoError(t, err)

	err = mgr.HandleResponse(responseTo(req, 180, "Ringing"))
	require.NoError(t, err)
	require.Equal(t, StateProceeding, tx.State())
}

func TestManagerHandleResponseUnknownBranch(t *testing.T) {
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	mgr := NewManager(transport, mclk, testLogger())

	req := newInviteRequest("z9hG4bKunregistered")
	err := mgr.HandleResponse(responseTo(req, 180, "Ringing"))
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestManagerHandleAckRoutesToIST(t *testing.T) {
	transport := &fakeTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	mgr := NewManager(transport, mclk, testLogger())

	req := newInviteRequest("z9hG4bKtestC")
	tx, err := mgr.NewServerInvite(req)
	require.NoError(t, err)
	require.NoError(t, tx.SendResponse(context.Background(), "dest", responseTo(req, 486, "Busy Here")))

	ack := newNonInviteRequest(sip.ACK, "z9hG4bKtestC")
	require.NoError(t, mgr.HandleAck(ack))
	require.Equal(t, StateConfirmed, tx.State())
}

func TestKeyForRequestRejectsMissingBranch(t *testing.T) {
	uri := sip.Uri{User: "bob", Host: "example.com"}
	req := sip.NewRequest(sip.INVITE, uri)
	_, err := KeyForRequest(req, true)
	require.ErrorIs(t, err, ErrMissingVia)
}

func TestKeyForRequestRejectsBadMagicCookie(t *testing.T) {
	req := newInviteRequest("nomagiccookie123")
	_, err := KeyForRequest(req, true)
	require.ErrorIs(t, err, ErrBadBranch)
}
