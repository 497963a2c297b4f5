package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/corevox/corevox/internal/clock"
)

type fakeStackTransport struct {
	mu   sync.Mutex
	sent []sip.Message
}

func (f *fakeStackTransport) Send(ctx context.Context, destination string, msg sip.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeStackTransport) IsReliable() bool { return true }

func (f *fakeStackTransport) last() sip.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeStackTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestStack(t *testing.T) (*Stack, *fakeStackTransport) {
	t.Helper()
	transport := &fakeStackTransport{}
	mclk := clock.NewManual(time.Unix(0, 0))
	localURI := sip.Uri{User: "alice", Host: "example.com"}
	return NewStack(localURI, transport, mclk, &clock.Sequence{}, testLogger()), transport
}

func TestStackPlaceCallSendsInvite(t *testing.T) {
	s, transport := newTestStack(t)
	target := sip.Uri{User: "bob", Host: "192.0.2.5"}

	d, err := s.PlaceCall(context.Background(), target, "192.0.2.5:5060")
	require.NoError(t, err)
	require.Equal(t, StateInitial, d.State())
	require.Equal(t, 1, transport.count())

	sent, ok := transport.last().(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.INVITE, sent.Method)
}

func TestStackHandleInviteCreatesUASDialogWithKnownRemoteTag(t *testing.T) {
	s, _ := newTestStack(t)
	remoteURI := sip.Uri{User: "carol", Host: "192.0.2.9"}
	req := sip.NewRequest(sip.INVITE, sip.Uri{User: "alice", Host: "example.com"})
	req.AppendHeader(sip.NewHeader("Call-ID", "abc-123"))
	req.AppendHeader(&sip.FromHeader{Address: remoteURI, Params: sip.HeaderParams{"tag": "callertag"}})
	req.AppendHeader(&sip.ToHeader{Address: sip.Uri{User: "alice", Host: "example.com"}})
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	via := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	via.Params.Add("branch", "z9hG4bKinbound1")
	req.AppendHeader(via)

	var gotReq *sip.Request
	s.OnIncomingCall(func(d *Dialog, r *sip.Request) { gotReq = r })

	d, ist, err := s.HandleInvite(req)
	require.NoError(t, err)
	require.NotNil(t, ist)
	require.Same(t, req, gotReq)
	require.False(t, d.IsInitiator())
	require.Equal(t, "callertag", d.Key().RemoteTag)
}

func TestStackAnswerPromotesThenConfirms(t *testing.T) {
	s, transport := newTestStack(t)
	req := sip.NewRequest(sip.INVITE, sip.Uri{User: "alice", Host: "example.com"})
	req.AppendHeader(sip.NewHeader("Call-ID", "abc-124"))
	req.AppendHeader(&sip.FromHeader{Address: sip.Uri{User: "carol", Host: "192.0.2.9"}, Params: sip.HeaderParams{"tag": "callertag2"}})
	req.AppendHeader(&sip.ToHeader{Address: sip.Uri{User: "alice", Host: "example.com"}})
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	via := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	via.Params.Add("branch", "z9hG4bKinbound2")
	req.AppendHeader(via)

	d, ist, err := s.HandleInvite(req)
	require.NoError(t, err)

	ringing := s.BuildResponse(req, d, 180, "Ringing")
	require.NoError(t, s.Answer(context.Background(), d, ist, "192.0.2.9:5060", ringing))
	require.Equal(t, StateEarly, d.State())

	ok := s.BuildResponse(req, d, 200, "OK")
	require.NoError(t, s.Answer(context.Background(), d, ist, "192.0.2.9:5060", ok))
	require.Equal(t, StateConfirmed, d.State())
	require.Equal(t, "callertag2", d.Key().RemoteTag)
	require.Equal(t, 2, transport.count())
}

func TestStackHandleInDialogRequestTerminatesOnBye(t *testing.T) {
	s, transport := newTestStack(t)
	req := sip.NewRequest(sip.INVITE, sip.Uri{User: "alice", Host: "example.com"})
	req.AppendHeader(sip.NewHeader("Call-ID", "abc-125"))
	req.AppendHeader(&sip.FromHeader{Address: sip.Uri{User: "carol", Host: "192.0.2.9"}, Params: sip.HeaderParams{"tag": "callertag3"}})
	req.AppendHeader(&sip.ToHeader{Address: sip.Uri{User: "alice", Host: "example.com"}})
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	via := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	via.Params.Add("branch", "z9hG4bKinbound3")
	req.AppendHeader(via)

	d, ist, err := s.HandleInvite(req)
	require.NoError(t, err)
	ok := s.BuildResponse(req, d, 200, "OK")
	require.NoError(t, s.Answer(context.Background(), d, ist, "192.0.2.9:5060", ok))
	require.Equal(t, StateConfirmed, d.State())
	transport.mu.Lock()
	transport.sent = nil
	transport.mu.Unlock()

	bye := sip.NewRequest(sip.BYE, sip.Uri{User: "alice", Host: "example.com"})
	bye.AppendHeader(sip.NewHeader("Call-ID", "abc-125"))
	bye.AppendHeader(&sip.FromHeader{Address: sip.Uri{User: "carol", Host: "192.0.2.9"}, Params: sip.HeaderParams{"tag": "callertag3"}})
	bye.AppendHeader(&sip.ToHeader{Address: sip.Uri{User: "alice", Host: "example.com"}, Params: sip.HeaderParams{"tag": d.Key().LocalTag}})
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: 2, MethodName: sip.BYE})
	byeVia := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	byeVia.Params.Add("branch", "z9hG4bKinbound3bye")
	bye.AppendHeader(byeVia)

	got, err := s.HandleInDialogRequest(context.Background(), bye, "192.0.2.9:5060")
	require.NoError(t, err)
	require.Same(t, d, got)
	require.Equal(t, StateTerminated, d.State())
	require.Equal(t, 1, transport.count())
}

func TestStackHandleInDialogRequestUnknownDialog(t *testing.T) {
	s, _ := newTestStack(t)
	bye := sip.NewRequest(sip.BYE, sip.Uri{User: "alice", Host: "example.com"})
	bye.AppendHeader(sip.NewHeader("Call-ID", "no-such-call"))
	bye.AppendHeader(&sip.FromHeader{Address: sip.Uri{User: "carol", Host: "192.0.2.9"}, Params: sip.HeaderParams{"tag": "x"}})
	bye.AppendHeader(&sip.ToHeader{Address: sip.Uri{User: "alice", Host: "example.com"}, Params: sip.HeaderParams{"tag": "y"}})
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: 2, MethodName: sip.BYE})
	via := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	via.Params.Add("branch", "z9hG4bKghost")
	bye.AppendHeader(via)

	_, err := s.HandleInDialogRequest(context.Background(), bye, "192.0.2.9:5060")
	require.ErrorIs(t, err, ErrDialogNotFound)
}

func TestStackSendByeTerminatesDialog(t *testing.T) {
	s, transport := newTestStack(t)
	target := sip.Uri{User: "bob", Host: "192.0.2.5"}
	d, err := s.PlaceCall(context.Background(), target, "192.0.2.5:5060")
	require.NoError(t, err)

	resp := &sip.Response{StatusCode: 200}
	require.NoError(t, d.UpdateFrom2xx(resp, "bobtag", nil, target))

	require.NoError(t, s.SendBye(context.Background(), d, "192.0.2.5:5060"))
	require.Equal(t, StateTerminated, d.State())
	require.Equal(t, 2, transport.count()) // INVITE + BYE
}
