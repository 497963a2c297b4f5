package dialog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/corevox/corevox/internal/clock"
)

var (
	ErrInvalidState      = errors.New("dialog: invalid state for operation")
	ErrRouteSetImmutable = errors.New("dialog: route set is immutable outside recovery")
	ErrNotRecovering     = errors.New("dialog: not in recovery mode")
	ErrDialogNotFound    = errors.New("dialog: no matching dialog for in-dialog request")
)

// Dialog is a peer-to-peer SIP relationship per RFC 3261 §12, identified
// by (call_id, local_tag, remote_tag).
type Dialog struct {
	mu sync.RWMutex

	fsm *fsm.FSM

	callID      string
	localURI    sip.Uri
	remoteURI   sip.Uri
	localTag    string
	remoteTag   string
	localSeq    uint32
	remoteSeq   uint32
	routeSet    []sip.Uri
	remoteTarget sip.Uri
	isInitiator bool
	secure      bool

	inviteRequest  *sip.Request
	lastResponse   *sip.Response
	pendingAck     *sip.Request

	recoveryReason string

	referSubscriptions map[string]*ReferSubscription

	createdAt time.Time

	clk    clock.Clock
	rnd    clock.Random
	logger *slog.Logger

	stateCallbacks []func(State)
}

// NewUACDialog creates a dialog in Initial state for an outbound INVITE.
// Per RFC 3261 §12.1.1 it promotes to Early on the first provisional
// response carrying a to-tag, or straight to Confirmed on the first 2xx.
func NewUACDialog(callID string, localURI, remoteURI sip.Uri, localTag string, inviteRequest *sip.Request, clk clock.Clock, rnd clock.Random, logger *slog.Logger) *Dialog {
	d := newDialog(callID, localURI, remoteURI, localTag, true, clk, rnd, logger)
	d.inviteRequest = inviteRequest
	d.localSeq = 1
	return d
}

// NewUASDialog creates a dialog for an inbound INVITE. Per RFC 3261
// §12.1.1 the UAS mints its local tag when sending the first reliable
// response carrying a to-tag, so callers pass that freshly-generated tag
// in rather than having it generated here.
func NewUASDialog(callID string, localURI, remoteURI sip.Uri, localTag string, inviteRequest *sip.Request, clk clock.Clock, rnd clock.Random, logger *slog.Logger) *Dialog {
	d := newDialog(callID, localURI, remoteURI, localTag, false, clk, rnd, logger)
	d.inviteRequest = inviteRequest
	d.remoteSeq = cseqOf(inviteRequest)
	return d
}

func newDialog(callID string, localURI, remoteURI sip.Uri, localTag string, isInitiator bool, clk clock.Clock, rnd clock.Random, logger *slog.Logger) *Dialog {
	d := &Dialog{
		callID:              callID,
		localURI:            localURI,
		remoteURI:           remoteURI,
		localTag:            localTag,
		isInitiator:         isInitiator,
		referSubscriptions:  make(map[string]*ReferSubscription),
		createdAt:           clk.Now(),
		clk:                 clk,
		rnd:                 rnd,
		logger:              logger,
	}
	d.fsm = fsm.NewFSM(
		string(StateInitial),
		fsm.Events{
			{Name: eventProvisionalWithTag, Src: []string{string(StateInitial)}, Dst: string(StateEarly)},
			{Name: eventConfirm, Src: []string{string(StateInitial), string(StateEarly)}, Dst: string(StateConfirmed)},
			{Name: eventEnterRecovery, Src: []string{string(StateConfirmed)}, Dst: string(StateRecovering)},
			{Name: eventCompleteRecovery, Src: []string{string(StateRecovering)}, Dst: string(StateConfirmed)},
			{Name: eventTerminate, Src: []string{string(StateInitial), string(StateEarly), string(StateConfirmed), string(StateRecovering)}, Dst: string(StateTerminated)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				d.notify(State(e.Dst))
			},
		},
	)
	return d
}

func cseqOf(req *sip.Request) uint32 {
	if req == nil {
		return 0
	}
	if cseq := req.CSeq(); cseq != nil {
		return cseq.SeqNo
	}
	return 0
}

// Key returns the dialog's current matching key.
func (d *Dialog) Key() Key {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Key{CallID: d.callID, LocalTag: d.localTag, RemoteTag: d.remoteTag}
}

// State returns the current dialog state.
func (d *Dialog) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return State(d.fsm.Current())
}

// OnStateChange registers a callback invoked on every transition.
func (d *Dialog) OnStateChange(cb func(State)) {
	d.mu.Lock()
	d.stateCallbacks = append(d.stateCallbacks, cb)
	d.mu.Unlock()
}

// notify runs from the fsm's enter_state callback, which every transition
// method triggers while already holding d.mu, so it reads stateCallbacks
// without taking the lock again.
func (d *Dialog) notify(s State) {
	cbs := append([]func(State){}, d.stateCallbacks...)
	for _, cb := range cbs {
		cb(s)
	}
}

// PromoteToEarly adopts the remote tag from a provisional response and
// moves Initial -> Early.
func (d *Dialog) PromoteToEarly(remoteTag string, routeSet []sip.Uri, remoteTarget sip.Uri) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fsm.Current() != string(StateInitial) {
		return nil // already past Early; duplicate provisional, not an error
	}
	d.remoteTag = remoteTag
	d.routeSet = routeSet
	d.remoteTarget = remoteTarget
	return d.fsm.Event(context.Background(), eventProvisionalWithTag)
}

// UpdateFrom2xx implements create_request's companion operation: for
// early-to-confirmed promotion, adopting the remote tag if still absent
// and installing the route set from Record-Route (reversed for the UAC,
// as-is for the UAS — callers pass the already-oriented slice).
func (d *Dialog) UpdateFrom2xx(resp *sip.Response, remoteTag string, routeSet []sip.Uri, remoteTarget sip.Uri) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.fsm.Current()
	if current != string(StateInitial) && current != string(StateEarly) {
		return errors.Wrapf(ErrInvalidState, "cannot confirm dialog from %s", current)
	}
	if d.remoteTag == "" {
		d.remoteTag = remoteTag
	}
	// route set/remote target are only final once confirmed, so the 2xx's
	// values replace any adopted from an earlier provisional response.
	d.routeSet = routeSet
	d.remoteTarget = remoteTarget
	d.lastResponse = resp
	return d.fsm.Event(context.Background(), eventConfirm)
}

// CreateRequest builds an in-dialog request for method, using the stored
// route set and remote target, incrementing local_seq. Supported for
// re-INVITE, UPDATE, BYE, REFER, NOTIFY (and any other in-dialog method).
func (d *Dialog) CreateRequest(method sip.RequestMethod) (*sip.Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := State(d.fsm.Current())
	if state != StateConfirmed && state != StateRecovering {
		return nil, errors.Wrapf(ErrInvalidState, "cannot build in-dialog request from %s", state)
	}

	d.localSeq++
	req := sip.NewRequest(method, d.remoteTarget)
	req.AppendHeader(sip.NewHeader("Call-ID", d.callID))
	req.AppendHeader(&sip.FromHeader{Address: d.localURI, Params: sip.HeaderParams{"tag": d.localTag}})
	req.AppendHeader(&sip.ToHeader{Address: d.remoteURI, Params: sip.HeaderParams{"tag": d.remoteTag}})
	req.AppendHeader(&sip.CSeqHeader{SeqNo: d.localSeq, MethodName: method})

	for i := len(d.routeSet) - 1; i >= 0; i-- {
		req.AppendHeader(&sip.RouteHeader{Address: d.routeSet[i]})
	}

	via := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	via.Params.Add("branch", d.rnd.Branch())
	req.AppendHeader(via)

	return req, nil
}

// PendingAck returns the ACK built for the last 2xx, if any is still
// outstanding (retransmitted 2xx responses resend this same ACK rather
// than building a new one).
func (d *Dialog) PendingAck() *sip.Request {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pendingAck
}

// BuildAck generates the ACK for a 2xx response to the initial INVITE.
// The dialog layer owns ACK generation for 2xx responses (not the ICT,
// which only generates the ACK for non-2xx final responses).
func (d *Dialog) BuildAck(resp *sip.Response) (*sip.Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inviteRequest == nil {
		return nil, errors.New("dialog: no INVITE to ACK")
	}

	ack := sip.NewRequest(sip.ACK, d.inviteRequest.Recipient)
	ack.AppendHeader(d.inviteRequest.CallID())
	ack.AppendHeader(d.inviteRequest.From())
	ack.AppendHeader(resp.To())
	inviteCSeq := d.inviteRequest.CSeq()
	ack.AppendHeader(&sip.CSeqHeader{SeqNo: inviteCSeq.SeqNo, MethodName: sip.ACK})
	for i := len(d.routeSet) - 1; i >= 0; i-- {
		ack.AppendHeader(&sip.RouteHeader{Address: d.routeSet[i]})
	}
	d.pendingAck = ack
	return ack, nil
}

// EnterRecoveryMode moves Confirmed -> Recovering: an explicit transient
// state that allows retrying in-dialog operations (e.g. after a
// transport failure) without tearing down the dialog.
func (d *Dialog) EnterRecoveryMode(reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fsm.Event(context.Background(), eventEnterRecovery); err != nil {
		return errors.Wrap(ErrInvalidState, err.Error())
	}
	d.recoveryReason = reason
	return nil
}

// CompleteRecovery moves Recovering -> Confirmed.
func (d *Dialog) CompleteRecovery() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fsm.Event(context.Background(), eventCompleteRecovery); err != nil {
		return errors.Wrap(ErrNotRecovering, err.Error())
	}
	d.recoveryReason = ""
	return nil
}

// RecoveryReason reports why the dialog entered recovery, empty otherwise.
func (d *Dialog) RecoveryReason() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.recoveryReason
}

// Terminate moves the dialog to Terminated from any non-terminal state.
func (d *Dialog) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fsm.Current() == string(StateTerminated) {
		return nil
	}
	return d.fsm.Event(context.Background(), eventTerminate)
}

// RouteSet returns a copy of the dialog's current route set. It is fixed
// for the life of the dialog once established (RFC 3261 §12.1.2), and
// only mutable while the dialog is in recovery.
func (d *Dialog) RouteSet() []sip.Uri {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]sip.Uri{}, d.routeSet...)
}

// SetRouteSetDuringRecovery replaces the route set; valid only while
// Recovering.
func (d *Dialog) SetRouteSetDuringRecovery(routeSet []sip.Uri) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fsm.Current() != string(StateRecovering) {
		return ErrRouteSetImmutable
	}
	d.routeSet = routeSet
	return nil
}

// RemoteSeq returns the highest CSeq number seen from the remote side.
func (d *Dialog) RemoteSeq() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.remoteSeq
}

// ObserveRemoteSeq records an in-dialog request's CSeq, used by callers to
// detect and reject out-of-order/retransmitted requests.
func (d *Dialog) ObserveRemoteSeq(seq uint32) (inOrder bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq <= d.remoteSeq && d.remoteSeq != 0 {
		return false
	}
	d.remoteSeq = seq
	return true
}

// IsInitiator reports whether this dialog was created as the UAC.
func (d *Dialog) IsInitiator() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isInitiator
}

// CallID returns the dialog's Call-ID.
func (d *Dialog) CallID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.callID
}
