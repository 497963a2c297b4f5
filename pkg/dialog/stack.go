package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"

	"github.com/corevox/corevox/internal/clock"
	"github.com/corevox/corevox/pkg/transaction"
)

// Stack wires the dialog Registry to the transaction Manager, routing
// transaction-layer events into Dialog state transitions. It drives its
// own transaction.Manager rather than sipgo's built-in transaction engine,
// so the transaction layer stays a first-class, independently testable
// component instead of being buried inside the transport library.
type Stack struct {
	registry *Registry
	txm      *transaction.Manager
	transport transaction.Transport
	clk      clock.Clock
	rnd      clock.Random
	logger   *slog.Logger

	localURI sip.Uri

	mu              sync.Mutex
	onIncomingCall  func(d *Dialog, req *sip.Request)
	onDialogState   func(d *Dialog, s State)
	onIncomingRefer func(d *Dialog, req *sip.Request)
}

// NewStack constructs a Stack bound to localURI (used as the From address
// for outbound requests) over the given transport.
func NewStack(localURI sip.Uri, transport transaction.Transport, clk clock.Clock, rnd clock.Random, logger *slog.Logger) *Stack {
	return &Stack{
		registry:  NewRegistry(),
		txm:       transaction.NewManager(transport, clk, logger),
		transport: transport,
		clk:       clk,
		rnd:       rnd,
		logger:    logger,
		localURI:  localURI,
	}
}

// OnIncomingCall registers the callback invoked when HandleInvite creates a
// new UAS dialog for an inbound INVITE. HandleInvite does not look for an
// existing dialog first.
func (s *Stack) OnIncomingCall(cb func(d *Dialog, req *sip.Request)) {
	s.mu.Lock()
	s.onIncomingCall = cb
	s.mu.Unlock()
}

// OnDialogState registers the callback invoked on every dialog state
// transition, for any dialog this Stack manages.
func (s *Stack) OnDialogState(cb func(d *Dialog, s State)) {
	s.mu.Lock()
	s.onDialogState = cb
	s.mu.Unlock()
}

// OnIncomingRefer registers the callback invoked when an in-dialog REFER is
// observed via HandleInDialogRequest.
func (s *Stack) OnIncomingRefer(cb func(d *Dialog, req *sip.Request)) {
	s.mu.Lock()
	s.onIncomingRefer = cb
	s.mu.Unlock()
}

func (s *Stack) notifyDialogState(d *Dialog, st State) {
	s.mu.Lock()
	cb := s.onDialogState
	s.mu.Unlock()
	if cb != nil {
		cb(d, st)
	}
}

// PlaceCall builds and sends an initial INVITE to target via destination,
// creating a UAC dialog and wiring it to the resulting ICT. The returned
// Dialog starts in Initial; callers observe its progress through
// OnDialogState or by polling State().
func (s *Stack) PlaceCall(ctx context.Context, target sip.Uri, destination string) (*Dialog, error) {
	callID := s.rnd.CallID()
	localTag := s.rnd.Tag()

	invite := sip.NewRequest(sip.INVITE, target)
	invite.AppendHeader(sip.NewHeader("Call-ID", callID))
	invite.AppendHeader(&sip.FromHeader{Address: s.localURI, Params: sip.HeaderParams{"tag": localTag}})
	invite.AppendHeader(&sip.ToHeader{Address: target})
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	via := &sip.ViaHeader{ProtocolName: "SIP", ProtocolVersion: "2.0", Params: sip.NewParams()}
	via.Params.Add("branch", s.rnd.Branch())
	invite.AppendHeader(via)

	d := NewUACDialog(callID, s.localURI, target, localTag, invite, s.clk, s.rnd, s.logger)
	d.OnStateChange(func(st State) { s.notifyDialogState(d, st) })
	s.registry.Put(d)

	ict, err := s.txm.NewClientInvite(ctx, invite, destination)
	if err != nil {
		return nil, errors.Wrap(err, "dialog: start INVITE transaction")
	}
	go s.driveICT(ctx, d, ict, destination)
	return d, nil
}

// driveICT pumps an ICT's responses into dialog state transitions and
// generates/sends the ACK for a 2xx, which RFC 3261 §13.2.2.4 makes the
// dialog layer's responsibility rather than the transaction's.
func (s *Stack) driveICT(ctx context.Context, d *Dialog, ict *transaction.ICT, destination string) {
	for {
		select {
		case resp, ok := <-ict.Responses():
			if !ok {
				return
			}
			s.handleUACResponse(ctx, d, resp, destination)
			if resp.StatusCode >= 200 {
				return
			}
		case err, ok := <-ict.Errors():
			if ok && err != nil {
				s.logger.Warn("dialog: INVITE transaction error", "call_id", d.CallID(), "error", err)
				_ = d.Terminate()
			}
			return
		case <-ict.Done():
			return
		}
	}
}

func (s *Stack) handleUACResponse(ctx context.Context, d *Dialog, resp *sip.Response, destination string) {
	remoteToTag := toTag(resp.To())
	routeSet := reverseRouteSet(resp)
	target := contactTarget(resp, d)

	switch {
	case resp.StatusCode >= 100 && resp.StatusCode < 200:
		if remoteToTag != "" {
			_ = d.PromoteToEarly(remoteToTag, routeSet, target)
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := d.UpdateFrom2xx(resp, remoteToTag, routeSet, target); err != nil {
			s.logger.Warn("dialog: UpdateFrom2xx failed", "call_id", d.CallID(), "error", err)
			return
		}
		s.registry.Put(d)
		ack, err := d.BuildAck(resp)
		if err != nil {
			s.logger.Warn("dialog: BuildAck failed", "call_id", d.CallID(), "error", err)
			return
		}
		if err := s.transport.Send(ctx, destination, ack); err != nil {
			s.logger.Warn("dialog: ACK send failed", "call_id", d.CallID(), "error", err)
		}
	default:
		_ = d.Terminate()
	}
}

// HandleInvite processes a fresh inbound INVITE (no to-tag yet; callers
// are expected to route re-INVITEs carrying a to-tag to
// HandleInDialogRequest instead, since only the initial INVITE creates a
// dialog). It creates a UAS dialog and IST and invokes OnIncomingCall so
// the session layer can decide how to answer.
func (s *Stack) HandleInvite(req *sip.Request) (*Dialog, *transaction.IST, error) {
	callID := req.CallID().Value()

	localTag := s.rnd.Tag()
	d := NewUASDialog(callID, calleeURIOf(req), req.From().Address, localTag, req, s.clk, s.rnd, s.logger)
	// the caller's from-tag and contact are known immediately from the
	// INVITE itself, unlike the UAC side which only learns the callee's
	// to-tag and contact from a later response.
	d.remoteTag = fromTag(req.From())
	if c := req.Contact(); c != nil {
		d.remoteTarget = c.Address
	} else {
		d.remoteTarget = req.From().Address
	}
	d.OnStateChange(func(st State) { s.notifyDialogState(d, st) })
	s.registry.Put(d)

	ist, err := s.txm.NewServerInvite(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dialog: create server INVITE transaction")
	}

	s.mu.Lock()
	cb := s.onIncomingCall
	s.mu.Unlock()
	if cb != nil {
		cb(d, req)
	}
	return d, ist, nil
}

// BuildResponse constructs a response to req carrying d's local tag in To,
// the way the UAS side of a dialog must per RFC 3261 §12.1.1 (the tag is
// not added automatically by sip.NewResponseFromRequest).
func (s *Stack) BuildResponse(req *sip.Request, d *Dialog, statusCode int, reason string) *sip.Response {
	resp := sip.NewResponseFromRequest(req, statusCode, reason, nil)
	to := resp.To()
	if to.Params == nil {
		to.Params = sip.NewParams()
	}
	to.Params.Add("tag", d.localTag)
	return resp
}

// Answer sends a response on ist for dialog d, advancing the dialog to
// Early (1xx with a to-tag) or Confirmed (2xx) as appropriate. d's local
// tag must already equal the to-tag carried in resp.
func (s *Stack) Answer(ctx context.Context, d *Dialog, ist *transaction.IST, destination string, resp *sip.Response) error {
	if err := ist.SendResponse(ctx, destination, resp); err != nil {
		return errors.Wrap(err, "dialog: send response")
	}
	// the UAS already knows its dialog's remote tag/target from the INVITE
	// (set in HandleInvite); these calls only drive the state transition.
	switch {
	case resp.StatusCode >= 100 && resp.StatusCode < 200:
		if toTag(resp.To()) != "" {
			_ = d.PromoteToEarly(d.remoteTag, d.routeSet, d.remoteTarget)
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := d.UpdateFrom2xx(resp, d.remoteTag, d.routeSet, d.remoteTarget); err != nil {
			return err
		}
		s.registry.Put(d)
	}
	return nil
}

// HandleAck routes an inbound ACK to the IST it confirms.
func (s *Stack) HandleAck(req *sip.Request) error {
	return s.txm.HandleAck(req)
}

// HandleResponse routes an inbound response to its matching client
// transaction (used for in-dialog non-INVITE requests' responses, and any
// INVITE responses arriving outside PlaceCall's own goroutine).
func (s *Stack) HandleResponse(resp *sip.Response) error {
	return s.txm.HandleResponse(resp)
}

// HandleInDialogRequest routes an inbound in-dialog request (BYE, or any
// other non-INVITE method carried within an existing dialog) to the Dialog
// it belongs to, matched by (Call-ID, local tag, remote tag) with our
// local tag read from the request's To header and the peer's tag read
// from From, per RFC 3261 §12.2.2. Unlike HandleInvite (a fresh dialog),
// in-dialog requests never create a new Dialog: ErrDialogNotFound signals
// a request for a dialog this Stack does not hold.
func (s *Stack) HandleInDialogRequest(ctx context.Context, req *sip.Request, destination string) (*Dialog, error) {
	key := Key{
		CallID:    req.CallID().Value(),
		LocalTag:  toTag(req.To()),
		RemoteTag: fromTag(req.From()),
	}
	d, ok := s.registry.Get(key)
	if !ok {
		return nil, errors.Wrapf(ErrDialogNotFound, "call-id %s", key.CallID)
	}

	nist, err := s.txm.NewServerNonInvite(req)
	if err != nil {
		return d, errors.Wrap(err, "dialog: create server non-INVITE transaction")
	}
	resp := s.BuildResponse(req, d, 200, "OK")
	if err := nist.SendResponse(ctx, destination, resp); err != nil {
		return d, errors.Wrap(err, "dialog: respond to in-dialog request")
	}

	if req.Method == sip.BYE {
		if err := d.Terminate(); err != nil {
			return d, err
		}
	}
	if req.Method == sip.REFER {
		s.mu.Lock()
		cb := s.onIncomingRefer
		s.mu.Unlock()
		if cb != nil {
			cb(d, req)
		}
	}
	return d, nil
}

// SendBye builds and sends an in-dialog BYE, terminating d as soon as the
// BYE's client transaction has been started, without waiting for its
// response.
func (s *Stack) SendBye(ctx context.Context, d *Dialog, destination string) error {
	req, err := d.CreateRequest(sip.BYE)
	if err != nil {
		return err
	}
	_, err = s.txm.NewClientNonInvite(ctx, req, destination)
	if err != nil {
		return errors.Wrap(err, "dialog: send BYE")
	}
	return d.Terminate()
}

// Registry exposes the Stack's dialog registry for lookups by callers that
// need to match incoming in-dialog requests to a Dialog.
func (s *Stack) Registry() *Registry { return s.registry }

func toTag(h *sip.ToHeader) string {
	if h == nil || h.Params == nil {
		return ""
	}
	tag, _ := h.Params.Get("tag")
	return tag
}

func fromTag(h *sip.FromHeader) string {
	if h == nil || h.Params == nil {
		return ""
	}
	tag, _ := h.Params.Get("tag")
	return tag
}

func reverseRouteSet(resp *sip.Response) []sip.Uri {
	var recordRoutes []sip.Uri
	headers := resp.GetHeaders("Record-Route")
	for i := len(headers) - 1; i >= 0; i-- {
		if rr, ok := headers[i].(*sip.RecordRouteHeader); ok {
			recordRoutes = append(recordRoutes, rr.Address)
		}
	}
	return recordRoutes
}

func contactTarget(resp *sip.Response, d *Dialog) sip.Uri {
	if c := resp.Contact(); c != nil {
		return c.Address
	}
	return d.remoteTarget
}

func calleeURIOf(req *sip.Request) sip.Uri {
	if to := req.To(); to != nil {
		return to.Address
	}
	return req.Recipient
}
