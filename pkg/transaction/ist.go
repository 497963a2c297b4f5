package transaction

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emiago/sipgo/sip"

	"github.com/corevox/corevox/internal/clock"
)

// IST is an INVITE server transaction (RFC 3261 §17.2.1): Proceeding ->
// Completed (on sending a final non-2xx response) -> Confirmed (on ACK)
// -> Terminated, or straight to Terminated after a 2xx (the dialog layer
// owns 2xx retransmission per RFC 3261 §13.3.1.4, not the transaction).
type IST struct {
	key       Key
	request   *sip.Request
	transport Transport
	clk       clock.Clock
	logger    *slog.Logger

	state int32

	mu        sync.Mutex
	callbacks []func(State)

	lastResponse *sip.Response
	ack          chan *sip.Request
	done         chan struct{}
	closeOnce    sync.Once

	timerG, timerH, timerI clock.Timer
}

// NewIST constructs an INVITE server transaction starting in Proceeding
// (the 100 Trying is assumed sent by the caller before/while constructing
// this transaction, matching how UAS code paths work in practice).
func NewIST(request *sip.Request, transport Transport, clk clock.Clock, logger *slog.Logger) (*IST, error) {
	key, err := KeyForRequest(request, false)
	if err != nil {
		return nil, err
	}
	return &IST{
		key:       key,
		request:   request,
		transport: transport,
		clk:       clk,
		logger:    logger,
		state:     int32(StateProceeding),
		ack:       make(chan *sip.Request, 1),
		done:      make(chan struct{}),
	}, nil
}

func (t *IST) Key() Key     { return t.key }
func (t *IST) State() State { return State(atomic.LoadInt32(&t.state)) }

func (t *IST) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
	t.mu.Lock()
	cbs := append([]func(State){}, t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (t *IST) OnStateChange(cb func(State)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// ACK delivers the request's matching ACK, once received.
func (t *IST) ACK() <-chan *sip.Request { return t.ack }

// Done is closed once the transaction reaches Terminated.
func (t *IST) Done() <-chan struct{} { return t.done }

// SendResponse sends resp over the transaction's transport and advances
// state per RFC 3261 §17.2.1.
func (t *IST) SendResponse(ctx context.Context, destination string, resp *sip.Response) error {
	state := t.State()
	switch {
	case state == StateProceeding && is1xx(resp):
		t.lastResponse = resp
		return t.transport.Send(ctx, destination, resp)

	case state == StateProceeding && is2xx(resp):
		t.lastResponse = resp
		if err := t.transport.Send(ctx, destination, resp); err != nil {
			return err
		}
		// RFC 3261 §13.3.1.4: the core, not this transaction, retransmits
		// 2xx responses until ACK; the transaction itself terminates.
		t.setState(StateTerminated)
		t.close()
		return nil

	case state == StateProceeding && isFinalNon2xx(resp):
		t.lastResponse = resp
		if err := t.transport.Send(ctx, destination, resp); err != nil {
			return err
		}
		t.setState(StateCompleted)
		if !t.transport.IsReliable() {
			t.timerG = t.clk.AfterFunc(TimerG, func() { t.retransmitG(ctx, destination) })
		}
		t.timerH = t.clk.AfterFunc(TimerH, func() { t.onTimerH() })
		return nil

	case state == StateCompleted:
		// Retransmit of the final response on its own trigger is handled
		// by Timer G; an explicit SendResponse call here would be a
		// duplicate send attempt and is rejected.
		return ErrInvalidState

	default:
		return ErrInvalidState
	}
}

func (t *IST) retransmitG(ctx context.Context, destination string) {
	if t.State() != StateCompleted {
		return
	}
	timerFiresTotal.WithLabelValues("G").Inc()
	if err := t.transport.Send(ctx, destination, t.lastResponse); err != nil {
		t.logger.Warn("transaction: IST retransmit failed", "branch", t.key.Branch, "error", err)
	}
	t.timerG = t.clk.AfterFunc(cappedRetransmit(TimerG), func() { t.retransmitG(ctx, destination) })
}

func (t *IST) onTimerH() {
	if t.State() != StateCompleted {
		return
	}
	timerFiresTotal.WithLabelValues("H").Inc()
	t.setState(StateTerminated)
	t.close()
}

// HandleAck processes an incoming ACK. A non-2xx ACK (matching this
// transaction's branch) moves Completed -> Confirmed and starts Timer I
// (RFC 3261 §17.2.1). A 2xx ACK is not part of the INVITE transaction at
// all (RFC 3261 §13.2.2.4, §17.1.1.3) — the dialog layer handles it
// directly — so only the non-2xx path is handled here.
func (t *IST) HandleAck(req *sip.Request) {
	if t.State() != StateCompleted {
		return
	}
	if t.timerG != nil {
		t.timerG.Stop()
		t.timerG = nil
	}
	if t.timerH != nil {
		t.timerH.Stop()
		t.timerH = nil
	}
	t.setState(StateConfirmed)
	select {
	case t.ack <- req:
	default:
	}

	i := TimerI
	if t.transport.IsReliable() {
		i = TimerIReliable
	}
	t.timerI = t.clk.AfterFunc(i, func() {
		t.setState(StateTerminated)
		t.close()
	})
}

// Terminate forces the transaction to Terminated.
func (t *IST) Terminate() {
	for _, timer := range []*clock.Timer{&t.timerG, &t.timerH, &t.timerI} {
		if *timer != nil {
			(*timer).Stop()
			*timer = nil
		}
	}
	t.setState(StateTerminated)
	t.close()
}

func (t *IST) close() {
	t.closeOnce.Do(func() { close(t.done) })
}
