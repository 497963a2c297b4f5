package transaction

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"

	"github.com/corevox/corevox/internal/clock"
)

// ICT is an INVITE client transaction (RFC 3261 §17.1.1): Calling ->
// Proceeding -> {Terminated on 2xx, Completed on 3xx-6xx} -> Terminated.
type ICT struct {
	key         Key
	request     *sip.Request
	destination string
	transport   Transport
	clk         clock.Clock
	logger      *slog.Logger

	state int32 // atomic State

	mu        sync.Mutex
	callbacks []func(State)

	responses chan *sip.Response
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once

	retransmitInterval time.Duration
	timerA, timerB, timerC, timerD clock.Timer

	enableTimerC bool
}

// ICTOption configures an ICT at construction.
type ICTOption func(*ICT)

// WithTimerC enables the optional proxy-role INVITE timeout (RFC 3261
// §16.6 item 11), disabled by default since a pure UAC never needs it —
// only a transaction acting as a proxy branch does.
func WithTimerC() ICTOption {
	return func(t *ICT) { t.enableTimerC = true }
}

// NewICT constructs an INVITE client transaction for request, which must
// already carry a Via header with a z9hG4bK-prefixed branch.
func NewICT(request *sip.Request, destination string, transport Transport, clk clock.Clock, logger *slog.Logger, opts ...ICTOption) (*ICT, error) {
	key, err := KeyForRequest(request, true)
	if err != nil {
		return nil, err
	}
	if request.Method != sip.INVITE {
		return nil, errors.Wrap(ErrInvalidRequest, "ICT requires an INVITE")
	}
	t := &ICT{
		key:                key,
		request:            request,
		destination:        destination,
		transport:           transport,
		clk:                 clk,
		logger:              logger,
		state:               int32(StateCalling),
		responses:           make(chan *sip.Response, 16),
		errs:                make(chan error, 1),
		done:                make(chan struct{}),
		retransmitInterval:  TimerA,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Key returns the transaction's matching key.
func (t *ICT) Key() Key { return t.key }

// State returns the current state.
func (t *ICT) State() State { return State(atomic.LoadInt32(&t.state)) }

func (t *ICT) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
	t.mu.Lock()
	cbs := append([]func(State){}, t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// OnStateChange registers a callback invoked on every state transition.
func (t *ICT) OnStateChange(cb func(State)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// Responses delivers every 1xx/2xx/3xx-6xx response the transaction sees.
// Callers are responsible for generating the ACK to 2xx responses (RFC
// 3261 §13.2.2.4 makes that a dialog-layer concern, not the transaction's).
func (t *ICT) Responses() <-chan *sip.Response { return t.responses }

// Errors delivers timeout/transport errors.
func (t *ICT) Errors() <-chan error { return t.errs }

// Start sends the initial INVITE and arms the transaction's timers.
func (t *ICT) Start(ctx context.Context) error {
	if t.State() != StateCalling {
		return ErrInvalidState
	}
	if err := t.transport.Send(ctx, t.destination, t.request); err != nil {
		t.terminate()
		return err
	}
	if !t.transport.IsReliable() {
		t.timerA = t.clk.AfterFunc(t.retransmitInterval, func() { t.onTimerA(ctx) })
	}
	t.timerB = t.clk.AfterFunc(TimerB, func() { t.onTimeout() })
	if t.enableTimerC {
		t.timerC = t.clk.AfterFunc(TimerC, func() { t.onTimeout() })
	}
	return nil
}

func (t *ICT) onTimerA(ctx context.Context) {
	if t.State() != StateCalling {
		return
	}
	timerFiresTotal.WithLabelValues("A").Inc()
	if err := t.transport.Send(ctx, t.destination, t.request); err != nil {
		t.sendErr(err)
		return
	}
	t.retransmitInterval = cappedRetransmit(t.retransmitInterval)
	t.timerA = t.clk.AfterFunc(t.retransmitInterval, func() { t.onTimerA(ctx) })
}

func (t *ICT) onTimeout() {
	if t.State() == StateTerminated {
		return
	}
	timerFiresTotal.WithLabelValues("B_or_C").Inc()
	t.sendErr(ErrTimeout)
	t.terminate()
}

func (t *ICT) sendErr(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

// HandleResponse feeds an incoming response through the state machine.
func (t *ICT) HandleResponse(resp *sip.Response) {
	state := t.State()
	switch {
	case state == StateCalling && is1xx(resp):
		t.stopTimer(&t.timerA)
		t.setState(StateProceeding)
		t.deliver(resp)

	case (state == StateCalling || state == StateProceeding) && is2xx(resp):
		t.stopAllTimers()
		t.deliver(resp)
		t.setState(StateTerminated)
		t.close()

	case state == StateProceeding && is1xx(resp):
		t.deliver(resp)

	case (state == StateCalling || state == StateProceeding) && isFinalNon2xx(resp):
		t.stopTimer(&t.timerA)
		t.stopTimer(&t.timerB)
		t.stopTimer(&t.timerC)
		t.setState(StateCompleted)
		t.deliver(resp)
		d := TimerD
		if t.transport.IsReliable() {
			d = TimerDReliable
		}
		t.timerD = t.clk.AfterFunc(d, func() {
			t.setState(StateTerminated)
			t.close()
		})

	case state == StateCompleted && isFinalNon2xx(resp):
		// Retransmitted final response; ACK is the dialog layer's job on
		// receipt of the original, nothing to resend here.
	}
}

func (t *ICT) deliver(resp *sip.Response) {
	select {
	case t.responses <- resp:
	default:
		t.logger.Warn("transaction: response channel full, dropping", "branch", t.key.Branch)
	}
}

func (t *ICT) stopTimer(timer *clock.Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}

func (t *ICT) stopAllTimers() {
	t.stopTimer(&t.timerA)
	t.stopTimer(&t.timerB)
	t.stopTimer(&t.timerC)
	t.stopTimer(&t.timerD)
}

// Cancel sends a CANCEL for this INVITE, valid only while Proceeding.
func (t *ICT) Cancel(ctx context.Context) (*sip.Request, error) {
	if t.State() != StateProceeding {
		return nil, ErrCannotCancel
	}
	cancel := sip.NewRequest(sip.CANCEL, t.request.Recipient)
	cancel.AppendHeader(t.request.Via())
	cancel.AppendHeader(t.request.From())
	cancel.AppendHeader(t.request.To())
	cancel.AppendHeader(t.request.CallID())
	cseq := t.request.CSeq()
	cancel.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	if err := t.transport.Send(ctx, t.destination, cancel); err != nil {
		return nil, err
	}
	return cancel, nil
}

// Terminate forces the transaction to Terminated, stopping all timers.
func (t *ICT) Terminate() {
	t.stopAllTimers()
	t.setState(StateTerminated)
	t.close()
}

func (t *ICT) terminate() {
	t.stopAllTimers()
	t.setState(StateTerminated)
	t.close()
}

func (t *ICT) close() {
	t.closeOnce.Do(func() { close(t.done) })
}

// Done is closed once the transaction reaches Terminated.
func (t *ICT) Done() <-chan struct{} { return t.done }

func is1xx(r *sip.Response) bool          { return r.StatusCode >= 100 && r.StatusCode < 200 }
func is2xx(r *sip.Response) bool          { return r.StatusCode >= 200 && r.StatusCode < 300 }
func isFinalNon2xx(r *sip.Response) bool  { return r.StatusCode >= 300 }
