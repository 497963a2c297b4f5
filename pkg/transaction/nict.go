package transaction

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/corevox/corevox/internal/clock"
)

// NICT is a non-INVITE client transaction (RFC 3261 §17.1.2): Trying ->
// Proceeding -> Completed -> Terminated. Every non-2xx and 2xx final
// response is treated alike; unlike INVITE there is no special 2xx path.
type NICT struct {
	key         Key
	request     *sip.Request
	destination string
	transport   Transport
	clk         clock.Clock
	logger      *slog.Logger

	state int32

	mu        sync.Mutex
	callbacks []func(State)

	responses chan *sip.Response
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once

	retransmitInterval     time.Duration
	timerE, timerF, timerK clock.Timer
}

// NewNICT constructs a non-INVITE client transaction. request.Method must
// not be INVITE or ACK (ACK is never its own transaction).
func NewNICT(request *sip.Request, destination string, transport Transport, clk clock.Clock, logger *slog.Logger) (*NICT, error) {
	key, err := KeyForRequest(request, true)
	if err != nil {
		return nil, err
	}
	if request.Method == sip.INVITE || request.Method == sip.ACK {
		return nil, ErrInvalidRequest
	}
	return &NICT{
		key:                key,
		request:            request,
		destination:        destination,
		transport:           transport,
		clk:                 clk,
		logger:              logger,
		state:               int32(StateTrying),
		responses:           make(chan *sip.Response, 16),
		errs:                make(chan error, 1),
		done:                make(chan struct{}),
		retransmitInterval:  TimerE,
	}, nil
}

func (t *NICT) Key() Key                      { return t.key }
func (t *NICT) State() State                  { return State(atomic.LoadInt32(&t.state)) }
func (t *NICT) Responses() <-chan *sip.Response { return t.responses }
func (t *NICT) Errors() <-chan error          { return t.errs }
func (t *NICT) Done() <-chan struct{}         { return t.done }

func (t *NICT) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
	t.mu.Lock()
	cbs := append([]func(State){}, t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (t *NICT) OnStateChange(cb func(State)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// Start sends the request and arms Timer E (retransmit) and Timer F
// (timeout).
func (t *NICT) Start(ctx context.Context) error {
	if t.State() != StateTrying {
		return ErrInvalidState
	}
	if err := t.transport.Send(ctx, t.destination, t.request); err != nil {
		t.Terminate()
		return err
	}
	if !t.transport.IsReliable() {
		t.timerE = t.clk.AfterFunc(t.retransmitInterval, func() { t.onTimerE(ctx) })
	}
	t.timerF = t.clk.AfterFunc(TimerF, t.onTimerF)
	return nil
}

func (t *NICT) onTimerE(ctx context.Context) {
	state := t.State()
	if state != StateTrying && state != StateProceeding {
		return
	}
	if err := t.transport.Send(ctx, t.destination, t.request); err != nil {
		select {
		case t.errs <- err:
		default:
		}
		return
	}
	t.retransmitInterval = cappedRetransmit(t.retransmitInterval)
	t.timerE = t.clk.AfterFunc(t.retransmitInterval, func() { t.onTimerE(ctx) })
}

func (t *NICT) onTimerF() {
	if t.State() == StateTerminated {
		return
	}
	select {
	case t.errs <- ErrTimeout:
	default:
	}
	t.Terminate()
}

// HandleResponse feeds a response through the state machine.
func (t *NICT) HandleResponse(resp *sip.Response) {
	state := t.State()
	switch {
	case state == StateTrying && is1xx(resp):
		t.setState(StateProceeding)
		t.deliver(resp)

	case state == StateProceeding && is1xx(resp):
		t.deliver(resp)

	case (state == StateTrying || state == StateProceeding) && resp.StatusCode >= 200:
		t.stopTimer(&t.timerE)
		t.stopTimer(&t.timerF)
		t.setState(StateCompleted)
		t.deliver(resp)
		k := TimerK
		if t.transport.IsReliable() {
			k = TimerKReliable
		}
		t.timerK = t.clk.AfterFunc(k, func() {
			t.setState(StateTerminated)
			t.close()
		})
	}
}

func (t *NICT) deliver(resp *sip.Response) {
	select {
	case t.responses <- resp:
	default:
		t.logger.Warn("transaction: response channel full, dropping", "branch", t.key.Branch)
	}
}

func (t *NICT) stopTimer(timer *clock.Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}

// Terminate forces the transaction to Terminated.
func (t *NICT) Terminate() {
	t.stopTimer(&t.timerE)
	t.stopTimer(&t.timerF)
	t.stopTimer(&t.timerK)
	t.setState(StateTerminated)
	t.close()
}

func (t *NICT) close() {
	t.closeOnce.Do(func() { close(t.done) })
}
