package transaction

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/emiago/sipgo/sip"

	"github.com/corevox/corevox/internal/clock"
)

// NIST is a non-INVITE server transaction (RFC 3261 §17.2.2): Trying ->
// Proceeding -> Completed -> Terminated, reusing the last sent response
// for any retransmitted request while Completed.
type NIST struct {
	key       Key
	request   *sip.Request
	transport Transport
	clk       clock.Clock

	state int32

	mu        sync.Mutex
	callbacks []func(State)

	lastResponse *sip.Response
	done         chan struct{}
	closeOnce    sync.Once

	timerJ clock.Timer
}

// NewNIST constructs a non-INVITE server transaction in Trying.
func NewNIST(request *sip.Request, transport Transport, clk clock.Clock) (*NIST, error) {
	key, err := KeyForRequest(request, false)
	if err != nil {
		return nil, err
	}
	if request.Method == sip.INVITE || request.Method == sip.ACK {
		return nil, ErrInvalidRequest
	}
	return &NIST{
		key:       key,
		request:   request,
		transport: transport,
		clk:       clk,
		state:     int32(StateTrying),
		done:      make(chan struct{}),
	}, nil
}

func (t *NIST) Key() Key     { return t.key }
func (t *NIST) State() State { return State(atomic.LoadInt32(&t.state)) }
func (t *NIST) Done() <-chan struct{} { return t.done }

func (t *NIST) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
	t.mu.Lock()
	cbs := append([]func(State){}, t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (t *NIST) OnStateChange(cb func(State)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// SendResponse sends resp, advancing Trying/Proceeding -> Completed on any
// final response. A 1xx leaves the transaction in Proceeding.
func (t *NIST) SendResponse(ctx context.Context, destination string, resp *sip.Response) error {
	state := t.State()
	if state != StateTrying && state != StateProceeding {
		return ErrInvalidState
	}
	if err := t.transport.Send(ctx, destination, resp); err != nil {
		return err
	}
	t.lastResponse = resp
	if is1xx(resp) {
		t.setState(StateProceeding)
		return nil
	}

	t.setState(StateCompleted)
	j := TimerJ
	if t.transport.IsReliable() {
		j = TimerJReliable
	}
	t.timerJ = t.clk.AfterFunc(j, func() {
		t.setState(StateTerminated)
		t.close()
	})
	return nil
}

// HandleRetransmittedRequest resends the last final response while
// Completed, absorbing request retransmits per RFC 3261 §17.2.2.
func (t *NIST) HandleRetransmittedRequest(ctx context.Context, destination string) error {
	if t.State() != StateCompleted || t.lastResponse == nil {
		return nil
	}
	return t.transport.Send(ctx, destination, t.lastResponse)
}

// Terminate forces the transaction to Terminated.
func (t *NIST) Terminate() {
	if t.timerJ != nil {
		t.timerJ.Stop()
		t.timerJ = nil
	}
	t.setState(StateTerminated)
	t.close()
}

func (t *NIST) close() {
	t.closeOnce.Do(func() { close(t.done) })
}
