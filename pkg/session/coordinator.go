package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/corevox/corevox/internal/clock"
)

var (
	// ErrInvalidTransition is returned when an event does not apply to the
	// session's current state.
	ErrInvalidTransition = errors.New("session: event not valid for current state")
	// ErrRecoveryBudgetExhausted marks a session Failed(NetworkError) after
	// its configured retry budget for in-dialog transport failures runs out.
	ErrRecoveryBudgetExhausted = errors.New("session: recovery retry budget exhausted")
)

const (
	eventMakeCall     = "make_call"
	eventIncomingCall = "incoming_call"
	eventProvisional  = "provisional"
	eventReachActive  = "reach_active"
	eventRejectCall   = "reject_call"
	eventCallFailed   = "call_failed"
	eventHangupCall   = "hangup_call"
	eventDialogBye    = "dialog_bye"
	eventTerminated   = "dialog_terminated"
	eventHoldCall     = "hold_call"
	eventResumeCall   = "resume_call"
	eventCreateBridge = "create_bridge"
	eventDestroyBridge = "destroy_bridge"
)

// Config bounds a coordinator's behavior: the recovery retry budget and the
// history ring buffer's capacity.
type Config struct {
	RecoveryRetryBudget int
	HistoryCapacity     int
}

func (c Config) withDefaults() Config {
	if c.RecoveryRetryBudget <= 0 {
		c.RecoveryRetryBudget = 3
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = 50
	}
	return c
}

// SessionCoordinator is the unified call-control state machine owning one
// session's dialog and media lifecycle.
type SessionCoordinator struct {
	mu  sync.Mutex
	fsm *fsm.FSM

	role    Role
	actions Actions
	clk     clock.Clock
	logger  *slog.Logger
	history *History
	cfg     Config

	dialogEstablished bool
	mediaSessionReady bool
	sdpNegotiated     bool

	failureReason   FailureReason
	recoveryRetries int

	localSDPOffer  []byte
	remoteSDP      []byte

	stateCallbacks []func(State)
}

// New constructs a SessionCoordinator in Idle, bound to actions for all its
// side effects.
func New(role Role, actions Actions, clk clock.Clock, logger *slog.Logger, cfg Config) *SessionCoordinator {
	cfg = cfg.withDefaults()
	c := &SessionCoordinator{
		role:    role,
		actions: actions,
		clk:     clk,
		logger:  logger,
		history: NewHistory(cfg.HistoryCapacity),
		cfg:     cfg,
	}
	c.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventMakeCall, Src: []string{string(StateIdle)}, Dst: string(StateInitiating)},
			{Name: eventIncomingCall, Src: []string{string(StateIdle)}, Dst: string(StateRinging)},
			{Name: eventProvisional, Src: []string{string(StateInitiating)}, Dst: string(StateRinging)},
			{Name: eventReachActive, Src: []string{string(StateInitiating), string(StateRinging), string(StateResuming)}, Dst: string(StateActive)},
			{Name: eventRejectCall, Src: []string{string(StateRinging)}, Dst: string(StateFailed)},
			{Name: eventCallFailed, Src: []string{string(StateInitiating), string(StateRinging), string(StateActive), string(StateOnHold), string(StateResuming), string(StateBridged)}, Dst: string(StateFailed)},
			{Name: eventHangupCall, Src: []string{string(StateActive), string(StateOnHold), string(StateBridged), string(StateRinging), string(StateInitiating)}, Dst: string(StateTerminating)},
			{Name: eventDialogBye, Src: []string{string(StateActive), string(StateOnHold), string(StateBridged), string(StateTerminating)}, Dst: string(StateTerminating)},
			{Name: eventTerminated, Src: []string{string(StateTerminating)}, Dst: string(StateTerminated)},
			{Name: eventHoldCall, Src: []string{string(StateActive)}, Dst: string(StateOnHold)},
			{Name: eventResumeCall, Src: []string{string(StateOnHold)}, Dst: string(StateResuming)},
			{Name: eventCreateBridge, Src: []string{string(StateActive)}, Dst: string(StateBridged)},
			{Name: eventDestroyBridge, Src: []string{string(StateBridged)}, Dst: string(StateActive)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				stateTransitionsTotal.WithLabelValues(e.Src, e.Dst).Inc()
				c.notify(State(e.Dst))
			},
		},
	)
	return c
}

// State returns the session's current state.
func (c *SessionCoordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State(c.fsm.Current())
}

// Role reports whether this session is the UAC or UAS.
func (c *SessionCoordinator) Role() Role { return c.role }

// FailureReason reports why the session failed, empty if it has not.
func (c *SessionCoordinator) FailureReason() FailureReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureReason
}

// History returns the session's transition history buffer.
func (c *SessionCoordinator) History() *History { return c.history }

// OnStateChange registers a callback invoked on every state transition.
func (c *SessionCoordinator) OnStateChange(cb func(State)) {
	c.mu.Lock()
	c.stateCallbacks = append(c.stateCallbacks, cb)
	c.mu.Unlock()
}

func (c *SessionCoordinator) notify(s State) {
	cbs := append([]func(State){}, c.stateCallbacks...)
	for _, cb := range cbs {
		cb(s)
	}
}

// allReady reports whether the dialog is established, media is flowing,
// and SDP negotiation has completed — the three conditions that together
// must hold before a session can be considered Active.
func (c *SessionCoordinator) allReady() bool {
	return c.dialogEstablished && c.mediaSessionReady && c.sdpNegotiated
}

func (c *SessionCoordinator) guardsSnapshot() map[string]bool {
	return map[string]bool{
		"dialog_established":  c.dialogEstablished,
		"media_session_ready": c.mediaSessionReady,
		"sdp_negotiated":      c.sdpNegotiated,
		"all_ready":           c.allReady(),
	}
}

func (c *SessionCoordinator) recordTransition(from State, kind EventKind, guards map[string]bool, actionNames []string, start time.Time, err error) {
	c.history.record(TransitionRecord{
		Timestamp:  c.clk.Now(),
		FromState:  from,
		Event:      kind,
		Guards:     guards,
		Actions:    actionNames,
		ToState:    State(c.fsm.Current()),
		DurationMs: c.clk.Now().Sub(start).Milliseconds(),
		Err:        err,
	})
}

// tryReachActive fires the internal reach_active transition if all
// readiness flags are set and the current state can reach Active from it.
// Caller must hold c.mu.
func (c *SessionCoordinator) tryReachActive() error {
	if !c.allReady() {
		return nil
	}
	switch State(c.fsm.Current()) {
	case StateInitiating, StateRinging, StateResuming:
		if err := c.fsm.Event(context.Background(), eventReachActive); err != nil {
			return err
		}
		c.actions.TriggerCallEstablished()
	}
	return nil
}

// Dispatch feeds ev through the session's state table, running guards and
// actions for the current state.
func (c *SessionCoordinator) Dispatch(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.clk.Now()
	from := State(c.fsm.Current())
	var actionNames []string
	err := c.dispatchLocked(ctx, ev, &actionNames)
	c.recordTransition(from, ev.Kind, c.guardsSnapshot(), actionNames, start, err)
	return err
}

func (c *SessionCoordinator) dispatchLocked(ctx context.Context, ev Event, actionNames *[]string) error {
	run := func(name string, fn func() error) error {
		*actionNames = append(*actionNames, name)
		return fn()
	}

	switch ev.Kind {
	case EventMakeCall:
		if err := c.fsm.Event(context.Background(), eventMakeCall); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		return run("SendINVITE", func() error { return c.actions.SendINVITE(ctx, ev.Target, ev.SDP) })

	case EventIncomingCall:
		if err := c.fsm.Event(context.Background(), eventIncomingCall); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		c.remoteSDP = ev.SDP
		return nil

	case EventAcceptCall:
		if State(c.fsm.Current()) != StateRinging {
			return ErrInvalidTransition
		}
		answer, err := c.actions.NegotiateSDPAsUAS(ctx, c.remoteSDP)
		*actionNames = append(*actionNames, "NegotiateSDPAsUAS")
		if err != nil {
			return err
		}
		c.sdpNegotiated = true
		if err := run("SendSIPResponse", func() error { return c.actions.SendSIPResponse(ctx, 200, "OK") }); err != nil {
			return err
		}
		if err := run("StartMediaSession", func() error { return c.actions.StartMediaSession(ctx) }); err != nil {
			return err
		}
		_ = answer
		return nil

	case EventRejectCall:
		if err := c.fsm.Event(context.Background(), eventRejectCall); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		c.failureReason = FailureRejected
		code := 603
		reason := ev.Reason
		if reason == "" {
			reason = "Decline"
		}
		if err := run("SendSIPResponse", func() error { return c.actions.SendSIPResponse(ctx, code, reason) }); err != nil {
			return err
		}
		c.actions.TriggerCallTerminated(FailureRejected)
		return nil

	case EventHangupCall:
		preHangupState := State(c.fsm.Current())
		if err := c.fsm.Event(context.Background(), eventHangupCall); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		if preHangupState == StateInitiating || preHangupState == StateRinging {
			return run("SendCANCEL", func() error { return c.actions.SendCANCEL(ctx) })
		}
		return run("SendBYE", func() error { return c.actions.SendBYE(ctx) })

	case EventDialog180Ringing:
		if State(c.fsm.Current()) != StateInitiating {
			return nil // duplicate provisional, not an error
		}
		if err := c.fsm.Event(context.Background(), eventProvisional); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		return nil

	case EventDialog200OK:
		if State(c.fsm.Current()) != StateInitiating && State(c.fsm.Current()) != StateRinging {
			return ErrInvalidTransition
		}
		c.dialogEstablished = true
		if err := run("SendACK", func() error { return c.actions.SendACK(ctx) }); err != nil {
			return err
		}
		if c.role == RoleUAC && ev.SDP != nil {
			answer, err := c.actions.NegotiateSDPAsUAC(ctx, ev.SDP)
			*actionNames = append(*actionNames, "NegotiateSDPAsUAC")
			if err != nil {
				return err
			}
			_ = answer
			c.sdpNegotiated = true
		}
		if err := run("StartMediaSession", func() error { return c.actions.StartMediaSession(ctx) }); err != nil {
			return err
		}
		return c.tryReachActive()

	case EventDialogACK:
		return nil

	case EventDialogBYE:
		if err := c.fsm.Event(context.Background(), eventDialogBye); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		if err := run("StartDialogCleanup", func() error { return c.actions.StartDialogCleanup(ctx) }); err != nil {
			return err
		}
		return run("StartMediaCleanup", func() error { return c.actions.StartMediaCleanup(ctx) })

	case EventDialogTerminated:
		if err := c.fsm.Event(context.Background(), eventTerminated); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		c.actions.TriggerCallTerminated(c.failureReason)
		return nil

	case EventMediaSessionReady:
		c.mediaSessionReady = true
		return c.tryReachActive()

	case EventSDPOffer:
		c.localSDPOffer = ev.SDP
		return nil

	case EventSDPAnswer:
		c.sdpNegotiated = true
		return c.tryReachActive()

	case EventHoldCall:
		if err := c.fsm.Event(context.Background(), eventHoldCall); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		return run("SendReINVITE", func() error { return c.actions.SendReINVITE(ctx, nil) })

	case EventResumeCall:
		if err := c.fsm.Event(context.Background(), eventResumeCall); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		c.mediaSessionReady = false
		return run("SendReINVITE", func() error { return c.actions.SendReINVITE(ctx, nil) })

	case EventTransferRequested:
		if ev.Attended {
			return run("InitiateAttendedTransfer", func() error { return c.actions.InitiateAttendedTransfer(ctx, ev.Target) })
		}
		return run("InitiateBlindTransfer", func() error { return c.actions.InitiateBlindTransfer(ctx, ev.Target) })

	case EventRecoveryExhausted:
		c.recoveryRetries++
		if c.recoveryRetries < c.cfg.RecoveryRetryBudget {
			return nil
		}
		if err := c.fsm.Event(context.Background(), eventCallFailed); err != nil {
			return errors.Wrap(ErrInvalidTransition, err.Error())
		}
		c.failureReason = FailureNetworkError
		c.actions.TriggerCallTerminated(FailureNetworkError)
		return ErrRecoveryBudgetExhausted

	default:
		return errors.Errorf("session: unknown event kind %q", ev.Kind)
	}
}

// Bridge links this session's media to other's and moves this session to
// Bridged. Both sessions must already be Active; call Bridge on the other
// side too if it must also move to Bridged.
func (c *SessionCoordinator) Bridge(ctx context.Context, other *SessionCoordinator) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if State(c.fsm.Current()) != StateActive {
		return ErrInvalidTransition
	}
	if err := c.actions.CreateBridge(ctx, other); err != nil {
		return err
	}
	return c.fsm.Event(context.Background(), eventCreateBridge)
}

// Unbridge tears down a bridge, returning this session to Active.
func (c *SessionCoordinator) Unbridge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if State(c.fsm.Current()) != StateBridged {
		return ErrInvalidTransition
	}
	if err := c.actions.DestroyBridge(ctx); err != nil {
		return err
	}
	return c.fsm.Event(context.Background(), eventDestroyBridge)
}
