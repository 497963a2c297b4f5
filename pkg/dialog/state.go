// Package dialog implements the RFC 3261 dialog layer: dialog
// identification and matching, in-dialog request construction, 2xx/ACK
// handling, and REFER-driven transfer subscriptions.
package dialog

// State is a dialog's position in its lifecycle.
type State string

const (
	StateInitial    State = "Initial"
	StateEarly      State = "Early"
	StateConfirmed  State = "Confirmed"
	StateRecovering State = "Recovering"
	StateTerminated State = "Terminated"
)

func (s State) String() string { return string(s) }

// FSM event names, used both as looplab/fsm event strings and as the
// vocabulary OnStateChange callbacks reason about.
const (
	eventProvisionalWithTag = "provisional_with_tag"
	eventConfirm            = "confirm"
	eventEnterRecovery      = "enter_recovery"
	eventCompleteRecovery   = "complete_recovery"
	eventTerminate          = "terminate"
)
