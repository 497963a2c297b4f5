// Package session implements the unified call-control state machine:
// SessionCoordinator drives a single session's dialog and media lifecycle
// through a declarative (role, state, event) table, so a call's dialog
// signaling and its media setup are coordinated from one place instead of
// each being wired up separately per call.
package session

// State is a session's position in its call-control lifecycle.
type State string

const (
	StateIdle        State = "Idle"
	StateInitiating  State = "Initiating"
	StateRinging     State = "Ringing"
	StateActive      State = "Active"
	StateOnHold      State = "OnHold"
	StateResuming    State = "Resuming"
	StateBridged     State = "Bridged"
	StateTerminating State = "Terminating"
	StateTerminated  State = "Terminated"
	StateFailed      State = "Failed"
)

func (s State) String() string { return string(s) }

// Role is whether this session originated (UAC) or received (UAS) its call.
type Role string

const (
	RoleUAC Role = "UAC"
	RoleUAS Role = "UAS"
)

// FailureReason labels why a session entered Failed.
type FailureReason string

const (
	FailureRejected     FailureReason = "Rejected"
	FailureNetworkError FailureReason = "NetworkError"
	FailureTimeout      FailureReason = "Timeout"
)
