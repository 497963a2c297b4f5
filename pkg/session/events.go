package session

// EventKind names a session input event accepted by SessionCoordinator.Dispatch.
type EventKind string

const (
	EventMakeCall         EventKind = "MakeCall"
	EventIncomingCall     EventKind = "IncomingCall"
	EventAcceptCall       EventKind = "AcceptCall"
	EventRejectCall       EventKind = "RejectCall"
	EventHangupCall       EventKind = "HangupCall"
	EventHoldCall         EventKind = "HoldCall"
	EventResumeCall       EventKind = "ResumeCall"
	EventDialog180Ringing EventKind = "Dialog180Ringing"
	EventDialog200OK      EventKind = "Dialog200OK"
	EventDialogACK        EventKind = "DialogACK"
	EventDialogBYE        EventKind = "DialogBYE"
	EventDialogTerminated EventKind = "DialogTerminated"
	EventMediaSessionReady EventKind = "MediaSessionReady"
	EventSDPOffer         EventKind = "SDPOffer"
	EventSDPAnswer        EventKind = "SDPAnswer"
	EventTransferRequested EventKind = "TransferRequested"
	EventRecoveryExhausted EventKind = "RecoveryExhausted"
)

// Event is a single input to the coordinator. Target/SDP/Reason/Attended
// are populated only by the events that carry them; zero values are ignored
// by events that don't.
type Event struct {
	Kind     EventKind
	Target   string
	SDP      []byte
	Reason   string
	Attended bool
}
