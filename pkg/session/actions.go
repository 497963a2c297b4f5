package session

import "context"

// Actions is the set of side-effect commands the coordinator dispatches to
// adapters. A SessionCoordinator never touches a transport, media stack, or
// dialog directly; it only calls through this interface, which keeps the
// state machine itself free of I/O and fully testable in isolation.
type Actions interface {
	SendINVITE(ctx context.Context, target string, sdpOffer []byte) error
	SendSIPResponse(ctx context.Context, code int, reason string) error
	SendACK(ctx context.Context) error
	SendBYE(ctx context.Context) error
	SendCANCEL(ctx context.Context) error
	SendReINVITE(ctx context.Context, sdp []byte) error

	StartMediaSession(ctx context.Context) error
	StopMediaSession(ctx context.Context) error
	NegotiateSDPAsUAC(ctx context.Context, answer []byte) ([]byte, error)
	NegotiateSDPAsUAS(ctx context.Context, offer []byte) ([]byte, error)
	PlayAudioFile(ctx context.Context, path string) error

	CreateBridge(ctx context.Context, other *SessionCoordinator) error
	DestroyBridge(ctx context.Context) error

	InitiateBlindTransfer(ctx context.Context, target string) error
	InitiateAttendedTransfer(ctx context.Context, target string) error

	StartDialogCleanup(ctx context.Context) error
	StartMediaCleanup(ctx context.Context) error

	TriggerCallEstablished()
	TriggerCallTerminated(reason FailureReason)
}

// NopActions is a no-op Actions implementation, useful as a base for tests
// or adapters that only care about a subset of actions.
type NopActions struct{}

func (NopActions) SendINVITE(context.Context, string, []byte) error          { return nil }
func (NopActions) SendSIPResponse(context.Context, int, string) error        { return nil }
func (NopActions) SendACK(context.Context) error                             { return nil }
func (NopActions) SendBYE(context.Context) error                             { return nil }
func (NopActions) SendCANCEL(context.Context) error                          { return nil }
func (NopActions) SendReINVITE(context.Context, []byte) error                { return nil }
func (NopActions) StartMediaSession(context.Context) error                   { return nil }
func (NopActions) StopMediaSession(context.Context) error                    { return nil }
func (NopActions) NegotiateSDPAsUAC(context.Context, []byte) ([]byte, error) { return nil, nil }
func (NopActions) NegotiateSDPAsUAS(context.Context, []byte) ([]byte, error) { return nil, nil }
func (NopActions) PlayAudioFile(context.Context, string) error               { return nil }
func (NopActions) CreateBridge(context.Context, *SessionCoordinator) error   { return nil }
func (NopActions) DestroyBridge(context.Context) error                      { return nil }
func (NopActions) InitiateBlindTransfer(context.Context, string) error      { return nil }
func (NopActions) InitiateAttendedTransfer(context.Context, string) error   { return nil }
func (NopActions) StartDialogCleanup(context.Context) error                 { return nil }
func (NopActions) StartMediaCleanup(context.Context) error                  { return nil }
func (NopActions) TriggerCallEstablished()                                  {}
func (NopActions) TriggerCallTerminated(FailureReason)                      {}
