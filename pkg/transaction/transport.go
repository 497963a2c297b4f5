package transaction

import (
	"context"

	"github.com/emiago/sipgo/sip"
)

// Transport is the adapter the transaction layer sends messages through.
// It is deliberately minimal: transactions only need to know whether
// retransmission is their job (unreliable) or the transport's (reliable).
type Transport interface {
	Send(ctx context.Context, destination string, msg sip.Message) error
	IsReliable() bool
}
