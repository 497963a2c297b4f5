// Command corevoxd wires the core's adapters together: a UDP-backed
// transaction.Transport, the dialog Stack, and a session coordinator per
// call.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corevox/corevox/internal/clock"
	"github.com/corevox/corevox/pkg/dialog"
	"github.com/corevox/corevox/pkg/session"
	"github.com/corevox/corevox/pkg/transaction"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:5060", "SIP UDP listen address")
		metricsAddr = flag.String("metrics", "127.0.0.1:9090", "Prometheus /metrics listen address")
		user       = flag.String("user", "alice", "local URI user part")
		domain     = flag.String("domain", "example.com", "local URI domain")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "corevoxd")
	slog.SetDefault(logger)

	// Registered on the default registerer (not a private one) so this
	// counter shares /metrics with the promauto collectors pkg/transaction,
	// pkg/srtp, pkg/rtpcore, and pkg/session register against it.
	callsTotal := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corevox_calls_total",
		Help: "Calls started, by role.",
	}, []string{"role"})

	conn, err := net.ListenPacket("udp", *listenAddr)
	if err != nil {
		logger.Error("listen failed", "addr", *listenAddr, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	transport := newUDPTransport(conn, logger)

	localURI := sip.Uri{User: *user, Host: *domain}
	stk := dialog.NewStack(localURI, transport, clock.Real{}, clock.CryptoRandom{}, logger)

	engine := newEngine(stk, logger, callsTotal)
	stk.OnIncomingCall(engine.onIncomingCall)
	stk.OnDialogState(engine.onDialogState)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go transport.serve(ctx, engine)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("corevoxd listening", "sip", *listenAddr, "metrics", *metricsAddr, "uri", localURI.String())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	logger.Info("shutting down")
	cancel()
	_ = httpSrv.Shutdown(context.Background())
}

// engine bridges the dialog Stack's callbacks to one session.SessionCoordinator
// per call, keyed by Call-ID so the coordinator that owns a call's state
// machine is reachable from any later dialog event for that same call.
type engine struct {
	stack  *dialog.Stack
	logger *slog.Logger
	calls  *prometheus.CounterVec

	mu       sync.Mutex
	sessions map[string]*session.SessionCoordinator
}

func newEngine(stk *dialog.Stack, logger *slog.Logger, calls *prometheus.CounterVec) *engine {
	return &engine{
		stack:    stk,
		logger:   logger,
		calls:    calls,
		sessions: make(map[string]*session.SessionCoordinator),
	}
}

func (e *engine) onIncomingCall(d *dialog.Dialog, req *sip.Request) {
	e.logger.Info("incoming call", "call_id", d.CallID(), "from", req.From().Address.String())
	e.calls.WithLabelValues("uas").Inc()

	coord := session.New(session.RoleUAS, &dialogActions{stack: e.stack, dialog: d}, clock.Real{}, e.logger, session.Config{})
	e.mu.Lock()
	e.sessions[d.CallID()] = coord
	e.mu.Unlock()

	if err := coord.Dispatch(context.Background(), session.Event{Kind: session.EventIncomingCall, SDP: req.Body()}); err != nil {
		e.logger.Warn("incoming call rejected by coordinator", "err", err)
	}
}

func (e *engine) onDialogState(d *dialog.Dialog, st dialog.State) {
	e.logger.Info("dialog state change", "call_id", d.CallID(), "state", st)
	if st == dialog.StateTerminated {
		e.mu.Lock()
		delete(e.sessions, d.CallID())
		e.mu.Unlock()
	}
}

// dialogActions adapts session.Actions onto a single dialog.Dialog plus the
// Stack it lives in, so a SessionCoordinator never imports pkg/dialog types
// directly.
type dialogActions struct {
	session.NopActions
	stack  *dialog.Stack
	dialog *dialog.Dialog
}

func (a *dialogActions) SendSIPResponse(ctx context.Context, code int, reason string) error {
	return nil // demo wiring: a real adapter resolves the pending IST and destination here
}

func (a *dialogActions) SendBYE(ctx context.Context) error {
	return a.stack.SendBye(ctx, a.dialog, "")
}

func (a *dialogActions) TriggerCallEstablished() {}

func (a *dialogActions) TriggerCallTerminated(reason session.FailureReason) {}

// udpTransport implements transaction.Transport over a raw UDP socket: a
// plain net.PacketConn read/write loop, independent of sipgo's own
// transport manager. The transaction layer here owns retransmission
// itself, so it only needs a socket to put bytes on the wire.
type udpTransport struct {
	conn   net.PacketConn
	logger *slog.Logger
	parser *sip.Parser
}

func newUDPTransport(conn net.PacketConn, logger *slog.Logger) *udpTransport {
	return &udpTransport{conn: conn, logger: logger, parser: sip.NewParser()}
}

func (t *udpTransport) Send(ctx context.Context, destination string, msg sip.Message) error {
	addr, err := net.ResolveUDPAddr("udp", destination)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteTo([]byte(msg.String()), addr)
	return err
}

func (t *udpTransport) IsReliable() bool { return false }

// serve reads datagrams until ctx is done, parses each into a sip.Message,
// and routes it to the Stack or the in-dialog handler.
func (t *udpTransport) serve(ctx context.Context, e *engine) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("udp read failed", "err", err)
			continue
		}
		msg, err := t.parser.ParseSIP(append([]byte(nil), buf[:n]...))
		if err != nil {
			t.logger.Warn("discarding unparsable datagram", "from", addr.String(), "err", err)
			continue
		}
		t.dispatch(ctx, e, addr.String(), msg)
	}
}

func (t *udpTransport) dispatch(ctx context.Context, e *engine, from string, msg sip.Message) {
	switch m := msg.(type) {
	case *sip.Request:
		switch m.Method {
		case sip.INVITE:
			if _, _, err := e.stack.HandleInvite(m); err != nil {
				t.logger.Warn("HandleInvite failed", "err", err)
			}
		case sip.ACK:
			if err := e.stack.HandleAck(m); err != nil {
				t.logger.Warn("HandleAck failed", "err", err)
			}
		default:
			if _, err := e.stack.HandleInDialogRequest(ctx, m, from); err != nil {
				t.logger.Warn("HandleInDialogRequest failed", "method", m.Method, "err", err)
			}
		}
	case *sip.Response:
		if err := e.stack.HandleResponse(m); err != nil {
			t.logger.Debug("HandleResponse: no matching transaction", "err", err)
		}
	}
}

var _ transaction.Transport = (*udpTransport)(nil)
