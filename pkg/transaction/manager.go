package transaction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo/sip"

	"github.com/corevox/corevox/internal/clock"
)

// clientTx is the subset common to ICT and NICT the Manager needs to
// route responses and observe termination.
type clientTx interface {
	Key() Key
	HandleResponse(*sip.Response)
	Done() <-chan struct{}
}

// serverTx is the subset common to IST and NIST.
type serverTx interface {
	Key() Key
	Done() <-chan struct{}
}

// Manager owns the set of live transactions, matching incoming messages
// to existing transactions by Key (RFC 3261 §17.1.3/§17.2.3) and pruning
// entries once a transaction signals Done.
type Manager struct {
	transport Transport
	clk       clock.Clock
	logger    *slog.Logger

	mu       sync.RWMutex
	clients  map[Key]clientTx
	servers  map[Key]serverTx
	istByKey map[Key]*IST
	nistByKey map[Key]*NIST
}

// NewManager constructs a transaction Manager over a shared Transport and
// Clock.
func NewManager(transport Transport, clk clock.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		transport: transport,
		clk:       clk,
		logger:    logger,
		clients:   make(map[Key]clientTx),
		servers:   make(map[Key]serverTx),
		istByKey:  make(map[Key]*IST),
		nistByKey: make(map[Key]*NIST),
	}
}

// NewClientInvite creates and registers an ICT for request, and starts it.
func (m *Manager) NewClientInvite(ctx context.Context, request *sip.Request, destination string, opts ...ICTOption) (*ICT, error) {
	tx, err := NewICT(request, destination, m.transport, m.clk, m.logger, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.register(tx); err != nil {
		return nil, err
	}
	if err := tx.Start(ctx); err != nil {
		m.remove(tx.Key())
		return nil, err
	}
	return tx, nil
}

// NewClientNonInvite creates, registers, and starts a NICT for request.
func (m *Manager) NewClientNonInvite(ctx context.Context, request *sip.Request, destination string) (*NICT, error) {
	tx, err := NewNICT(request, destination, m.transport, m.clk, m.logger)
	if err != nil {
		return nil, err
	}
	if err := m.register(tx); err != nil {
		return nil, err
	}
	if err := tx.Start(ctx); err != nil {
		m.remove(tx.Key())
		return nil, err
	}
	return tx, nil
}

// NewServerInvite creates and registers an IST for an incoming INVITE.
func (m *Manager) NewServerInvite(request *sip.Request) (*IST, error) {
	tx, err := NewIST(request, m.transport, m.clk, m.logger)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if _, exists := m.servers[tx.Key()]; exists {
		m.mu.Unlock()
		return nil, ErrTransactionExists
	}
	m.servers[tx.Key()] = tx
	m.istByKey[tx.Key()] = tx
	m.mu.Unlock()
	go m.awaitDone(tx.Key(), tx.Done())
	return tx, nil
}

// NewServerNonInvite creates and registers a NIST for an incoming request.
func (m *Manager) NewServerNonInvite(request *sip.Request) (*NIST, error) {
	tx, err := NewNIST(request, m.transport, m.clk)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if _, exists := m.servers[tx.Key()]; exists {
		m.mu.Unlock()
		return nil, ErrTransactionExists
	}
	m.servers[tx.Key()] = tx
	m.nistByKey[tx.Key()] = tx
	m.mu.Unlock()
	go m.awaitDone(tx.Key(), tx.Done())
	return tx, nil
}

func (m *Manager) register(tx clientTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[tx.Key()]; exists {
		return ErrTransactionExists
	}
	m.clients[tx.Key()] = tx
	go m.awaitDone(tx.Key(), tx.Done())
	return nil
}

func (m *Manager) awaitDone(key Key, done <-chan struct{}) {
	<-done
	m.remove(key)
}

func (m *Manager) remove(key Key) {
	m.mu.Lock()
	delete(m.clients, key)
	delete(m.servers, key)
	delete(m.istByKey, key)
	delete(m.nistByKey, key)
	m.mu.Unlock()
}

// FindIST returns the IST matching the branch of an incoming ACK, if any.
func (m *Manager) FindIST(key Key) (*IST, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.istByKey[key]
	return tx, ok
}

// FindNIST returns a previously created NIST, for absorbing request
// retransmits while Completed.
func (m *Manager) FindNIST(key Key) (*NIST, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.nistByKey[key]
	return tx, ok
}

// HandleResponse routes an incoming response to its matching client
// transaction, reporting ErrTransactionNotFound if none matches (the
// dialog layer may still want the response for retransmitted 2xx
// handling, but that is outside this transaction's lifecycle).
func (m *Manager) HandleResponse(resp *sip.Response) error {
	key, err := KeyForResponse(resp)
	if err != nil {
		return err
	}
	m.mu.RLock()
	tx, ok := m.clients[key]
	m.mu.RUnlock()
	if !ok {
		return ErrTransactionNotFound
	}
	tx.HandleResponse(resp)
	return nil
}

// HandleAck routes an incoming ACK to the IST it confirms.
func (m *Manager) HandleAck(req *sip.Request) error {
	key, err := KeyForRequest(req, false)
	if err != nil {
		return err
	}
	key.Method = string(sip.INVITE) // RFC 3261: ACK matches the INVITE transaction's key
	tx, ok := m.FindIST(key)
	if !ok {
		return ErrTransactionNotFound
	}
	tx.HandleAck(req)
	return nil
}
