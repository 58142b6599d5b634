package cast

import (
	"context"
	"log"
	"sync"
	"time"
)

// ConnectionFlags is a snapshot of the connection state exposed to the
// facade. PlayerConnecting and PlayerConnected are mutually exclusive
// and both imply ClientConnected.
type ConnectionFlags struct {
	ClientConnected  bool
	PlayerConnecting bool
	PlayerConnected  bool
}

// SessionConfig tunes one session manager.
type SessionConfig struct {
	// RetryBase is the linear backoff unit: retry N waits N*RetryBase.
	RetryBase time.Duration
	// MaxReconnects is the retry ceiling. Once exceeded the manager
	// goes terminal until an explicit Reconnect.
	MaxReconnects int
	// OpTimeout bounds each connect attempt.
	OpTimeout time.Duration
}

// SessionCallbacks are invoked outside the manager's lock.
type SessionCallbacks struct {
	OnConnected    func()
	OnDisconnected func()
	// OnTerminal fires once when the retry ceiling is exceeded.
	OnTerminal func()
	// DetachPlayer tears down the attached receiver application
	// before a disconnect is reported.
	DetachPlayer func()
	// OnReceiverStatus forwards unsolicited device-level pushes.
	OnReceiverStatus func(*ReceiverStatus)
}

// SessionManager owns one physical connection to a device: connect,
// failure detection, linear-backoff reconnection, and connection-state
// flags. At most one connect attempt is in flight at a time; a connect
// issued while one is pending is ignored, not queued.
type SessionManager struct {
	name      string
	factory   TransportFactory
	cfg       SessionConfig
	callbacks SessionCallbacks

	mu               sync.Mutex
	target           Target
	transport        Transport
	retries          int
	connecting       bool
	clientConnected  bool
	playerConnecting bool
	playerConnected  bool
	terminal         bool
	closed           bool
	retryTimer       *time.Timer
}

// NewSessionManager creates a manager for the given target. Connect
// must be called to start the session.
func NewSessionManager(name string, target Target, factory TransportFactory, cfg SessionConfig, callbacks SessionCallbacks) *SessionManager {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 5 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 100
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &SessionManager{
		name:      name,
		factory:   factory,
		cfg:       cfg,
		callbacks: callbacks,
		target:    target,
	}
}

// Connect starts an asynchronous connection attempt. It is a no-op
// while an attempt is pending, while connected, and in the terminal
// state.
func (m *SessionManager) Connect() {
	m.mu.Lock()
	if m.closed || m.terminal || m.connecting || m.clientConnected {
		m.mu.Unlock()
		return
	}
	m.connecting = true
	target := m.target
	transport := m.factory(target)
	m.transport = transport
	m.mu.Unlock()

	go m.attempt(transport)
}

// Reconnect is the explicit external reconnect command. It clears the
// terminal state and the retry counter, then connects.
func (m *SessionManager) Reconnect() {
	m.mu.Lock()
	m.terminal = false
	m.retries = 0
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()
	m.Connect()
}

// SetTarget updates the connection target for future attempts. The
// established session, if any, is not disturbed.
func (m *SessionManager) SetTarget(target Target) {
	m.mu.Lock()
	m.target = target
	m.mu.Unlock()
}

// Target returns the current connection target.
func (m *SessionManager) Target() Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Close stops the manager permanently.
func (m *SessionManager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	transport := m.transport
	m.transport = nil
	m.clientConnected = false
	m.playerConnecting = false
	m.playerConnected = false
	m.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
}

// Flags returns a snapshot of the connection flags.
func (m *SessionManager) Flags() ConnectionFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectionFlags{
		ClientConnected:  m.clientConnected,
		PlayerConnecting: m.playerConnecting,
		PlayerConnected:  m.playerConnected,
	}
}

// Retries returns the current retry counter.
func (m *SessionManager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Terminal reports whether the retry ceiling has been exceeded.
func (m *SessionManager) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminal
}

// Transport returns the established transport, or nil while
// disconnected.
func (m *SessionManager) Transport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.clientConnected {
		return nil
	}
	return m.transport
}

// MarkPlayerConnecting records an attach/launch in flight.
func (m *SessionManager) MarkPlayerConnecting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.clientConnected {
		return
	}
	m.playerConnecting = true
	m.playerConnected = false
}

// MarkPlayerConnected records an attached receiver application.
func (m *SessionManager) MarkPlayerConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.clientConnected {
		return
	}
	m.playerConnecting = false
	m.playerConnected = true
}

// ClearPlayerState records the receiver application going away.
func (m *SessionManager) ClearPlayerState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerConnecting = false
	m.playerConnected = false
}

func (m *SessionManager) attempt(transport Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.OpTimeout)
	err := transport.Connect(ctx)
	cancel()

	if err != nil {
		m.mu.Lock()
		m.connecting = false
		if m.transport == transport {
			m.transport = nil
		}
		m.mu.Unlock()
		transport.Close()
		log.Printf("%s - connect failed: %v", m.name, err)
		m.scheduleRetry()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		transport.Close()
		return
	}
	m.connecting = false
	m.clientConnected = true
	m.retries = 0
	m.mu.Unlock()

	go m.pump(transport)

	if m.callbacks.OnConnected != nil {
		m.callbacks.OnConnected()
	}
}

// pump forwards transport events until the transport dies, then
// reports the disconnect. A stale pump for a replaced transport exits
// without side effects.
func (m *SessionManager) pump(transport Transport) {
	for ev := range transport.Events() {
		switch ev := ev.(type) {
		case ReceiverStatusEvent:
			if m.callbacks.OnReceiverStatus != nil {
				m.callbacks.OnReceiverStatus(ev.Status)
			}
		case ErrorEvent:
			log.Printf("%s - transport error: %v", m.name, ev.Err)
			m.handleDisconnect(transport)
			return
		case ClosedEvent:
			m.handleDisconnect(transport)
			return
		}
	}
	m.handleDisconnect(transport)
}

func (m *SessionManager) handleDisconnect(transport Transport) {
	m.mu.Lock()
	if m.transport != transport {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	wasConnected := m.clientConnected
	m.clientConnected = false
	m.playerConnecting = false
	m.playerConnected = false
	m.mu.Unlock()

	transport.Close()

	if !wasConnected {
		return
	}
	if m.callbacks.DetachPlayer != nil {
		m.callbacks.DetachPlayer()
	}
	if m.callbacks.OnDisconnected != nil {
		m.callbacks.OnDisconnected()
	}
	m.scheduleRetry()
}

func (m *SessionManager) scheduleRetry() {
	m.mu.Lock()
	if m.closed || m.terminal {
		m.mu.Unlock()
		return
	}
	m.retries++
	if m.retries > m.cfg.MaxReconnects {
		m.terminal = true
		m.mu.Unlock()
		log.Printf("%s - max reconnects reached, waiting for explicit reconnect", m.name)
		if m.callbacks.OnTerminal != nil {
			m.callbacks.OnTerminal()
		}
		return
	}
	delay := time.Duration(m.retries) * m.cfg.RetryBase
	m.retryTimer = time.AfterFunc(delay, m.Connect)
	m.mu.Unlock()
}
