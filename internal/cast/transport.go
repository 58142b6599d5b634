package cast

import "context"

// Target is the connection descriptor for one device. For grouped
// devices GroupID carries the opaque group identifier; the session
// layer never interprets it.
type Target struct {
	Host    string
	Port    int
	GroupID string
}

// Event is a transport-level notification.
type Event interface{ isEvent() }

// ReceiverStatusEvent carries an unsolicited device-level status push.
type ReceiverStatusEvent struct {
	Status *ReceiverStatus
}

// ClosedEvent signals the transport connection was closed by the peer.
type ClosedEvent struct{}

// ErrorEvent signals a transport failure.
type ErrorEvent struct {
	Err error
}

func (ReceiverStatusEvent) isEvent() {}
func (ClosedEvent) isEvent()         {}
func (ErrorEvent) isEvent()          {}

// Transport is the capability surface of the castv2 wire library.
// Implementations own the socket; the session layer owns lifecycle
// and retry. The Events channel is closed when the transport dies.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Status(ctx context.Context) (*ReceiverStatus, error)
	SetVolume(ctx context.Context, level float64) error
	SetMuted(ctx context.Context, muted bool) error
	Attach(ctx context.Context, app Application) (AppSession, error)
	Launch(ctx context.Context, appID string) (AppSession, error)
	Events() <-chan Event
}

// AppSession is an attached or launched receiver application. A
// session is replaced, never mutated, on each attach/launch cycle.
// The Statuses channel is closed when the session ends.
type AppSession interface {
	App() Application
	Load(ctx context.Context, req MediaRequest) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	QueueJump(ctx context.Context, offset int) error
	SetRepeatMode(ctx context.Context, mode RepeatMode) error
	GetStatus(ctx context.Context) (*MediaStatus, error)
	Statuses() <-chan *MediaStatus
	Close() error
}

// TransportFactory builds a fresh Transport for each connection
// attempt.
type TransportFactory func(target Target) Transport
