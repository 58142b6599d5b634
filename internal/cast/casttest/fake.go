// Package casttest provides fake transports implementing the cast
// wire contract for tests.
package casttest

import (
	"context"
	"sync"
	"time"

	"github.com/strefethen/cast-hub-go/internal/cast"
)

// FakeFactory hands out one FakeTransport per connection attempt.
type FakeFactory struct {
	mu sync.Mutex
	// ConnectErr is copied onto every new transport.
	ConnectErr error
	// ReceiverStatus is copied onto every new transport.
	ReceiverStatus *cast.ReceiverStatus
	// Session is shared across transports when set.
	Session    *FakeAppSession
	transports []*FakeTransport
}

// New is a cast.TransportFactory.
func (f *FakeFactory) New(target cast.Target) cast.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := NewFakeTransport()
	t.ConnectErr = f.ConnectErr
	t.ReceiverStatus = f.ReceiverStatus
	t.Session = f.Session
	f.transports = append(f.transports, t)
	return t
}

// SetConnectErr changes the error future transports fail with.
func (f *FakeFactory) SetConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectErr = err
}

// Count returns how many transports were created, i.e. how many
// connection attempts were made.
func (f *FakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

// Last returns the most recently created transport.
func (f *FakeFactory) Last() *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

// FakeTransport implements cast.Transport in memory.
type FakeTransport struct {
	mu             sync.Mutex
	ConnectErr     error
	ReceiverStatus *cast.ReceiverStatus
	Session        *FakeAppSession

	ConnectCalls int
	AttachCalls  []cast.Application
	LaunchCalls  []string
	VolumeSet    []float64
	MutedSet     []bool

	events    chan cast.Event
	connected bool
	closed    bool
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{events: make(chan cast.Event, 16)}
}

func (t *FakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConnectCalls++
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	return nil
}

func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

func (t *FakeTransport) Status(ctx context.Context) (*cast.ReceiverStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReceiverStatus != nil {
		return t.ReceiverStatus, nil
	}
	return &cast.ReceiverStatus{}, nil
}

func (t *FakeTransport) SetVolume(ctx context.Context, level float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.VolumeSet = append(t.VolumeSet, level)
	return nil
}

func (t *FakeTransport) SetMuted(ctx context.Context, muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.MutedSet = append(t.MutedSet, muted)
	return nil
}

func (t *FakeTransport) Attach(ctx context.Context, app cast.Application) (cast.AppSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AttachCalls = append(t.AttachCalls, app)
	return t.sessionFor(app), nil
}

func (t *FakeTransport) Launch(ctx context.Context, appID string) (cast.AppSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LaunchCalls = append(t.LaunchCalls, appID)
	return t.sessionFor(cast.Application{AppID: appID, SessionID: "fake-session"}), nil
}

func (t *FakeTransport) Events() <-chan cast.Event {
	return t.events
}

// ConnectCount returns the number of Connect calls.
func (t *FakeTransport) ConnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ConnectCalls
}

// Launches returns the app IDs passed to Launch.
func (t *FakeTransport) Launches() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.LaunchCalls...)
}

// Attaches returns the applications passed to Attach.
func (t *FakeTransport) Attaches() []cast.Application {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cast.Application(nil), t.AttachCalls...)
}

// Volumes returns the levels passed to SetVolume.
func (t *FakeTransport) Volumes() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.VolumeSet...)
}

// Muteds returns the flags passed to SetMuted.
func (t *FakeTransport) Muteds() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.MutedSet...)
}

// CurrentSession returns the session created by Attach or Launch,
// or nil when neither happened yet.
func (t *FakeTransport) CurrentSession() *FakeAppSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Session
}

// PushReceiverStatus delivers an unsolicited device-level push.
func (t *FakeTransport) PushReceiverStatus(s *cast.ReceiverStatus) {
	t.events <- cast.ReceiverStatusEvent{Status: s}
}

// Break delivers a transport error event.
func (t *FakeTransport) Break(err error) {
	t.events <- cast.ErrorEvent{Err: err}
}

// Disconnect delivers a peer close event.
func (t *FakeTransport) Disconnect() {
	t.events <- cast.ClosedEvent{}
}

func (t *FakeTransport) sessionFor(app cast.Application) *FakeAppSession {
	if t.Session == nil || t.Session.IsClosed() {
		t.Session = NewFakeAppSession(app)
	} else {
		t.Session.SetApp(app)
	}
	return t.Session
}

// FakeAppSession implements cast.AppSession in memory.
type FakeAppSession struct {
	mu  sync.Mutex
	app cast.Application

	// Status is returned by GetStatus.
	Status *cast.MediaStatus
	// CloseDelay makes Close block, to widen teardown races.
	CloseDelay     time.Duration
	GetStatusCalls int
	Loads          []cast.MediaRequest
	PlayCalls      int
	PauseCalls     int
	StopCalls      int
	Seeks          []float64
	Jumps          []int
	RepeatModes    []cast.RepeatMode

	statuses chan *cast.MediaStatus
	closed   bool
}

func NewFakeAppSession(app cast.Application) *FakeAppSession {
	return &FakeAppSession{app: app, statuses: make(chan *cast.MediaStatus, 16)}
}

// SetApp overrides the application identity reported by App.
func (s *FakeAppSession) SetApp(app cast.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = app
}

// IsClosed reports whether Close was called.
func (s *FakeAppSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeAppSession) App() cast.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

func (s *FakeAppSession) Load(ctx context.Context, req cast.MediaRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loads = append(s.Loads, req)
	return nil
}

func (s *FakeAppSession) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls++
	return nil
}

func (s *FakeAppSession) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PauseCalls++
	return nil
}

func (s *FakeAppSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	return nil
}

func (s *FakeAppSession) Seek(ctx context.Context, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Seeks = append(s.Seeks, seconds)
	return nil
}

func (s *FakeAppSession) QueueJump(ctx context.Context, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Jumps = append(s.Jumps, offset)
	return nil
}

func (s *FakeAppSession) SetRepeatMode(ctx context.Context, mode cast.RepeatMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RepeatModes = append(s.RepeatModes, mode)
	return nil
}

func (s *FakeAppSession) GetStatus(ctx context.Context) (*cast.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetStatusCalls++
	if s.Status != nil {
		return s.Status, nil
	}
	return &cast.MediaStatus{}, nil
}

func (s *FakeAppSession) Statuses() <-chan *cast.MediaStatus {
	return s.statuses
}

// PushStatus delivers an unsolicited media status push.
func (s *FakeAppSession) PushStatus(raw *cast.MediaStatus) {
	s.mu.Lock()
	s.Status = raw
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.statuses <- raw
	}
}

func (s *FakeAppSession) Close() error {
	s.mu.Lock()
	delay := s.CloseDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.statuses)
	}
	return nil
}

// Repeats returns the modes passed to SetRepeatMode.
func (s *FakeAppSession) Repeats() []cast.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cast.RepeatMode(nil), s.RepeatModes...)
}

// JumpOffsets returns the offsets passed to QueueJump.
func (s *FakeAppSession) JumpOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.Jumps...)
}

// GetStatusCount returns the number of GetStatus calls.
func (s *FakeAppSession) GetStatusCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GetStatusCalls
}

// LoadCount returns the number of Load calls.
func (s *FakeAppSession) LoadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Loads)
}

// LastLoad returns the most recent Load request.
func (s *FakeAppSession) LastLoad() (cast.MediaRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Loads) == 0 {
		return cast.MediaRequest{}, false
	}
	return s.Loads[len(s.Loads)-1], true
}
