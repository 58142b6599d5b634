package cast

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// DefaultMediaReceiverAppID is the stock media receiver application.
const DefaultMediaReceiverAppID = "CC1AD845"

// multizoneLeaderName marks sessions that represent a grouped speaker
// relationship; this controller never attaches to them.
const multizoneLeaderName = "MultizoneLeader"

var (
	ErrNotConnected   = errors.New("session not connected")
	ErrNotAttached    = errors.New("no receiver application attached")
	ErrAttachInFlight = errors.New("attach or launch already in flight")
)

// ControllerState is the receiver application attachment state.
type ControllerState string

const (
	StateDetached  ControllerState = "detached"
	StateAttaching ControllerState = "attaching"
	StateLaunching ControllerState = "launching"
	StateAttached  ControllerState = "attached"
)

// ControllerConfig tunes one controller.
type ControllerConfig struct {
	// AppID is the target receiver application identity.
	AppID string
	// PollDelay is the debounced get-status delay: the poll fires
	// this long after the last processed status and is rescheduled by
	// every fresh one.
	PollDelay time.Duration
	// OpTimeout bounds each device operation.
	OpTimeout time.Duration
}

// ControllerCallbacks are invoked outside the controller's lock.
type ControllerCallbacks struct {
	OnStatus  func(PlayerStatus)
	OnPlaying func()
	OnStopped func()
}

type announcementContext struct {
	media    MediaInfo
	position float64
}

// Controller manages attach-vs-launch of the receiver application on
// top of an established session and provides the playback command
// surface. At most one attach-or-launch is in flight at a time.
type Controller struct {
	name      string
	session   *SessionManager
	cfg       ControllerConfig
	callbacks ControllerCallbacks

	mu           sync.Mutex
	state        ControllerState
	app          AppSession
	pollTimer    *time.Timer
	last         PlayerStatus
	announcement *announcementContext
	closed       bool
}

// NewController creates a detached controller bound to a session.
func NewController(name string, session *SessionManager, cfg ControllerConfig, callbacks ControllerCallbacks) *Controller {
	if cfg.AppID == "" {
		cfg.AppID = DefaultMediaReceiverAppID
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 30 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Controller{
		name:      name,
		session:   session,
		cfg:       cfg,
		callbacks: callbacks,
		state:     StateDetached,
		last:      Normalize(nil),
	}
}

// State returns the attachment state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastStatus returns the last normalized status snapshot.
func (c *Controller) LastStatus() PlayerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// EnsureApp attaches to the target receiver application, launching it
// when no matching instance is running. An application of a different
// identity is detached and replaced by a fresh launch, never coerced.
func (c *Controller) EnsureApp(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.state == StateAttaching || c.state == StateLaunching {
		c.mu.Unlock()
		return ErrAttachInFlight
	}
	if c.state == StateAttached {
		if c.app != nil && c.app.App().AppID == c.cfg.AppID {
			c.mu.Unlock()
			return nil
		}
		app := c.app
		c.app = nil
		c.state = StateDetached
		c.mu.Unlock()
		if app != nil {
			app.Close()
		}
		c.session.ClearPlayerState()
		c.mu.Lock()
		// Another caller may have raced in while the old session was
		// closing; the pre-unlock observation is stale now.
		if c.closed {
			c.mu.Unlock()
			return ErrNotConnected
		}
		switch c.state {
		case StateAttaching, StateLaunching:
			c.mu.Unlock()
			return ErrAttachInFlight
		case StateAttached:
			c.mu.Unlock()
			return nil
		}
	}
	transport := c.session.Transport()
	if transport == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.state = StateAttaching
	c.mu.Unlock()
	c.session.MarkPlayerConnecting()

	status, err := transport.Status(ctx)
	if err != nil {
		c.failAttach()
		return err
	}

	var running *Application
	if status != nil {
		for i := range status.Applications {
			app := status.Applications[i]
			if app.DisplayName == multizoneLeaderName || app.IsIdleScreen {
				continue
			}
			if app.AppID == c.cfg.AppID {
				running = &app
				break
			}
		}
	}

	var sess AppSession
	if running != nil {
		sess, err = transport.Attach(ctx, *running)
	} else {
		c.mu.Lock()
		c.state = StateLaunching
		c.mu.Unlock()
		sess, err = transport.Launch(ctx, c.cfg.AppID)
	}
	if err != nil {
		c.failAttach()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sess.Close()
		return ErrNotConnected
	}
	c.app = sess
	c.state = StateAttached
	c.mu.Unlock()
	c.session.MarkPlayerConnected()

	go c.pumpStatuses(sess)

	if raw, err := sess.GetStatus(ctx); err == nil {
		c.handleStatus(raw, false)
	}
	return nil
}

// Detach tears down the receiver application session and resets the
// published player status.
func (c *Controller) Detach() {
	c.mu.Lock()
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	app := c.app
	c.app = nil
	c.state = StateDetached
	c.announcement = nil
	c.last = Normalize(nil)
	c.mu.Unlock()

	if app != nil {
		app.Close()
	}
	c.session.ClearPlayerState()
	if c.callbacks.OnStopped != nil {
		c.callbacks.OnStopped()
	}
	if c.callbacks.OnStatus != nil {
		c.callbacks.OnStatus(Normalize(nil))
	}
}

// Close stops the controller permanently.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	app := c.app
	c.app = nil
	c.state = StateDetached
	c.mu.Unlock()

	if app != nil {
		app.Close()
	}
}

// Play resumes playback.
func (c *Controller) Play(ctx context.Context) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.Play(ctx)
}

// Pause pauses playback.
func (c *Controller) Pause(ctx context.Context) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.Pause(ctx)
}

// Stop stops playback.
func (c *Controller) Stop(ctx context.Context) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.Stop(ctx)
}

// Seek jumps to an absolute position in seconds.
func (c *Controller) Seek(ctx context.Context, seconds float64) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.Seek(ctx, seconds)
}

// JumpInPlaylist moves by a signed offset in the queue.
func (c *Controller) JumpInPlaylist(ctx context.Context, offset int) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.QueueJump(ctx, offset)
}

// SetRepeatMode sets the queue repeat mode.
func (c *Controller) SetRepeatMode(ctx context.Context, mode RepeatMode) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.SetRepeatMode(ctx, mode)
}

// SetVolume sets the device volume, 0.0-1.0.
func (c *Controller) SetVolume(ctx context.Context, level float64) error {
	if level < 0 || level > 1 {
		return errors.New("volume level out of range")
	}
	transport := c.session.Transport()
	if transport == nil {
		return ErrNotConnected
	}
	return transport.SetVolume(ctx, level)
}

// SetMuted sets the device mute flag.
func (c *Controller) SetMuted(ctx context.Context, muted bool) error {
	transport := c.session.Transport()
	if transport == nil {
		return ErrNotConnected
	}
	return transport.SetMuted(ctx, muted)
}

// LoadMedia ensures the receiver application and loads content.
func (c *Controller) LoadMedia(ctx context.Context, req MediaRequest) error {
	if err := c.EnsureApp(ctx); err != nil {
		return err
	}
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	return app.Load(ctx, req)
}

// PlayAnnouncement plays an interrupt clip and restores the prior
// playback context when the clip finishes.
func (c *Controller) PlayAnnouncement(ctx context.Context, url string) error {
	if err := c.EnsureApp(ctx); err != nil {
		return err
	}
	app, err := c.requireApp()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.last.Media.ContentID != "" && c.announcement == nil {
		c.announcement = &announcementContext{
			media:    c.last.Media,
			position: c.last.CurrentTime,
		}
	}
	c.mu.Unlock()

	return app.Load(ctx, MediaRequest{
		ContentID:  url,
		StreamType: StreamTypeBuffered,
		Title:      url,
		Autoplay:   true,
	})
}

// RefreshStatus polls the receiver application for a status and
// processes it exactly like an unsolicited push.
func (c *Controller) RefreshStatus(ctx context.Context) error {
	app, err := c.requireApp()
	if err != nil {
		return err
	}
	raw, err := app.GetStatus(ctx)
	if err != nil {
		return err
	}
	c.handleStatus(raw, false)
	return nil
}

func (c *Controller) requireApp() (AppSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app == nil || c.state != StateAttached {
		return nil, ErrNotAttached
	}
	return c.app, nil
}

func (c *Controller) failAttach() {
	c.mu.Lock()
	c.state = StateDetached
	c.mu.Unlock()
	c.session.ClearPlayerState()
}

func (c *Controller) pumpStatuses(sess AppSession) {
	for raw := range sess.Statuses() {
		c.mu.Lock()
		stale := c.app != sess
		c.mu.Unlock()
		if stale {
			return
		}
		c.handleStatus(raw, true)
	}
}

func (c *Controller) handleStatus(raw *MediaStatus, pushed bool) {
	c.reschedulePoll()

	// Queue metadata can be missing right after the playlist wraps;
	// ask for a fresh status to fill the gap. Polled statuses never
	// re-trigger this, so one push causes at most one refresh.
	if pushed && raw != nil && raw.Media != nil && len(raw.Items) == 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
			defer cancel()
			if err := c.RefreshStatus(ctx); err != nil && err != ErrNotAttached {
				log.Printf("%s - status refresh failed: %v", c.name, err)
			}
		}()
	}

	normalized := Normalize(raw)

	// Receivers emit transient IDLE statuses (idleReason INTERRUPTED)
	// while an announcement clip is still loading; only a FINISHED
	// idle means the clip actually played to its end.
	finished := raw != nil && raw.IdleReason == "FINISHED" &&
		(normalized.PlayerState == PlayerStateIdle || normalized.PlayerState == PlayerStateStop)

	c.mu.Lock()
	c.last = normalized
	restore := c.announcement
	if restore != nil && finished {
		c.announcement = nil
	} else {
		restore = nil
	}
	c.mu.Unlock()

	if restore != nil {
		go c.restoreAfterAnnouncement(*restore)
	}

	switch normalized.PlayerState {
	case PlayerStatePlaying, PlayerStateBuffering, PlayerStatePaused:
		if c.callbacks.OnPlaying != nil {
			c.callbacks.OnPlaying()
		}
	case PlayerStateIdle, PlayerStateStop:
		if c.callbacks.OnStopped != nil {
			c.callbacks.OnStopped()
		}
	}
	if c.callbacks.OnStatus != nil {
		c.callbacks.OnStatus(normalized)
	}
}

func (c *Controller) restoreAfterAnnouncement(saved announcementContext) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
	defer cancel()

	req := MediaRequest{
		ContentID:   saved.media.ContentID,
		ContentType: saved.media.ContentType,
		StreamType:  saved.media.StreamType,
		Autoplay:    true,
		CurrentTime: saved.position,
	}
	if saved.media.Metadata != nil {
		req.Title = saved.media.Metadata.Title
	}
	if err := c.LoadMedia(ctx, req); err != nil {
		log.Printf("%s - could not resume after announcement: %v", c.name, err)
	}
}

func (c *Controller) reschedulePoll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollTimer != nil {
		c.pollTimer.Stop()
	}
	if c.closed {
		return
	}
	c.pollTimer = time.AfterFunc(c.cfg.PollDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
		defer cancel()
		if err := c.RefreshStatus(ctx); err != nil && err != ErrNotAttached {
			log.Printf("%s - status poll failed: %v", c.name, err)
		}
	})
}
