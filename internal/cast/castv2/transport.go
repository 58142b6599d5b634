// Package castv2 adapts the go-chromecast client to the transport
// contract used by the session and controller layers.
package castv2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vishen/go-chromecast/application"
	pb "github.com/vishen/go-chromecast/cast/proto"

	"github.com/strefethen/cast-hub-go/internal/cast"
)

// Transport is a cast.Transport backed by one go-chromecast
// application client. The client multiplexes the device connection and
// the receiver application session, so Attach and Launch both resolve
// to the same underlying client.
type Transport struct {
	target cast.Target

	mu     sync.Mutex
	app    *application.Application
	sess   *appSession
	closed bool

	events chan cast.Event
}

// New is a cast.TransportFactory.
func New(target cast.Target) cast.Transport {
	return &Transport{
		target: target,
		events: make(chan cast.Event, 16),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.app != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	app := application.NewApplication(
		application.WithDebug(false),
		application.WithCacheDisabled(true),
	)
	app.AddMessageFunc(t.onMessage)

	done := make(chan error, 1)
	go func() { done <- app.Start(t.target.Host, t.target.Port) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("connecting to %s:%d: %w", t.target.Host, t.target.Port, err)
		}
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				app.Close(false)
			}
		}()
		return ctx.Err()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		app.Close(false)
		return errors.New("transport closed")
	}
	t.app = app
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	app := t.app
	t.app = nil
	sess := t.sess
	t.sess = nil
	close(t.events)
	t.mu.Unlock()

	if sess != nil {
		sess.closeStatuses()
	}
	if app != nil {
		return app.Close(false)
	}
	return nil
}

func (t *Transport) Status(ctx context.Context) (*cast.ReceiverStatus, error) {
	app, err := t.client()
	if err != nil {
		return nil, err
	}
	// Update refreshes the client's cached receiver and media status.
	if err := app.Update(); err != nil {
		return nil, err
	}
	castApp, _, vol := app.Status()

	status := &cast.ReceiverStatus{}
	if vol != nil {
		level := float64(vol.Level)
		muted := vol.Muted
		status.Volume = &cast.Volume{Level: &level, Muted: &muted}
	}
	if castApp != nil {
		status.Applications = append(status.Applications, cast.Application{
			AppID:        castApp.AppId,
			SessionID:    castApp.SessionId,
			DisplayName:  castApp.DisplayName,
			StatusText:   castApp.StatusText,
			IsIdleScreen: castApp.IsIdleScreen,
		})
	}
	return status, nil
}

func (t *Transport) SetVolume(ctx context.Context, level float64) error {
	app, err := t.client()
	if err != nil {
		return err
	}
	return app.SetVolume(float32(level))
}

func (t *Transport) SetMuted(ctx context.Context, muted bool) error {
	app, err := t.client()
	if err != nil {
		return err
	}
	return app.SetMuted(muted)
}

func (t *Transport) Attach(ctx context.Context, app cast.Application) (cast.AppSession, error) {
	client, err := t.client()
	if err != nil {
		return nil, err
	}
	if err := client.Update(); err != nil {
		return nil, err
	}
	return t.newSession(client, app), nil
}

// Launch hands out a session immediately; the client launches the
// receiver application on the first load when none is running.
func (t *Transport) Launch(ctx context.Context, appID string) (cast.AppSession, error) {
	client, err := t.client()
	if err != nil {
		return nil, err
	}
	return t.newSession(client, cast.Application{AppID: appID}), nil
}

func (t *Transport) Events() <-chan cast.Event {
	return t.events
}

func (t *Transport) client() (*application.Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.app == nil {
		return nil, errors.New("not connected")
	}
	return t.app, nil
}

func (t *Transport) newSession(client *application.Application, app cast.Application) *appSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sess != nil {
		t.sess.closeStatuses()
	}
	t.sess = &appSession{
		transport: t,
		client:    client,
		app:       app,
		statuses:  make(chan *cast.MediaStatus, 16),
	}
	return t.sess
}

func (t *Transport) emit(ev cast.Event) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	select {
	case t.events <- ev:
	default:
	}
}

// onMessage routes unsolicited device messages. Payloads are the JSON
// bodies of the castv2 virtual connection.
func (t *Transport) onMessage(msg *pb.CastMessage) {
	payload := msg.GetPayloadUtf8()
	if payload == "" {
		return
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil {
		return
	}

	switch head.Type {
	case "RECEIVER_STATUS":
		var body struct {
			Status *cast.ReceiverStatus `json:"status"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err != nil || body.Status == nil {
			return
		}
		t.emit(cast.ReceiverStatusEvent{Status: body.Status})
	case "MEDIA_STATUS":
		var body struct {
			Status []*cast.MediaStatus `json:"status"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err != nil || len(body.Status) == 0 {
			return
		}
		t.mu.Lock()
		sess := t.sess
		t.mu.Unlock()
		if sess != nil {
			sess.push(body.Status[len(body.Status)-1])
		}
	case "CLOSE":
		t.emit(cast.ClosedEvent{})
	}
}
