package castv2

import (
	"context"
	"errors"
	"sync"

	"github.com/vishen/go-chromecast/application"

	"github.com/strefethen/cast-hub-go/internal/cast"
)

// appSession is a cast.AppSession on top of the shared client. The
// transport owns the device connection; closing a session only stops
// its status stream.
type appSession struct {
	transport *Transport
	client    *application.Application
	app       cast.Application

	mu       sync.Mutex
	closed   bool
	statuses chan *cast.MediaStatus
}

func (s *appSession) App() cast.Application {
	return s.app
}

func (s *appSession) Load(ctx context.Context, req cast.MediaRequest) error {
	return s.client.Load(req.ContentID, int(req.CurrentTime), req.ContentType, false, false, false)
}

func (s *appSession) Play(ctx context.Context) error {
	return s.client.Unpause()
}

func (s *appSession) Pause(ctx context.Context) error {
	return s.client.Pause()
}

func (s *appSession) Stop(ctx context.Context) error {
	return s.client.StopMedia()
}

func (s *appSession) Seek(ctx context.Context, seconds float64) error {
	return s.client.SeekToTime(float32(seconds))
}

func (s *appSession) QueueJump(ctx context.Context, offset int) error {
	switch {
	case offset > 0:
		for i := 0; i < offset; i++ {
			if err := s.client.Next(); err != nil {
				return err
			}
		}
	case offset < 0:
		for i := 0; i < -offset; i++ {
			if err := s.client.Previous(); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetRepeatMode is not exposed by the underlying client.
func (s *appSession) SetRepeatMode(ctx context.Context, mode cast.RepeatMode) error {
	return errors.New("repeat mode is not supported by this transport")
}

func (s *appSession) GetStatus(ctx context.Context) (*cast.MediaStatus, error) {
	if err := s.client.Update(); err != nil {
		return nil, err
	}
	_, media, _ := s.client.Status()
	if media == nil {
		return &cast.MediaStatus{}, nil
	}

	level := float64(media.Volume.Level)
	muted := media.Volume.Muted
	status := &cast.MediaStatus{
		MediaSessionID: media.MediaSessionId,
		PlayerState:    media.PlayerState,
		CurrentTime:    float64(media.CurrentTime),
		IdleReason:     media.IdleReason,
		CurrentItemID:  media.CurrentItemId,
		Volume:         &cast.Volume{Level: &level, Muted: &muted},
	}
	if media.Media.ContentId != "" {
		status.Media = &cast.MediaInfo{
			ContentID:   media.Media.ContentId,
			ContentType: media.Media.ContentType,
			StreamType:  cast.StreamType(media.Media.StreamType),
			Duration:    float64(media.Media.Duration),
		}
		if media.Media.Metadata.Title != "" || media.Media.Metadata.Artist != "" {
			status.Media.Metadata = &cast.Metadata{
				Title:  media.Media.Metadata.Title,
				Artist: media.Media.Metadata.Artist,
			}
		}
	}
	return status, nil
}

func (s *appSession) Statuses() <-chan *cast.MediaStatus {
	return s.statuses
}

func (s *appSession) Close() error {
	s.closeStatuses()
	s.transport.mu.Lock()
	if s.transport.sess == s {
		s.transport.sess = nil
	}
	s.transport.mu.Unlock()
	return nil
}

func (s *appSession) push(raw *cast.MediaStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.statuses <- raw:
	default:
	}
}

func (s *appSession) closeStatuses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.statuses)
	}
}
