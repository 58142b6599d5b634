// Package device binds one media receiver to the property bus: it
// declares the device's property tree, publishes status transitions,
// and dispatches command writes to the player.
package device

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/cast-hub-go/internal/cast"
	"github.com/strefethen/cast-hub-go/internal/config"
	"github.com/strefethen/cast-hub-go/internal/mediainfo"
	"github.com/strefethen/cast-hub-go/internal/statestore"
)

var identityRe = regexp.MustCompile(`[.\s]+`)

// Identity derives the stable device id from the announced friendly
// name. Dots and whitespace collapse to underscores so the id is a
// single property path segment.
func Identity(name string) string {
	return identityRe.ReplaceAllString(name, "_")
}

// Facade is the per-device composition of session, controller, media
// info resolution, and property bus plumbing.
type Facade struct {
	id       string
	name     string
	cfg      config.Config
	store    *statestore.Store
	resolver *mediainfo.Resolver
	origin   string

	session    *cast.SessionManager
	controller *cast.Controller

	unsubscribe func()
}

// New declares the device's properties, wires the session and
// controller, and starts connecting. The facade keeps running through
// disconnects until Close.
func New(name string, target cast.Target, cfg config.Config, store *statestore.Store, resolver *mediainfo.Resolver, factory cast.TransportFactory) (*Facade, error) {
	id := Identity(name)
	if err := declareProperties(store, id, target); err != nil {
		return nil, err
	}

	f := &Facade{
		id:       id,
		name:     name,
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		origin:   statestore.NewOrigin(),
	}

	f.session = cast.NewSessionManager(id, target, factory, cast.SessionConfig{
		RetryBase:     time.Duration(cfg.ConnectRetryBaseMs) * time.Millisecond,
		MaxReconnects: cfg.MaxReconnectAttempts,
		OpTimeout:     f.opTimeout(),
	}, cast.SessionCallbacks{
		OnConnected:    func() { f.setAck(leafConnected, true) },
		OnDisconnected: func() { f.setAck(leafConnected, false) },
		OnTerminal: func() {
			log.Printf("%s - giving up after %d reconnect attempts, waiting for reconnect command", f.id, cfg.MaxReconnectAttempts)
		},
		DetachPlayer:     func() { f.controller.Detach() },
		OnReceiverStatus: f.handleClientStatus,
	})

	f.controller = cast.NewController(id, f.session, cast.ControllerConfig{
		PollDelay: time.Duration(cfg.StatusPollDelayMs) * time.Millisecond,
		OpTimeout: f.opTimeout(),
	}, cast.ControllerCallbacks{
		OnStatus:  f.publishPlayerStatus,
		OnPlaying: func() { f.setIfChanged(leafPlaying, true) },
		OnStopped: func() { f.setIfChanged(leafPlaying, false) },
	})

	// Initial published state: address, disconnected, stopped.
	f.setAck(leafAddress, target.Host)
	f.setAck(leafPort, strconv.Itoa(target.Port))
	f.setAck(leafConnected, false)
	f.setAck(leafPlaying, false)
	f.publishPlayerStatus(cast.Normalize(nil))

	// Seed url2play only when no value survived from a previous run.
	if _, ok := store.GetValue(f.prop(leafURL2Play)); !ok {
		f.setAck(leafURL2Play, url2playSeed)
	}

	f.unsubscribe = store.Subscribe(f.onChange)
	f.session.Connect()
	return f, nil
}

func (f *Facade) ID() string   { return f.id }
func (f *Facade) Name() string { return f.name }

func (f *Facade) Target() cast.Target          { return f.session.Target() }
func (f *Facade) Flags() cast.ConnectionFlags  { return f.session.Flags() }
func (f *Facade) Terminal() bool               { return f.session.Terminal() }
func (f *Facade) Retries() int                 { return f.session.Retries() }
func (f *Facade) PlayerState() cast.PlayerStatus { return f.controller.LastStatus() }

// Reconnect is the explicit external reconnect command; it revives a
// device that exhausted its retry budget.
func (f *Facade) Reconnect() {
	f.session.Reconnect()
}

// SetTarget follows a device that moved to a new address.
func (f *Facade) SetTarget(target cast.Target) {
	f.session.SetTarget(target)
	f.setAck(leafAddress, target.Host)
	f.setAck(leafPort, strconv.Itoa(target.Port))
}

func (f *Facade) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.resolver.Close(f.id)
	f.controller.Close()
	f.session.Close()
}

func (f *Facade) prop(leaf string) string {
	return f.id + "." + leaf
}

func (f *Facade) opTimeout() time.Duration {
	if f.cfg.CastTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(f.cfg.CastTimeoutMs) * time.Millisecond
}

func (f *Facade) setAck(leaf string, val any) {
	if err := f.store.SetValue(f.prop(leaf), val, true, f.origin); err != nil {
		log.Printf("%s - could not set %s: %v", f.id, leaf, err)
	}
}

// setIfChanged suppresses writes that would republish the already
// acknowledged value.
func (f *Facade) setIfChanged(leaf string, val any) {
	cur, ok := f.store.GetValue(f.prop(leaf))
	if ok && cur.Ack && valuesEqual(cur.Val, val) {
		return
	}
	f.setAck(leaf, val)
}

// publishPlayerStatus maps one normalized player status onto the
// property tree.
func (f *Facade) publishPlayerStatus(s cast.PlayerStatus) {
	f.setIfChanged(leafPlayerState, strings.ToLower(string(s.PlayerState)))
	f.setIfChanged(leafCurrentTime, math.Floor(s.CurrentTime))
	f.setIfChanged(leafPaused, s.PlayerState == cast.PlayerStatePaused)

	if len(s.Items) > 0 && s.Items[0].Media != nil {
		if raw, err := json.Marshal(s.Items); err == nil {
			f.setIfChanged(leafPlaylistRaw, string(raw))
		}
	}
	f.setIfChanged(leafCurrentItemID, float64(s.CurrentItemID))

	f.setIfChanged(leafRepeatMode, string(s.RepeatMode))
	f.setIfChanged(leafRepeatOff, s.RepeatMode == cast.RepeatOff)
	f.setIfChanged(leafRepeatAll, s.RepeatMode == cast.RepeatAll)
	f.setIfChanged(leafRepeatAllShuffle, s.RepeatMode == cast.RepeatAllShuffle)
	f.setIfChanged(leafRepeatSingle, s.RepeatMode == cast.RepeatSingle)

	f.setIfChanged(leafPlayerVolume, math.Round(s.Volume*100))
	f.setIfChanged(leafPlayerMuted, s.Muted)

	f.setIfChanged(leafStreamType, orUnknown(string(s.Media.StreamType)))
	if s.Media.Duration > 0 {
		f.setIfChanged(leafDuration, s.Media.Duration)
	} else {
		f.setIfChanged(leafDuration, float64(-1))
	}
	f.setIfChanged(leafContentType, orUnknown(s.Media.ContentType))
	f.setIfChanged(leafContentID, orUnknown(s.Media.ContentID))

	var meta cast.Metadata
	if s.Media.Metadata != nil {
		meta = *s.Media.Metadata
	}
	f.setIfChanged(leafTitle, orUnknown(meta.Title))
	f.setIfChanged(leafAlbum, orUnknown(meta.AlbumName))
	f.setIfChanged(leafArtist, orUnknown(meta.Artist))
}

// handleClientStatus maps device-level pushes (volume, HDMI input,
// running application) onto the status channel.
func (f *Facade) handleClientStatus(rs *cast.ReceiverStatus) {
	if rs == nil {
		return
	}
	if rs.Volume != nil {
		if rs.Volume.Level != nil {
			f.setIfChanged(leafVolume, math.Round(*rs.Volume.Level*100))
		}
		if rs.Volume.Muted != nil {
			f.setIfChanged(leafMuted, *rs.Volume.Muted)
		}
	}

	isActiveInput := true
	if rs.IsActiveInput != nil {
		isActiveInput = *rs.IsActiveInput
	}
	f.setIfChanged(leafIsActiveInput, isActiveInput)

	isStandBy := false
	if rs.IsStandBy != nil {
		isStandBy = *rs.IsStandBy
	}
	f.setIfChanged(leafIsStandBy, isStandBy)

	if len(rs.Applications) > 0 {
		app := rs.Applications[0]
		f.setIfChanged(leafDisplayName, app.DisplayName)
		f.setIfChanged(leafStatusText, app.StatusText)
	}
}

// onChange receives every bus notification. Acknowledged values and
// the facade's own writes are echoes, not commands.
func (f *Facade) onChange(name string, v statestore.Value) {
	if !strings.HasPrefix(name, f.id+".") {
		return
	}
	if v.Ack || v.From == f.origin {
		return
	}
	leaf := name[len(f.id)+1:]
	go f.dispatch(leaf, v.Val)
}

func (f *Facade) dispatch(leaf string, val any) {
	ctx, cancel := context.WithTimeout(context.Background(), f.opTimeout())
	defer cancel()

	var err error
	switch leaf {
	case leafVolume:
		if level, ok := toFloat(val); ok {
			err = f.controller.SetVolume(ctx, clamp(level/100, 0, 1))
		}
	case leafMuted:
		if muted, ok := toBool(val); ok {
			err = f.controller.SetMuted(ctx, muted)
		}
	case leafPlaying:
		if playing, ok := toBool(val); ok {
			if playing {
				f.playLast()
			} else {
				err = f.controller.Stop(ctx)
			}
		}
	case leafPaused:
		if paused, ok := toBool(val); ok {
			if paused {
				err = f.controller.Pause(ctx)
			} else {
				err = f.controller.Play(ctx)
			}
		}
	case leafJump:
		if offset, ok := toFloat(val); ok {
			if err = f.controller.JumpInPlaylist(ctx, int(offset)); err == nil {
				f.setAck(leafJump, val)
			}
		}
	case leafRepeatMode:
		log.Printf("%s - please use the boolean repeat variables to set the repeat mode", f.id)
	case leafRepeatOff:
		err = f.setRepeat(ctx, val, cast.RepeatOff, cast.RepeatAll)
	case leafRepeatAll:
		err = f.setRepeat(ctx, val, cast.RepeatAll, cast.RepeatOff)
	case leafRepeatAllShuffle:
		err = f.setRepeat(ctx, val, cast.RepeatAllShuffle, cast.RepeatOff)
	case leafRepeatSingle:
		err = f.setRepeat(ctx, val, cast.RepeatSingle, cast.RepeatOff)
	case leafAnnouncement:
		if url, ok := val.(string); ok && url != "" {
			if err = f.controller.PlayAnnouncement(ctx, url); err == nil {
				f.setAck(leafAnnouncement, url)
			}
		}
	case leafURL2Play:
		if url, ok := val.(string); ok && url != "" {
			f.PlayURL(url, "", "")
		}
	default:
		log.Printf("%s - update for %s not supported", f.id, leaf)
	}
	if err != nil {
		log.Printf("%s - could not apply %s: %v", f.id, leaf, err)
	}
}

func (f *Facade) setRepeat(ctx context.Context, val any, onMode, offMode cast.RepeatMode) error {
	on, ok := toBool(val)
	if !ok {
		return nil
	}
	mode := offMode
	if on {
		mode = onMode
	}
	return f.controller.SetRepeatMode(ctx, mode)
}

// playLast replays the last played content, falling back to the last
// url2play command. With neither playable the playing flag resets.
func (f *Facade) playLast() {
	if url := f.httpValue(leafContentID); url != "" {
		f.PlayURL(url, "", "")
		return
	}
	if url := f.httpValue(leafURL2Play); url != "" {
		f.PlayURL(url, "", "")
		return
	}
	f.setAck(leafPlaying, false)
}

func (f *Facade) httpValue(leaf string) string {
	v, ok := f.store.GetValue(f.prop(leaf))
	if !ok {
		return ""
	}
	s, ok := v.Val.(string)
	if !ok || !strings.HasPrefix(s, "http") {
		return ""
	}
	return s
}

// PlayURL resolves and plays a URL. Non-http(s) targets are treated as
// local files and re-enter through the export endpoint.
func (f *Facade) PlayURL(url2play, origURL string, streamType cast.StreamType) {
	if origURL == "" {
		origURL = url2play
	}
	if streamType == "" {
		// Assume a live stream by default.
		streamType = cast.StreamTypeLive
	}

	if !strings.HasPrefix(url2play, "http") {
		log.Printf("%s - not a http(s) URL, assuming local file for %s", f.id, url2play)
		if f.cfg.ExportHost == "" {
			log.Printf("%s - cannot play file %q", f.id, url2play)
			log.Printf("%s - please configure the export endpoint first", f.id)
			return
		}
		go f.exportLocalFile(url2play, origURL)
		return
	}

	var loadOnce sync.Once
	f.resolver.Listen(f.id, url2play, origURL, streamType, func(info mediainfo.TrackInfo) {
		loadOnce.Do(func() {
			go f.loadResolved(info, origURL, streamType)
		})
		if info.Title != "" {
			f.setIfChanged(leafTitle, info.Title)
		}
	})
}

func (f *Facade) loadResolved(info mediainfo.TrackInfo, origURL string, streamType cast.StreamType) {
	ctx, cancel := context.WithTimeout(context.Background(), f.opTimeout())
	defer cancel()

	title := info.Title
	if title == "" {
		title = info.StationName
	}
	if title == "" {
		title = origURL
	}
	err := f.controller.LoadMedia(ctx, cast.MediaRequest{
		ContentID:   info.URL,
		ContentType: info.ContentType,
		StreamType:  streamType,
		Title:       title,
		Autoplay:    true,
	})
	if err != nil {
		log.Printf("%s - cannot play %q: %v", f.id, info.URL, err)
		return
	}
	f.setAck(leafURL2Play, origURL)
}

// exportLocalFile stores the file's bytes on the bus and replays them
// through the export endpoint as a buffered stream.
func (f *Facade) exportLocalFile(path, origURL string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("%s - cannot read file %q: %v", f.id, path, err)
		return
	}
	exportName := f.prop(leafExportedMedia)
	if err := f.store.SetBinary(exportName, data, f.origin); err != nil {
		log.Printf("%s - cannot store file %q into %s: %v", f.id, path, exportName, err)
		return
	}
	exported := "http://" + f.cfg.ExportHost + ":" + f.cfg.ExportPort + "/state/" + exportName
	log.Printf("%s - exported as %s", f.id, exported)
	f.PlayURL(exported, origURL, cast.StreamTypeBuffered)
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}
