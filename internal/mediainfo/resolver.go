// Package mediainfo probes stream URLs for ICY metadata and playlist
// indirection so playback can publish station and track names.
package mediainfo

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/strefethen/cast-hub-go/internal/cast"
)

// TrackInfo is the metadata resolved for one stream URL. Fields stay
// empty when the server does not supply them.
type TrackInfo struct {
	// URL is the playable stream URL, rewritten when the original
	// pointed at a playlist.
	URL         string
	OrigURL     string
	ContentType string
	StreamType  cast.StreamType
	StationName string
	Title       string
}

// Callback receives the initial resolution and every title change
// afterwards.
type Callback func(TrackInfo)

// fallbackDelay bounds how long a caller waits for the first callback
// when the server never answers usefully.
const fallbackDelay = time.Second

// Resolver multiplexes ICY probe connections. At most one connection
// exists per URL no matter how many callers listen to it; each caller
// listens to at most one URL, and re-listening moves it.
type Resolver struct {
	client *http.Client

	mu      sync.Mutex
	callers map[string]string // caller id -> url
	probes  map[string]*probe
}

func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
				TLSHandshakeTimeout: 3 * time.Second,
			},
		},
		callers: make(map[string]string),
		probes:  make(map[string]*probe),
	}
}

// Listen registers a caller for a URL. The callback fires at least
// once, with partial metadata when the probe fails.
func (r *Resolver) Listen(callerID, url, origURL string, streamType cast.StreamType, cb Callback) {
	r.Close(callerID)

	r.mu.Lock()
	p, ok := r.probes[url]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		p = &probe{
			resolver:   r,
			url:        url,
			origURL:    origURL,
			streamType: streamType,
			cancel:     cancel,
			callbacks:  make(map[string]Callback),
		}
		r.probes[url] = p
		go p.run(ctx)
	}
	r.callers[callerID] = url
	r.mu.Unlock()

	p.addCaller(callerID, cb)
}

// Close detaches a caller. The probe connection is torn down when its
// last caller leaves.
func (r *Resolver) Close(callerID string) {
	r.mu.Lock()
	url, ok := r.callers[callerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.callers, callerID)
	p := r.probes[url]
	var last bool
	if p != nil {
		last = p.removeCaller(callerID)
		if last {
			delete(r.probes, url)
		}
	}
	r.mu.Unlock()

	if p != nil && last {
		p.cancel()
	}
}

// Shutdown aborts every probe connection.
func (r *Resolver) Shutdown() {
	r.mu.Lock()
	probes := make([]*probe, 0, len(r.probes))
	for _, p := range r.probes {
		probes = append(probes, p)
	}
	r.probes = make(map[string]*probe)
	r.callers = make(map[string]string)
	r.mu.Unlock()

	for _, p := range probes {
		p.cancel()
	}
}

// drop removes a finished probe so a later Listen can retry the URL.
func (r *Resolver) drop(p *probe) {
	r.mu.Lock()
	if r.probes[p.url] == p && p.callerCount() == 0 {
		delete(r.probes, p.url)
	}
	r.mu.Unlock()
}

type probe struct {
	resolver   *Resolver
	url        string
	origURL    string
	streamType cast.StreamType
	cancel     context.CancelFunc

	mu        sync.Mutex
	callbacks map[string]Callback
	last      TrackInfo
	emitted   bool
}

func (p *probe) addCaller(id string, cb Callback) {
	p.mu.Lock()
	p.callbacks[id] = cb
	replay := p.emitted
	last := p.last
	p.mu.Unlock()
	if replay {
		cb(last)
	}
}

func (p *probe) removeCaller(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.callbacks, id)
	return len(p.callbacks) == 0
}

func (p *probe) callerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.callbacks)
}

func (p *probe) emit(info TrackInfo) {
	p.mu.Lock()
	p.last = info
	p.emitted = true
	cbs := make([]Callback, 0, len(p.callbacks))
	for _, cb := range p.callbacks {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(info)
	}
}

func (p *probe) run(ctx context.Context) {
	// The fallback guarantees callers hear something even when the
	// server stalls before sending headers.
	fallback := time.AfterFunc(fallbackDelay, func() {
		p.mu.Lock()
		already := p.emitted
		p.mu.Unlock()
		if !already {
			p.emit(TrackInfo{URL: p.url, OrigURL: p.origURL, StreamType: p.streamType})
		}
	})
	defer fallback.Stop()

	p.probeURL(ctx, p.url, 0)
}

const maxPlaylistDepth = 3

func (p *probe) probeURL(ctx context.Context, url string, depth int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.fail(url, err)
		return
	}
	req.Header.Set("Icy-MetaData", "1")

	resp, err := p.resolver.client.Do(req)
	if err != nil {
		p.fail(url, err)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if kind := playlistKind(url, contentType); kind != playlistNone {
		next, err := firstPlaylistEntry(resp.Body, kind)
		resp.Body.Close()
		if err != nil || next == "" || depth >= maxPlaylistDepth {
			p.fail(url, err)
			return
		}
		p.probeURL(ctx, next, depth+1)
		return
	}

	info := TrackInfo{
		URL:         url,
		OrigURL:     p.origURL,
		ContentType: contentType,
		StreamType:  p.streamType,
		StationName: resp.Header.Get("icy-name"),
	}
	p.emit(info)

	metaint := headerInt(resp, "icy-metaint")
	if metaint <= 0 {
		p.resolver.drop(p)
		return
	}
	p.readTitles(resp, metaint, info)
	p.resolver.drop(p)
}

func (p *probe) fail(url string, err error) {
	if err != nil {
		log.Printf("media info probe for %s failed: %v", url, err)
	}
	p.emit(TrackInfo{URL: url, OrigURL: p.origURL, StreamType: p.streamType})
	p.resolver.drop(p)
}
