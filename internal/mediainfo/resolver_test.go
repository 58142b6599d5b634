package mediainfo

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/cast-hub-go/internal/cast"
)

// icyBlock pads a metadata string to the 16-byte grid and prefixes the
// length byte.
func icyBlock(meta string) []byte {
	size := (len(meta) + 15) / 16
	block := make([]byte, 1+size*16)
	block[0] = byte(size)
	copy(block[1:], meta)
	return block
}

type infoCollector struct {
	mu    sync.Mutex
	infos []TrackInfo
}

func (c *infoCollector) add(info TrackInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = append(c.infos, info)
}

func (c *infoCollector) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.infos))
	for _, i := range c.infos {
		out = append(out, i.Title)
	}
	return out
}

func (c *infoCollector) hasTitle(title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, i := range c.infos {
		if i.Title == title {
			return true
		}
	}
	return false
}

func (c *infoCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.infos)
}

func (c *infoCollector) first() TrackInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infos[0]
}

func TestResolverReadsICYTitles(t *testing.T) {
	audio := make([]byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.Header.Get("Icy-MetaData"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", "16")
		w.Header().Set("icy-name", "Test FM")
		w.WriteHeader(http.StatusOK)
		w.Write(audio)
		w.Write(icyBlock("StreamTitle='Song A';"))
		w.Write(audio)
		w.Write(icyBlock("StreamTitle='Song B';"))
	}))
	defer srv.Close()

	r := NewResolver()
	defer r.Shutdown()
	var c infoCollector
	r.Listen("living-room", srv.URL, srv.URL, cast.StreamTypeLive, c.add)

	require.Eventually(t, func() bool {
		return c.hasTitle("Song B")
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, c.hasTitle("Song A"))
	first := c.first()
	require.Equal(t, "Test FM", first.StationName)
	require.Equal(t, "audio/mpeg", first.ContentType)
	require.Equal(t, srv.URL, first.URL)
}

func TestResolverFollowsPlaylistIndirection(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/radio.pls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		w.Write([]byte("[playlist]\nFile1=" + srv.URL + "/stream\nTitle1=Radio\n"))
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-name", "Indirect FM")
		w.Write(make([]byte, 32))
	})

	r := NewResolver()
	defer r.Shutdown()
	var c infoCollector
	r.Listen("living-room", srv.URL+"/radio.pls", srv.URL+"/radio.pls", cast.StreamTypeLive, c.add)

	require.Eventually(t, func() bool {
		return c.count() > 0
	}, 2*time.Second, 5*time.Millisecond)

	first := c.first()
	require.Equal(t, srv.URL+"/stream", first.URL)
	require.Equal(t, srv.URL+"/radio.pls", first.OrigURL)
	require.Equal(t, "Indirect FM", first.StationName)
}

func TestResolverSharesOneConnectionPerURL(t *testing.T) {
	var requests atomic.Int32
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", "16")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		// Keep streaming until the probe aborts the request.
		audio := make([]byte, 17) // 16 audio bytes plus a zero meta length
		for {
			select {
			case <-r.Context().Done():
				close(done)
				return
			case <-time.After(5 * time.Millisecond):
				if _, err := w.Write(audio); err != nil {
					close(done)
					return
				}
				w.(http.Flusher).Flush()
			}
		}
	}))
	defer srv.Close()

	r := NewResolver()
	defer r.Shutdown()
	var a, b infoCollector
	r.Listen("living-room", srv.URL, srv.URL, cast.StreamTypeLive, a.add)
	r.Listen("kitchen", srv.URL, srv.URL, cast.StreamTypeLive, b.add)

	require.Eventually(t, func() bool {
		return a.count() > 0 && b.count() > 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), requests.Load())

	// The connection survives the first caller leaving and dies with
	// the last one.
	r.Close("living-room")
	select {
	case <-done:
		t.Fatal("probe connection dropped while a caller remained")
	case <-time.After(50 * time.Millisecond):
	}

	r.Close("kitchen")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("probe connection was not aborted after the last caller left")
	}
}

func TestResolverEmitsPartialInfoOnFailure(t *testing.T) {
	r := NewResolver()
	defer r.Shutdown()
	var c infoCollector
	// Port 1 refuses connections immediately.
	r.Listen("living-room", "http://127.0.0.1:1/stream", "http://127.0.0.1:1/stream", cast.StreamTypeBuffered, c.add)

	require.Eventually(t, func() bool {
		return c.count() > 0
	}, 3*time.Second, 5*time.Millisecond)

	first := c.first()
	require.Equal(t, "http://127.0.0.1:1/stream", first.URL)
	require.Equal(t, cast.StreamTypeBuffered, first.StreamType)
	require.Empty(t, first.Title)
	require.Empty(t, first.StationName)
}

func TestParseStreamTitle(t *testing.T) {
	require.Equal(t, "Song A", parseStreamTitle("StreamTitle='Song A';StreamUrl='';"))
	require.Empty(t, parseStreamTitle("StreamUrl='';"))
	require.Empty(t, parseStreamTitle(strings.Repeat("\x00", 16)))
}
