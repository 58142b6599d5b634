package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/cast-hub-go/internal/cast/casttest"
	"github.com/strefethen/cast-hub-go/internal/config"
	"github.com/strefethen/cast-hub-go/internal/discovery"
	"github.com/strefethen/cast-hub-go/internal/hub"
	"github.com/strefethen/cast-hub-go/internal/statestore"
)

type testHub struct {
	srv     *httptest.Server
	hub     *hub.Service
	store   *statestore.Store
	factory *casttest.FakeFactory
}

func newTestHub(t *testing.T, cfg config.Config) *testHub {
	t.Helper()
	if cfg.ConnectRetryBaseMs == 0 {
		cfg.ConnectRetryBaseMs = 1
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.StatusPollDelayMs == 0 {
		cfg.StatusPollDelayMs = 30000
	}
	if cfg.CastTimeoutMs == 0 {
		cfg.CastTimeoutMs = 2000
	}

	th := &testHub{
		store:   statestore.NewMemory(),
		factory: &casttest.FakeFactory{},
	}
	handler, hubService, shutdown, err := NewHandler(cfg, Options{
		DisableDiscovery: true,
		Transport:        th.factory.New,
		Store:            th.store,
	})
	require.NoError(t, err)
	th.hub = hubService
	th.srv = httptest.NewServer(handler)
	t.Cleanup(func() {
		th.srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	})
	return th
}

func (th *testHub) observeDevice(t *testing.T) {
	t.Helper()
	th.hub.Observe(discovery.Announcement{Name: "Living Room", Host: "10.0.0.5", Port: 8009})
	require.Eventually(t, func() bool {
		facade := th.hub.GetDevice("Living_Room")
		return facade != nil && facade.Flags().ClientConnected
	}, time.Second, time.Millisecond)
}

func (th *testHub) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(th.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthRoute(t *testing.T) {
	th := newTestHub(t, config.Config{})
	var body map[string]any
	status := th.getJSON(t, "/health", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "cast-hub", body["service"])
}

func TestDeviceRoutes(t *testing.T) {
	th := newTestHub(t, config.Config{})
	th.observeDevice(t)

	var list struct {
		Object string           `json:"object"`
		Data   []map[string]any `json:"data"`
	}
	status := th.getJSON(t, "/v1/devices", &list)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	require.Equal(t, "Living_Room", list.Data[0]["id"])
	require.Equal(t, "Living Room", list.Data[0]["name"])
	require.Equal(t, "10.0.0.5", list.Data[0]["address"])
	require.Equal(t, true, list.Data[0]["connected"])

	var single map[string]any
	status = th.getJSON(t, "/v1/devices/Living_Room", &single)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "device", single["object"])

	var missing map[string]any
	status = th.getJSON(t, "/v1/devices/Kitchen", &missing)
	require.Equal(t, http.StatusNotFound, status)
}

func TestReconnectRoute(t *testing.T) {
	th := newTestHub(t, config.Config{})
	th.observeDevice(t)

	resp, err := http.Post(th.srv.URL+"/v1/devices/Living_Room/reconnect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(th.srv.URL+"/v1/devices/Kitchen/reconnect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPropertyRoutes(t *testing.T) {
	th := newTestHub(t, config.Config{})
	th.observeDevice(t)

	var list struct {
		Data []map[string]any `json:"data"`
	}
	status := th.getJSON(t, "/v1/properties?prefix=Living_Room.status", &list)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, list.Data)
	for _, p := range list.Data {
		require.True(t, strings.HasPrefix(p["name"].(string), "Living_Room.status"))
	}

	var single map[string]any
	status = th.getJSON(t, "/v1/properties/Living_Room.status.connected", &single)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, single["val"])
	require.Equal(t, true, single["ack"])
}

func TestPropertyWriteBecomesCommand(t *testing.T) {
	th := newTestHub(t, config.Config{})
	th.observeDevice(t)

	body := bytes.NewBufferString(`{"val": true}`)
	req, err := http.NewRequest(http.MethodPut, th.srv.URL+"/v1/properties/Living_Room.status.muted", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The write lands unacknowledged and the facade applies it.
	require.Eventually(t, func() bool {
		return len(th.factory.Last().Muteds()) == 1
	}, time.Second, time.Millisecond)
}

func TestPropertyWriteRejectsReadOnly(t *testing.T) {
	th := newTestHub(t, config.Config{})
	th.observeDevice(t)

	body := bytes.NewBufferString(`{"val": "playing"}`)
	req, err := http.NewRequest(http.MethodPut, th.srv.URL+"/v1/properties/Living_Room.player.playerState", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	require.Equal(t, "PROPERTY_READ_ONLY", errBody.Error.Code)
}

func TestPropertyWriteRejectsUndeclared(t *testing.T) {
	th := newTestHub(t, config.Config{})

	body := bytes.NewBufferString(`{"val": 1}`)
	req, err := http.NewRequest(http.MethodPut, th.srv.URL+"/v1/properties/Living_Room.no.such.leaf", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	require.Equal(t, "UNSUPPORTED_PROPERTY", errBody.Error.Code)
}

func TestStateExportServesBytes(t *testing.T) {
	th := newTestHub(t, config.Config{})
	payload := []byte("fake mp3 payload bytes")
	require.NoError(t, th.store.SetBinary("Living_Room.exportedMedia.mp3", payload, "system.test"))

	resp, err := http.Get(th.srv.URL + "/state/Living_Room.exportedMedia.mp3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))

	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, payload, served)
}

func TestAuthGuardsMutatingRoutes(t *testing.T) {
	th := newTestHub(t, config.Config{APISecret: "hub-secret", TokenExpirySec: 3600})
	th.observeDevice(t)

	// Without a token the write is rejected.
	body := bytes.NewBufferString(`{"val": true}`)
	req, err := http.NewRequest(http.MethodPut, th.srv.URL+"/v1/properties/Living_Room.status.muted", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A wrong secret is rejected.
	resp, err = http.Post(th.srv.URL+"/v1/auth/token", "application/json", bytes.NewBufferString(`{"client_name": "tester", "secret": "wrong"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The token route itself is public; the posted secret gates it.
	resp, err = http.Post(th.srv.URL+"/v1/auth/token", "application/json", bytes.NewBufferString(`{"client_name": "tester", "secret": "hub-secret"}`))
	require.NoError(t, err)
	var tokenBody struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenBody))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, tokenBody.AccessToken)

	body = bytes.NewBufferString(`{"val": true}`)
	req, err = http.NewRequest(http.MethodPut, th.srv.URL+"/v1/properties/Living_Room.status.muted", body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenBody.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The command carried the client's origin and reached the device.
	require.Eventually(t, func() bool {
		return len(th.factory.Last().Muteds()) > 0
	}, time.Second, time.Millisecond)
}

func TestRequestLoggerPreservesHijacker(t *testing.T) {
	var hijackable bool
	handler := requestLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hijackable = w.(http.Hijacker)
	}))
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.True(t, hijackable)
}

func TestChangeStreamOverWebsocket(t *testing.T) {
	th := newTestHub(t, config.Config{})
	th.observeDevice(t)

	wsURL := "ws" + strings.TrimPrefix(th.srv.URL, "http") + "/v1/ws?prefix=Living_Room.metadata"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, th.store.SetValue("Living_Room.metadata.title", "Song A", true, "system.test"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var change struct {
		Object string `json:"object"`
		Name   string `json:"name"`
		Val    any    `json:"val"`
		Ack    bool   `json:"ack"`
	}
	require.NoError(t, conn.ReadJSON(&change))
	require.Equal(t, "change", change.Object)
	require.Equal(t, "Living_Room.metadata.title", change.Name)
	require.Equal(t, "Song A", change.Val)
	require.True(t, change.Ack)
}
