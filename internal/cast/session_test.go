package cast_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/cast-hub-go/internal/cast"
	"github.com/strefethen/cast-hub-go/internal/cast/casttest"
)

func testTarget() cast.Target {
	return cast.Target{Host: "10.0.0.5", Port: 8009}
}

func fastSessionConfig(maxReconnects int) cast.SessionConfig {
	return cast.SessionConfig{
		RetryBase:     time.Millisecond,
		MaxReconnects: maxReconnects,
		OpTimeout:     time.Second,
	}
}

func TestSessionConnectSetsFlags(t *testing.T) {
	factory := &casttest.FakeFactory{}
	var connected atomic.Int32
	m := cast.NewSessionManager("living-room", testTarget(), factory.New, fastSessionConfig(3), cast.SessionCallbacks{
		OnConnected: func() { connected.Add(1) },
	})
	defer m.Close()

	m.Connect()
	require.Eventually(t, func() bool {
		return m.Flags().ClientConnected
	}, time.Second, time.Millisecond)

	require.Equal(t, int32(1), connected.Load())
	require.Equal(t, 0, m.Retries())
	require.False(t, m.Terminal())
	require.NotNil(t, m.Transport())

	// A second connect while connected is ignored.
	m.Connect()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, factory.Count())
}

func TestSessionRetryCeilingGoesTerminal(t *testing.T) {
	factory := &casttest.FakeFactory{ConnectErr: errors.New("dial refused")}
	var terminal atomic.Int32
	m := cast.NewSessionManager("living-room", testTarget(), factory.New, fastSessionConfig(3), cast.SessionCallbacks{
		OnTerminal: func() { terminal.Add(1) },
	})
	defer m.Close()

	m.Connect()
	require.Eventually(t, func() bool {
		return m.Terminal()
	}, 2*time.Second, time.Millisecond)

	// Initial attempt plus retries 1..3; the fourth failure trips the
	// ceiling without scheduling another attempt.
	require.Equal(t, 4, factory.Count())
	require.Equal(t, int32(1), terminal.Load())

	attempts := factory.Count()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, attempts, factory.Count())
	require.False(t, m.Flags().ClientConnected)

	// Connect is inert while terminal; only Reconnect revives it.
	m.Connect()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, attempts, factory.Count())
}

func TestSessionReconnectClearsTerminal(t *testing.T) {
	factory := &casttest.FakeFactory{ConnectErr: errors.New("dial refused")}
	m := cast.NewSessionManager("living-room", testTarget(), factory.New, fastSessionConfig(2), cast.SessionCallbacks{})
	defer m.Close()

	m.Connect()
	require.Eventually(t, func() bool {
		return m.Terminal()
	}, 2*time.Second, time.Millisecond)

	factory.SetConnectErr(nil)
	m.Reconnect()
	require.Eventually(t, func() bool {
		return m.Flags().ClientConnected
	}, time.Second, time.Millisecond)

	require.False(t, m.Terminal())
	require.Equal(t, 0, m.Retries())
}

func TestSessionDisconnectDetachesAndRetries(t *testing.T) {
	factory := &casttest.FakeFactory{}
	var detached, disconnected atomic.Int32
	m := cast.NewSessionManager("living-room", testTarget(), factory.New, fastSessionConfig(5), cast.SessionCallbacks{
		DetachPlayer:   func() { detached.Add(1) },
		OnDisconnected: func() { disconnected.Add(1) },
	})
	defer m.Close()

	m.Connect()
	require.Eventually(t, func() bool {
		return m.Flags().ClientConnected
	}, time.Second, time.Millisecond)

	factory.Last().Disconnect()

	require.Eventually(t, func() bool {
		return factory.Count() == 2 && m.Flags().ClientConnected
	}, time.Second, time.Millisecond)

	require.Equal(t, int32(1), detached.Load())
	require.Equal(t, int32(1), disconnected.Load())
}

func TestSessionPlayerFlagInvariant(t *testing.T) {
	factory := &casttest.FakeFactory{}
	m := cast.NewSessionManager("living-room", testTarget(), factory.New, fastSessionConfig(3), cast.SessionCallbacks{})
	defer m.Close()

	// Player flags cannot be raised without an established session.
	m.MarkPlayerConnecting()
	require.Equal(t, cast.ConnectionFlags{}, m.Flags())

	m.Connect()
	require.Eventually(t, func() bool {
		return m.Flags().ClientConnected
	}, time.Second, time.Millisecond)

	m.MarkPlayerConnecting()
	flags := m.Flags()
	require.True(t, flags.PlayerConnecting)
	require.False(t, flags.PlayerConnected)

	m.MarkPlayerConnected()
	flags = m.Flags()
	require.False(t, flags.PlayerConnecting)
	require.True(t, flags.PlayerConnected)

	m.ClearPlayerState()
	flags = m.Flags()
	require.True(t, flags.ClientConnected)
	require.False(t, flags.PlayerConnecting)
	require.False(t, flags.PlayerConnected)
}

func TestSessionSetTargetKeepsConnection(t *testing.T) {
	factory := &casttest.FakeFactory{}
	m := cast.NewSessionManager("living-room", testTarget(), factory.New, fastSessionConfig(3), cast.SessionCallbacks{})
	defer m.Close()

	m.Connect()
	require.Eventually(t, func() bool {
		return m.Flags().ClientConnected
	}, time.Second, time.Millisecond)

	moved := cast.Target{Host: "10.0.0.9", Port: 8009}
	m.SetTarget(moved)
	require.Equal(t, moved, m.Target())
	require.True(t, m.Flags().ClientConnected)
	require.Equal(t, 1, factory.Count())
}
