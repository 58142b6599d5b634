package statestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeclareSeedsDefaultOnce(t *testing.T) {
	s := NewMemory()

	require.NoError(t, s.DeclareProperty("Living_Room.status.connected", Descriptor{
		Type: TypeBoolean, Read: true, Write: true, Role: "status", Def: false,
	}))

	v, ok := s.GetValue("Living_Room.status.connected")
	require.True(t, ok)
	require.Equal(t, false, v.Val)
	require.True(t, v.Ack)

	// A stored value survives re-declaration.
	require.NoError(t, s.SetValue("Living_Room.status.connected", true, true, "test"))
	require.NoError(t, s.DeclareProperty("Living_Room.status.connected", Descriptor{
		Type: TypeBoolean, Read: true, Write: true, Role: "status", Def: false,
	}))

	v, ok = s.GetValue("Living_Room.status.connected")
	require.True(t, ok)
	require.Equal(t, true, v.Val)
}

func TestSubscribeReceivesWrites(t *testing.T) {
	s := NewMemory()

	var gotName string
	var gotValue Value
	unsubscribe := s.Subscribe(func(name string, v Value) {
		gotName = name
		gotValue = v
	})

	require.NoError(t, s.SetValue("Kitchen.player.url2play", "http://example.org/a.mp3", false, "client-1"))
	require.Equal(t, "Kitchen.player.url2play", gotName)
	require.Equal(t, "http://example.org/a.mp3", gotValue.Val)
	require.False(t, gotValue.Ack)
	require.Equal(t, "client-1", gotValue.From)

	unsubscribe()
	gotName = ""
	require.NoError(t, s.SetValue("Kitchen.player.url2play", "x", false, "client-1"))
	require.Empty(t, gotName)
}

func TestSubscriberMayReenterStore(t *testing.T) {
	s := NewMemory()

	s.Subscribe(func(name string, v Value) {
		if name == "a" {
			require.NoError(t, s.SetValue("b", 1, true, "loop"))
		}
	})
	require.NoError(t, s.SetValue("a", 0, false, "test"))

	v, ok := s.GetValue("b")
	require.True(t, ok)
	require.Equal(t, 1, v.Val)
}

func TestBinaryRoundTrip(t *testing.T) {
	s := NewMemory()

	payload := []byte{0x49, 0x44, 0x33, 0x00, 0xff}
	require.NoError(t, s.SetBinary("Kitchen.exportedMedia.mp3", payload, "test"))

	got, ok := s.GetBinary("Kitchen.exportedMedia.mp3")
	require.True(t, ok)
	require.Equal(t, payload, got)

	// Mutating the returned slice must not affect the stored payload.
	got[0] = 0x00
	again, _ := s.GetBinary("Kitchen.exportedMedia.mp3")
	require.Equal(t, payload, again)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cast-hub.db")

	s, err := Open(dbPath)
	require.NoError(t, err)

	require.NoError(t, s.DeclareProperty("Living_Room.player.url2play", Descriptor{
		Type: TypeString, Read: true, Write: true, Role: "command",
	}))
	require.NoError(t, s.SetValue("Living_Room.player.url2play", "http://radio.example/stream", true, "test"))
	require.NoError(t, s.SetBinary("Living_Room.exportedMedia.mp3", []byte("mp3-bytes"), "test"))
	require.NoError(t, s.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.GetValue("Living_Room.player.url2play")
	require.True(t, ok)
	require.Equal(t, "http://radio.example/stream", v.Val)
	require.True(t, v.Ack)

	d, ok := reopened.Descriptor("Living_Room.player.url2play")
	require.True(t, ok)
	require.Equal(t, TypeString, d.Type)
	require.Equal(t, "command", d.Role)

	payload, ok := reopened.GetBinary("Living_Room.exportedMedia.mp3")
	require.True(t, ok)
	require.Equal(t, []byte("mp3-bytes"), payload)

	// Declaring again after restart must not clobber the stored value.
	require.NoError(t, reopened.DeclareProperty("Living_Room.player.url2play", Descriptor{
		Type: TypeString, Read: true, Write: true, Role: "command", Def: "http://example.org/playme.mp3",
	}))
	v, _ = reopened.GetValue("Living_Room.player.url2play")
	require.Equal(t, "http://radio.example/stream", v.Val)
}

func TestListByPrefix(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.DeclareProperty("Kitchen.status.connected", Descriptor{Type: TypeBoolean}))
	require.NoError(t, s.DeclareProperty("Kitchen.player.paused", Descriptor{Type: TypeBoolean}))
	require.NoError(t, s.DeclareProperty("Bedroom.status.connected", Descriptor{Type: TypeBoolean}))

	kitchen := s.List("Kitchen.")
	require.Len(t, kitchen, 2)
	require.Contains(t, kitchen, "Kitchen.status.connected")

	all := s.List("")
	require.Len(t, all, 3)
}
