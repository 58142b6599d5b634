package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/require"
)

func TestAnnouncementFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:   "Chromecast-abc123._googlecast._tcp.local.",
		AddrV4: net.IPv4(10, 0, 0, 5),
		Port:   8009,
		InfoFields: []string{
			"id=abc123",
			"md=Chromecast",
			"fn=Living Room",
		},
	}

	a, ok := announcementFromEntry(entry)
	require.True(t, ok)
	require.Equal(t, "Living Room", a.Name)
	require.Equal(t, "10.0.0.5", a.Host)
	require.Equal(t, 8009, a.Port)
}

func TestAnnouncementFromEntryFallsBackToInstanceName(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:   "Kitchen._googlecast._tcp.local.",
		AddrV4: net.IPv4(10, 0, 0, 6),
		Port:   8009,
	}

	a, ok := announcementFromEntry(entry)
	require.True(t, ok)
	require.Equal(t, "Kitchen", a.Name)
}

func TestAnnouncementFromEntryRequiresAddress(t *testing.T) {
	_, ok := announcementFromEntry(&mdns.ServiceEntry{Name: "x._googlecast._tcp.local."})
	require.False(t, ok)
	_, ok = announcementFromEntry(nil)
	require.False(t, ok)
}
