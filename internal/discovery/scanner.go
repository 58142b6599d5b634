package discovery

import (
	"sync"
)

// Announcement is one sighting of a device on the network, from any
// source: mDNS, SSDP, or static configuration.
type Announcement struct {
	Name string
	Host string
	Port int
}

// Scanner deduplicates announcements by device name. The first
// sighting of a name fires OnFound; later sightings with a changed
// address fire OnUpdated; identical repeats are dropped. Names are
// never forgotten, so a device that goes quiet keeps its entry.
type Scanner struct {
	onFound   func(Announcement)
	onUpdated func(Announcement)

	mu   sync.Mutex
	seen map[string]Announcement
}

func NewScanner(onFound, onUpdated func(Announcement)) *Scanner {
	return &Scanner{
		onFound:   onFound,
		onUpdated: onUpdated,
		seen:      make(map[string]Announcement),
	}
}

// Observe feeds one sighting through the dedupe table. Callbacks run
// on the caller's goroutine, outside the scanner's lock.
func (s *Scanner) Observe(a Announcement) {
	if a.Name == "" || a.Host == "" {
		return
	}
	if a.Port == 0 {
		a.Port = 8009
	}

	s.mu.Lock()
	prev, known := s.seen[a.Name]
	if known && prev == a {
		s.mu.Unlock()
		return
	}
	s.seen[a.Name] = a
	s.mu.Unlock()

	if !known {
		if s.onFound != nil {
			s.onFound(a)
		}
		return
	}
	if s.onUpdated != nil {
		s.onUpdated(a)
	}
}

// Known returns a snapshot of all devices seen so far.
func (s *Scanner) Known() []Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Announcement, 0, len(s.seen))
	for _, a := range s.seen {
		out = append(out, a)
	}
	return out
}
