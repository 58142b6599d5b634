package discovery

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const mdnsService = "_googlecast._tcp"

// RunMDNS re-queries the cast service record on a fixed interval and
// feeds every answer through the scanner. It returns when the context
// is cancelled.
func RunMDNS(ctx context.Context, scanner *Scanner, interval time.Duration) {
	queryMDNS(scanner)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queryMDNS(scanner)
		}
	}
}

func queryMDNS(scanner *Scanner) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			a, ok := announcementFromEntry(entry)
			if !ok {
				continue
			}
			scanner.Observe(a)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     mdnsService,
		Domain:      "local",
		Timeout:     3 * time.Second,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	<-done
	if err != nil {
		log.Printf("mdns query failed: %v", err)
	}
}

func announcementFromEntry(entry *mdns.ServiceEntry) (Announcement, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return Announcement{}, false
	}
	name := friendlyNameFromTXT(entry.InfoFields)
	if name == "" {
		name = strings.TrimSuffix(entry.Name, "."+mdnsService+".local.")
	}
	if name == "" {
		return Announcement{}, false
	}
	return Announcement{
		Name: name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}, true
}

// friendlyNameFromTXT extracts the fn key of the cast TXT record.
func friendlyNameFromTXT(fields []string) string {
	for _, f := range fields {
		if strings.HasPrefix(f, "fn=") {
			return strings.TrimPrefix(f, "fn=")
		}
	}
	return ""
}
