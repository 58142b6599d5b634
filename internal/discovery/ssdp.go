package discovery

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	ssdpAddr   = "239.255.255.250:1900"
	ssdpTarget = "urn:dial-multiscreen-org:service:dial:1"
)

type ssdpResponse struct {
	Location string
	USN      string
	Headers  map[string]string
	FromIP   string
}

// RunSSDP performs one M-SEARCH pass for DIAL endpoints, probes every
// responder's device description, and feeds matching devices through
// the scanner. DIAL answers come from all kinds of TVs; only devices
// whose description names the cast manufacturer are kept.
func RunSSDP(ctx context.Context, scanner *Scanner, timeout time.Duration) {
	responses, err := searchDIAL(ctx, timeout)
	if err != nil {
		log.Printf("ssdp search failed: %v", err)
		return
	}

	for _, resp := range responses {
		host := extractHost(resp.Location)
		if host == "" {
			continue
		}
		probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		desc, err := ProbeDescription(probeCtx, resp.Location)
		cancel()
		if err != nil {
			log.Printf("ssdp probe failed for %s: %v", host, err)
			continue
		}
		if desc == nil || !desc.IsCastDevice() || desc.FriendlyName == "" {
			continue
		}
		scanner.Observe(Announcement{
			Name: desc.FriendlyName,
			Host: host,
			Port: 8009,
		})
	}
}

func searchDIAL(ctx context.Context, timeout time.Duration) ([]ssdpResponse, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}
	if err := sendSearch(conn, addr); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	responses := make(map[string]ssdpResponse)
	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return mapToSlice(responses), err
		}
		select {
		case <-ctx.Done():
			return mapToSlice(responses), ctx.Err()
		default:
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" || resp.USN == "" {
			continue
		}
		resp.FromIP = raddr.String()

		// Deduplicate by USN
		if _, exists := responses[resp.USN]; !exists {
			responses[resp.USN] = resp
		}
	}

	return mapToSlice(responses), nil
}

func sendSearch(conn net.PacketConn, addr *net.UDPAddr) error {
	msg := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddr,
		"MAN: \"ssdp:discover\"",
		"MX: 2",
		"ST: " + ssdpTarget,
		"",
		"",
	}, "\r\n")

	_, err := conn.WriteTo([]byte(msg), addr)
	return err
}

func parseResponse(raw string) ssdpResponse {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	// Skip status line
	if scanner.Scan() {
		// no-op
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		headers[key] = value
	}

	return ssdpResponse{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Headers:  headers,
	}
}

func mapToSlice(responses map[string]ssdpResponse) []ssdpResponse {
	result := make([]ssdpResponse, 0, len(responses))
	for _, r := range responses {
		result = append(result, r)
	}
	return result
}

func extractHost(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}
