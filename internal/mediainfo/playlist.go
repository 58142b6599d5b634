package mediainfo

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

type playlistFormat int

const (
	playlistNone playlistFormat = iota
	playlistM3U
	playlistPLS
	playlistASX
)

// playlistKind classifies a response as playlist indirection by
// content type first, URL extension second.
func playlistKind(url, contentType string) playlistFormat {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "audio/x-mpegurl", "application/x-mpegurl", "application/vnd.apple.mpegurl":
		return playlistM3U
	case "audio/x-scpls", "application/pls+xml":
		return playlistPLS
	case "video/x-ms-asf", "audio/x-ms-asx":
		return playlistASX
	}

	lower := strings.ToLower(url)
	if i := strings.Index(lower, "?"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".m3u"):
		return playlistM3U
	case strings.HasSuffix(lower, ".pls"):
		return playlistPLS
	case strings.HasSuffix(lower, ".asx"):
		return playlistASX
	}
	return playlistNone
}

const maxPlaylistBytes = 64 * 1024

var (
	plsFileRe = regexp.MustCompile(`(?i)^file\d*\s*=\s*(.+)$`)
	asxRefRe  = regexp.MustCompile(`(?i)<ref[^>]+href\s*=\s*"([^"]+)"`)
)

// firstPlaylistEntry extracts the first stream URL from a playlist
// body.
func firstPlaylistEntry(body io.Reader, kind playlistFormat) (string, error) {
	limited := io.LimitReader(body, maxPlaylistBytes)

	switch kind {
	case playlistM3U:
		scanner := bufio.NewScanner(limited)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			return line, nil
		}
		return "", scanner.Err()
	case playlistPLS:
		scanner := bufio.NewScanner(limited)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if m := plsFileRe.FindStringSubmatch(line); m != nil {
				return strings.TrimSpace(m[1]), nil
			}
		}
		return "", scanner.Err()
	case playlistASX:
		raw, err := io.ReadAll(limited)
		if err != nil {
			return "", err
		}
		if m := asxRefRe.FindSubmatch(raw); m != nil {
			return strings.TrimSpace(string(m[1])), nil
		}
		return "", nil
	}
	return "", nil
}
