package mediainfo

import (
	"bufio"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var streamTitleRe = regexp.MustCompile(`StreamTitle='([^']*)'`)

// readTitles consumes the ICY metadata interleave: metaint audio bytes,
// one length byte, then length*16 bytes of metadata. It returns when
// the stream ends or the request context is cancelled.
func (p *probe) readTitles(resp *http.Response, metaint int, info TrackInfo) {
	reader := bufio.NewReader(resp.Body)
	var lastTitle string
	for {
		if _, err := io.CopyN(io.Discard, reader, int64(metaint)); err != nil {
			return
		}
		lengthByte, err := reader.ReadByte()
		if err != nil {
			return
		}
		size := int(lengthByte) * 16
		if size == 0 {
			continue
		}
		meta := make([]byte, size)
		if _, err := io.ReadFull(reader, meta); err != nil {
			return
		}
		title := parseStreamTitle(string(meta))
		if title == "" || title == lastTitle {
			continue
		}
		lastTitle = title
		info.Title = title
		p.emit(info)
	}
}

func parseStreamTitle(meta string) string {
	m := streamTitleRe.FindStringSubmatch(meta)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func headerInt(resp *http.Response, key string) int {
	val := strings.TrimSpace(resp.Header.Get(key))
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}
