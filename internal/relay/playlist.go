package relay

import (
	"bufio"
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/pkg/errors"
)

// maxPlaylistLine bounds a single playlist line when rewriting.
const maxPlaylistLine = 4 << 20

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	uriAttr  = regexp.MustCompile(`URI="([^"]*)"`)
	htmlType = []string{"text/html", "application/xhtml+xml"}
)

// ErrNotPlaylist is the base cause for playlist validation failures.
var ErrNotPlaylist = errors.New("not an HLS playlist")

// ValidatePlaylist rejects HTML error pages served in place of a playlist and
// bodies that carry no HLS markers.
func ValidatePlaylist(body []byte, contentType string) error {
	ct := strings.ToLower(contentType)
	for _, t := range htmlType {
		if strings.Contains(ct, t) {
			return errors.Wrapf(ErrNotPlaylist, "upstream declared %s", contentType)
		}
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(trimmed) == 0 {
		return errors.Wrap(ErrNotPlaylist, "empty body")
	}
	lower := bytes.ToLower(trimmed[:min(len(trimmed), 64)])
	switch {
	case bytes.HasPrefix(lower, []byte("<!doctype html")),
		bytes.HasPrefix(lower, []byte("<html")),
		bytes.HasPrefix(lower, []byte("<")):
		return errors.Wrap(ErrNotPlaylist, "body is markup")
	}

	if !bytes.Contains(trimmed, []byte("#EXTM3U")) && !bytes.Contains(trimmed, []byte("#EXT-X-")) {
		return errors.Wrap(ErrNotPlaylist, "no #EXTM3U or #EXT-X- marker")
	}
	return nil
}

// PlaylistInfo summarises a decoded playlist.
type PlaylistInfo struct {
	Type           string
	Variants       int
	Segments       uint
	TargetDuration float64
}

// InspectPlaylist decodes body with the strict m3u8 decoder. Callers treat
// an error as diagnostic only since players accept playlists it refuses.
func InspectPlaylist(body []byte) (PlaylistInfo, error) {
	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return PlaylistInfo{}, errors.Wrap(err, "decoding playlist")
	}
	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		return PlaylistInfo{Type: "master", Variants: len(master.Variants)}, nil
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		return PlaylistInfo{Type: "media", Segments: media.Count(), TargetDuration: media.TargetDuration}, nil
	}
	return PlaylistInfo{}, errors.New("unknown playlist type")
}

// AbsolutizePlaylist rewrites relative segment, variant and URI="..."
// references against base so the playlist works from any origin. It fails
// rather than return a truncated playlist when a line cannot be read.
func AbsolutizePlaylist(body []byte, base *url.URL) ([]byte, error) {
	if base == nil {
		return body, nil
	}

	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), maxPlaylistLine)
	first := true
	for sc.Scan() {
		if !first {
			out.WriteByte('\n')
		}
		first = false

		line := sc.Text()
		trim := strings.TrimSpace(line)
		switch {
		case trim == "":
			out.WriteString(line)
		case strings.HasPrefix(trim, "#"):
			out.WriteString(uriAttr.ReplaceAllStringFunc(line, func(attr string) string {
				ref := uriAttr.FindStringSubmatch(attr)[1]
				return `URI="` + absolute(ref, base) + `"`
			}))
		default:
			out.WriteString(absolute(trim, base))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "rewriting playlist")
	}
	if len(body) > 0 && body[len(body)-1] == '\n' {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

func absolute(ref string, base *url.URL) string {
	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() || strings.HasPrefix(ref, "data:") {
		return ref
	}
	return base.ResolveReference(u).String()
}
