package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/anistream/internal/apperr"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-KEY:METHOD=AES-128,URI="key.bin"
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
/abs/seg1.ts
#EXTINF:10.0,
https://other.example/seg2.ts
#EXT-X-ENDLIST
`

func TestValidatePlaylist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		ok          bool
	}{
		{"extm3u", "#EXTM3U\n#EXTINF:1,\na.ts", "application/vnd.apple.mpegurl", true},
		{"ext-x only", "#EXT-X-VERSION:3\na.ts", "", true},
		{"bom and whitespace", "\xEF\xBB\xBF  \n#EXTM3U\n", "text/plain", true},
		{"doctype", "<!DOCTYPE html><html><body>#EXTM3U</body></html>", "", false},
		{"html tag", "  <HTML>blocked</HTML>", "", false},
		{"any markup", "<error>#EXTM3U</error>", "", false},
		{"html content type", "#EXTM3U\n", "text/html; charset=utf-8", false},
		{"no markers", "just some text", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		err := ValidatePlaylist([]byte(tt.body), tt.contentType)
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.True(t, errors.Is(err, ErrNotPlaylist), tt.name)
		}
	}
}

func TestAbsolutizePlaylist(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://cdn.example/hls/ep1/index.m3u8")
	out, err := AbsolutizePlaylist([]byte(mediaPlaylist), base)
	require.NoError(t, err)
	got := string(out)

	assert.Contains(t, got, `URI="https://cdn.example/hls/ep1/key.bin"`)
	assert.Contains(t, got, "\nhttps://cdn.example/hls/ep1/seg0.ts\n")
	assert.Contains(t, got, "\nhttps://cdn.example/abs/seg1.ts\n")
	assert.Contains(t, got, "\nhttps://other.example/seg2.ts\n")
	assert.True(t, strings.HasSuffix(got, "#EXT-X-ENDLIST\n"))
}

func TestAbsolutizePlaylistOversizedLine(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://cdn.example/hls/index.m3u8")
	body := "#EXTM3U\n" + strings.Repeat("a", maxPlaylistLine+1) + "\n#EXT-X-ENDLIST\n"

	out, err := AbsolutizePlaylist([]byte(body), base)
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestInspectPlaylist(t *testing.T) {
	t.Parallel()

	info, err := InspectPlaylist([]byte(mediaPlaylist))
	require.NoError(t, err)
	assert.Equal(t, "media", info.Type)
	assert.Equal(t, uint(3), info.Segments)

	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n360.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=1280x720\n720.m3u8\n"
	info, err = InspectPlaylist([]byte(master))
	require.NoError(t, err)
	assert.Equal(t, "master", info.Type)
	assert.Equal(t, 2, info.Variants)
}

type recorded struct {
	mu      sync.Mutex
	headers []http.Header
}

func (r *recorded) add(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, h.Clone())
}

func newUpstream(t *testing.T, rec *recorded) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/cover.jpg", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "public, max-age=999999")
		fmt.Fprint(w, "JPEGDATA")
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write([]byte{0x00, 0x01, 0x02})
	})
	mux.HandleFunc("/short-cache.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "max-age=60")
		fmt.Fprint(w, "PNG")
	})
	mux.HandleFunc("/moved.m3u8", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hls/ep1/index.m3u8", http.StatusFound)
	})
	mux.HandleFunc("/hls/ep1/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/blocked.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<!doctype html><title>Access denied</title>")
	})
	mux.HandleFunc("/big.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n"+strings.Repeat("#EXTINF:1,\na.ts\n", 100))
	})
	return httptest.NewServer(mux)
}

func newTestRelay(srv *httptest.Server, cfg Config) *Relay {
	referers := Referers(map[string]string{"127.0.0.1": "https://animefire.plus/animes/x"}, "https://animefire.plus")
	return New(NewOpener(srv.Client(), "", 3, referers), cfg)
}

func TestRelayImage(t *testing.T) {
	t.Parallel()

	rec := &recorded{}
	srv := newUpstream(t, rec)
	defer srv.Close()

	media, err := newTestRelay(srv, Config{}).Image(context.Background(), srv.URL+"/cover.jpg")
	require.NoError(t, err)

	assert.Equal(t, "JPEGDATA", string(media.Body))
	assert.Equal(t, "image/jpeg", media.ContentType)
	assert.Equal(t, "public, max-age=86400", media.CacheControl)

	require.Len(t, rec.headers, 1)
	assert.Equal(t, "https://animefire.plus/animes/x", rec.headers[0].Get("Referer"))
	assert.Equal(t, "https://animefire.plus", rec.headers[0].Get("Origin"))
	assert.Empty(t, rec.headers[0].Get("Cookie"))
}

func TestRelayImageDefaultsAndShortCache(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, &recorded{})
	defer srv.Close()
	r := newTestRelay(srv, Config{})

	raw, err := r.Image(context.Background(), srv.URL+"/raw")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", raw.ContentType)

	short, err := r.Image(context.Background(), srv.URL+"/short-cache.png")
	require.NoError(t, err)
	assert.Equal(t, "public, max-age=60", short.CacheControl)
}

func TestRelayPlaylistFollowsRedirectAndRewrites(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, &recorded{})
	defer srv.Close()

	media, err := newTestRelay(srv, Config{}).Playlist(context.Background(), srv.URL+"/moved.m3u8")
	require.NoError(t, err)

	assert.Equal(t, PlaylistContentType, media.ContentType)
	assert.Equal(t, "no-cache, no-store, must-revalidate", media.CacheControl)
	assert.Equal(t, srv.URL+"/hls/ep1/index.m3u8", media.FinalURL)
	assert.Contains(t, string(media.Body), srv.URL+"/hls/ep1/seg0.ts")
}

func TestRelayPlaylistRejectsHTML(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, &recorded{})
	defer srv.Close()

	_, err := newTestRelay(srv, Config{}).Playlist(context.Background(), srv.URL+"/blocked.m3u8")

	var invalid *apperr.InvalidPayloadError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, apperr.Status(err))
}

func TestRelayPlaylistRejectsUnreadableLine(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", PlaylistContentType)
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:10\n"+strings.Repeat("s", maxPlaylistLine+1)+".ts\n")
	}))
	defer srv.Close()

	_, err := newTestRelay(srv, Config{}).Playlist(context.Background(), srv.URL+"/long.m3u8")

	var invalid *apperr.InvalidPayloadError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, apperr.Status(err))
}

func TestRelayEnforcesMaxBytes(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, &recorded{})
	defer srv.Close()

	_, err := newTestRelay(srv, Config{MaxBytes: 64}).Playlist(context.Background(), srv.URL+"/big.m3u8")

	var invalid *apperr.InvalidPayloadError
	require.True(t, errors.As(err, &invalid), "got %v", err)
}

func TestRelayRejectsBadURLs(t *testing.T) {
	t.Parallel()

	r := New(nil, Config{})
	for _, raw := range []string{"", "   ", "ftp://host/a", "/relative.m3u8"} {
		_, err := r.Playlist(context.Background(), raw)
		assert.Equal(t, http.StatusBadRequest, apperr.Status(err), raw)
		_, err = r.Image(context.Background(), raw)
		assert.Equal(t, http.StatusBadRequest, apperr.Status(err), raw)
	}
}

func TestRelayUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, &recorded{})
	defer srv.Close()

	_, err := newTestRelay(srv, Config{}).Image(context.Background(), srv.URL+"/missing.jpg")

	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream), "got %v", err)
	assert.Equal(t, http.StatusNotFound, upstream.Status)
}

func TestReferers(t *testing.T) {
	t.Parallel()

	ref := Referers(map[string]string{
		"example.com":     "https://a/",
		"cdn.example.com": "https://b/",
	}, "https://site")

	u := func(raw string) *url.URL { p, _ := url.Parse(raw); return p }
	assert.Equal(t, "https://b/", ref(u("https://x.cdn.example.com/v")))
	assert.Equal(t, "https://a/", ref(u("https://www.example.com/v")))
	assert.Equal(t, "https://site/", ref(u("https://unrelated.net/v")))
}
