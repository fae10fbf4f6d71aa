// Package relay re-serves upstream images and HLS playlists with
// browser-imitating headers so clients avoid hotlink and CORS restrictions.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/metrics"
	"github.com/alvarorichard/anistream/internal/session"
	"github.com/alvarorichard/anistream/internal/util"
)

// PlaylistContentType is forced on every relayed playlist.
const PlaylistContentType = "application/vnd.apple.mpegurl"

const (
	playlistCacheControl = "no-cache, no-store, must-revalidate"
	defaultImageMaxAge   = 24 * time.Hour
	defaultMaxBytes      = 20 << 20
)

// Kind labels what is being relayed.
type Kind string

const (
	KindImage    Kind = "image"
	KindPlaylist Kind = "playlist"
)

// Media is a relayed payload ready to be written to the client.
type Media struct {
	Body         []byte
	ContentType  string
	CacheControl string
	FinalURL     string
}

// Opener opens an upstream URL following redirects. The caller closes the body.
type Opener interface {
	Open(ctx context.Context, rawURL string) (*http.Response, string, error)
}

// Config tunes caching and size limits.
type Config struct {
	ImageMaxAge time.Duration
	MaxBytes    int64
}

// Relay fetches media on behalf of clients.
type Relay struct {
	opener Opener
	cfg    Config
}

// New builds a Relay over opener. The opener should not carry a cookie jar.
func New(opener Opener, cfg Config) *Relay {
	if cfg.ImageMaxAge <= 0 {
		cfg.ImageMaxAge = defaultImageMaxAge
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	return &Relay{opener: opener, cfg: cfg}
}

// Image relays raw image bytes with the upstream content type.
func (r *Relay) Image(ctx context.Context, rawURL string) (*Media, error) {
	resp, finalURL, body, err := r.load(ctx, KindImage, rawURL)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	maxAge := r.cfg.ImageMaxAge
	if upstream, ok := upstreamMaxAge(resp.Header.Get("Cache-Control")); ok && upstream < maxAge {
		maxAge = upstream
	}

	metrics.RelayRequests.WithLabelValues(string(KindImage), "ok").Inc()
	metrics.RelayBytes.WithLabelValues(string(KindImage)).Add(float64(len(body)))
	return &Media{
		Body:         body,
		ContentType:  contentType,
		CacheControl: fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())),
		FinalURL:     finalURL,
	}, nil
}

// Playlist relays a validated HLS playlist with absolute URIs.
func (r *Relay) Playlist(ctx context.Context, rawURL string) (*Media, error) {
	resp, finalURL, body, err := r.load(ctx, KindPlaylist, rawURL)
	if err != nil {
		return nil, err
	}

	if err := ValidatePlaylist(body, resp.Header.Get("Content-Type")); err != nil {
		metrics.RelayRequests.WithLabelValues(string(KindPlaylist), "invalid").Inc()
		util.Warn("rejecting playlist", "url", finalURL, "reason", err)
		return nil, &apperr.InvalidPayloadError{URL: finalURL, Reason: err.Error()}
	}
	if info, err := InspectPlaylist(body); err != nil {
		util.Debug("playlist did not decode strictly", "url", finalURL, "error", err)
	} else {
		util.Debug("relaying playlist", "url", finalURL, "type", info.Type, "variants", info.Variants, "segments", info.Segments)
	}

	base, _ := url.Parse(finalURL)
	body, err = AbsolutizePlaylist(body, base)
	if err != nil {
		metrics.RelayRequests.WithLabelValues(string(KindPlaylist), "invalid").Inc()
		util.Warn("rejecting playlist", "url", finalURL, "reason", err)
		return nil, &apperr.InvalidPayloadError{URL: finalURL, Reason: err.Error()}
	}

	metrics.RelayRequests.WithLabelValues(string(KindPlaylist), "ok").Inc()
	metrics.RelayBytes.WithLabelValues(string(KindPlaylist)).Add(float64(len(body)))
	return &Media{
		Body:         body,
		ContentType:  PlaylistContentType,
		CacheControl: playlistCacheControl,
		FinalURL:     finalURL,
	}, nil
}

func (r *Relay) load(ctx context.Context, kind Kind, rawURL string) (*http.Response, string, []byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, "", nil, apperr.BadRequest("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", nil, apperr.BadRequest("url must be an absolute http(s) URL")
	}

	resp, finalURL, err := r.opener.Open(ctx, rawURL)
	if err != nil {
		metrics.RelayRequests.WithLabelValues(string(kind), "error").Inc()
		return nil, "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes+1))
	if err != nil {
		metrics.RelayRequests.WithLabelValues(string(kind), "error").Inc()
		return nil, "", nil, &apperr.NetworkError{URL: finalURL, Err: err}
	}
	if int64(len(body)) > r.cfg.MaxBytes {
		metrics.RelayRequests.WithLabelValues(string(kind), "invalid").Inc()
		return nil, "", nil, &apperr.InvalidPayloadError{
			URL:    finalURL,
			Reason: fmt.Sprintf("payload exceeds %d bytes", r.cfg.MaxBytes),
		}
	}
	return resp, finalURL, body, nil
}

func upstreamMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// Referers maps upstream hosts to the page their CDN expects as Referer.
// Keys match the host or any subdomain, the longest key winning. fallback
// covers everything else.
func Referers(byHost map[string]string, fallback string) func(*url.URL) string {
	table := make(map[string]string, len(byHost))
	for host, ref := range byHost {
		table[strings.ToLower(strings.TrimSpace(host))] = ref
	}
	if fallback != "" {
		fallback = strings.TrimRight(fallback, "/") + "/"
	}

	return func(u *url.URL) string {
		if u == nil {
			return fallback
		}
		for h := strings.ToLower(u.Hostname()); h != ""; {
			if ref, ok := table[h]; ok {
				return ref
			}
			dot := strings.IndexByte(h, '.')
			if dot < 0 {
				break
			}
			h = h[dot+1:]
		}
		return fallback
	}
}

// NewOpener builds the jar-less fetch client the relay uses.
func NewOpener(httpClient *http.Client, userAgent string, maxRedirects int, referer func(*url.URL) string) *session.Client {
	return session.New(httpClient, session.Options{
		MaxRedirects: maxRedirects,
		Profile:      session.Media(userAgent, referer),
		UseJar:       false,
	})
}
