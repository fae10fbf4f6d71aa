// Package session implements the browser-imitating fetch client: a manual
// redirect loop with per-hop headers and a per-session cookie jar.
package session

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/metrics"
	"github.com/alvarorichard/anistream/internal/util"
)

// DefaultMaxRedirects is the redirect budget when Options leaves it unset.
const DefaultMaxRedirects = 5

// NoRedirects in Options.MaxRedirects makes every 3xx fail as too many
// redirects.
const NoRedirects = -1

// RedirectBudget converts an explicit count, where 0 means none, into the
// Options.MaxRedirects encoding.
func RedirectBudget(n int) int {
	if n <= 0 {
		return NoRedirects
	}
	return n
}

// Options configures a Client.
type Options struct {
	// MaxRedirects is how many redirects are followed before giving up.
	// Zero means DefaultMaxRedirects; negative values mean none.
	MaxRedirects int
	Profile      HeaderProfile
	// UseJar enables a fresh cookie jar per Fetch/Open call.
	UseJar bool
	// SiteRoot resolves relative Location headers that cannot be resolved
	// against the current hop, and seeds the first-hop Referer.
	SiteRoot string
}

// Result is the body and final URL of a successful fetch.
type Result struct {
	HTML     string
	FinalURL string
}

// Client performs GETs with manual redirect handling.
type Client struct {
	http *http.Client
	opts Options
}

// New wraps httpClient. The wrapped client's own redirect following is
// disabled so every hop goes through the loop below.
func New(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := *httpClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	switch {
	case opts.MaxRedirects == 0:
		opts.MaxRedirects = DefaultMaxRedirects
	case opts.MaxRedirects < 0:
		opts.MaxRedirects = 0
	}
	if opts.Profile == nil {
		opts.Profile = Navigation(DefaultUserAgent, opts.SiteRoot)
	}
	return &Client{http: &c, opts: opts}
}

// Options returns the client's configuration.
func (c *Client) Options() Options { return c.opts }

// Fetch GETs rawURL following redirects and returns the final body as text.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	var jar *Jar
	if c.opts.UseJar {
		jar = NewJar()
	}
	return c.FetchWithJar(ctx, rawURL, jar)
}

// FetchWithJar is Fetch with a caller-supplied jar. A nil jar disables
// cookie handling.
func (c *Client) FetchWithJar(ctx context.Context, rawURL string, jar *Jar) (*Result, error) {
	resp, finalURL, err := c.follow(ctx, rawURL, jar)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.NetworkError{URL: finalURL, Err: errors.Wrap(err, "reading body")}
	}
	return &Result{HTML: string(body), FinalURL: finalURL}, nil
}

// Open is Fetch without consuming the body. The caller must close it.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, string, error) {
	var jar *Jar
	if c.opts.UseJar {
		jar = NewJar()
	}
	return c.follow(ctx, rawURL, jar)
}

func (c *Client) follow(ctx context.Context, rawURL string, jar *Jar) (*http.Response, string, error) {
	current := strings.TrimSpace(rawURL)
	referer := ""

	for hop := 0; hop <= c.opts.MaxRedirects; hop++ {
		u, err := url.Parse(current)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, "", apperr.BadRequest("invalid url %q", current)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, "", apperr.BadRequest("invalid url %q: %v", current, err)
		}
		req.Header = c.opts.Profile(Hop{URL: u, Referer: referer, First: hop == 0})
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
		if jar != nil {
			if cookie := jar.Header(current); cookie != "" {
				req.Header.Set("Cookie", cookie)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("network").Inc()
			return nil, "", &apperr.NetworkError{URL: current, Err: err}
		}
		if jar != nil {
			for _, sc := range resp.Header.Values("Set-Cookie") {
				jar.SetFromResponse(current, sc)
			}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			metrics.UpstreamRequests.WithLabelValues("ok").Inc()
			return resp, current, nil

		case isRedirect(resp.StatusCode):
			metrics.UpstreamRequests.WithLabelValues("redirect").Inc()
			location := resp.Header.Get("Location")
			drain(resp)
			if location == "" {
				return nil, "", &apperr.MissingLocationError{URL: current, Status: resp.StatusCode}
			}
			next := resolveLocation(u, location, c.opts.SiteRoot)
			util.Debug("following redirect", "status", resp.StatusCode, "from", current, "to", next)
			referer = current
			current = next

		default:
			metrics.UpstreamRequests.WithLabelValues("error").Inc()
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, apperr.SnippetLimit))
			drain(resp)
			return nil, "", &apperr.UpstreamError{URL: current, Status: resp.StatusCode, Snippet: apperr.Snippet(snippet)}
		}
	}

	return nil, "", &apperr.TooManyRedirectsError{URL: rawURL, Max: c.opts.MaxRedirects}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base *url.URL, location, siteRoot string) string {
	if ref, err := url.Parse(location); err == nil {
		return base.ResolveReference(ref).String()
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	root := strings.TrimRight(siteRoot, "/")
	if root == "" {
		root = OriginOf(base.String())
	}
	return root + "/" + strings.TrimLeft(location, "/")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
