// Package anistream exposes catalog search and stream resolution as a library.
package anistream

import (
	"context"
	"time"

	"github.com/alvarorichard/anistream/internal/app"
	"github.com/alvarorichard/anistream/internal/config"
	"github.com/alvarorichard/anistream/internal/resolver"
	"github.com/alvarorichard/anistream/pkg/anistream/types"
)

// Client is the main client for one upstream site.
type Client struct {
	svc *app.Services
}

// Option customises NewClient.
type Option func(*config.Config)

// WithSiteURL points the client at another mirror of the site.
func WithSiteURL(u string) Option {
	return func(c *config.Config) { c.Sites.BaseURL = u }
}

// WithUnifiedEndpoint enables unified lookups against endpoint.
func WithUnifiedEndpoint(endpoint string, timeout time.Duration) Option {
	return func(c *config.Config) {
		c.Unified.Endpoint = endpoint
		if timeout > 0 {
			c.Unified.Timeout = timeout
		}
	}
}

// WithMaxRedirects bounds redirects followed per fetch.
func WithMaxRedirects(n int) Option {
	return func(c *config.Config) { c.Session.MaxRedirects = n }
}

// WithUserAgent overrides the browser User-Agent sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Session.UserAgent = ua }
}

// WithTrustedHosts replaces the hosts preferred when ranking candidates.
func WithTrustedHosts(hosts ...string) Option {
	return func(c *config.Config) { c.Resolver.TrustedHosts = hosts }
}

// WithProxy routes upstream traffic through an http(s) or socks5 proxy.
func WithProxy(proxy string) Option {
	return func(c *config.Config) { c.Session.Proxy = proxy }
}

// NewClient creates a client with built-in defaults; no config file or
// environment is read.
func NewClient(opts ...Option) (*Client, error) {
	cfg := config.Defaults()
	for _, opt := range opts {
		opt(cfg)
	}
	svc, err := app.NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// SearchAnime searches the site catalog.
func (c *Client) SearchAnime(ctx context.Context, query string) ([]*types.Anime, error) {
	results, err := c.svc.Catalog.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return types.FromInternalAnimeList(results), nil
}

// GetAnimeDetails loads the title page metadata.
func (c *Client) GetAnimeDetails(ctx context.Context, animeURL string) (*types.Anime, error) {
	anime, err := c.svc.Catalog.Details(ctx, animeURL)
	if err != nil {
		return nil, err
	}
	return types.FromInternalAnime(anime), nil
}

// GetAnimeEpisodes retrieves all episodes of a title.
// The animeURL should be obtained from a SearchAnime result.
func (c *Client) GetAnimeEpisodes(ctx context.Context, animeURL string) ([]*types.Episode, error) {
	episodes, err := c.svc.Catalog.Episodes(ctx, animeURL)
	if err != nil {
		return nil, err
	}
	return types.FromInternalEpisodeList(episodes), nil
}

// GetRelated lists related titles with their alternate identifiers.
func (c *Client) GetRelated(ctx context.Context, animeURL string) ([]*types.Anime, error) {
	related, err := c.svc.Catalog.Related(ctx, animeURL)
	if err != nil {
		return nil, err
	}
	return types.FromInternalAnimeList(related), nil
}

// GetStreamURL resolves the playable stream of an episode page. altID may be
// empty; when set, the unified lookup is tried first.
func (c *Client) GetStreamURL(ctx context.Context, episodeURL, altID string) (*types.Stream, error) {
	stream, err := c.svc.Resolver.Resolve(ctx, resolver.Request{Path: episodeURL, AltID: altID})
	if err != nil {
		return nil, err
	}
	return types.FromRankedStream(stream), nil
}
