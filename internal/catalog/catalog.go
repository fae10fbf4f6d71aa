// Package catalog composes the fetch client and the page parsers into
// search, details, episode and related-title lookups.
package catalog

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/ratelimit"

	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/models"
	"github.com/alvarorichard/anistream/internal/parsers"
	"github.com/alvarorichard/anistream/internal/session"
	"github.com/alvarorichard/anistream/internal/util"
)

// Fetcher loads a page following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*session.Result, error)
}

// Options tunes related-title enrichment.
type Options struct {
	// Workers bounds concurrent enrichment fetches.
	Workers int
	// Rate is the maximum enrichment fetches per second. Zero is unlimited.
	Rate int
}

// Service answers catalog queries against one upstream site.
type Service struct {
	fetcher  Fetcher
	siteRoot *url.URL
	opts     Options
}

// New builds a Service rooted at siteRoot.
func New(fetcher Fetcher, siteRoot string, opts Options) (*Service, error) {
	root, err := url.Parse(strings.TrimRight(siteRoot, "/") + "/")
	if err != nil || root.Host == "" {
		return nil, errors.Errorf("invalid site root %q", siteRoot)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Service{fetcher: fetcher, siteRoot: root, opts: opts}, nil
}

// Search returns titles matching query.
func (s *Service) Search(ctx context.Context, query string) ([]models.Anime, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.BadRequest("q is required")
	}
	target := s.siteRoot.ResolveReference(&url.URL{Path: "pesquisar/" + searchSlug(query)})

	page, err := s.fetcher.Fetch(ctx, target.String())
	if err != nil {
		return nil, err
	}
	results, err := parsers.ParseSearch(page.HTML, pageBase(page))
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.Anime{}
	}
	return results, nil
}

// searchSlug lowercases query and joins words with dashes, the form the
// site's search route expects.
func searchSlug(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), "-")
}

// Details returns the title page record.
func (s *Service) Details(ctx context.Context, path string) (*models.Anime, error) {
	page, err := s.fetchPath(ctx, path)
	if err != nil {
		return nil, err
	}
	anime, err := parsers.ParseDetails(page.HTML, pageBase(page))
	if err != nil {
		return nil, &apperr.NotFoundError{Message: err.Error(), Source: page.FinalURL, Candidates: []string{}}
	}
	return &anime, nil
}

// Episodes returns the episode list of a title page.
func (s *Service) Episodes(ctx context.Context, path string) ([]models.Episode, error) {
	page, err := s.fetchPath(ctx, path)
	if err != nil {
		return nil, err
	}
	episodes, err := parsers.ParseEpisodes(page.HTML, pageBase(page))
	if err != nil {
		return nil, err
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}
	return episodes, nil
}

// Related returns the related titles of a title page, each enriched with its
// alternate identifiers from its own page. Enrichment failures leave the
// entry as parsed.
func (s *Service) Related(ctx context.Context, path string) ([]models.Anime, error) {
	page, err := s.fetchPath(ctx, path)
	if err != nil {
		return nil, err
	}
	related, err := parsers.ParseRelated(page.HTML, pageBase(page))
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return []models.Anime{}, nil
	}
	if err := s.enrich(ctx, related); err != nil {
		return nil, err
	}
	return related, nil
}

func (s *Service) enrich(ctx context.Context, items []models.Anime) error {
	pool, err := ants.NewPool(s.opts.Workers)
	if err != nil {
		return errors.Wrap(err, "failed to create enrichment pool")
	}
	defer pool.Release()

	limiter := ratelimit.NewUnlimited()
	if s.opts.Rate > 0 {
		limiter = ratelimit.New(s.opts.Rate)
	}

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			limiter.Take()
			s.enrichOne(ctx, &items[i])
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			util.Warn("enrichment task rejected", "url", items[i].URL, "error", err)
		}
	}
	wg.Wait()
	return nil
}

func (s *Service) enrichOne(ctx context.Context, item *models.Anime) {
	page, err := s.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		util.Debug("related enrichment failed", "url", item.URL, "error", err)
		return
	}
	details, err := parsers.ParseDetails(page.HTML, pageBase(page))
	if err != nil {
		util.Debug("related page had no details", "url", item.URL, "error", err)
		return
	}
	item.AnilistID = details.AnilistID
	item.MalID = details.MalID
	if item.ImageURL == "" {
		item.ImageURL = details.ImageURL
	}
	if item.Year == "" {
		item.Year = details.Year
	}
}

func (s *Service) fetchPath(ctx context.Context, path string) (*session.Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, apperr.BadRequest("path is required")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, apperr.BadRequest("invalid path %q", path)
	}
	if ref.IsAbs() && ref.Scheme != "http" && ref.Scheme != "https" {
		return nil, apperr.BadRequest("unsupported scheme %q", ref.Scheme)
	}
	return s.fetcher.Fetch(ctx, s.siteRoot.ResolveReference(ref).String())
}

func pageBase(page *session.Result) *url.URL {
	u, err := url.Parse(page.FinalURL)
	if err != nil {
		return nil
	}
	return u
}
