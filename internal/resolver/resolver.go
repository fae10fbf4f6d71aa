// Package resolver turns a watch-page path or an alternate catalog id into
// one playable stream URL.
package resolver

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/extract"
	"github.com/alvarorichard/anistream/internal/metrics"
	"github.com/alvarorichard/anistream/internal/session"
	"github.com/alvarorichard/anistream/internal/util"
)

// Source values reported on a RankedStream.
const (
	SourceUnified = "unified"
	SourceDirect  = "direct"
)

// Request names what to resolve. At least one field must be set.
type Request struct {
	Path  string
	AltID string
}

// RankedStream is the chosen stream and how it was chosen.
type RankedStream struct {
	StreamURL  string   `json:"streamUrl"`
	Source     string   `json:"source"`
	Rule       string   `json:"rule,omitempty"`
	Embed      string   `json:"embed,omitempty"`
	PageURL    string   `json:"pageUrl,omitempty"`
	Candidates []string `json:"candidates"`
}

// Fetcher loads a page following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*session.Result, error)
}

// Accelerator is the fast path keyed by alternate id.
type Accelerator interface {
	Lookup(ctx context.Context, altID string) UnifiedResult
}

// Resolver runs the accelerator-then-direct resolution flow.
type Resolver struct {
	fetcher  Fetcher
	unified  Accelerator
	rules    []Rule
	siteRoot *url.URL
}

// New builds a Resolver. unified may be nil. Empty rules mean DefaultRules.
func New(fetcher Fetcher, unified Accelerator, siteRoot string, rules []Rule) (*Resolver, error) {
	root, err := url.Parse(strings.TrimRight(siteRoot, "/") + "/")
	if err != nil || root.Host == "" {
		return nil, errors.Errorf("invalid site root %q", siteRoot)
	}
	if len(rules) == 0 {
		rules = DefaultRules(nil)
	}
	return &Resolver{fetcher: fetcher, unified: unified, rules: rules, siteRoot: root}, nil
}

// Resolve returns the best stream for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*RankedStream, error) {
	req.Path = strings.TrimSpace(req.Path)
	req.AltID = strings.TrimSpace(req.AltID)
	if req.Path == "" && req.AltID == "" {
		return nil, apperr.BadRequest("either path or altId is required")
	}

	if req.AltID != "" && r.unified != nil {
		res := r.unified.Lookup(ctx, req.AltID)
		if res.Outcome == Hit {
			metrics.Resolutions.WithLabelValues(SourceUnified).Inc()
			util.Debug("unified accelerator hit", "altId", req.AltID, "stream", res.StreamURL)
			return &RankedStream{
				StreamURL:  res.StreamURL,
				Source:     SourceUnified,
				Embed:      res.Embed,
				Candidates: []string{res.StreamURL},
			}, nil
		}
		util.Debug("unified accelerator fell through", "altId", req.AltID, "reason", res.Reason)
	}

	if req.Path == "" {
		metrics.Resolutions.WithLabelValues("not_found").Inc()
		return nil, &apperr.NotFoundError{
			Message:    "no stream found for alternate id " + req.AltID,
			Candidates: []string{},
		}
	}

	stream, err := r.resolveDirect(ctx, req.Path)
	switch {
	case err == nil:
		metrics.Resolutions.WithLabelValues(SourceDirect).Inc()
	case apperr.Status(err) == http.StatusNotFound:
		metrics.Resolutions.WithLabelValues("not_found").Inc()
	default:
		metrics.Resolutions.WithLabelValues("error").Inc()
	}
	return stream, err
}

func (r *Resolver) resolveDirect(ctx context.Context, path string) (*RankedStream, error) {
	pageURL, err := r.PageURL(path)
	if err != nil {
		return nil, err
	}

	page, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(page.FinalURL)
	candidates, err := extract.CandidatesFrom(page.HTML, base)
	if err != nil {
		return nil, errors.Wrap(err, "extracting candidates")
	}
	if len(candidates) == 0 {
		return nil, &apperr.NotFoundError{
			Message:    "no stream candidates on page",
			Candidates: []string{},
			Source:     page.FinalURL,
		}
	}

	chosen, rule, _ := Rank(candidates, r.rules)
	util.Debug("ranked stream candidates", "page", page.FinalURL, "count", len(candidates), "rule", rule, "chosen", chosen)

	return &RankedStream{
		StreamURL:  chosen,
		Source:     SourceDirect,
		Rule:       rule,
		PageURL:    page.FinalURL,
		Candidates: candidates,
	}, nil
}

// PageURL resolves a site-relative path (or an absolute URL) against the
// site root.
func (r *Resolver) PageURL(path string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return "", apperr.BadRequest("invalid path %q", path)
	}
	if ref.IsAbs() {
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return "", apperr.BadRequest("unsupported scheme %q", ref.Scheme)
		}
		return ref.String(), nil
	}
	if ref.Host != "" {
		ref.Scheme = r.siteRoot.Scheme
		return ref.String(), nil
	}
	return r.siteRoot.ResolveReference(ref).String(), nil
}
