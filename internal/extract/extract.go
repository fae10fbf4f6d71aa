// Package extract pulls candidate media URLs out of a watch page: tag
// attributes (video, source, iframe, data-video-src) and URL literals inside
// inline scripts, in document order. Repeated URLs are kept.
package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// attrsByTag lists the attributes read from each tag, in priority order.
var attrsByTag = map[string][]string{
	"video":  {"src", "data-video-src"},
	"source": {"src"},
	"iframe": {"src", "data-src"},
	"embed":  {"src"},
}

// Script patterns. Each has a single capture group holding the URL.
var scriptPatterns = []*regexp.Regexp{
	// player config assignments: file: "...", "src":"...", hls = '...'
	regexp.MustCompile(`(?i)["']?(?:file|src|source|url|hls|stream|video_url|videourl|playlist|m3u8)["']?\s*[:=]\s*["'](https?://[^"'\s<>]+)["']`),
	// bare quoted media literals
	regexp.MustCompile(`(?i)["'](https?://[^"'\s<>]+?\.(?:mp4|m3u8)(?:\?[^"'\s<>]*)?)["']`),
	regexp.MustCompile(`https://www\.blogger\.com/video\.g\?token=[A-Za-z0-9_-]+`),
}

// Candidates extracts candidate URLs from html without a base URL. Relative
// references are dropped.
func Candidates(html string) ([]string, error) {
	return CandidatesFrom(html, nil)
}

// CandidatesFrom extracts candidate URLs from html, resolving relative
// attribute values against base.
func CandidatesFrom(html string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse watch page")
	}

	var found []string
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		for _, attr := range attrsByTag[tag] {
			if v, ok := s.Attr(attr); ok {
				found = append(found, v)
			}
		}
		if _, tagged := attrsByTag[tag]; !tagged {
			if v, ok := s.Attr("data-video-src"); ok {
				found = append(found, v)
			}
		}
		if tag == "script" {
			found = append(found, scriptURLs(s.Text())...)
		}
	})

	out := make([]string, 0, len(found))
	for _, raw := range found {
		if u, ok := normalize(raw, base); ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type match struct {
	start int
	url   string
}

// scriptURLs returns URL literals in positional order. A URL matched by more
// than one pattern at the same offset is reported once.
func scriptURLs(text string) []string {
	text = strings.ReplaceAll(text, `\/`, `/`)

	byStart := map[int]string{}
	for _, re := range scriptPatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			if _, seen := byStart[start]; !seen {
				byStart[start] = text[start:end]
			}
		}
	}

	matches := make([]match, 0, len(byStart))
	for start, u := range byStart {
		matches = append(matches, match{start: start, url: u})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	return lo.Map(matches, func(m match, _ int) string { return m.url })
}

// normalize trims, resolves and keeps only absolute http(s) URLs.
func normalize(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, `\/`, `/`))
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	if strings.HasPrefix(raw, "//") && base == nil {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.String(), true
}
