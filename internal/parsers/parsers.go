// Package parsers turns AnimeFire pages into catalog records. Every parser
// is a pure function over HTML; none of them touch the network.
package parsers

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/anistream/internal/models"
	"github.com/alvarorichard/anistream/internal/util"
)

// SourceName tags records produced by these parsers.
const SourceName = "AnimeFire"

var (
	numRe     = regexp.MustCompile(`\d+`)
	anilistRe = regexp.MustCompile(`anilist\.co/anime/(\d+)`)
	malRe     = regexp.MustCompile(`myanimelist\.net/anime/(\d+)`)
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

func document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}
	return doc, nil
}

// ParseSearch extracts search result cards.
func ParseSearch(html string, base *url.URL) ([]models.Anime, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	var animes []models.Anime

	doc.Find(".divCardUltimosEps article.card").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a").First()
		href, ok := link.Attr("href")
		name := strings.TrimSpace(s.Find(".animeTitle").First().Text())
		if !ok || name == "" {
			return
		}
		animes = append(animes, models.Anime{
			Name:     name,
			URL:      resolveURL(base, href),
			ImageURL: resolveURL(base, imageOf(s.Find("img").First())),
			Source:   SourceName,
		})
	})

	if len(animes) == 0 {
		doc.Find(".row.ml-1.mr-1 a").Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			name := strings.TrimSpace(s.Text())
			if ok && name != "" {
				animes = append(animes, models.Anime{Name: name, URL: resolveURL(base, href), Source: SourceName})
			}
		})
	}

	// card-based fallback
	if len(animes) == 0 {
		doc.Find(".card_ani").Each(func(_ int, s *goquery.Selection) {
			titleElem := s.Find(".ani_name a")
			title := strings.TrimSpace(titleElem.Text())
			href, ok := titleElem.Attr("href")
			if !ok || title == "" {
				return
			}
			animes = append(animes, models.Anime{
				Name:     title,
				URL:      resolveURL(base, href),
				ImageURL: resolveURL(base, imageOf(s.Find(".div_img img"))),
				Source:   SourceName,
			})
		})
	}

	util.Debug("parsed search results", "count", len(animes))
	return animes, nil
}

// ParseEpisodes extracts the episode list, sorted by number.
func ParseEpisodes(html string, base *url.URL) ([]models.Episode, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	sel := doc.Find("a.lEp.epT.divNumEp")
	if sel.Length() == 0 {
		sel = doc.Find(".div_video_list a")
	}

	var episodes []models.Episode
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		label := strings.TrimSpace(s.Text())
		episodes = append(episodes, models.Episode{
			Number: label,
			Num:    parseEpisodeNumber(label),
			URL:    resolveURL(base, href),
		})
	})

	episodes = lo.UniqBy(episodes, func(e models.Episode) string { return e.URL })
	sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Num < episodes[j].Num })
	return episodes, nil
}

func parseEpisodeNumber(label string) int {
	numStr := numRe.FindString(label)
	if numStr == "" {
		return 1
	}
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 1
	}
	return n
}

// ParseDetails extracts the title page: cover, synopsis, genres, status and
// alternate catalog identifiers.
func ParseDetails(html string, base *url.URL) (models.Anime, error) {
	doc, err := document(html)
	if err != nil {
		return models.Anime{}, err
	}

	anime := models.Anime{Source: SourceName}
	if base != nil {
		anime.URL = base.String()
	}

	anime.Name = firstText(doc, ".div_anime_names h1", "h1.quicksand400", "h1")
	if anime.Name == "" {
		anime.Name = metaContent(doc, "og:title")
	}

	if img := metaContent(doc, "og:image"); img != "" {
		anime.ImageURL = resolveURL(base, img)
	} else {
		anime.ImageURL = resolveURL(base, imageOf(doc.Find(".sub_animepage_img img").First()))
	}

	anime.Synopsis = firstText(doc, ".divSinopse .spanAnimeInfo", ".divSinopse")
	if anime.Synopsis == "" {
		anime.Synopsis = metaContent(doc, "og:description")
	}

	anime.Genres = lo.Uniq(lo.Compact(doc.Find("a.spanGeneros").Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})))

	doc.Find(".animeInfo").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(s.Find("b").Text()))
		value := strings.TrimSpace(s.Find(".spanAnimeInfo").Text())
		switch {
		case strings.HasPrefix(label, "status"):
			anime.Status = value
		case strings.HasPrefix(label, "ano"), strings.HasPrefix(label, "year"):
			anime.Year = yearRe.FindString(value)
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := anilistRe.FindStringSubmatch(href); m != nil && anime.AnilistID == 0 {
			anime.AnilistID, _ = strconv.Atoi(m[1])
		}
		if m := malRe.FindStringSubmatch(href); m != nil && anime.MalID == 0 {
			anime.MalID, _ = strconv.Atoi(m[1])
		}
	})
	if id, ok := doc.Find("[data-anilist-id]").First().Attr("data-anilist-id"); ok && anime.AnilistID == 0 {
		anime.AnilistID, _ = strconv.Atoi(strings.TrimSpace(id))
	}

	if anime.Name == "" {
		return anime, errors.New("no title found on details page")
	}
	return anime, nil
}

// ParseRelated extracts related and similar title cards from a details page.
func ParseRelated(html string, base *url.URL) ([]models.Anime, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	var related []models.Anime
	doc.Find(".owl-carousel-anime .item, .divSimilares article, .related-anime .card").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		name := firstTextIn(s, ".animeTitle", "h3", ".ani_name")
		if name == "" {
			name = strings.TrimSpace(link.AttrOr("title", link.Text()))
		}
		if name == "" {
			return
		}
		related = append(related, models.Anime{
			Name:     name,
			URL:      resolveURL(base, href),
			ImageURL: resolveURL(base, imageOf(s.Find("img").First())),
			Source:   SourceName,
		})
	})

	return lo.UniqBy(related, func(a models.Anime) string { return a.URL }), nil
}

// imageOf prefers lazy-load attributes over src placeholders.
func imageOf(img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	return strings.TrimSpace(doc.Find(`meta[property="` + property + `"]`).AttrOr("content", ""))
}

func firstText(doc *goquery.Document, selectors ...string) string {
	return firstTextIn(doc.Selection, selectors...)
}

func firstTextIn(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// resolveURL resolves relative URLs to absolute URLs
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() || base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
