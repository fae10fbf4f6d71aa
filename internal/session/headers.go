package session

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultUserAgent is a current desktop Chrome string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const acceptLanguage = "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7"

// Hop describes the request about to be sent in a redirect chain.
type Hop struct {
	URL *url.URL
	// Referer is the previous hop's URL, empty on the first hop.
	Referer string
	First   bool
}

// HeaderProfile builds the full header set for one hop.
type HeaderProfile func(h Hop) http.Header

// Navigation imitates a top-level browser navigation within siteRoot.
func Navigation(userAgent, siteRoot string) HeaderProfile {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	root := strings.TrimRight(siteRoot, "/")
	origin := OriginOf(root)

	return func(h Hop) http.Header {
		referer := h.Referer
		if referer == "" && root != "" {
			referer = root + "/"
		}
		site := "same-site"
		if h.First {
			site = "none"
		}

		hdr := http.Header{}
		hdr.Set("User-Agent", userAgent)
		hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
		hdr.Set("Accept-Language", acceptLanguage)
		if referer != "" {
			hdr.Set("Referer", referer)
		}
		if origin != "" {
			hdr.Set("Origin", origin)
		}
		hdr.Set("Sec-Fetch-Dest", "document")
		hdr.Set("Sec-Fetch-Mode", "navigate")
		hdr.Set("Sec-Fetch-Site", site)
		hdr.Set("Sec-Fetch-User", "?1")
		hdr.Set("Upgrade-Insecure-Requests", "1")
		return hdr
	}
}

// Media imitates a player fetching a sub-resource. referer picks the page the
// CDN expects to be embedded in; it may return "".
func Media(userAgent string, referer func(*url.URL) string) HeaderProfile {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return func(h Hop) http.Header {
		hdr := http.Header{}
		hdr.Set("User-Agent", userAgent)
		hdr.Set("Accept", "*/*")
		hdr.Set("Accept-Language", acceptLanguage)
		if referer != nil {
			if ref := referer(h.URL); ref != "" {
				hdr.Set("Referer", ref)
				if origin := OriginOf(ref); origin != "" {
					hdr.Set("Origin", origin)
				}
			}
		}
		hdr.Set("Sec-Fetch-Dest", "empty")
		hdr.Set("Sec-Fetch-Mode", "cors")
		hdr.Set("Sec-Fetch-Site", "cross-site")
		return hdr
	}
}

// OriginOf returns scheme://host for raw, or "" when raw is not absolute.
func OriginOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
