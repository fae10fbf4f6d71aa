package session

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/alvarorichard/anistream/internal/util"
)

// Cookie is one stored cookie. Its identity is (Name, Domain, Path).
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

type cookieKey struct {
	name, domain, path string
}

func (c Cookie) key() cookieKey {
	return cookieKey{name: c.Name, domain: c.Domain, path: c.Path}
}

// Jar is a per-session cookie store. It keeps insertion order so the Cookie
// header is stable across hops.
type Jar struct {
	mu      sync.Mutex
	cookies []Cookie
	now     func() time.Time
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{now: time.Now}
}

// SetFromResponse absorbs one raw Set-Cookie header value received from
// origin. The value may hold several cookies folded with commas. Malformed
// entries are skipped.
func (j *Jar) SetFromResponse(origin, raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		util.Debug("ignoring cookies from unparseable origin", "origin", origin)
		return
	}
	host := strings.ToLower(u.Hostname())

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, entry := range SplitSetCookie(raw) {
		parsed, err := http.ParseSetCookie(entry)
		if err != nil {
			util.Debug("skipping malformed cookie", "entry", entry, "error", err)
			continue
		}
		c, ok := normalize(parsed, host)
		if !ok {
			util.Debug("rejecting cookie for foreign domain", "name", parsed.Name, "domain", parsed.Domain, "host", host)
			continue
		}

		now := j.now()
		switch {
		case parsed.MaxAge < 0:
			j.remove(c.key())
			continue
		case parsed.MaxAge > 0:
			c.Expires = now.Add(time.Duration(parsed.MaxAge) * time.Second)
		case !parsed.Expires.IsZero():
			c.Expires = parsed.Expires
		}
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			j.remove(c.key())
			continue
		}
		j.upsert(c)
	}
}

// Header renders the Cookie header value for target, or "" when nothing
// matches.
func (j *Jar) Header(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	secure := strings.EqualFold(u.Scheme, "https")

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	pairs := make([]string, 0, len(j.cookies))
	for _, c := range j.cookies {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if !domainMatch(host, c.Domain) || !pathMatch(path, c.Path) {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// Cookies returns a snapshot of the stored cookies.
func (j *Jar) Cookies() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

// Len reports how many cookies are stored.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}

func (j *Jar) upsert(c Cookie) {
	k := c.key()
	for i := range j.cookies {
		if j.cookies[i].key() == k {
			j.cookies[i] = c
			return
		}
	}
	j.cookies = append(j.cookies, c)
}

func (j *Jar) remove(k cookieKey) {
	for i := range j.cookies {
		if j.cookies[i].key() == k {
			j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
			return
		}
	}
}

// normalize fills defaults and refuses cookies scoped outside the origin.
func normalize(hc *http.Cookie, host string) (Cookie, bool) {
	domain := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hc.Domain), "."))
	switch {
	case domain == "":
		domain = host
	case domain == host:
	case net.ParseIP(host) != nil:
		return Cookie{}, false
	case !strings.HasSuffix(host, "."+domain):
		return Cookie{}, false
	default:
		if ps, _ := publicsuffix.PublicSuffix(domain); ps == domain {
			return Cookie{}, false
		}
	}

	path := hc.Path
	if path == "" || !strings.HasPrefix(path, "/") {
		path = "/"
	}

	return Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   domain,
		Path:     path,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
		SameSite: hc.SameSite,
	}, true
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath || cookiePath == "/" {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

// SplitSetCookie splits a folded Set-Cookie value into individual cookie
// strings. A comma only separates cookies when a "name=" pair follows it, so
// commas inside Expires dates stay put. Newlines always separate.
func SplitSetCookie(raw string) []string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		start := 0
		for i := 0; i < len(line); i++ {
			if line[i] != ',' || !startsCookiePair(line[i+1:]) {
				continue
			}
			if p := strings.TrimSpace(line[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
		if p := strings.TrimSpace(line[start:]); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func startsCookiePair(s string) bool {
	s = strings.TrimLeft(s, " \t")
	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return false
	}
	return !strings.ContainsAny(s[:eq], " \t;,")
}
