package session

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSetCookieKeepsExpiresCommas(t *testing.T) {
	t.Parallel()

	raw := "a=1; Expires=Wed, 21 Oct 2099 07:28:00 GMT; Path=/, b=2; HttpOnly"
	parts := SplitSetCookie(raw)

	require.Len(t, parts, 2)
	assert.Equal(t, "a=1; Expires=Wed, 21 Oct 2099 07:28:00 GMT; Path=/", parts[0])
	assert.Equal(t, "b=2; HttpOnly", parts[1])
}

func TestSplitSetCookieNewlines(t *testing.T) {
	t.Parallel()

	parts := SplitSetCookie("a=1\nb=2, c=3")
	assert.Equal(t, []string{"a=1", "b=2", "c=3"}, parts)
}

func TestJarUpsertByIdentity(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://animefire.plus/", "sid=1")
	jar.SetFromResponse("https://animefire.plus/", "sid=2")
	jar.SetFromResponse("https://animefire.plus/", "sid=3; Path=/watch")

	require.Equal(t, 2, jar.Len())
	assert.Equal(t, "sid=2", jar.Header("https://animefire.plus/"))
	assert.Equal(t, "sid=2; sid=3", jar.Header("https://animefire.plus/watch/1"))
}

func TestJarDefaults(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://www.example.com/a/b", "x=y")

	cookies := jar.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "www.example.com", cookies[0].Domain)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Zero(t, cookies[0].SameSite)
}

func TestJarKeepsSameSite(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://www.example.com/", "lax=1; SameSite=Lax")
	jar.SetFromResponse("https://www.example.com/", "strict=1; SameSite=Strict; Secure")
	jar.SetFromResponse("https://www.example.com/", "none=1; SameSite=None; Secure")

	got := map[string]http.SameSite{}
	for _, c := range jar.Cookies() {
		got[c.Name] = c.SameSite
	}
	assert.Equal(t, map[string]http.SameSite{
		"lax":    http.SameSiteLaxMode,
		"strict": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
	}, got)
}

func TestJarDomainMatching(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://www.example.com/", "parent=1; Domain=.example.com")
	jar.SetFromResponse("https://www.example.com/", "host=1")

	assert.Equal(t, "parent=1; host=1", jar.Header("https://www.example.com/"))
	assert.Equal(t, "parent=1", jar.Header("https://cdn.example.com/"))
	assert.Equal(t, "", jar.Header("https://example.org/"))
}

func TestJarRejectsForeignAndPublicSuffixDomains(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://www.example.com/", "a=1; Domain=evil.com")
	jar.SetFromResponse("https://www.example.com/", "b=1; Domain=com")
	jar.SetFromResponse("https://foo.github.io/", "c=1; Domain=github.io")

	assert.Equal(t, 0, jar.Len())
}

func TestJarPathMatching(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://example.com/", "p=1; Path=/docs")

	assert.Equal(t, "p=1", jar.Header("https://example.com/docs"))
	assert.Equal(t, "p=1", jar.Header("https://example.com/docs/x"))
	assert.Equal(t, "", jar.Header("https://example.com/docsx"))
	assert.Equal(t, "", jar.Header("https://example.com/"))
}

func TestJarSecureCookiesSkipPlainHTTP(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://example.com/", "s=1; Secure")

	assert.Equal(t, "s=1", jar.Header("https://example.com/"))
	assert.Equal(t, "", jar.Header("http://example.com/"))
}

func TestJarExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jar := NewJar()
	jar.now = func() time.Time { return now }

	jar.SetFromResponse("https://example.com/", "keep=1; Max-Age=60")
	jar.SetFromResponse("https://example.com/", "old=1; Expires=Thu, 01 Jan 2015 00:00:00 GMT")
	require.Equal(t, 1, jar.Len())

	jar.SetFromResponse("https://example.com/", "keep=1; Max-Age=0")
	assert.Equal(t, 0, jar.Len())

	jar.SetFromResponse("https://example.com/", "short=1; Max-Age=10")
	now = now.Add(time.Minute)
	assert.Equal(t, "", jar.Header("https://example.com/"))
}

func TestJarSkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	jar := NewJar()
	jar.SetFromResponse("https://example.com/", "=novalue")
	jar.SetFromResponse("https://example.com/", "")
	jar.SetFromResponse("::bad::", "a=1")

	assert.Equal(t, 0, jar.Len())
}
