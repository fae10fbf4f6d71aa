package resolver

import (
	"net/url"
	"strings"

	"github.com/alvarorichard/anistream/internal/util"
)

// RuleFirst names the fallback taken when no rule matches.
const RuleFirst = "first"

// DefaultTrustedHosts are CDNs known to serve playable media directly.
var DefaultTrustedHosts = []string{"lightspeedst.net", "blogger.com", "googlevideo.com"}

// Rule is one named ranking predicate. raw is the candidate as extracted; u
// is its parsed form and may be nil.
type Rule struct {
	Name  string
	Match func(raw string, u *url.URL) bool
}

// MP4Rule prefers progressive MP4 files.
func MP4Rule() Rule {
	return Rule{Name: "mp4", Match: func(raw string, u *url.URL) bool {
		path := raw
		if u != nil {
			path = u.Path
		}
		return strings.Contains(strings.ToLower(path), ".mp4")
	}}
}

// TrustedHostRule prefers candidates served by one of hosts or a subdomain.
func TrustedHostRule(hosts []string) Rule {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			normalized = append(normalized, h)
		}
	}
	return Rule{Name: "trusted-host", Match: func(_ string, u *url.URL) bool {
		return u != nil && util.MatchesHost(u.Hostname(), normalized)
	}}
}

// HTTPSRule prefers encrypted transport.
func HTTPSRule() Rule {
	return Rule{Name: "https", Match: func(_ string, u *url.URL) bool {
		return u != nil && strings.EqualFold(u.Scheme, "https")
	}}
}

// DefaultRules returns mp4, trusted-host, https, in that priority.
func DefaultRules(trusted []string) []Rule {
	if len(trusted) == 0 {
		trusted = DefaultTrustedHosts
	}
	return []Rule{MP4Rule(), TrustedHostRule(trusted), HTTPSRule()}
}

// Rank returns the first candidate matching the earliest rule, the rule's
// name, and whether anything was chosen. With no match on any rule the first
// candidate wins.
func Rank(candidates []string, rules []Rule) (string, string, bool) {
	if len(candidates) == 0 {
		return "", "", false
	}
	parsed := make([]*url.URL, len(candidates))
	for i, c := range candidates {
		if u, err := url.Parse(c); err == nil {
			parsed[i] = u
		}
	}
	for _, rule := range rules {
		for i, c := range candidates {
			if rule.Match(c, parsed[i]) {
				return c, rule.Name, true
			}
		}
	}
	return candidates[0], RuleFirst, true
}
