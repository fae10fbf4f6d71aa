package resolver

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankPrecedence(t *testing.T) {
	t.Parallel()

	rules := DefaultRules([]string{"lightspeedst.net"})

	tests := []struct {
		name       string
		candidates []string
		want       string
		rule       string
	}{
		{
			name:       "mp4 beats trusted host",
			candidates: []string{"https://x.lightspeedst.net/a", "https://cdn.other/b.mp4"},
			want:       "https://cdn.other/b.mp4",
			rule:       "mp4",
		},
		{
			name:       "trusted host beats https",
			candidates: []string{"https://mirror.example/a", "http://s2.lightspeedst.net/b"},
			want:       "http://s2.lightspeedst.net/b",
			rule:       "trusted-host",
		},
		{
			name:       "https beats plain http",
			candidates: []string{"http://a.example/x", "https://b.example/y"},
			want:       "https://b.example/y",
			rule:       "https",
		},
		{
			name:       "first as last resort",
			candidates: []string{"http://a.example/x", "http://b.example/y"},
			want:       "http://a.example/x",
			rule:       RuleFirst,
		},
		{
			name:       "earliest mp4 wins among several",
			candidates: []string{"https://a/1.mp4", "https://b/2.mp4"},
			want:       "https://a/1.mp4",
			rule:       "mp4",
		},
	}

	for _, tt := range tests {
		got, rule, ok := Rank(tt.candidates, rules)
		assert.True(t, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.rule, rule, tt.name)
	}
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()

	_, _, ok := Rank(nil, DefaultRules(nil))
	assert.False(t, ok)
}

func TestRankIsDeterministic(t *testing.T) {
	t.Parallel()

	candidates := []string{"http://a/x", "https://b/y", "https://cdn.blogger.com/z", "https://c/v.mp4?x=1"}
	rules := DefaultRules(nil)

	first, _, _ := Rank(candidates, rules)
	for i := 0; i < 20; i++ {
		got, _, _ := Rank(candidates, rules)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, "https://c/v.mp4?x=1", first)
}

func TestCustomRuleOrder(t *testing.T) {
	t.Parallel()

	m3u8 := Rule{Name: "hls", Match: func(_ string, u *url.URL) bool {
		return u != nil && len(u.Path) > 5 && u.Path[len(u.Path)-5:] == ".m3u8"
	}}
	got, rule, _ := Rank([]string{"https://a/v.mp4", "https://b/master.m3u8"}, []Rule{m3u8, MP4Rule()})

	assert.Equal(t, "https://b/master.m3u8", got)
	assert.Equal(t, "hls", rule)
}
