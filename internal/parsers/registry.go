package parsers

import (
	"net/url"
	"sort"
)

// Kind names a page type.
type Kind string

const (
	KindSearch   Kind = "search"
	KindDetails  Kind = "details"
	KindEpisodes Kind = "episodes"
	KindRelated  Kind = "related"
)

// Func parses one page type into a JSON-serialisable record.
type Func func(html string, base *url.URL) (interface{}, error)

var registry = map[Kind]Func{
	KindSearch: func(html string, base *url.URL) (interface{}, error) {
		return ParseSearch(html, base)
	},
	KindDetails: func(html string, base *url.URL) (interface{}, error) {
		return ParseDetails(html, base)
	},
	KindEpisodes: func(html string, base *url.URL) (interface{}, error) {
		return ParseEpisodes(html, base)
	},
	KindRelated: func(html string, base *url.URL) (interface{}, error) {
		return ParseRelated(html, base)
	},
}

// Lookup returns the parser registered for kind.
func Lookup(kind Kind) (Func, bool) {
	fn, ok := registry[kind]
	return fn, ok
}

// Kinds lists registered page types, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
