// Package types provides the public types of the anistream library.
package types

import (
	"github.com/alvarorichard/anistream/internal/models"
	"github.com/alvarorichard/anistream/internal/resolver"
)

// Anime represents a title with its metadata
type Anime struct {
	// Name is the title of the anime
	Name string
	// URL is the title page on the upstream site
	URL string
	// ImageURL is the cover/poster image URL
	ImageURL string
	Synopsis string
	Status   string
	Year     string
	Genres   []string
	// AnilistID is the AniList database ID (if available)
	AnilistID int
	// MalID is the MyAnimeList database ID (if available)
	MalID int
	// Source identifies the upstream site
	Source string
}

// AltID is the identifier used for unified lookups, or "" when unknown.
func (a *Anime) AltID() string {
	return a.toInternal().AltID()
}

func (a *Anime) toInternal() *models.Anime {
	return &models.Anime{AnilistID: a.AnilistID, MalID: a.MalID}
}

// Episode represents a single episode
type Episode struct {
	// Number is the episode label as shown by the site (e.g. "Episódio 1")
	Number string
	// Num is the parsed episode number
	Num int
	// URL is the episode page, suitable for GetStreamURL
	URL   string
	Title string
}

// Stream is a resolved playable URL and how it was chosen.
type Stream struct {
	URL string
	// Source is "unified" or "direct"
	Source string
	// Rule names the ranking rule that selected URL on the direct path
	Rule       string
	Embed      string
	PageURL    string
	Candidates []string
}

// FromInternalAnime converts an internal model to the public type.
func FromInternalAnime(internal *models.Anime) *Anime {
	if internal == nil {
		return nil
	}
	return &Anime{
		Name:      internal.Name,
		URL:       internal.URL,
		ImageURL:  internal.ImageURL,
		Synopsis:  internal.Synopsis,
		Status:    internal.Status,
		Year:      internal.Year,
		Genres:    internal.Genres,
		AnilistID: internal.AnilistID,
		MalID:     internal.MalID,
		Source:    internal.Source,
	}
}

// FromInternalAnimeList converts a list of internal models.
func FromInternalAnimeList(internal []models.Anime) []*Anime {
	result := make([]*Anime, 0, len(internal))
	for i := range internal {
		result = append(result, FromInternalAnime(&internal[i]))
	}
	return result
}

// FromInternalEpisodeList converts internal episodes.
func FromInternalEpisodeList(internal []models.Episode) []*Episode {
	result := make([]*Episode, 0, len(internal))
	for _, ep := range internal {
		result = append(result, &Episode{Number: ep.Number, Num: ep.Num, URL: ep.URL, Title: ep.Title})
	}
	return result
}

// FromRankedStream converts a resolver result.
func FromRankedStream(rs *resolver.RankedStream) *Stream {
	if rs == nil {
		return nil
	}
	return &Stream{
		URL:        rs.StreamURL,
		Source:     rs.Source,
		Rule:       rs.Rule,
		Embed:      rs.Embed,
		PageURL:    rs.PageURL,
		Candidates: rs.Candidates,
	}
}
