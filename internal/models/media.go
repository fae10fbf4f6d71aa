// Package models contains data structures for catalog content
package models

import (
	"fmt"
	"strings"
)

// Media represents one catalog entry as scraped from the upstream site.
type Media struct {
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Synopsis string    `json:"synopsis,omitempty"`
	Status   string    `json:"status,omitempty"`
	Year     string    `json:"year,omitempty"`
	Genres   []string  `json:"genres,omitempty"`
	Episodes []Episode `json:"episodes,omitempty"`
	Source   string    `json:"source,omitempty"` // upstream site name

	// Alternate catalog identifiers, used by the unified accelerator.
	AnilistID int `json:"anilistId,omitempty"`
	MalID     int `json:"malId,omitempty"`
}

// Episode represents a single episode link
type Episode struct {
	Number string `json:"number"`
	Num    int    `json:"num"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
}

// AltID returns the identifier sent to the unified accelerator, or "".
func (m *Media) AltID() string {
	if m.AnilistID > 0 {
		return fmt.Sprintf("%d", m.AnilistID)
	}
	return ""
}

// Slug returns the last path segment of the entry URL.
func (m *Media) Slug() string {
	trimmed := strings.TrimRight(m.URL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
