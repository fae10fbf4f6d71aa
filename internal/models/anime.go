package models

import "time"

// Anime is the only media type the catalog serves today.
type Anime = Media

// Progress is a user's position in one title.
type Progress struct {
	UserID        string    `json:"userId"`
	MediaID       string    `json:"mediaId"`
	Title         string    `json:"title,omitempty"`
	EpisodeNumber int       `json:"episodeNumber"`
	PlaybackTime  int       `json:"playbackTime"`
	Duration      int       `json:"duration"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ListItem is one entry of a named user list (favourites, watch later...).
type ListItem struct {
	UserID   string    `json:"userId"`
	List     string    `json:"list"`
	MediaID  string    `json:"mediaId"`
	Title    string    `json:"title,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
	AddedAt  time.Time `json:"addedAt"`
}
