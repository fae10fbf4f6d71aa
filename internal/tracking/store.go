// Package tracking persists per-user watch progress and named lists.
package tracking

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/models"
)

// Error constants
var (
	ErrCgoDisabled      = errors.New("CGO disabled: sqlite tracking not available")
	ErrTrackerNotInited = errors.New("tracker not initialized")
	ErrInvalidProgress  = errors.New("invalid progress")
	ErrInvalidKey       = errors.New("user, list and media ids must be non-empty")
)

// Store is the user-state backend handed to the HTTP handlers.
type Store interface {
	SaveProgress(ctx context.Context, p models.Progress) error
	// GetProgress returns nil, nil when nothing is stored.
	GetProgress(ctx context.Context, userID, mediaID string) (*models.Progress, error)
	// ListProgress returns a user's entries, most recently updated first.
	ListProgress(ctx context.Context, userID string) ([]models.Progress, error)
	DeleteProgress(ctx context.Context, userID, mediaID string) error

	AddToList(ctx context.Context, item models.ListItem) error
	RemoveFromList(ctx context.Context, userID, list, mediaID string) error
	// GetList returns a list's entries, most recently added first.
	GetList(ctx context.Context, userID, list string) ([]models.ListItem, error)

	Close() error
}

func validKeys(keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

func validateProgress(p models.Progress) (models.Progress, error) {
	if err := validKeys(p.UserID, p.MediaID); err != nil {
		return p, err
	}
	if p.Duration < 0 || p.EpisodeNumber < 0 {
		return p, ErrInvalidProgress
	}
	if p.PlaybackTime < 0 {
		p.PlaybackTime = 0
	}
	return p, nil
}
