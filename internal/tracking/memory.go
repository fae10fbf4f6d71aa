package tracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alvarorichard/anistream/internal/models"
)

type progressKey struct{ user, media string }

type itemKey struct{ user, list, media string }

// MemoryStore keeps user state in process memory. It backs the server when
// SQLite is unavailable or no store path is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[progressKey]models.Progress
	items    map[itemKey]models.ListItem
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[progressKey]models.Progress),
		items:    make(map[itemKey]models.ListItem),
	}
}

func (m *MemoryStore) SaveProgress(_ context.Context, p models.Progress) error {
	p, err := validateProgress(p)
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	p.UpdatedAt = p.UpdatedAt.Truncate(time.Second)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[progressKey{p.UserID, p.MediaID}] = p
	return nil
}

func (m *MemoryStore) GetProgress(_ context.Context, userID, mediaID string) (*models.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[progressKey{userID, mediaID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) ListProgress(_ context.Context, userID string) ([]models.Progress, error) {
	m.mu.RLock()
	list := make([]models.Progress, 0, avgItemsPerUser)
	for k, p := range m.progress {
		if k.user == userID {
			list = append(list, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].MediaID < list[j].MediaID
	})
	return list, nil
}

func (m *MemoryStore) DeleteProgress(_ context.Context, userID, mediaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, progressKey{userID, mediaID})
	return nil
}

func (m *MemoryStore) AddToList(_ context.Context, item models.ListItem) error {
	if err := validKeys(item.UserID, item.List, item.MediaID); err != nil {
		return err
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	item.AddedAt = item.AddedAt.Truncate(time.Second)

	m.mu.Lock()
	defer m.mu.Unlock()
	k := itemKey{item.UserID, item.List, item.MediaID}
	if existing, ok := m.items[k]; ok {
		item.AddedAt = existing.AddedAt
	}
	m.items[k] = item
	return nil
}

func (m *MemoryStore) RemoveFromList(_ context.Context, userID, list, mediaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemKey{userID, list, mediaID})
	return nil
}

func (m *MemoryStore) GetList(_ context.Context, userID, list string) ([]models.ListItem, error) {
	m.mu.RLock()
	items := make([]models.ListItem, 0, avgItemsPerUser)
	for k, item := range m.items {
		if k.user == userID && k.list == list {
			items = append(items, item)
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.After(items[j].AddedAt)
		}
		return items[i].MediaID < items[j].MediaID
	})
	return items, nil
}

func (m *MemoryStore) Close() error { return nil }
