package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/models"
	"github.com/alvarorichard/anistream/internal/util"
)

// IsCgoEnabled indicates whether CGO is enabled for SQLite support
var IsCgoEnabled = true

const (
	defaultCacheSize  = -20000    // 20MB
	mmapSize          = 268435456 // 256MB
	busyTimeout       = 5000      // ms
	walAutoCheckpoint = 1000      // pages
	maxOpenConns      = 5
	maxIdleConns      = 2
	avgItemsPerUser   = 64
)

// SQLiteStore is the durable Store.
type SQLiteStore struct {
	db *sql.DB

	upsertProgress *sql.Stmt
	getProgress    *sql.Stmt
	listProgress   *sql.Stmt
	deleteProgress *sql.Stmt

	upsertItem *sql.Stmt
	deleteItem *sql.Stmt
	listItems  *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if !IsCgoEnabled {
		return nil, ErrCgoDisabled
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.prepare(); err != nil {
		_ = s.Close()
		return nil, err
	}
	util.Debug("user store ready", "path", dbPath)
	return s, nil
}

func dsn(dbPath string) string {
	path := dbPath
	mode := ""
	// SQLite wants forward slashes in URI filenames on Windows.
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(dbPath, "\\", "/")
		mode = "&_mode=rwc"
	}
	return fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&"+
			"_busy_timeout=%d&_cache_size=%d&_mmap_size=%d&_foreign_keys=on%s",
		path, walAutoCheckpoint, busyTimeout, defaultCacheSize, mmapSize, mode,
	)
}

func initializeDatabase(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS watch_progress (
			user_id        TEXT    NOT NULL,
			media_id       TEXT    NOT NULL,
			title          TEXT,
			episode_number INTEGER NOT NULL CHECK(episode_number >= 0),
			playback_time  INTEGER NOT NULL CHECK(playback_time >= 0),
			duration       INTEGER NOT NULL CHECK(duration >= 0),
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (user_id, media_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_recent
			ON watch_progress(user_id, updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS list_items (
			user_id   TEXT    NOT NULL,
			list_name TEXT    NOT NULL,
			media_id  TEXT    NOT NULL,
			title     TEXT,
			image_url TEXT,
			added_at  INTEGER NOT NULL,
			PRIMARY KEY (user_id, list_name, media_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_list_recent
			ON list_items(user_id, list_name, added_at DESC)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "schema statement failed: %s", firstLine(stmt))
		}
	}
	if _, err := db.Exec(`PRAGMA optimize`); err != nil {
		return errors.Wrap(err, "initial optimization failed")
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *SQLiteStore) prepare() error {
	statements := []struct {
		dst  **sql.Stmt
		name string
		sql  string
	}{
		{&s.upsertProgress, "upsert progress", `INSERT INTO watch_progress (
				user_id, media_id, title, episode_number, playback_time, duration, updated_at
			) VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(user_id, media_id) DO UPDATE SET
				title = excluded.title,
				episode_number = excluded.episode_number,
				playback_time = excluded.playback_time,
				duration = excluded.duration,
				updated_at = excluded.updated_at`},
		{&s.getProgress, "get progress", `SELECT title, episode_number, playback_time, duration, updated_at
			FROM watch_progress WHERE user_id = ? AND media_id = ?`},
		{&s.listProgress, "list progress", `SELECT media_id, title, episode_number, playback_time, duration, updated_at
			FROM watch_progress WHERE user_id = ? ORDER BY updated_at DESC, media_id`},
		{&s.deleteProgress, "delete progress", `DELETE FROM watch_progress WHERE user_id = ? AND media_id = ?`},
		{&s.upsertItem, "upsert item", `INSERT INTO list_items (
				user_id, list_name, media_id, title, image_url, added_at
			) VALUES (?,?,?,?,?,?)
			ON CONFLICT(user_id, list_name, media_id) DO UPDATE SET
				title = excluded.title,
				image_url = excluded.image_url`},
		{&s.deleteItem, "delete item", `DELETE FROM list_items WHERE user_id = ? AND list_name = ? AND media_id = ?`},
		{&s.listItems, "list items", `SELECT media_id, title, image_url, added_at
			FROM list_items WHERE user_id = ? AND list_name = ? ORDER BY added_at DESC, media_id`},
	}
	for _, st := range statements {
		stmt, err := s.db.Prepare(st.sql)
		if err != nil {
			return errors.Wrapf(err, "%s preparation failed", st.name)
		}
		*st.dst = stmt
	}
	return nil
}

func (s *SQLiteStore) ready() error {
	if s == nil || s.db == nil || s.upsertProgress == nil {
		return ErrTrackerNotInited
	}
	return nil
}

// SaveProgress inserts or replaces the (user, media) progress row.
func (s *SQLiteStore) SaveProgress(ctx context.Context, p models.Progress) error {
	if err := s.ready(); err != nil {
		return err
	}
	p, err := validateProgress(p)
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err = s.upsertProgress.ExecContext(ctx,
		p.UserID, p.MediaID, p.Title, p.EpisodeNumber, p.PlaybackTime, p.Duration, p.UpdatedAt.Unix())
	return errors.Wrap(err, "saving progress")
}

func (s *SQLiteStore) GetProgress(ctx context.Context, userID, mediaID string) (*models.Progress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p := models.Progress{UserID: userID, MediaID: mediaID}
	var (
		title sql.NullString
		ts    int64
	)
	err := s.getProgress.QueryRowContext(ctx, userID, mediaID).Scan(&title, &p.EpisodeNumber, &p.PlaybackTime, &p.Duration, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	p.Title = title.String
	p.UpdatedAt = time.Unix(ts, 0)
	return &p, nil
}

func (s *SQLiteStore) ListProgress(ctx context.Context, userID string) ([]models.Progress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.listProgress.QueryContext(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			util.Warn("Error closing rows", "error", err)
		}
	}()

	list := make([]models.Progress, 0, avgItemsPerUser)
	for rows.Next() {
		p := models.Progress{UserID: userID}
		var (
			title sql.NullString
			ts    int64
		)
		if err := rows.Scan(&p.MediaID, &title, &p.EpisodeNumber, &p.PlaybackTime, &p.Duration, &ts); err != nil {
			return nil, errors.Wrap(err, "row scan failed")
		}
		p.Title = title.String
		p.UpdatedAt = time.Unix(ts, 0)
		list = append(list, p)
	}
	return list, errors.Wrap(rows.Err(), "rows iteration failed")
}

func (s *SQLiteStore) DeleteProgress(ctx context.Context, userID, mediaID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.deleteProgress.ExecContext(ctx, userID, mediaID)
	return errors.Wrap(err, "deleting progress")
}

// AddToList inserts the item, keeping the original added_at on re-adds.
func (s *SQLiteStore) AddToList(ctx context.Context, item models.ListItem) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := validKeys(item.UserID, item.List, item.MediaID); err != nil {
		return err
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	_, err := s.upsertItem.ExecContext(ctx,
		item.UserID, item.List, item.MediaID, item.Title, item.ImageURL, item.AddedAt.Unix())
	return errors.Wrap(err, "adding list item")
}

func (s *SQLiteStore) RemoveFromList(ctx context.Context, userID, list, mediaID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.deleteItem.ExecContext(ctx, userID, list, mediaID)
	return errors.Wrap(err, "removing list item")
}

func (s *SQLiteStore) GetList(ctx context.Context, userID, list string) ([]models.ListItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.listItems.QueryContext(ctx, userID, list)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			util.Warn("Error closing rows", "error", err)
		}
	}()

	items := make([]models.ListItem, 0, avgItemsPerUser)
	for rows.Next() {
		item := models.ListItem{UserID: userID, List: list}
		var (
			title, image sql.NullString
			ts           int64
		)
		if err := rows.Scan(&item.MediaID, &title, &image, &ts); err != nil {
			return nil, errors.Wrap(err, "row scan failed")
		}
		item.Title = title.String
		item.ImageURL = image.String
		item.AddedAt = time.Unix(ts, 0)
		items = append(items, item)
	}
	return items, errors.Wrap(rows.Err(), "rows iteration failed")
}

// Close releases statements and the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var finalErr error
	for _, stmt := range []*sql.Stmt{
		s.upsertProgress, s.getProgress, s.listProgress, s.deleteProgress,
		s.upsertItem, s.deleteItem, s.listItems,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			finalErr = errors.Wrap(err, "statement close error")
		}
	}
	if err := s.db.Close(); err != nil {
		finalErr = errors.Wrap(err, "database close error")
	}
	return finalErr
}
