// Package imagecache downloads the images embedded in task pages to a local
// directory so agents can read them, and indexes them in SQLite by block id.
package imagecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/pkg/models"

	_ "modernc.org/sqlite"
)

// maxImageBytes caps a single download.
const maxImageBytes = 25 << 20

// Entry is one indexed image.
type Entry struct {
	BlockID   string
	TaskID    string
	Path      string
	SourceURL string
	Bytes     int64
	FetchedAt time.Time
}

// Cache is a directory of downloaded images plus its SQLite index.
type Cache struct {
	dir  string
	db   *sql.DB
	http *http.Client
	log  *logging.Logger
	now  func() time.Time
	// mu serializes downloads and index writes.
	mu sync.Mutex
}

var _ core.ImageFetcher = (*Cache)(nil)

// Option customizes a Cache.
type Option func(*Cache)

// WithHTTPClient replaces the download client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cache) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the cache's logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log.WithComponent("imagecache")
		}
	}
}

// Open creates the cache directory, opens the index and migrates it.
func Open(cfg models.ImageConfig, opts ...Option) (*Cache, error) {
	dir := cfg.CacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "taskflow-images")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image cache dir: %w", err)
	}
	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(dir, "index.db")
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating image index dir: %w", err)
	}

	db, err := sql.Open("sqlite", indexPath)
	if err != nil {
		return nil, fmt.Errorf("opening image index: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping image index: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Cache{
		dir:  dir,
		db:   db,
		http: &http.Client{Timeout: 60 * time.Second},
		log:  logging.Nop(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Close closes the index.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// FetchTaskImages returns local paths for every image block of task,
// downloading the ones not cached yet. Any failure is logged and yields an
// empty slice; prompts render without images rather than failing.
func (c *Cache) FetchTaskImages(ctx context.Context, task *models.Task) []string {
	paths, err := c.fetch(ctx, task)
	if err != nil {
		c.log.Warn().Err(err).Str("task_id", task.ID).Msg("downloading task images failed")
		return []string{}
	}
	return paths
}

func (c *Cache) fetch(ctx context.Context, task *models.Task) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := []string{}
	index := 0
	for _, b := range task.Blocks {
		if b.Type != models.BlockImage {
			continue
		}
		i := index
		index++
		if b.URL == "" {
			continue
		}

		if entry, ok, err := c.lookup(ctx, b.ID); err != nil {
			return nil, err
		} else if ok && fileExists(entry.Path) {
			paths = append(paths, entry.Path)
			continue
		}

		path := filepath.Join(c.dir, fileName(task.ID, b.ID, i))
		size, err := c.download(ctx, b.URL, path)
		if err != nil {
			return nil, fmt.Errorf("image %d of task %s: %w", i, task.ID, err)
		}
		entry := Entry{
			BlockID:   b.ID,
			TaskID:    task.ID,
			Path:      path,
			SourceURL: b.URL,
			Bytes:     size,
			FetchedAt: c.now(),
		}
		if err := c.record(ctx, entry); err != nil {
			return nil, err
		}
		c.log.Debug().Str("task_id", task.ID).Str("path", path).Int64("bytes", size).Msg("image cached")
		paths = append(paths, path)
	}
	return paths, nil
}

// fileName is <task id>_<block id>.png with dashes dropped. Blocks without an
// id fall back to the image's position on the page.
func fileName(taskID, blockID string, i int) string {
	if blockID == "" {
		return fmt.Sprintf("%s_%d.png", safeName(taskID), i)
	}
	return fmt.Sprintf("%s_%s.png", safeName(taskID), safeName(blockID))
}

// safeName keeps letters, digits and underscores.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return -1
		}
	}, id)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// download fetches url into path. Redirects are followed by the HTTP client.
func (c *Cache) download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", redact(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetching %s: HTTP %d", redact(url), resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("writing image: %w", err)
	}
	if n > maxImageBytes {
		return 0, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("moving image into cache: %w", err)
	}
	return n, nil
}

// redact drops the query string, which carries signatures for hosted files.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func (c *Cache) lookup(ctx context.Context, blockID string) (Entry, bool, error) {
	if blockID == "" {
		return Entry{}, false, nil
	}
	row := c.db.QueryRowContext(ctx,
		`SELECT block_id, task_id, path, source_url, bytes, fetched_at FROM images WHERE block_id = ?`, blockID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("looking up image %s: %w", blockID, err)
	}
	return e, true, nil
}

func (c *Cache) record(ctx context.Context, e Entry) error {
	if e.BlockID == "" {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO images (block_id, task_id, path, source_url, bytes, fetched_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(block_id) DO UPDATE SET
    task_id = excluded.task_id,
    path = excluded.path,
    source_url = excluded.source_url,
    bytes = excluded.bytes,
    fetched_at = excluded.fetched_at`,
		e.BlockID, e.TaskID, e.Path, e.SourceURL, e.Bytes, e.FetchedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording image %s: %w", e.BlockID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var fetched string
	if err := s.Scan(&e.BlockID, &e.TaskID, &e.Path, &e.SourceURL, &e.Bytes, &fetched); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing fetched_at %q: %w", fetched, err)
	}
	e.FetchedAt = t
	return e, nil
}

// Entries lists indexed images, newest first. An empty taskID lists all.
func (c *Cache) Entries(ctx context.Context, taskID string) ([]Entry, error) {
	query := `SELECT block_id, task_id, path, source_url, bytes, fetched_at FROM images`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY fetched_at DESC, block_id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes images fetched before cutoff from disk and the index and
// returns how many were removed.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.Entries(ctx, "")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.FetchedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing %s: %w", e.Path, err)
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM images WHERE block_id = ?`, e.BlockID); err != nil {
			return removed, fmt.Errorf("unindexing %s: %w", e.BlockID, err)
		}
		removed++
	}
	return removed, nil
}
