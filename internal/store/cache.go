// Package store provides the local SQLite cache of resolved commune
// boundaries, so repeat runs for the same query skip the remote lookup.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"

	"github.com/atelier-carto/fondplan/internal/commune"
)

// BoundaryCache stores resolved communes keyed by the folded name query.
// A cached entry includes the disambiguation choice made when it was stored.
type BoundaryCache struct {
	db *sql.DB
}

// NewBoundaryCache opens (or creates) the cache database at the given path
// and configures WAL mode.
func NewBoundaryCache(path string) (*BoundaryCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}

	c := &BoundaryCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS boundaries (
	query     TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	code      TEXT NOT NULL,
	contour   TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_boundaries_code ON boundaries(code);
`

func (c *BoundaryCache) migrate() error {
	_, err := c.db.Exec(cacheMigration)
	return eris.Wrap(err, "cache: migrate")
}

// Close releases the underlying database.
func (c *BoundaryCache) Close() error {
	return c.db.Close()
}

// Get looks up a cached resolution for the query. The second return value
// reports whether an entry was found.
func (c *BoundaryCache) Get(ctx context.Context, query string) (*commune.Commune, bool, error) {
	var name, code, contour string
	err := c.db.QueryRowContext(ctx,
		`SELECT name, code, contour FROM boundaries WHERE query = ?`,
		commune.Fold(query),
	).Scan(&name, &code, &contour)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: get %q", query)
	}

	var g geom.T
	if err := geojson.Unmarshal([]byte(contour), &g); err != nil {
		return nil, false, eris.Wrapf(err, "cache: decode contour for %q", query)
	}

	return &commune.Commune{Name: name, Code: code, Contour: g}, true, nil
}

// Put stores a resolution for the query, replacing any previous entry.
func (c *BoundaryCache) Put(ctx context.Context, query string, cm *commune.Commune) error {
	contour, err := geojson.Marshal(cm.Contour)
	if err != nil {
		return eris.Wrapf(err, "cache: encode contour for %q", cm.Code)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO boundaries (query, name, code, contour, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (query) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			contour = excluded.contour,
			cached_at = excluded.cached_at`,
		commune.Fold(query), cm.Name, cm.Code, string(contour), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "cache: put %q", query)
	}
	return nil
}
