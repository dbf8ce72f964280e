package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"xepelin-blog-scraper/internal/models"
)

const sqlitePrefix = "sqlite:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tabs (
	name TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
	tab TEXT NOT NULL,
	idx INTEGER NOT NULL,
	titular TEXT NOT NULL,
	categoria TEXT NOT NULL,
	autor TEXT NOT NULL,
	tiempo_lectura TEXT NOT NULL,
	fecha_publicacion TEXT NOT NULL,
	url TEXT NOT NULL,
	PRIMARY KEY (tab, idx)
);`

// SQLite keeps each store in its own database file under dir. Identifiers
// look like "sqlite:/abs/dir/file.db"; targets may also name a file relative
// to dir, but never one outside it.
type SQLite struct {
	dir string
	now func() time.Time
}

func NewSQLite(dir string) *SQLite {
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &SQLite{dir: dir, now: time.Now}
}

func (s *SQLite) path(target string) (string, error) {
	if target == "" {
		name := fmt.Sprintf("xepelin-blog-%s-%s.db", s.now().Format("20060102-150405"), uuid.NewString()[:8])
		return filepath.Join(s.dir, name), nil
	}
	name, ok := strings.CutPrefix(target, sqlitePrefix)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q is not a sqlite store", ErrInvalidTarget, target)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %s", ErrInvalidTarget, target, s.dir)
	}
	return path, nil
}

func (s *SQLite) open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

func (s *SQLite) Write(ctx context.Context, result *models.CategoryResult, target string) (string, error) {
	path, err := s.path(target)
	if err != nil {
		return "", err
	}
	db, err := s.open(ctx, path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	writes, keep := plan(result)
	stamp := s.now().UTC().Format(time.RFC3339)
	for pos, t := range writes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE tab = ?`, t.name); err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tabs (name, position, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
			t.name, pos, stamp); err != nil {
			return "", err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO posts
			(tab, idx, titular, categoria, autor, tiempo_lectura, fecha_publicacion, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		for i, r := range t.rows {
			if _, err := stmt.ExecContext(ctx, t.name, i, r[0], r[1], r[2], r[3], r[4], r[5]); err != nil {
				stmt.Close()
				return "", err
			}
		}
		stmt.Close()
	}

	if err := pruneSQLite(ctx, tx, keep); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return sqlitePrefix + path, nil
}

func pruneSQLite(ctx context.Context, tx *sql.Tx, keep []string) error {
	if len(keep) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM tabs`)
		return err
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, len(keep))
	for i, k := range keep {
		args[i] = k
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE tab NOT IN (`+marks+`)`, args...); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM tabs WHERE name NOT IN (`+marks+`)`, args...)
	return err
}

// Tabs lists the tab names of a store in write order.
func (s *SQLite) Tabs(ctx context.Context, target string) ([]string, error) {
	path, err := s.path(target)
	if err != nil {
		return nil, err
	}
	db, err := s.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name FROM tabs ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Table returns a tab with its header row, as a spreadsheet would show it.
func (s *SQLite) Table(ctx context.Context, target, tab string) ([][]string, error) {
	path, err := s.path(target)
	if err != nil {
		return nil, err
	}
	db, err := s.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT titular, categoria, autor, tiempo_lectura, fecha_publicacion, url
		FROM posts WHERE tab = ? ORDER BY idx`, tab)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := [][]string{Headers}
	for rows.Next() {
		r := make([]string, 6)
		if err := rows.Scan(&r[0], &r[1], &r[2], &r[3], &r[4], &r[5]); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return nil }
