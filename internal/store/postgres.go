package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"xepelin-blog-scraper/internal/models"
)

const postgresPrefix = "postgres:"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scrape_tabs (
	store TEXT NOT NULL,
	name TEXT NOT NULL,
	position INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (store, name)
);
CREATE TABLE IF NOT EXISTS scrape_posts (
	store TEXT NOT NULL,
	tab TEXT NOT NULL,
	idx INT NOT NULL,
	titular TEXT NOT NULL,
	categoria TEXT NOT NULL,
	autor TEXT NOT NULL,
	tiempo_lectura TEXT NOT NULL,
	fecha_publicacion TEXT NOT NULL,
	url TEXT NOT NULL,
	PRIMARY KEY (store, tab, idx)
);`

// Postgres stores many named result sets in two shared tables. Identifiers
// look like "postgres:<store name>".
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres needs a dsn", ErrInvalidTarget)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

func (p *Postgres) name(target string) string {
	if target == "" {
		return "xepelin-blog-" + p.now().Format("20060102-150405")
	}
	return strings.TrimPrefix(target, postgresPrefix)
}

func (p *Postgres) Write(ctx context.Context, result *models.CategoryResult, target string) (string, error) {
	store := p.name(target)
	writes, keep := plan(result)
	stamp := p.now().UTC()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	count := 0
	for pos, t := range writes {
		b.Queue(`DELETE FROM scrape_posts WHERE store = $1 AND tab = $2`, store, t.name)
		b.Queue(`INSERT INTO scrape_tabs (store, name, position, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (store, name) DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`,
			store, t.name, pos, stamp)
		count += 2
		for i, r := range t.rows {
			b.Queue(`INSERT INTO scrape_posts
				(store, tab, idx, titular, categoria, autor, tiempo_lectura, fecha_publicacion, url)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				store, t.name, i, r[0], r[1], r[2], r[3], r[4], r[5])
			count++
		}
	}
	if keep == nil {
		keep = []string{}
	}
	b.Queue(`DELETE FROM scrape_posts WHERE store = $1 AND NOT (tab = ANY($2))`, store, keep)
	b.Queue(`DELETE FROM scrape_tabs WHERE store = $1 AND NOT (name = ANY($2))`, store, keep)
	count += 2

	br := tx.SendBatch(ctx, b)
	for k := 0; k < count; k++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return "", err
		}
	}
	if err := br.Close(); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return postgresPrefix + store, nil
}

// Tabs lists the tab names of a store in write order.
func (p *Postgres) Tabs(ctx context.Context, target string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT name FROM scrape_tabs WHERE store = $1 ORDER BY position, name`, p.name(target))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
