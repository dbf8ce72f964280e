// Package store persists a CategoryResult as a set of named tabs, one per
// category. Writing to an existing target replaces the tabs it carries and
// removes the ones it does not.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/pkg/logger"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrInvalidTarget  = errors.New("invalid store target")
)

// MaxTabName is the longest tab name written; Sheets rejects titles past 31.
const MaxTabName = 30

var Headers = []string{
	"Titular",
	"Categoría",
	"Autor",
	"Tiempo de lectura",
	"Fecha de publicación",
	"URL",
}

// Store writes a result to target and returns its canonical identifier. An
// empty target creates a new store.
type Store interface {
	Write(ctx context.Context, result *models.CategoryResult, target string) (string, error)
	Close() error
}

type Config struct {
	Backend     string
	Credentials string
	Dir         string
	DSN         string
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch strings.ToLower(cfg.Backend) {
	case "sheets":
		return NewSheets(ctx, cfg.Credentials, log)
	case "", "sqlite":
		return NewSQLite(cfg.Dir), nil
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

// TabName truncates a category name to MaxTabName runes.
func TabName(category string) string {
	r := []rune(category)
	if len(r) > MaxTabName {
		r = r[:MaxTabName]
	}
	return string(r)
}

func Row(p models.PostRecord) []string {
	return []string{
		orUnavailable(p.Title),
		orUnavailable(p.Category),
		orUnavailable(p.Author),
		orUnavailable(p.ReadingTime),
		orUnavailable(p.PublishedDate),
		orUnavailable(p.URL),
	}
}

func orUnavailable(s string) string {
	if s == "" {
		return models.Unavailable
	}
	return s
}

type tab struct {
	name string
	rows [][]string
}

// plan lists the tabs to write, in result order, and the names to keep.
// Empty categories are kept but not written.
func plan(result *models.CategoryResult) (writes []tab, keep []string) {
	seen := map[string]bool{}
	for _, cat := range result.Categories() {
		name := TabName(cat)
		if !seen[name] {
			seen[name] = true
			keep = append(keep, name)
		}
		posts := result.Posts(cat)
		if len(posts) == 0 {
			continue
		}
		rows := make([][]string, 0, len(posts))
		for _, p := range posts {
			rows = append(rows, Row(p))
		}
		writes = append(writes, tab{name: name, rows: rows})
	}
	return writes, keep
}
