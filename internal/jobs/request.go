package jobs

import (
	"errors"
	"strings"

	"xepelin-blog-scraper/internal/catalog"
)

var (
	ErrMissingCallback = errors.New("missing required parameter: webhook")
	ErrMissingCategory = errors.New("missing required parameter: categoria")
)

// Request asks for one category or, with All set, for the whole blog.
type Request struct {
	Category    string
	All         bool
	CallbackURL string
	ReplyTo     string
	StoreTarget string
}

// Validate runs before any browser is acquired.
func (r Request) Validate(cat catalog.Catalog) error {
	if strings.TrimSpace(r.CallbackURL) == "" {
		return ErrMissingCallback
	}
	if r.All {
		return nil
	}
	if r.Category == "" {
		return ErrMissingCategory
	}
	_, err := cat.Lookup(r.Category)
	return err
}

// Mode is what the request scrapes, for logs and responses.
func (r Request) Mode() string {
	if r.All {
		return "all_categories"
	}
	return r.Category
}
