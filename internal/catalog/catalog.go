// Package catalog holds the fixed set of blog categories and the URLs of their
// listing pages.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/antzucaro/matchr"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidBaseURL  = errors.New("base url must be absolute")
	ErrEmptyCatalog    = errors.New("catalog needs at least one category")
)

// DefaultBaseURL is the blog root every listing path hangs from.
const DefaultBaseURL = "https://xepelin.com/blog"

// Category pairs a human readable name with its listing path segment.
type Category struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Catalog is immutable once built: every accessor returns copies.
type Catalog struct {
	base       *url.URL
	categories []Category
	index      map[string]int
}

var defaultCategories = []Category{
	{Name: "Pymes", Slug: "pymes"},
	{Name: "Corporativos", Slug: "corporativos"},
	{Name: "Educación Financiera", Slug: "educacion-financiera"},
	{Name: "Emprendedores", Slug: "emprendedores"},
	{Name: "Noticias", Slug: "noticias"},
	{Name: "Casos de éxito", Slug: "empresarios-exitosos"},
}

var defaultCatalog = mustNew(DefaultBaseURL, defaultCategories)

// Default returns the process-wide catalog for the Xepelin blog.
func Default() Catalog { return defaultCatalog }

// DefaultCategories returns a copy of the built-in category list.
func DefaultCategories() []Category {
	out := make([]Category, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}

func mustNew(base string, cats []Category) Catalog {
	c, err := New(base, cats)
	if err != nil {
		panic(err)
	}
	return c
}

// New validates and builds a catalog. Declaration order is preserved and is
// the order categories are scraped in.
func New(base string, cats []Category) (Catalog, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Catalog{}, fmt.Errorf("%w: %q", ErrInvalidBaseURL, base)
	}
	if len(cats) == 0 {
		return Catalog{}, ErrEmptyCatalog
	}

	c := Catalog{
		base:       u,
		categories: make([]Category, 0, len(cats)),
		index:      make(map[string]int, len(cats)),
	}
	for i, cat := range cats {
		if cat.Name == "" || cat.Slug == "" {
			return Catalog{}, fmt.Errorf("category[%d]: name and slug are required", i)
		}
		if _, dup := c.index[cat.Name]; dup {
			return Catalog{}, fmt.Errorf("category[%d]: duplicate name %q", i, cat.Name)
		}
		c.index[cat.Name] = len(c.categories)
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

func (c Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c Catalog) Names() []string {
	out := make([]string, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cat.Name
	}
	return out
}

func (c Catalog) Lookup(name string) (Category, error) {
	i, ok := c.index[name]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c.categories[i], nil
}

// BaseURL is the blog root, without a trailing slash.
func (c Catalog) BaseURL() string { return c.base.String() }

// Origin is scheme://host of the blog, used to resolve root-relative links.
func (c Catalog) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// ItemPath is the path segment every post URL contains, e.g. "/blog/".
func (c Catalog) ItemPath() string {
	return strings.TrimRight(c.base.Path, "/") + "/"
}

func (c Catalog) ListingURL(cat Category) string {
	return c.BaseURL() + "/" + cat.Slug
}

// IndexURLs lists every navigation page that must never be treated as a post:
// the blog root and each category listing.
func (c Catalog) IndexURLs() []string {
	out := []string{c.BaseURL()}
	for _, cat := range c.categories {
		out = append(out, c.ListingURL(cat))
	}
	return out
}

// minSimilarity is the Jaro-Winkler score a name needs to be suggested.
const minSimilarity = 0.8

// Suggest returns the category whose name or slug is closest to name.
// Case is ignored.
func (c Catalog) Suggest(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	best, score := "", 0.0
	for _, cat := range c.categories {
		for _, candidate := range []string{cat.Name, cat.Slug} {
			if s := matchr.JaroWinkler(name, strings.ToLower(candidate), false); s > score {
				best, score = cat.Name, s
			}
		}
	}
	return best, score >= minSimilarity
}
