package classifier

import (
	"strings"

	"xepelin-blog-scraper/internal/catalog"
)

// Label says what a link on a listing page points to.
type Label string

const (
	Post    Label = "post"
	Index   Label = "index"
	Foreign Label = "foreign"
)

type Classification struct {
	URL    string
	Label  Label
	Reason string
}

// Classifier resolves listing hrefs against the blog origin and decides
// whether they point at a post.
type Classifier struct {
	origin   string
	itemPath string
	index    map[string]struct{}
}

func New(c catalog.Catalog) *Classifier {
	index := map[string]struct{}{}
	for _, u := range c.IndexURLs() {
		index[u] = struct{}{}
	}
	return &Classifier{
		origin:   c.Origin(),
		itemPath: c.ItemPath(),
		index:    index,
	}
}

// Candidate is the cheap pre-filter applied to raw hrefs: the post path segment
// plus a hyphen, which slugged posts carry and category pages lack.
func (c *Classifier) Candidate(href string) bool {
	return strings.Contains(href, c.itemPath) && strings.Contains(href, "-")
}

// Resolve turns an href into an absolute URL. Only absolute http(s) links and
// root-relative links are accepted.
func (c *Classifier) Resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return "", false
	case strings.HasPrefix(href, "http"):
		return href, true
	case strings.HasPrefix(href, "//"):
		return "", false
	case strings.HasPrefix(href, "/"):
		return c.origin + href, true
	}
	return "", false
}

func (c *Classifier) Classify(href string) Classification {
	if !c.Candidate(href) {
		return Classification{URL: href, Label: Foreign, Reason: "no post path or slug"}
	}
	abs, ok := c.Resolve(href)
	if !ok {
		return Classification{URL: href, Label: Foreign, Reason: "unresolvable href"}
	}
	if _, nav := c.index[strings.TrimRight(abs, "/")]; nav {
		return Classification{URL: abs, Label: Index, Reason: "category listing"}
	}
	return Classification{URL: abs, Label: Post}
}
