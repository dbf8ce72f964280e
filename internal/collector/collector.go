// Package collector turns a fully loaded listing page into the ordered set of
// post URLs it links to.
package collector

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"xepelin-blog-scraper/internal/classifier"
)

type Collector struct {
	cl *classifier.Classifier
}

func New(cl *classifier.Classifier) *Collector {
	return &Collector{cl: cl}
}

// CollectHTML is Collect over an HTML string.
func (c *Collector) CollectHTML(html string) ([]string, error) {
	return c.Collect(strings.NewReader(html))
}

// Collect returns unique post URLs in first-seen order. An empty slice is a
// valid result for a category without posts.
func (c *Collector) Collect(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	urls := []string{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		res := c.cl.Classify(href)
		if res.Label != classifier.Post {
			return
		}
		if _, dup := seen[res.URL]; dup {
			return
		}
		seen[res.URL] = struct{}{}
		urls = append(urls, res.URL)
	})
	return urls, nil
}
