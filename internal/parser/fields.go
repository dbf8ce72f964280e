package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"
	"golang.org/x/net/html"
)

// rule extracts one field; ok=false means the field is absent.
type rule func(doc *goquery.Document) (string, bool)

// orSentinel runs a rule in isolation so one broken field never costs the others.
func orSentinel(doc *goquery.Document, r rule, sentinel string) (out string) {
	defer func() {
		if recover() != nil {
			out = sentinel
		}
	}()
	v, ok := r(doc)
	if !ok || v == "" {
		return sentinel
	}
	return v
}

func (p *Parser) title(doc *goquery.Document) (string, bool) {
	for _, tag := range p.opts.TitleTags {
		if t := normText(doc.Find(tag).First()); t != "" {
			return t, true
		}
	}
	return "", false
}

// author joins the name and role elements that sit next to the lead image.
func (p *Parser) author(doc *goquery.Document) (string, bool) {
	box := doc.Find(p.opts.AuthorContainer).First()
	if box.Length() == 0 {
		return "", false
	}
	var parts []string
	box.Find(p.opts.AuthorPart).Each(func(_ int, s *goquery.Selection) {
		if t := normText(s); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

func (p *Parser) readingTime(doc *goquery.Document) (string, bool) {
	minutes := strings.ToLower(p.opts.MinutesToken)
	reading := strings.ToLower(p.opts.ReadingToken)

	var found string
	doc.Find(p.opts.ReadingBlock).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := nodeText(s, "")
		lower := strings.ToLower(text)
		if !strings.Contains(lower, minutes) || !strings.Contains(lower, reading) {
			return true
		}
		if utf8.RuneCountInString(text) >= p.opts.ReadingMaxLen {
			return true
		}
		found = p.normalizeReading(spaceReplacer.Replace(nodeText(s, " ")))
		return false
	})
	return found, found != ""
}

func (p *Parser) normalizeReading(text string) string {
	m := p.readingRe.FindStringSubmatch(text)
	if m == nil {
		return strings.Join(strings.Fields(text), " ")
	}
	return fmt.Sprintf("%s %s de %s", m[1], strings.ToLower(m[2]), strings.ToLower(p.opts.ReadingToken))
}

func (p *Parser) publishedDate(doc *goquery.Document) (string, bool) {
	if v := strings.TrimSpace(doc.Find(p.opts.PublishedMeta).First().AttrOr("content", "")); v != "" {
		return v, true
	}

	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json5.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		found = datePublished(data)
		return found == ""
	})
	return found, found != ""
}

// datePublished looks for datePublished in a JSON-LD value, descending into
// top-level arrays and @graph.
func datePublished(v any) string {
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t["datePublished"].(string); ok && s != "" {
			return s
		}
		if g, ok := t["@graph"]; ok {
			return datePublished(g)
		}
	case []any:
		for _, item := range t {
			if s := datePublished(item); s != "" {
				return s
			}
		}
	}
	return ""
}

var spaceReplacer = strings.NewReplacer(" ", " ")

func normText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(spaceReplacer.Replace(s.Text())), " ")
}

// nodeText joins the trimmed text nodes of s with sep. With no separator
// "<b>7</b>min de lectura" reads as "7min de lectura", which is what the
// length limit is measured on.
func nodeText(s *goquery.Selection, sep string) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, sep)
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
